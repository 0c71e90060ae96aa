package snapshot

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/envgraph/internal/ir"
)

var (
	columnsPattern     = regexp.MustCompile(`array\[\{(.+?)\}\]`)
	rowsPattern        = regexp.MustCompile(`^table\[(.+)\]$`)
	bareKeyPattern     = regexp.MustCompile(`([{,]\s*)([A-Za-z_]\w*)\s*:`)
	constructorPattern = regexp.MustCompile(`^([A-Z][A-Za-z0-9_]*)\((.*)\)$`)
	parsedPattern      = regexp.MustCompile(`\(\s*([A-Za-z_]\w*)\s*:\s*([^)]*?)\s*\)\s*->\s*([^,;\n]+)`)
)

// Value is the structured reading of a descriptor's raw value text.
type Value struct {
	// Text is the display value. Constructor wrappers such as Int(3) are
	// removed; any other form is kept verbatim.
	Text string

	// Constructor is the wrapper name removed from Text, if any.
	Constructor string

	Columns []ir.Column
	Rows    []map[string]any
	Parsed  []ir.ParsedEntry
}

// ParseValue reads the structured encodings an engine may use for a value:
//
//	array[{a:int,b:string}]        type tag carrying table columns
//	table[{a:1,b:"x"},{a:2,...}]   table rows with bare keys
//	Int(3)                         constructor wrapper around a scalar
//	(n:1) -> 2, (n:2) -> 4         rows of a function-valued variable
//
// Unrecognised forms are kept verbatim. A table value whose rows cannot be
// parsed yields empty rows and a *MalformedError.
func ParseValue(typeTag, raw string) (Value, error) {
	v := Value{Text: raw}
	v.Columns = ParseColumns(typeTag)

	if m := rowsPattern.FindStringSubmatch(raw); m != nil {
		rows, err := parseRows(m[1])
		if err != nil {
			return v, &MalformedError{Field: "val", Message: fmt.Sprintf("table rows: %v", err)}
		}
		v.Rows = rows
		return v, nil
	}

	if m := constructorPattern.FindStringSubmatch(raw); m != nil && balanced(m[2]) {
		v.Constructor = m[1]
		v.Text = m[2]
		return v, nil
	}

	for _, m := range parsedPattern.FindAllStringSubmatch(raw, -1) {
		v.Parsed = append(v.Parsed, ir.ParsedEntry{
			Param:  m[1],
			Value:  m[2],
			Output: strings.TrimSpace(m[3]),
		})
	}
	return v, nil
}

// ParseColumns extracts table columns from an array[{name:type,...}] tag.
// Malformed column definitions are skipped.
func ParseColumns(typeTag string) []ir.Column {
	m := columnsPattern.FindStringSubmatch(typeTag)
	if m == nil {
		return nil
	}
	var cols []ir.Column
	for _, def := range strings.Split(m[1], ",") {
		name, typ, ok := strings.Cut(def, ":")
		name, typ = strings.TrimSpace(name), strings.TrimSpace(typ)
		if !ok || name == "" || typ == "" {
			continue
		}
		cols = append(cols, ir.Column{Name: name, Type: typ})
	}
	return cols
}

func parseRows(body string) ([]map[string]any, error) {
	quoted := bareKeyPattern.ReplaceAllString("["+body+"]", `$1"$2":`)
	var rows []map[string]any
	if err := json.Unmarshal([]byte(quoted), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// balanced reports whether parentheses in s are properly nested.
func balanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
