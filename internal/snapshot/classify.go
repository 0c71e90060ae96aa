package snapshot

import (
	"strings"

	"github.com/roach88/envgraph/internal/ir"
)

// Type tags with fixed meaning on the wire.
const (
	TypeModule = "module"
	TypeHTML   = "html"
)

// KeywordDef marks an entry whose expression is a live definition.
const KeywordDef = "def"

// IsInternal reports whether the entry is engine-internal and must be skipped.
func IsInternal(d Descriptor) bool {
	return strings.Contains(d.Type, "$")
}

// Classify maps a descriptor to its node kind. The checks run in a fixed
// order and the first match wins.
func Classify(d Descriptor) ir.Kind {
	switch {
	case d.Type == TypeModule:
		return ir.KindModule
	case d.Type == TypeHTML:
		return ir.KindHTML
	case strings.Contains(d.Type, "action"):
		return ir.KindAction
	case d.Keyword == KeywordDef:
		return ir.KindDefinition
	case strings.HasPrefix(d.Type, "array[{"), strings.HasPrefix(d.Val, "table"):
		return ir.KindTable
	default:
		return ir.KindVariable
	}
}
