package snapshot

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/envgraph/internal/ir"
)

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder()
	require.NoError(t, err)
	return d
}

func strPtr(s string) *string { return &s }

// =============================================================================
// Validation
// =============================================================================

func TestValidateDescriptor(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	valid := []string{
		`{"name":"x","val":"3","type":"int","keyword":"var"}`,
		`{"name":"g","val":"6","type":"int","exp":"x + x","keyword":"def","operation":null}`,
		`{"name":"m","type":"module","commands":{"y":{"name":"y","val":"1"}},"params":{"p":"int"}}`,
		`{"name":"x","operation":"delete","originalInput":"var x = 3"}`,
	}
	for _, raw := range valid {
		assert.NoError(t, v.ValidateDescriptor([]byte(raw)), raw)
	}

	invalid := []string{
		`{"val":"3"}`,
		`{"name":""}`,
		`{"name":"x","val":3}`,
		`{"name":"m","params":{"p":1}}`,
		`{"name":"m","commands":[1,2]}`,
	}
	for _, raw := range invalid {
		assert.Error(t, v.ValidateDescriptor([]byte(raw)), raw)
	}
}

// =============================================================================
// Decode
// =============================================================================

func TestDecodeSortsEntries(t *testing.T) {
	d := newTestDecoder(t)

	snap, err := d.Decode([]byte(`{
		"x": {"name": "x", "val": "3", "type": "int", "keyword": "var"},
		"g": {"name": "g", "val": "6", "type": "int", "exp": "x + x", "keyword": "def"}
	}`))
	require.NoError(t, err)
	require.Len(t, snap.Entries, 2)
	assert.Empty(t, snap.Warnings)

	assert.Equal(t, "g", snap.Entries[0].Key)
	assert.Equal(t, "x + x", snap.Entries[0].Descriptor.Expression())
	assert.Equal(t, "x", snap.Entries[1].Key)
	assert.Equal(t, "3", snap.Entries[1].Descriptor.Val)
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	_, err := newTestDecoder(t).Decode([]byte(`{"x":`))
	assert.Error(t, err)
}

func TestDecodeMalformedEntryIsBestEffort(t *testing.T) {
	d := newTestDecoder(t)

	snap, err := d.Decode([]byte(`{"x": {"name": "x", "val": 3, "type": "int"}}`))
	require.NoError(t, err)

	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "3", snap.Entries[0].Descriptor.Val)
	require.Len(t, snap.Warnings, 1)

	var me *MalformedError
	require.True(t, errors.As(snap.Warnings[0], &me))
	assert.Equal(t, "x", me.Key)
}

func TestDecodeMissingNameFallsBackToKey(t *testing.T) {
	snap, err := newTestDecoder(t).Decode([]byte(`{"x": {"val": "1"}}`))
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "x", snap.Entries[0].Descriptor.Name)
	assert.Len(t, snap.Warnings, 1)
}

func TestDecodeNonObjectEntryDropped(t *testing.T) {
	snap, err := newTestDecoder(t).Decode([]byte(`{"x": "oops", "y": {"name": "y", "val": "1"}}`))
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "y", snap.Entries[0].Key)
	// one schema failure and one decode failure for x
	assert.Len(t, snap.Warnings, 2)
}

func TestDecodeMessage(t *testing.T) {
	d := newTestDecoder(t)
	env, err := json.Marshal(`{"x": {"name": "x", "val": "3", "type": "int"}}`)
	require.NoError(t, err)

	snap, err := d.DecodeMessage([]byte(`{"env": ` + string(env) + `, "err": null}`))
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Empty(t, snap.EngineError)

	snap, err = d.DecodeMessage([]byte(`{"env": "", "err": "undefined variable q"}`))
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)
	assert.Equal(t, "undefined variable q", snap.EngineError)

	_, err = d.DecodeMessage([]byte(`{"err": "x"}`))
	assert.Error(t, err)
}

// =============================================================================
// Classify
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		desc Descriptor
		want ir.Kind
	}{
		{"variable", Descriptor{Type: "int", Val: "3"}, ir.KindVariable},
		{"definition", Descriptor{Type: "int", Keyword: "def", Exp: strPtr("x + x")}, ir.KindDefinition},
		{"html wins over def", Descriptor{Type: "html", Keyword: "def"}, ir.KindHTML},
		{"action wins over def", Descriptor{Type: "action", Keyword: "def"}, ir.KindAction},
		{"action substring", Descriptor{Type: "*action*"}, ir.KindAction},
		{"table by type", Descriptor{Type: "array[{a:int}]"}, ir.KindTable},
		{"table by value", Descriptor{Type: "unknown", Val: "table[{a:1}]"}, ir.KindTable},
		{"module", Descriptor{Type: "module"}, ir.KindModule},
		{"def table is definition", Descriptor{Type: "array[{a:int}]", Keyword: "def"}, ir.KindDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.desc))
		})
	}
}

func TestIsInternal(t *testing.T) {
	assert.True(t, IsInternal(Descriptor{Type: "$builtin"}))
	assert.True(t, IsInternal(Descriptor{Type: "fn$1"}))
	assert.False(t, IsInternal(Descriptor{Type: "int"}))
}

// =============================================================================
// ParseValue
// =============================================================================

func TestParseValueTable(t *testing.T) {
	v, err := ParseValue("array[{name:string, age:int}]", `table[{name:"ada",age:36},{name:"alan",age:41}]`)
	require.NoError(t, err)

	assert.Equal(t, []ir.Column{{Name: "name", Type: "string"}, {Name: "age", Type: "int"}}, v.Columns)
	assert.Equal(t, []map[string]any{
		{"name": "ada", "age": float64(36)},
		{"name": "alan", "age": float64(41)},
	}, v.Rows)
}

func TestParseValueTableAlreadyQuoted(t *testing.T) {
	v, err := ParseValue("", `table[{"a":1}]`)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"a": float64(1)}}, v.Rows)
}

func TestParseValueMalformedRows(t *testing.T) {
	v, err := ParseValue("array[{a:int}]", `table[{a:}]`)
	require.Error(t, err)

	var me *MalformedError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "val", me.Field)
	assert.Empty(t, v.Rows)
	assert.Equal(t, []ir.Column{{Name: "a", Type: "int"}}, v.Columns)
}

func TestParseColumnsSkipsBadDefinitions(t *testing.T) {
	assert.Equal(t, []ir.Column{{Name: "a", Type: "int"}}, ParseColumns("array[{a:int, b, :x}]"))
	assert.Nil(t, ParseColumns("int"))
}

func TestParseValueConstructor(t *testing.T) {
	v, err := ParseValue("int", "Int(3)")
	require.NoError(t, err)
	assert.Equal(t, "3", v.Text)
	assert.Equal(t, "Int", v.Constructor)

	v, err = ParseValue("int", "Foo(a) + Bar(b)")
	require.NoError(t, err)
	assert.Equal(t, "Foo(a) + Bar(b)", v.Text)
	assert.Empty(t, v.Constructor)
}

func TestParseValueFunctionRows(t *testing.T) {
	v, err := ParseValue("fn", "(n:1) -> 2, (n:2) -> 4")
	require.NoError(t, err)
	assert.Equal(t, []ir.ParsedEntry{
		{Param: "n", Value: "1", Output: "2"},
		{Param: "n", Value: "2", Output: "4"},
	}, v.Parsed)
	assert.Equal(t, "(n:1) -> 2, (n:2) -> 4", v.Text)
}

func TestParseValueVerbatim(t *testing.T) {
	v, err := ParseValue("string", `"hello"`)
	require.NoError(t, err)
	assert.Equal(t, Value{Text: `"hello"`}, v)
}

// =============================================================================
// Flatten
// =============================================================================

func TestFlattenCreateScenario(t *testing.T) {
	d := newTestDecoder(t)
	snap, err := d.Decode([]byte(`{"x": {"name": "x", "val": "3", "type": "int", "keyword": "var"}}`))
	require.NoError(t, err)

	records, warnings := d.Flatten(snap)
	assert.Empty(t, warnings)
	require.Len(t, records, 1)
	assert.Equal(t, ir.Record{
		ID:      "x",
		Label:   "x",
		Kind:    ir.KindVariable,
		Value:   "3",
		TypeTag: "int",
	}, records[0])
}

func TestFlattenDependencies(t *testing.T) {
	d := newTestDecoder(t)
	snap, err := d.Decode([]byte(`{
		"x": {"name": "x", "val": "3", "type": "int"},
		"g": {"name": "g", "val": "6", "type": "int", "exp": "x + x + g", "keyword": "def"}
	}`))
	require.NoError(t, err)

	records, _ := d.Flatten(snap)
	require.Len(t, records, 2)
	assert.Equal(t, "g", records[0].ID)
	assert.Equal(t, ir.KindDefinition, records[0].Kind)
	assert.Equal(t, []string{"x"}, records[0].DependsOn)
}

func TestFlattenNestedModules(t *testing.T) {
	d := newTestDecoder(t)
	snap, err := d.Decode([]byte(`{
		"m": {
			"name": "m", "type": "module", "params": {"p": "int"},
			"commands": {
				"y": {"name": "y", "val": "2", "type": "int"},
				"h": {"name": "h", "val": "4", "type": "int", "exp": "y * 2", "keyword": "def"},
				"n": {
					"name": "n", "type": "module",
					"commands": {"z": {"name": "z", "val": "5", "type": "int"}}
				}
			}
		},
		"sys": {"name": "sys", "type": "$internal"}
	}`))
	require.NoError(t, err)

	records, warnings := d.Flatten(snap)
	assert.Empty(t, warnings)

	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"m", "h@m", "n@m", "z@m@n", "y@m"}, ids)

	assert.Equal(t, map[string]string{"p": "int"}, records[0].Params)
	assert.Equal(t, ir.KindModule, records[0].Kind)
	assert.Equal(t, []string{"y@m"}, records[1].DependsOn)
	assert.Equal(t, []string{"m"}, records[1].ParentPath)
	assert.Equal(t, "n@m", records[3].EnvID())
	assert.Equal(t, "z", records[3].Label)
}

func TestFlattenQualifiedTopLevelNames(t *testing.T) {
	d := newTestDecoder(t)
	snap, err := d.Decode([]byte(`{"y@m@n": {"name": "y@m@n", "val": "1", "type": "int"}}`))
	require.NoError(t, err)

	records, _ := d.Flatten(snap)
	require.Len(t, records, 1)
	assert.Equal(t, "y", records[0].Label)
	assert.Equal(t, []string{"m", "n"}, records[0].ParentPath)
	assert.Equal(t, "n@m", records[0].EnvID())
}

func TestFlattenDeleteAndTable(t *testing.T) {
	d := newTestDecoder(t)
	snap, err := d.Decode([]byte(`{
		"old": {"name": "old", "operation": "delete"},
		"t": {"name": "t", "type": "array[{a:int}]", "val": "table[{a:}]"}
	}`))
	require.NoError(t, err)

	records, warnings := d.Flatten(snap)
	require.Len(t, records, 2)
	assert.True(t, records[0].Delete)
	assert.Equal(t, ir.KindTable, records[1].Kind)
	assert.Empty(t, records[1].Rows)

	require.Len(t, warnings, 1)
	var me *MalformedError
	require.ErrorAs(t, warnings[0], &me)
	assert.Equal(t, "t", me.Key)
}

func TestFlattenBadNestedCommands(t *testing.T) {
	d := newTestDecoder(t)
	snap := &Snapshot{Entries: []Entry{{
		Key:        "m",
		Descriptor: Descriptor{Name: "m", Type: "module", Commands: json.RawMessage(`[1]`)},
	}}}

	records, warnings := d.Flatten(snap)
	require.Len(t, records, 1)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Error(), "commands")
}
