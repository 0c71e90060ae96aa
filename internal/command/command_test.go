package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/envgraph/internal/ir"
)

func TestRootCommands(t *testing.T) {
	b := NewBuilder(nil)

	assert.Equal(t, "var x = 3", b.Var("x", "3"))
	assert.Equal(t, "def g = x + x", b.Def("g", "x + x"))
	assert.Equal(t, "delete x", b.Delete("x"))
	assert.Equal(t, "do inc", b.Do("inc"))
	assert.Equal(t, "do inc 1 2", b.Do("inc", "1", "2"))
	assert.Equal(t, "module m {}", b.Module("m"))

	table, err := b.Table("people", []ir.Column{{Name: "name", Type: "string"}, {Name: "age", Type: "int"}})
	require.NoError(t, err)
	assert.Equal(t, "table people { name:string, age:int }", table)
}

func TestTableRequiresColumns(t *testing.T) {
	_, err := NewBuilder(nil).Table("t", nil)
	assert.ErrorIs(t, err, ErrNoColumns)
}

func TestWrapInnermostFirst(t *testing.T) {
	b := NewBuilder([]string{"m", "n"})
	assert.Equal(t, "@m { @n { do inc@m@n 5 } }", b.Do("inc@m@n", "5"))

	assert.Equal(t, "@m { var y = 2 }", ForEnvironment("m").Var("y", "2"))
	assert.Equal(t, "@m { @n { delete z@m@n } }", ForEnvironment("n@m").Delete("z@m@n"))
	assert.Equal(t, "var x = 1", ForEnvironment(ir.RootEnvID).Var("x", "1"))
}

func TestForNode(t *testing.T) {
	b := NewBuilder(nil)
	tests := []struct {
		node *ir.Node
		want string
	}{
		{&ir.Node{Label: "x", Kind: ir.KindVariable, Value: "3"}, "var x = 3"},
		{&ir.Node{Label: "g", Kind: ir.KindDefinition, Definition: "x * 2"}, "def g = x * 2"},
		{&ir.Node{Label: "p", Kind: ir.KindHTML, Definition: "<b>{x}</b>"}, "def p = <b>{x}</b>"},
		{&ir.Node{Label: "inc", Kind: ir.KindAction, Action: "x := x + 1"}, "def inc = x := x + 1"},
		{&ir.Node{Label: "t", Kind: ir.KindTable, Columns: []ir.Column{{Name: "a", Type: "int"}}}, "table t { a:int }"},
		{&ir.Node{Label: "m", Kind: ir.KindModule}, "module m {}"},
	}

	for _, tt := range tests {
		t.Run(string(tt.node.Kind), func(t *testing.T) {
			got, err := b.ForNode(tt.node)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := b.ForNode(&ir.Node{Label: "w", Kind: "Widget"})
	assert.Error(t, err)
}

func TestRename(t *testing.T) {
	cmds, err := ForEnvironment("m").Rename("y@m", &ir.Node{ID: "w@m", Label: "w", Kind: ir.KindVariable, Value: "2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"@m { delete y@m }", "@m { var w = 2 }"}, cmds)
}
