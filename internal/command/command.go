// Package command renders the text commands sent to the execution engine.
//
// Commands address nodes relative to a module path. Outside the root every
// command is wrapped once per nesting level, innermost first:
//
//	var x = 3                     // at root
//	@m { @n { var x = 3 } }       // inside module n, itself inside m
package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/envgraph/internal/ir"
)

// ErrNoColumns is returned when a table command has no columns.
var ErrNoColumns = errors.New("table has no columns")

// Builder renders commands for one module path.
type Builder struct {
	path []string // module labels, outermost first
}

// NewBuilder creates a builder for a module path given as labels, outermost
// first. An empty path addresses the root.
func NewBuilder(modulePath []string) *Builder {
	return &Builder{path: append([]string(nil), modulePath...)}
}

// ForEnvironment creates a builder addressing the Environment envID.
func ForEnvironment(envID string) *Builder {
	return NewBuilder(ir.ModulePath(envID))
}

// Wrap nests cmd in one @<module> { ... } block per level of the path.
func (b *Builder) Wrap(cmd string) string {
	for i := len(b.path) - 1; i >= 0; i-- {
		cmd = fmt.Sprintf("@%s { %s }", b.path[i], cmd)
	}
	return cmd
}

// Var renders a variable assignment.
func (b *Builder) Var(label, value string) string {
	return b.Wrap(fmt.Sprintf("var %s = %s", label, value))
}

// Def renders a definition. Actions are sent as definitions too.
func (b *Builder) Def(label, expr string) string {
	return b.Wrap(fmt.Sprintf("def %s = %s", label, expr))
}

// Table renders a table declaration.
func (b *Builder) Table(label string, columns []ir.Column) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("table %s: %w", label, ErrNoColumns)
	}
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = c.Name + ":" + c.Type
	}
	return b.Wrap(fmt.Sprintf("table %s { %s }", label, strings.Join(defs, ", "))), nil
}

// Delete renders removal of a node by id.
func (b *Builder) Delete(id string) string {
	return b.Wrap("delete " + id)
}

// Do renders invocation of an action node.
func (b *Builder) Do(id string, args ...string) string {
	return b.Wrap(strings.TrimSpace("do " + id + " " + strings.Join(args, " ")))
}

// Module renders declaration of an empty module.
func (b *Builder) Module(label string) string {
	return b.Wrap(fmt.Sprintf("module %s {}", label))
}

// ForNode renders the command that creates or updates n.
func (b *Builder) ForNode(n *ir.Node) (string, error) {
	switch n.Kind {
	case ir.KindVariable:
		return b.Var(n.Label, n.Value), nil
	case ir.KindDefinition, ir.KindHTML:
		return b.Def(n.Label, n.Definition), nil
	case ir.KindAction:
		return b.Def(n.Label, n.Action), nil
	case ir.KindTable:
		return b.Table(n.Label, n.Columns)
	case ir.KindModule:
		return b.Module(n.Label), nil
	default:
		return "", fmt.Errorf("no command for node kind %q", n.Kind)
	}
}

// Rename renders the commands for renaming a node: removal of the old id
// followed by creation of the renamed node.
func (b *Builder) Rename(oldID string, renamed *ir.Node) ([]string, error) {
	create, err := b.ForNode(renamed)
	if err != nil {
		return nil, err
	}
	return []string{b.Delete(oldID), create}, nil
}
