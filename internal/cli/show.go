package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/envgraph/internal/envtree"
	"github.com/roach88/envgraph/internal/ir"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	Search   string
	Kinds    []string
	Env      string
}

// NodeView is one node in filtered show output.
type NodeView struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Kind       string  `json:"kind"`
	Env        string  `json:"env"`
	Value      string  `json:"value,omitempty"`
	Definition string  `json:"definition,omitempty"`
	Action     string  `json:"action,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

// NodeList renders one node per line in text mode.
type NodeList []NodeView

func (l NodeList) String() string {
	if len(l) == 0 {
		return "No matching nodes."
	}
	var b strings.Builder
	for i, n := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s\t%s\t%s", n.ID, n.Kind, n.Env)
	}
	return b.String()
}

// treeText renders a tree listing in text mode.
type treeText struct {
	tree *envtree.Tree
	env  string
}

func (t treeText) String() string { return renderTree(t.tree, t.env) }

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the checkpointed tree",
		Long: `Print the Environment tree stored in the database.

Without filters the whole tree is printed: nodes in dependency order and
edges per Environment, nested Environments indented. --search matches
labels case-insensitively and --kind restricts to node kinds; both print a
flat node list.

Examples:
  envgraph show --db ./envgraph.db
  envgraph show --search total --kind Definition
  envgraph show --env m --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Search, "search", "", "label substring to match")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "node kinds to include (repeatable)")
	cmd.Flags().StringVar(&opts.Env, "env", "", "show one Environment and its descendants")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	sess, err := openSession(ctx, opts.RootOptions, opts.Database, true)
	if err != nil {
		return err
	}
	defer sess.Close()
	tree := sess.tree

	if opts.Env != "" {
		if _, ok := tree.Environment(opts.Env); !ok {
			_ = out.Error(CodeNotFound, fmt.Sprintf("environment %s not found", opts.Env), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("environment not found: %s", opts.Env))
		}
	}

	if opts.Search != "" || len(opts.Kinds) > 0 {
		nodes, err := filterNodes(tree, opts.Search, opts.Kinds)
		if err != nil {
			_ = out.Error(CodeBadInput, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid filter", err)
		}
		views := make(NodeList, 0, len(nodes))
		for _, n := range nodes {
			env := ir.EnvIDOf(n.ID)
			if opts.Env != "" && !within(env, opts.Env) {
				continue
			}
			views = append(views, NodeView{
				ID:         n.ID,
				Label:      n.Label,
				Kind:       string(n.Kind),
				Env:        env,
				Value:      n.Value,
				Definition: n.Definition,
				Action:     n.Action,
				X:          n.Position.X,
				Y:          n.Position.Y,
			})
		}
		return out.Success(views)
	}

	if opts.Format == "json" {
		dump, err := tree.Canonical()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to dump tree", err)
		}
		var data any
		if err := json.Unmarshal(dump, &data); err != nil {
			return WrapExitError(ExitCommandError, "failed to dump tree", err)
		}
		return out.Success(data)
	}
	return out.Success(treeText{tree: tree, env: opts.Env})
}

// filterNodes applies the label search, then the kind filter.
func filterNodes(tree *envtree.Tree, search string, kindNames []string) ([]*ir.Node, error) {
	var kinds []ir.Kind
	for _, name := range kindNames {
		k, err := ir.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}

	var nodes []*ir.Node
	if search != "" {
		nodes = tree.Search(search)
	} else {
		nodes = tree.Filter(kinds...)
		kinds = nil
	}
	if len(kinds) == 0 {
		return nodes, nil
	}

	filtered := nodes[:0]
	for _, n := range nodes {
		for _, k := range kinds {
			if n.Kind == k {
				filtered = append(filtered, n)
				break
			}
		}
	}
	return filtered, nil
}

// within reports whether envID is root or nested inside it.
func within(envID, root string) bool {
	path, prefix := ir.ModulePath(envID), ir.ModulePath(root)
	return len(path) >= len(prefix) && slices.Equal(path[:len(prefix)], prefix)
}

func renderTree(tree *envtree.Tree, from string) string {
	var b strings.Builder
	tree.Walk(func(env *envtree.Environment) bool {
		if from != "" && !within(env.ID, from) {
			return true
		}
		indent := strings.Repeat("  ", len(ir.ModulePath(env.ID)))
		fmt.Fprintf(&b, "%s%s\n", indent, env.ID)
		for _, n := range env.Nodes {
			fmt.Fprintf(&b, "%s  %s [%s]%s @ (%g,%g)\n", indent, n.Label, n.Kind, nodeDetail(n), n.Position.X, n.Position.Y)
		}
		for _, e := range env.Edges {
			fmt.Fprintf(&b, "%s  %s\n", indent, edgeLine(e))
		}
		return true
	})
	return strings.TrimSuffix(b.String(), "\n")
}

func nodeDetail(n *ir.Node) string {
	switch {
	case n.Definition != "":
		return " := " + n.Definition
	case n.Action != "":
		return " do " + n.Action
	case n.Value != "":
		return " = " + n.Value
	}
	return ""
}

func edgeLine(e ir.Edge) string {
	if e.Kind == ir.EdgeAction {
		return fmt.Sprintf("%s => %s (%s)", e.Source, e.Target, e.Action)
	}
	return fmt.Sprintf("%s -> %s", e.Source, e.Target)
}
