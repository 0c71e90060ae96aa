package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/envgraph/internal/command"
	"github.com/roach88/envgraph/internal/envtree"
	"github.com/roach88/envgraph/internal/infer"
	"github.com/roach88/envgraph/internal/ir"
	"github.com/roach88/envgraph/internal/layout"
)

// ScopeOptions holds flags shared by the scope commands.
type ScopeOptions struct {
	*RootOptions
	Database string
}

// ScopeView is the saved cursor: breadcrumbs, param inputs and the nodes of
// the current Environment.
type ScopeView struct {
	Path     []string          `json:"path"`
	Current  string            `json:"current"`
	Params   map[string]string `json:"params"`
	Nodes    []string          `json:"nodes"`
	Commands []string          `json:"commands,omitempty"`
}

func (v ScopeView) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(v.Path, " > "))
	names := make([]string, 0, len(v.Params))
	for name := range v.Params {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %s = %s", name, v.Params[name])
	}
	if len(v.Nodes) > 0 {
		fmt.Fprintf(&b, "\n  nodes: %s", strings.Join(v.Nodes, ", "))
	}
	for _, c := range v.Commands {
		fmt.Fprintf(&b, "\n%s", c)
	}
	return b.String()
}

func scopeView(tree *envtree.Tree) ScopeView {
	cur := tree.Current()
	return ScopeView{
		Path:    tree.Path(),
		Current: cur.ID,
		Params:  tree.ParamInputs(),
		Nodes:   cur.NodeIDs(),
	}
}

// NewScopeCommand creates the scope command and its subcommands.
func NewScopeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScopeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scope",
		Short: "Show or move the saved scope cursor",
		Long: `Show or move the scope cursor saved with the checkpointed tree.

The cursor is the breadcrumb path of Environments the user is working in,
plus the param inputs typed for the current module. Moving it clears the
param inputs and re-lays out the Environment that becomes current.

Examples:
  envgraph scope
  envgraph scope enter m
  envgraph scope param k 4
  envgraph scope add total --var 0
  envgraph scope jump root`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScope(opts, cmd, nil)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")

	cmd.AddCommand(&cobra.Command{
		Use:           "enter <module>",
		Short:         "Enter a module by id, or by label from the current scope",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScope(opts, cmd, func(tree *envtree.Tree, out *OutputFormatter, _ *ScopeView) error {
				return enterModule(tree, out, args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "exit",
		Short:         "Move to the parent Environment",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScope(opts, cmd, func(tree *envtree.Tree, out *OutputFormatter, _ *ScopeView) error {
				if !tree.Exit() {
					_ = out.Error(CodeBadInput, "already at root", nil)
					return NewExitError(ExitCommandError, "already at root")
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "jump <env-id>",
		Short:         "Jump back to an Environment on the breadcrumb path",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScope(opts, cmd, func(tree *envtree.Tree, out *OutputFormatter, _ *ScopeView) error {
				if err := tree.SetCurrent(args[0]); err != nil {
					_ = out.Error(CodeNotFound, err.Error(), nil)
					return WrapExitError(ExitCommandError, "jump failed", err)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "param <name> <value>",
		Short:         "Set a param input of the current module",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScope(opts, cmd, func(tree *envtree.Tree, out *OutputFormatter, _ *ScopeView) error {
				return setParam(tree, out, args[0], args[1])
			})
		},
	})
	cmd.AddCommand(newScopeAddCommand(opts))

	return cmd
}

func newScopeAddCommand(opts *ScopeOptions) *cobra.Command {
	var (
		value  string
		def    string
		module bool
	)
	cmd := &cobra.Command{
		Use:   "add <label>",
		Short: "Add a node to the current Environment",
		Long: `Add a node to the current Environment of the saved tree and print the
engine command that creates it. Exactly one of --var, --def or --module is
required. Modules go first in the node order.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScope(opts, cmd, func(tree *envtree.Tree, out *OutputFormatter, view *ScopeView) error {
				n := &ir.Node{Label: args[0]}
				kinds := 0
				if cmd.Flags().Changed("var") {
					n.Kind, n.Value = ir.KindVariable, value
					kinds++
				}
				if cmd.Flags().Changed("def") {
					n.Kind, n.Definition = ir.KindDefinition, def
					kinds++
				}
				if module {
					n.Kind = ir.KindModule
					kinds++
				}
				if kinds != 1 {
					_ = out.Error(CodeBadInput, "exactly one of --var, --def or --module is required", nil)
					return NewExitError(ExitCommandError, "missing node kind")
				}
				return addLocalNode(tree, out, n, view)
			})
		},
	}
	cmd.Flags().StringVar(&value, "var", "", "add a variable with this value")
	cmd.Flags().StringVar(&def, "def", "", "add a definition with this expression")
	cmd.Flags().BoolVar(&module, "module", false, "add a module")
	return cmd
}

// scopeEdit mutates the loaded tree. view is the response being built.
type scopeEdit func(tree *envtree.Tree, out *OutputFormatter, view *ScopeView) error

func runScope(opts *ScopeOptions, cmd *cobra.Command, edit scopeEdit) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	sess, err := openSession(ctx, opts.RootOptions, opts.Database, true)
	if err != nil {
		return err
	}
	defer sess.Close()

	if edit == nil {
		return out.Success(scopeView(sess.tree))
	}

	var extra ScopeView
	if err := edit(sess.tree, out, &extra); err != nil {
		return err
	}
	lo := sess.cfg.LayoutOptions()
	for _, envID := range sess.tree.TakeLayoutRequests() {
		if env, ok := sess.tree.Environment(envID); ok {
			layout.Apply(env, lo)
		}
	}
	if err := sess.store.SaveTree(ctx, sess.tree); err != nil {
		return WrapExitError(ExitCommandError, "failed to save tree", err)
	}

	view := scopeView(sess.tree)
	view.Commands = extra.Commands
	return out.Success(view)
}

// enterModule resolves ref as a node id, then as a label in the current
// Environment, then as a label anywhere in the tree.
func enterModule(tree *envtree.Tree, out *OutputFormatter, ref string) error {
	n, ok := tree.FindByID(ref)
	if !ok {
		n, ok = tree.FindLabelIn(tree.Current().ID, ref)
	}
	if !ok {
		n, ok = tree.FindByLabel(ref)
	}
	if !ok {
		_ = out.Error(CodeNotFound, fmt.Sprintf("module %s not found", ref), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("module not found: %s", ref))
	}
	if err := tree.Enter(n.ID); err != nil {
		_ = out.Error(CodeBadInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "enter failed", err)
	}
	return nil
}

func setParam(tree *envtree.Tree, out *OutputFormatter, name, value string) error {
	cur := tree.Current()
	if cur.ID == ir.RootEnvID {
		_ = out.Error(CodeBadInput, "param inputs need a module scope", nil)
		return NewExitError(ExitCommandError, "not in a module")
	}
	mod, ok := tree.FindByID(cur.ID)
	if ok && len(mod.Params) > 0 {
		if _, declared := mod.Params[name]; !declared {
			_ = out.Error(CodeNotFound, fmt.Sprintf("module %s has no param %s", cur.ID, name), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown param: %s", name))
		}
	}
	tree.SetParamInput(name, value)
	return nil
}

func addLocalNode(tree *envtree.Tree, out *OutputFormatter, n *ir.Node, view *ScopeView) error {
	if ids := infer.Identifiers(n.Label); len(ids) != 1 || ids[0] != n.Label {
		_ = out.Error(CodeBadInput, fmt.Sprintf("invalid label %q", n.Label), nil)
		return NewExitError(ExitCommandError, "invalid label")
	}
	envID := tree.Current().ID
	n.ID = ir.QualifiedID(n.Label, ir.ModulePath(envID))
	if err := tree.AddLocalNode(envID, n); err != nil {
		_ = out.Error(CodeBadInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "add failed", err)
	}
	if n.Kind == ir.KindModule {
		tree.EnsureEnvironment(n.ID)
	}
	if _, err := infer.New().ApplyLocal(tree, n.ID); err != nil {
		return WrapExitError(ExitCommandError, "edge inference failed", err)
	}
	tree.RequestLayout(envID)

	c, err := command.ForEnvironment(envID).ForNode(n)
	if err != nil {
		return WrapExitError(ExitCommandError, "no command for node", err)
	}
	view.Commands = []string{c}
	return nil
}
