package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/envgraph/internal/envtree"
	"github.com/roach88/envgraph/internal/layout"
)

// LayoutOptions holds flags for the layout command.
type LayoutOptions struct {
	*RootOptions
	Database  string
	Policy    string
	Direction string
	Env       string
}

// LayoutResult reports which Environments were laid out.
type LayoutResult struct {
	Policy       string   `json:"policy"`
	Environments []string `json:"environments"`
	Nodes        int      `json:"nodes"`
}

func (r LayoutResult) String() string {
	return fmt.Sprintf("laid out %d nodes in %d environments (%s)", r.Nodes, len(r.Environments), r.Policy)
}

// NewLayoutCommand creates the layout command.
func NewLayoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LayoutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Recompute node positions in the checkpointed tree",
		Long: `Recompute node positions for every Environment (or one, with --env) and
save the tree. Policy and direction default to the configured layout.

Examples:
  envgraph layout --db ./envgraph.db
  envgraph layout --policy radial --env m`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "layout policy (layered|radial)")
	cmd.Flags().StringVar(&opts.Direction, "direction", "", "layered rank direction (LR|TB)")
	cmd.Flags().StringVar(&opts.Env, "env", "", "lay out one Environment only")

	return cmd
}

func runLayout(opts *LayoutOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	sess, err := openSession(ctx, opts.RootOptions, opts.Database, true)
	if err != nil {
		return err
	}
	defer sess.Close()

	lo := sess.cfg.LayoutOptions()
	if opts.Policy != "" {
		lo.Policy = layout.Policy(opts.Policy)
	}
	if opts.Direction != "" {
		lo.Direction = layout.Direction(opts.Direction)
	}
	if err := lo.Validate(); err != nil {
		_ = out.Error(CodeBadInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid layout options", err)
	}

	result := LayoutResult{Policy: string(lo.Policy), Environments: []string{}}
	if result.Policy == "" {
		result.Policy = string(layout.DefaultOptions().Policy)
	}
	lay := func(env *envtree.Environment) {
		layout.Apply(env, lo)
		result.Environments = append(result.Environments, env.ID)
		result.Nodes += len(env.Nodes)
	}

	if opts.Env != "" {
		env, ok := sess.tree.Environment(opts.Env)
		if !ok {
			_ = out.Error(CodeNotFound, fmt.Sprintf("environment %s not found", opts.Env), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("environment not found: %s", opts.Env))
		}
		lay(env)
	} else {
		sess.tree.Walk(func(env *envtree.Environment) bool {
			lay(env)
			return true
		})
	}

	if err := sess.store.SaveTree(ctx, sess.tree); err != nil {
		return WrapExitError(ExitCommandError, "failed to save tree", err)
	}
	return out.Success(result)
}
