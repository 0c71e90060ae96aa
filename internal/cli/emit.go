package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/envgraph/internal/command"
	"github.com/roach88/envgraph/internal/ir"
)

// CommandOptions holds flags for the command command.
type CommandOptions struct {
	*RootOptions
	Database string
	Delete   bool
	Rename   string
	Do       bool
}

// CommandList is the set of engine commands for one edit.
type CommandList struct {
	Node     string   `json:"node"`
	Commands []string `json:"commands"`
}

func (l CommandList) String() string {
	return strings.Join(l.Commands, "\n")
}

// NewCommandCommand creates the command command.
func NewCommandCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CommandOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "command <node-id> [action-args...]",
		Short: "Print the engine commands for editing a node",
		Long: `Print the text commands the execution engine expects for a node in the
checkpointed tree, wrapped for the node's module path.

By default the command that recreates the node is printed. --delete prints
its removal, --do invokes an Action with the remaining arguments, and
--rename renames the node in the stored tree and prints the delete/create
pair.

Examples:
  envgraph command x
  envgraph command z@m@n --delete
  envgraph command inc --do 1 2
  envgraph command y@m --rename w`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "print the delete command")
	cmd.Flags().StringVar(&opts.Rename, "rename", "", "rename the node to this label")
	cmd.Flags().BoolVar(&opts.Do, "do", false, "print the invocation of an Action")

	return cmd
}

func runCommand(opts *CommandOptions, id string, actionArgs []string, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	modes := 0
	for _, set := range []bool{opts.Delete, opts.Rename != "", opts.Do} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		_ = out.Error(CodeBadInput, "--delete, --rename and --do are mutually exclusive", nil)
		return NewExitError(ExitCommandError, "conflicting flags")
	}
	if len(actionArgs) > 0 && !opts.Do {
		_ = out.Error(CodeBadInput, "arguments after the node id require --do", nil)
		return NewExitError(ExitCommandError, "unexpected arguments")
	}

	sess, err := openSession(ctx, opts.RootOptions, opts.Database, true)
	if err != nil {
		return err
	}
	defer sess.Close()

	n, ok := sess.tree.FindByID(id)
	if !ok {
		_ = out.Error(CodeNotFound, fmt.Sprintf("node %s not found", id), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("node not found: %s", id))
	}
	b := command.ForEnvironment(ir.EnvIDOf(id))
	result := CommandList{Node: id}

	switch {
	case opts.Delete:
		result.Commands = []string{b.Delete(id)}

	case opts.Do:
		if n.Kind != ir.KindAction {
			_ = out.Error(CodeBadInput, fmt.Sprintf("node %s is a %s, not an Action", id, n.Kind), nil)
			return NewExitError(ExitCommandError, "not an action")
		}
		result.Commands = []string{b.Do(id, actionArgs...)}

	case opts.Rename != "":
		newID, err := sess.tree.Rename(id, opts.Rename)
		if err != nil {
			_ = out.Error(CodeBadInput, err.Error(), nil)
			return WrapExitError(ExitCommandError, "rename failed", err)
		}
		renamed, _ := sess.tree.FindByID(newID)
		cmds, err := b.Rename(id, renamed)
		if err != nil {
			return WrapExitError(ExitCommandError, "rename failed", err)
		}
		if err := sess.store.SaveTree(ctx, sess.tree); err != nil {
			return WrapExitError(ExitCommandError, "failed to save tree", err)
		}
		result.Node = newID
		result.Commands = cmds

	default:
		c, err := b.ForNode(n)
		if err != nil {
			_ = out.Error(CodeBadInput, err.Error(), nil)
			return WrapExitError(ExitCommandError, "no command for node", err)
		}
		result.Commands = []string{c}
	}

	return out.Success(result)
}
