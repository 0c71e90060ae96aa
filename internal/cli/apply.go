package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/envgraph/internal/reconcile"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database string
	Message  bool // inputs are server messages, not bare snapshots
}

// PassSummary is the CLI view of one committed pass.
type PassSummary struct {
	Seq          int64    `json:"seq"`
	Token        string   `json:"token"`
	Digest       string   `json:"digest"`
	Created      []string `json:"created"`
	Updated      []string `json:"updated"`
	Deleted      []string `json:"deleted"`
	EdgesAdded   []string `json:"edges_added"`
	EdgesRemoved []string `json:"edges_removed"`
	Environments []string `json:"environments"`
}

func (p PassSummary) String() string {
	return fmt.Sprintf("pass %d (%s): %d created, %d updated, %d deleted, %d edges added, %d edges removed",
		p.Seq, p.Token, len(p.Created), len(p.Updated), len(p.Deleted), len(p.EdgesAdded), len(p.EdgesRemoved))
}

func summarize(res *reconcile.PassResult) PassSummary {
	return PassSummary{
		Seq:          res.Seq,
		Token:        res.Token,
		Digest:       res.Digest,
		Created:      nonNil(res.Created),
		Updated:      nonNil(res.Updated),
		Deleted:      nonNil(res.Deleted),
		EdgesAdded:   nonNil(res.EdgesAdded),
		EdgesRemoved: nonNil(res.EdgesRemoved),
		Environments: nonNil(res.Environments),
	}
}

func warningStrings(warnings []error) []string {
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, w.Error())
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <snapshot-file>...",
		Short: "Reconcile snapshot files into the checkpointed tree",
		Long: `Apply environment snapshots to the tree stored in the database.

Each file is one snapshot document (or, with --message, one server message
envelope) and is reconciled as one pass. Use "-" to read from stdin. A
snapshot containing a referential cycle is rejected and leaves the stored
tree unchanged.

Exit codes:
  0 - All snapshots committed
  1 - A snapshot was rejected (cycle detected)
  2 - Command error (unreadable file, invalid JSON, database error)

Examples:
  envgraph apply --db ./envgraph.db snapshot.json
  envgraph apply --message --format json msg1.json msg2.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().BoolVar(&opts.Message, "message", false, "inputs are server message envelopes")

	return cmd
}

func runApply(opts *ApplyOptions, files []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	sess, err := openSession(ctx, opts.RootOptions, opts.Database, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	rec, err := sess.reconciler(ctx)
	if err != nil {
		return err
	}

	for _, file := range files {
		data, err := readInput(file, cmd.InOrStdin())
		if err != nil {
			_ = out.Error(CodeBadInput, err.Error(), file)
			return WrapExitError(ExitCommandError, "failed to read snapshot", err)
		}

		apply := rec.ApplyJSON
		if opts.Message {
			apply = rec.ApplyMessage
		}
		res, err := apply(ctx, data)
		if err != nil {
			var re *reconcile.RuntimeError
			if errors.As(err, &re) && re.Code == reconcile.ErrCodeCycleDetected {
				_ = out.Error(CodeCycleDetected, err.Error(), map[string]any{
					"file":  file,
					"node":  re.NodeID,
					"cycle": re.Path,
				})
				return WrapExitError(ExitFailure, fmt.Sprintf("snapshot %s rejected", file), err)
			}
			_ = out.Error(CodeBadInput, err.Error(), file)
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to apply %s", file), err)
		}

		if err := out.SuccessWithWarnings(summarize(res), warningStrings(res.Warnings)); err != nil {
			return err
		}
	}
	return nil
}

// readInput reads a file, or r when path is "-".
func readInput(path string, r io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(r)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return data, nil
}
