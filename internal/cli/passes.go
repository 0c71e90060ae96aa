package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/envgraph/internal/store"
)

// PassesOptions holds flags for the passes command.
type PassesOptions struct {
	*RootOptions
	Database string
	Limit    int
	Seq      int64
}

// PassView is one entry of the pass log.
type PassView struct {
	Seq        int64  `json:"seq"`
	Token      string `json:"token"`
	Outcome    string `json:"outcome"`
	Digest     string `json:"digest"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Deleted    int    `json:"deleted"`
	Warnings   int    `json:"warnings"`
	Error      string `json:"error,omitempty"`
	TreeDigest string `json:"tree_digest,omitempty"`
}

func (p PassView) String() string {
	line := fmt.Sprintf("%d\t%s\t%s\t+%d ~%d -%d\t%d warnings",
		p.Seq, p.Token, p.Outcome, p.Created, p.Updated, p.Deleted, p.Warnings)
	if p.Error != "" {
		line += "\t" + p.Error
	}
	return line
}

// PassLog renders one pass per line in text mode.
type PassLog []PassView

func (l PassLog) String() string {
	if len(l) == 0 {
		return "No passes recorded."
	}
	lines := make([]string, len(l))
	for i, p := range l {
		lines[i] = p.String()
	}
	return strings.Join(lines, "\n")
}

func passView(p store.Pass) PassView {
	return PassView{
		Seq:        p.Seq,
		Token:      p.Token,
		Outcome:    p.Outcome,
		Digest:     p.Digest,
		Created:    p.Created,
		Updated:    p.Updated,
		Deleted:    p.Deleted,
		Warnings:   p.Warnings,
		Error:      p.Error,
		TreeDigest: p.TreeDigest,
	}
}

// NewPassesCommand creates the passes command.
func NewPassesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PassesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "passes",
		Short: "List the reconciliation pass log",
		Long: `List committed and rejected passes recorded in the database, oldest
first. --limit keeps only the most recent passes; --seq prints one pass.

Examples:
  envgraph passes --db ./envgraph.db
  envgraph passes --limit 10 --format json
  envgraph passes --seq 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPasses(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the most recent N passes (0 = all)")
	cmd.Flags().Int64Var(&opts.Seq, "seq", 0, "show the pass with this sequence number")

	return cmd
}

func runPasses(opts *PassesOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	sess, err := openSession(ctx, opts.RootOptions, opts.Database, true)
	if err != nil {
		return err
	}
	defer sess.Close()

	if opts.Seq > 0 {
		p, err := sess.store.ReadPass(ctx, opts.Seq)
		if errors.Is(err, store.ErrPassNotFound) {
			_ = out.Error(CodeNotFound, fmt.Sprintf("pass %d not found", opts.Seq), nil)
			return WrapExitError(ExitCommandError, "pass not found", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read pass", err)
		}
		return out.Success(passView(p))
	}

	passes, err := sess.store.ListPasses(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list passes", err)
	}
	log := make(PassLog, 0, len(passes))
	for _, p := range passes {
		log = append(log, passView(p))
	}
	return out.Success(log)
}
