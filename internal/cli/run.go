package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/envgraph/internal/config"
	"github.com/roach88/envgraph/internal/metrics"
	"github.com/roach88/envgraph/internal/reconcile"
)

// maxLineSize bounds one input line; snapshots of large programs are long.
const maxLineSize = 16 << 20

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Input       string
	Message     bool
	MetricsAddr string

	// Tokens overrides the pass token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Tokens reconcile.TokenGenerator
}

// confirmLine is an input line carrying a dependency confirmation.
type confirmLine struct {
	Confirm *struct {
		Node         string   `json:"node"`
		Dependencies []string `json:"dependencies"`
	} `json:"confirm"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the reconciliation engine",
		Long: `Start the single-writer engine over the checkpointed tree.

Input is read one JSON document per line from stdin (or --input). Each line
is a snapshot, or with --message a server message envelope. A line of the
form {"confirm": {"node": "<id>", "dependencies": [...]}} is a dependency
confirmation. Every pass is checkpointed to the database and summarized on
stdout. The engine stops at end of input or on SIGINT/SIGTERM.

With confirmations set to "local" in the config, every dependency request
is answered with an empty list, which keeps the inferred edges.

Example:
  envgraph run --db ./envgraph.db < snapshots.jsonl
  envgraph run --message --metrics-addr :9090 --input messages.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Input, "input", "-", "input file of JSON lines (- for stdin)")
	cmd.Flags().BoolVar(&opts.Message, "message", false, "input lines are server message envelopes")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	out := opts.formatter(cmd)

	sess, err := openSession(ctx, opts.RootOptions, opts.Database, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	input, closeInput, err := openInput(opts.Input, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open input", err)
	}
	defer closeInput()

	rec := metrics.New()
	recOpts := []reconcile.Option{reconcile.WithRecorder(rec)}
	if opts.Tokens != nil {
		recOpts = append(recOpts, reconcile.WithTokenGenerator(opts.Tokens))
	}
	r, err := sess.reconciler(ctx, recOpts...)
	if err != nil {
		return err
	}

	engOpts := []reconcile.EngineOption{
		reconcile.WithPassHandler(func(res *reconcile.PassResult, err error) {
			reportPass(out, res, err)
		}),
		reconcile.WithConfirmationHandler(func(res reconcile.ConfirmationResult, err error) {
			if err == nil {
				out.VerboseLog("confirmation %s: +%d -%d edges", res.NodeID, len(res.Added), len(res.Removed))
			}
		}),
	}
	if sess.cfg.Confirmations == config.ConfirmationsLocal {
		engOpts = append(engOpts, reconcile.WithLocalConfirmations())
	}
	eng := reconcile.NewEngine(r, engOpts...)

	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = sess.cfg.MetricsAddr
	}
	if metricsAddr != "" {
		srv := serveMetrics(metricsAddr, rec)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		if err := feed(eng, input, opts.Message); err != nil {
			slog.Error("reading input failed", "error", err)
		}
		eng.Stop()
	}()

	slog.Info("engine starting", "db", sess.path, "confirmations", sess.cfg.Confirmations)
	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	slog.Info("engine stopped gracefully", "nodes", sess.tree.NodeCount())
	return nil
}

// feed enqueues one event per non-blank input line.
func feed(eng *reconcile.Engine, r io.Reader, message bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		data := bytes.Clone(line)

		var ok bool
		if c, isConfirm := parseConfirmation(data); isConfirm {
			ok = eng.EnqueueConfirmation(c)
		} else if message {
			ok = eng.EnqueueMessage(data)
		} else {
			ok = eng.EnqueueSnapshot(data)
		}
		if !ok {
			return nil
		}
	}
	return scanner.Err()
}

// parseConfirmation recognizes a {"confirm": {...}} line.
func parseConfirmation(data []byte) (reconcile.Confirmation, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) != 1 {
		return reconcile.Confirmation{}, false
	}
	if _, ok := raw["confirm"]; !ok {
		return reconcile.Confirmation{}, false
	}
	var line confirmLine
	if err := json.Unmarshal(data, &line); err != nil || line.Confirm == nil || line.Confirm.Node == "" {
		return reconcile.Confirmation{}, false
	}
	return reconcile.Confirmation{
		NodeID:       line.Confirm.Node,
		Dependencies: line.Confirm.Dependencies,
	}, true
}

func reportPass(out *OutputFormatter, res *reconcile.PassResult, err error) {
	if err != nil {
		var re *reconcile.RuntimeError
		if errors.As(err, &re) && re.Code == reconcile.ErrCodeCycleDetected {
			_ = out.Error(CodeCycleDetected, err.Error(), map[string]any{
				"node":  re.NodeID,
				"cycle": re.Path,
			})
			return
		}
		_ = out.Error(CodeBadInput, err.Error(), nil)
		return
	}
	_ = out.SuccessWithWarnings(summarize(res), warningStrings(res.Warnings))
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func serveMetrics(addr string, rec *metrics.Recorder) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
