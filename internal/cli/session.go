package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/envgraph/internal/config"
	"github.com/roach88/envgraph/internal/envtree"
	"github.com/roach88/envgraph/internal/reconcile"
	"github.com/roach88/envgraph/internal/store"
)

// session is an open checkpoint database with its committed tree.
type session struct {
	cfg   *config.Config
	path  string
	store *store.Store
	tree  *envtree.Tree
}

// openSession opens the database and loads the committed tree. With
// mustExist, a missing database file is a command error instead of being
// created.
func openSession(ctx context.Context, opts *RootOptions, dbFlag string, mustExist bool) (*session, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	path, err := opts.databasePath(dbFlag)
	if err != nil {
		return nil, err
	}
	if mustExist {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
		}
	}

	slog.Debug("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	tree, err := st.LoadTree(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load tree", err)
	}
	return &session{cfg: cfg, path: path, store: st, tree: tree}, nil
}

// reconciler builds a reconciler over the session tree that checkpoints to
// the store and resumes pass numbering after the last recorded pass.
func (s *session) reconciler(ctx context.Context, extra ...reconcile.Option) (*reconcile.Reconciler, error) {
	last, err := s.store.LastSeq(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read pass log", err)
	}
	opts := append([]reconcile.Option{
		reconcile.WithLayout(s.cfg.LayoutOptions()),
		reconcile.WithCheckpointer(s.store),
		reconcile.WithClock(reconcile.NewClockAt(last)),
	}, extra...)
	rec, err := reconcile.New(s.tree, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid layout configuration", err)
	}
	return rec, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
