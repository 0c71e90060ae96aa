package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Pass outcomes recorded in the pass log.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
)

// ErrPassNotFound is returned when no pass has the requested sequence number.
var ErrPassNotFound = errors.New("pass not found")

// Pass is one entry of the pass log.
type Pass struct {
	Seq        int64
	Token      string
	Digest     string // snapshot digest
	Outcome    string
	Created    int
	Updated    int
	Deleted    int
	Warnings   int
	Error      string // rejection reason, empty when committed
	TreeDigest string // digest of the committed tree, empty when rejected
}

// RecordPass appends a pass without touching the stored tree. Used for
// rejected passes, which leave the tree as it was.
func (s *Store) RecordPass(ctx context.Context, pass Pass) error {
	if err := insertPass(ctx, s.db, pass); err != nil {
		return fmt.Errorf("record pass: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertPass uses ON CONFLICT(seq) DO NOTHING so that re-recording a pass is
// a no-op.
func insertPass(ctx context.Context, db execer, p Pass) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO passes
		(seq, token, digest, outcome, created, updated, deleted, warnings, error, tree_digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		p.Seq,
		p.Token,
		p.Digest,
		p.Outcome,
		p.Created,
		p.Updated,
		p.Deleted,
		p.Warnings,
		p.Error,
		p.TreeDigest,
	)
	if err != nil {
		return fmt.Errorf("insert pass %d: %w", p.Seq, err)
	}
	return nil
}

// ListPasses returns the most recent passes, oldest first. limit <= 0
// returns every pass.
func (s *Store) ListPasses(ctx context.Context, limit int) ([]Pass, error) {
	query := `
		SELECT seq, token, digest, outcome, created, updated, deleted, warnings, error, tree_digest
		FROM (
			SELECT * FROM passes ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list passes: %w", err)
	}
	defer rows.Close()

	var passes []Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, fmt.Errorf("list passes: %w", err)
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list passes: %w", err)
	}
	return passes, nil
}

// ReadPass returns the pass with the given sequence number.
func (s *Store) ReadPass(ctx context.Context, seq int64) (Pass, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, token, digest, outcome, created, updated, deleted, warnings, error, tree_digest
		FROM passes WHERE seq = ?
	`, seq)
	p, err := scanPass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Pass{}, fmt.Errorf("read pass %d: %w", seq, ErrPassNotFound)
	}
	if err != nil {
		return Pass{}, fmt.Errorf("read pass %d: %w", seq, err)
	}
	return p, nil
}

// LastSeq returns the highest pass sequence number, or 0 for an empty log.
// Used to resume the logical clock after a restart.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM passes
	`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPass(row scanner) (Pass, error) {
	var p Pass
	err := row.Scan(
		&p.Seq,
		&p.Token,
		&p.Digest,
		&p.Outcome,
		&p.Created,
		&p.Updated,
		&p.Deleted,
		&p.Warnings,
		&p.Error,
		&p.TreeDigest,
	)
	return p, err
}
