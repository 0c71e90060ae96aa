package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/envgraph/internal/envtree"
	"github.com/roach88/envgraph/internal/ir"
)

// nodePayload is the kind-specific part of a node, stored as JSON TEXT.
type nodePayload struct {
	Value      string            `json:"value,omitempty"`
	Definition string            `json:"definition,omitempty"`
	Action     string            `json:"action,omitempty"`
	Columns    []ir.Column       `json:"columns,omitempty"`
	Rows       []map[string]any  `json:"rows,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	Parsed     []ir.ParsedEntry  `json:"parsed,omitempty"`
}

// Checkpoint replaces the stored tree with tree and appends pass to the pass
// log, in one transaction. Either both land or neither does.
func (s *Store) Checkpoint(ctx context.Context, tree *envtree.Tree, pass Pass) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("checkpoint: begin: %w", err)
	}
	defer tx.Rollback()

	if err := saveTree(ctx, tx, tree); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := insertPass(ctx, tx, pass); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("checkpoint: commit: %w", err)
	}
	return nil
}

// SaveTree replaces the stored tree without touching the pass log.
func (s *Store) SaveTree(ctx context.Context, tree *envtree.Tree) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save tree: begin: %w", err)
	}
	defer tx.Rollback()

	if err := saveTree(ctx, tx, tree); err != nil {
		return fmt.Errorf("save tree: %w", err)
	}
	return tx.Commit()
}

func saveTree(ctx context.Context, tx *sql.Tx, tree *envtree.Tree) error {
	// Environments cascade to nodes and edges.
	if _, err := tx.ExecContext(ctx, `DELETE FROM environments`); err != nil {
		return fmt.Errorf("clear environments: %w", err)
	}

	var walkErr error
	envOrd := 0
	tree.Walk(func(env *envtree.Environment) bool {
		walkErr = saveEnvironment(ctx, tx, env, parentOf(env.ID), envOrd)
		envOrd++
		return walkErr == nil
	})
	if walkErr != nil {
		return walkErr
	}
	return saveScope(ctx, tx, tree)
}

func saveScope(ctx context.Context, tx *sql.Tx, tree *envtree.Tree) error {
	path, err := json.Marshal(tree.Path())
	if err != nil {
		return fmt.Errorf("marshal scope path: %w", err)
	}
	params, err := json.Marshal(tree.ParamInputs())
	if err != nil {
		return fmt.Errorf("marshal param inputs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scope (id, path, params) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET path = excluded.path, params = excluded.params
	`, string(path), string(params)); err != nil {
		return fmt.Errorf("save scope: %w", err)
	}
	return nil
}

func parentOf(envID string) any {
	if envID == ir.RootEnvID {
		return nil
	}
	return ir.EnvIDOf(envID)
}

func saveEnvironment(ctx context.Context, tx *sql.Tx, env *envtree.Environment, parent any, ord int) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO environments (id, parent_id, ord) VALUES (?, ?, ?)
	`, env.ID, parent, ord); err != nil {
		return fmt.Errorf("insert environment %q: %w", env.ID, err)
	}

	for i, n := range env.Nodes {
		payload, err := marshalPayload(n)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (id, env_id, ord, label, kind, x, y, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, n.ID, env.ID, i, n.Label, string(n.Kind), n.Position.X, n.Position.Y, payload); err != nil {
			return fmt.Errorf("insert node %q: %w", n.ID, err)
		}
	}

	for i, e := range env.Edges {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO edges (id, env_id, ord, kind, source, target, action)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.ID, env.ID, i, string(e.Kind), e.Source, e.Target, e.Action); err != nil {
			return fmt.Errorf("insert edge %q: %w", e.ID, err)
		}
	}
	return nil
}

func marshalPayload(n *ir.Node) (string, error) {
	data, err := json.Marshal(nodePayload{
		Value:      n.Value,
		Definition: n.Definition,
		Action:     n.Action,
		Columns:    n.Columns,
		Rows:       n.Rows,
		Params:     n.Params,
		Parsed:     n.Parsed,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload %q: %w", n.ID, err)
	}
	return string(data), nil
}

// LoadTree rebuilds the last checkpointed tree. An empty store yields an
// empty tree. The saved scope cursor is restored when its Environments still
// exist; otherwise the cursor is at root.
func (s *Store) LoadTree(ctx context.Context) (*envtree.Tree, error) {
	tree := envtree.New()

	envRows, err := s.db.QueryContext(ctx, `
		SELECT id FROM environments ORDER BY ord ASC, id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("load environments: %w", err)
	}
	var envIDs []string
	for envRows.Next() {
		var id string
		if err := envRows.Scan(&id); err != nil {
			envRows.Close()
			return nil, fmt.Errorf("scan environment: %w", err)
		}
		envIDs = append(envIDs, id)
	}
	envRows.Close()
	if err := envRows.Err(); err != nil {
		return nil, fmt.Errorf("load environments: %w", err)
	}
	for _, id := range envIDs {
		tree.EnsureEnvironment(id)
	}

	if err := s.loadNodes(ctx, tree); err != nil {
		return nil, err
	}
	if err := s.loadEdges(ctx, tree); err != nil {
		return nil, err
	}
	if err := s.loadScope(ctx, tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func (s *Store) loadScope(ctx context.Context, tree *envtree.Tree) error {
	var pathJSON, paramsJSON string
	err := s.db.QueryRowContext(ctx, `SELECT path, params FROM scope WHERE id = 1`).Scan(&pathJSON, &paramsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load scope: %w", err)
	}

	var path []string
	if err := json.Unmarshal([]byte(pathJSON), &path); err != nil {
		return fmt.Errorf("unmarshal scope path: %w", err)
	}
	var params map[string]string
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return fmt.Errorf("unmarshal param inputs: %w", err)
	}
	tree.RestoreScope(path, params)
	return nil
}

func (s *Store) loadNodes(ctx context.Context, tree *envtree.Tree) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.env_id, n.label, n.kind, n.x, n.y, n.payload
		FROM nodes n JOIN environments e ON e.id = n.env_id
		ORDER BY e.ord ASC, n.ord ASC
	`)
	if err != nil {
		return fmt.Errorf("load nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			n       ir.Node
			envID   string
			kind    string
			payload string
		)
		if err := rows.Scan(&n.ID, &envID, &n.Label, &kind, &n.Position.X, &n.Position.Y, &payload); err != nil {
			return fmt.Errorf("scan node: %w", err)
		}
		n.Kind = ir.Kind(kind)

		var p nodePayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("unmarshal payload %q: %w", n.ID, err)
		}
		n.Value = p.Value
		n.Definition = p.Definition
		n.Action = p.Action
		n.Columns = p.Columns
		n.Rows = p.Rows
		n.Params = p.Params
		n.Parsed = p.Parsed

		if err := tree.AddNode(envID, &n); err != nil {
			return fmt.Errorf("load node: %w", err)
		}
	}
	return rows.Err()
}

func (s *Store) loadEdges(ctx context.Context, tree *envtree.Tree) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ed.id, ed.env_id, ed.kind, ed.source, ed.target, ed.action
		FROM edges ed JOIN environments e ON e.id = ed.env_id
		ORDER BY e.ord ASC, ed.ord ASC
	`)
	if err != nil {
		return fmt.Errorf("load edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e     ir.Edge
			envID string
			kind  string
		)
		if err := rows.Scan(&e.ID, &envID, &kind, &e.Source, &e.Target, &e.Action); err != nil {
			return fmt.Errorf("scan edge: %w", err)
		}
		e.Kind = ir.EdgeKind(kind)
		if err := tree.AddEdge(envID, e); err != nil {
			return fmt.Errorf("load edge: %w", err)
		}
	}
	return rows.Err()
}
