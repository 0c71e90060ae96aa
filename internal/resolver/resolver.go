package resolver

import (
	"fmt"
	"strings"

	"github.com/roach88/envgraph/internal/ir"
)

// Pending is one item to order: an id and the ids it references.
type Pending struct {
	ID   string
	Refs []string
}

// CycleError reports a referential cycle among pending items.
type CycleError struct {
	// ID is the item revisited while still being visited.
	ID string

	// Path is the cycle starting and ending at ID, following references:
	// ["a", "b", "a"] means a references b and b references a.
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) > 1 {
		return fmt.Sprintf("circular dependency detected: %s (%s)", e.ID, strings.Join(e.Path, " -> "))
	}
	return fmt.Sprintf("circular dependency detected: %s", e.ID)
}

// Order returns the pending ids in dependency order. The input order is kept
// between independent items. Duplicate ids keep their first occurrence.
func Order(pending []Pending) ([]string, error) {
	graph := make(map[string][]string, len(pending))
	var ids []string
	for _, p := range pending {
		if _, dup := graph[p.ID]; dup {
			continue
		}
		graph[p.ID] = p.Refs
		ids = append(ids, p.ID)
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(ids))
	order := make([]string, 0, len(ids))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return &CycleError{ID: id, Path: cyclePath(id, ids, graph)}
		}
		state[id] = visiting
		for _, ref := range graph[id] {
			if _, pendingRef := graph[ref]; !pendingRef {
				continue
			}
			if err := visit(ref); err != nil {
				return err
			}
		}
		state[id] = done
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// OrderRecords orders flattened snapshot records by their DependsOn ids.
func OrderRecords(records []ir.Record) ([]ir.Record, error) {
	pending := make([]Pending, len(records))
	byID := make(map[string]ir.Record, len(records))
	for i, r := range records {
		pending[i] = Pending{ID: r.ID, Refs: r.DependsOn}
		if _, dup := byID[r.ID]; !dup {
			byID[r.ID] = r
		}
	}

	order, err := Order(pending)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Record, len(order))
	for i, id := range order {
		out[i] = byID[id]
	}
	return out, nil
}
