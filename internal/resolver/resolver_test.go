package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/envgraph/internal/ir"
)

func TestOrderDependencyFirst(t *testing.T) {
	order, err := Order([]Pending{
		{ID: "g", Refs: []string{"x"}},
		{ID: "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "g"}, order)
}

func TestOrderKeepsInputOrderForIndependentItems(t *testing.T) {
	order, err := Order([]Pending{
		{ID: "c"},
		{ID: "a"},
		{ID: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, order)
}

func TestOrderIgnoresReferencesOutsidePendingSet(t *testing.T) {
	order, err := Order([]Pending{
		{ID: "g", Refs: []string{"committed", "sqrt"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"g"}, order)
}

func TestOrderChain(t *testing.T) {
	order, err := Order([]Pending{
		{ID: "d", Refs: []string{"c"}},
		{ID: "c", Refs: []string{"b", "a"}},
		{ID: "b", Refs: []string{"a"}},
		{ID: "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestOrderEveryDependencyPrecedesDependent(t *testing.T) {
	pending := []Pending{
		{ID: "total", Refs: []string{"price", "qty", "tax"}},
		{ID: "price"},
		{ID: "tax", Refs: []string{"price", "rate"}},
		{ID: "qty"},
		{ID: "rate"},
		{ID: "label", Refs: []string{"total"}},
	}
	order, err := Order(pending)
	require.NoError(t, err)
	require.Len(t, order, len(pending))

	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	for _, p := range pending {
		for _, ref := range p.Refs {
			if refPos, ok := pos[ref]; ok {
				assert.Less(t, refPos, pos[p.ID], "%s must precede %s", ref, p.ID)
			}
		}
	}
}

func TestOrderDropsDuplicates(t *testing.T) {
	order, err := Order([]Pending{{ID: "a"}, {ID: "a", Refs: []string{"b"}}, {ID: "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

// =============================================================================
// Cycles
// =============================================================================

func TestOrderTwoNodeCycle(t *testing.T) {
	_, err := Order([]Pending{
		{ID: "A", Refs: []string{"B"}},
		{ID: "B", Refs: []string{"A"}},
	})
	require.Error(t, err)

	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "A", ce.ID)
	assert.Equal(t, []string{"A", "B", "A"}, ce.Path)
	assert.Equal(t, "circular dependency detected: A (A -> B -> A)", err.Error())
}

func TestOrderLongCycleBehindIndependentPrefix(t *testing.T) {
	_, err := Order([]Pending{
		{ID: "ok"},
		{ID: "a", Refs: []string{"b"}},
		{ID: "b", Refs: []string{"c"}},
		{ID: "c", Refs: []string{"a"}},
	})

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "a", ce.ID)
	assert.Equal(t, []string{"a", "b", "c", "a"}, ce.Path)
}

func TestOrderSelfReference(t *testing.T) {
	_, err := Order([]Pending{{ID: "a", Refs: []string{"a"}}})

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"a", "a"}, ce.Path)
}

func TestCycleErrorWithoutPath(t *testing.T) {
	err := &CycleError{ID: "x"}
	assert.Equal(t, "circular dependency detected: x", err.Error())
}

// =============================================================================
// Records
// =============================================================================

func TestOrderRecords(t *testing.T) {
	records := []ir.Record{
		{ID: "g", Kind: ir.KindDefinition, Expression: "x + x", DependsOn: []string{"x"}},
		{ID: "x", Kind: ir.KindVariable, Value: "3"},
	}

	ordered, err := OrderRecords(records)
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "x", ordered[0].ID)
	assert.Equal(t, "g", ordered[1].ID)
	assert.Equal(t, "x + x", ordered[1].Expression)
}

func TestOrderRecordsCycle(t *testing.T) {
	_, err := OrderRecords([]ir.Record{
		{ID: "A", DependsOn: []string{"B"}},
		{ID: "B", DependsOn: []string{"A"}},
	})
	var ce *CycleError
	assert.ErrorAs(t, err, &ce)
}
