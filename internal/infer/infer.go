package infer

import (
	"fmt"
	"slices"

	"github.com/roach88/envgraph/internal/envtree"
	"github.com/roach88/envgraph/internal/ir"
)

// Result lists the edge ids changed by one inference call.
type Result struct {
	Added   []string
	Removed []string
}

// Changed reports whether any edge was added or removed.
func (r Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// Inferrer derives edges for single nodes. Edges are only ever created
// between nodes of the same Environment.
type Inferrer struct {
	actions *Matcher
}

// New creates an Inferrer using ActionRules.
func New() *Inferrer {
	return NewWithMatcher(NewMatcher(ActionRules()...))
}

// NewWithMatcher creates an Inferrer with a custom action matcher.
func NewWithMatcher(m *Matcher) *Inferrer {
	return &Inferrer{actions: m}
}

// Apply refreshes the edges of nodeID. An empty dependency list means local
// text inference; a non-empty list is authoritative.
func (inf *Inferrer) Apply(tree *envtree.Tree, nodeID string, deps []string) (Result, error) {
	if len(deps) == 0 {
		return inf.ApplyLocal(tree, nodeID)
	}
	return inf.ApplyAuthoritative(tree, nodeID, deps)
}

// ApplyLocal derives edges from the node's own payload text.
//
// Definition and HTML nodes get one reference edge from every node whose
// label appears in the text; reference edges from labels no longer
// mentioned are removed. Action nodes get exactly one action edge to the
// target found by the action rules; other action edges out of the node are
// removed. Other kinds own no inferred edges, so reference edges into them
// and action edges out of them are removed; these are left over from a kind
// change.
func (inf *Inferrer) ApplyLocal(tree *envtree.Tree, nodeID string) (Result, error) {
	n, env, err := lookup(tree, nodeID)
	if err != nil {
		return Result{}, err
	}
	switch n.Kind {
	case ir.KindDefinition, ir.KindHTML:
		return inf.syncReferences(tree, env, n)
	case ir.KindAction:
		return inf.syncActionTarget(tree, env, n)
	default:
		return clearInferred(tree, env, n), nil
	}
}

func clearInferred(tree *envtree.Tree, env *envtree.Environment, n *ir.Node) Result {
	var res Result
	stale := env.EdgesInto(n.ID)
	stale = slices.DeleteFunc(stale, func(e ir.Edge) bool { return e.Kind != ir.EdgeReference })
	for _, e := range env.EdgesFrom(n.ID) {
		if e.Kind == ir.EdgeAction {
			stale = append(stale, e)
		}
	}
	for _, e := range stale {
		if tree.RemoveEdge(env.ID, e.ID) {
			res.Removed = append(res.Removed, e.ID)
		}
	}
	return res
}

func (inf *Inferrer) syncReferences(tree *envtree.Tree, env *envtree.Environment, n *ir.Node) (Result, error) {
	var res Result
	refs := slices.DeleteFunc(Identifiers(n.Text()), func(label string) bool {
		return label == n.Label
	})

	for _, e := range env.EdgesInto(n.ID) {
		if e.Kind != ir.EdgeReference {
			continue
		}
		src, ok := env.Node(e.Source)
		if ok && slices.Contains(refs, src.Label) {
			continue
		}
		if tree.RemoveEdge(env.ID, e.ID) {
			res.Removed = append(res.Removed, e.ID)
		}
	}

	for _, label := range refs {
		src, ok := env.NodeByLabel(label)
		if !ok || src.ID == n.ID {
			continue
		}
		added, err := ensureEdge(tree, env, ir.NewEdge(ir.EdgeReference, src.ID, n.ID))
		if err != nil {
			return res, err
		}
		if added != "" {
			res.Added = append(res.Added, added)
		}
	}
	return res, nil
}

func (inf *Inferrer) syncActionTarget(tree *envtree.Tree, env *envtree.Environment, n *ir.Node) (Result, error) {
	var res Result
	var target *ir.Node
	if m, ok := inf.actions.Match(n.Action); ok {
		if t, ok := env.NodeByLabel(m.Label); ok && t.ID != n.ID {
			target = t
		}
	}

	for _, e := range env.EdgesFrom(n.ID) {
		if e.Kind != ir.EdgeAction || (target != nil && e.Target == target.ID) {
			continue
		}
		if tree.RemoveEdge(env.ID, e.ID) {
			res.Removed = append(res.Removed, e.ID)
		}
	}
	if target == nil {
		return res, nil
	}

	edge := ir.NewEdge(ir.EdgeAction, n.ID, target.ID)
	edge.Action = n.Action
	added, err := ensureEdge(tree, env, edge)
	if err != nil {
		return res, err
	}
	if added != "" {
		res.Added = append(res.Added, added)
	}
	return res, nil
}

// ApplyAuthoritative sets the incoming edges of nodeID from a dependency list
// reported by the execution engine. Each dependency is resolved in the
// node's Environment by id, then by qualified label, then by label. An Action
// dependency yields an action edge dep -> node carrying its action text;
// anything else yields a reference edge. Reference and action edges into the
// node from sources outside the list are removed. Unresolvable dependencies are
// skipped.
func (inf *Inferrer) ApplyAuthoritative(tree *envtree.Tree, nodeID string, deps []string) (Result, error) {
	n, env, err := lookup(tree, nodeID)
	if err != nil {
		return Result{}, err
	}
	_, path := ir.ParseQualified(n.ID)

	var res Result
	var sources []string
	for _, dep := range deps {
		src, ok := resolveIn(env, dep, path)
		if !ok || src.ID == n.ID {
			continue
		}
		sources = append(sources, src.ID)

		edge := ir.NewEdge(ir.EdgeReference, src.ID, n.ID)
		if src.Kind == ir.KindAction {
			edge = ir.NewEdge(ir.EdgeAction, src.ID, n.ID)
			edge.Action = src.Action
		}
		added, err := ensureEdge(tree, env, edge)
		if err != nil {
			return res, err
		}
		if added != "" {
			res.Added = append(res.Added, added)
		}
	}

	for _, e := range env.EdgesInto(n.ID) {
		if slices.Contains(sources, e.Source) {
			continue
		}
		if tree.RemoveEdge(env.ID, e.ID) {
			res.Removed = append(res.Removed, e.ID)
		}
	}
	return res, nil
}

func resolveIn(env *envtree.Environment, dep string, path []string) (*ir.Node, bool) {
	if n, ok := env.Node(dep); ok {
		return n, true
	}
	if n, ok := env.Node(ir.QualifiedID(dep, path)); ok {
		return n, true
	}
	return env.NodeByLabel(dep)
}

func lookup(tree *envtree.Tree, nodeID string) (*ir.Node, *envtree.Environment, error) {
	n, ok := tree.FindByID(nodeID)
	if !ok {
		return nil, nil, fmt.Errorf("infer %q: %w", nodeID, envtree.ErrNodeNotFound)
	}
	env, _ := tree.EnvironmentOf(nodeID)
	return n, env, nil
}

// ensureEdge adds e unless an identical edge exists. It returns the edge id
// when something changed.
func ensureEdge(tree *envtree.Tree, env *envtree.Environment, e ir.Edge) (string, error) {
	if existing, ok := env.Edge(e.ID); ok && existing == e {
		return "", nil
	}
	if err := tree.AddEdge(env.ID, e); err != nil {
		return "", err
	}
	return e.ID, nil
}
