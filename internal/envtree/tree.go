package envtree

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/envgraph/internal/ir"
)

var (
	// ErrNodeExists is returned when adding a node whose id is already used
	// anywhere in the tree.
	ErrNodeExists = errors.New("node already exists")

	// ErrNodeNotFound is returned when no node has the given id.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEnvironmentNotFound is returned when no Environment has the given id.
	ErrEnvironmentNotFound = errors.New("environment not found")

	// ErrNotModule is returned when a module operation targets another kind.
	ErrNotModule = errors.New("node is not a module")

	// ErrEdgeEndpoint is returned when an edge endpoint is not in the edge's
	// Environment.
	ErrEdgeEndpoint = errors.New("edge endpoint not in environment")
)

// Tree is the single-writer store of all Environments.
//
// Tree is not safe for concurrent use. All mutation is expected to funnel
// through one goroutine (see reconcile.Engine).
type Tree struct {
	root    *Environment
	envs    map[string]*Environment
	nodeEnv map[string]string // node id -> owning Environment id

	path           []string // breadcrumb Environment ids, root first
	paramInputs    map[string]string
	layoutRequests map[string]bool
}

// New creates a tree holding only the empty root Environment.
func New() *Tree {
	root := newEnvironment(ir.RootEnvID)
	return &Tree{
		root:           root,
		envs:           map[string]*Environment{ir.RootEnvID: root},
		nodeEnv:        make(map[string]string),
		path:           []string{ir.RootEnvID},
		paramInputs:    make(map[string]string),
		layoutRequests: make(map[string]bool),
	}
}

// Root returns the root Environment.
func (t *Tree) Root() *Environment {
	return t.root
}

// Environment returns the Environment with the given id.
func (t *Tree) Environment(id string) (*Environment, bool) {
	env, ok := t.envs[id]
	return env, ok
}

// EnsureEnvironment returns the Environment with the given id, creating it
// and any missing ancestors. The ids of Environments created on the way to
// the requested one (its missing ancestors) are returned as synthesized.
func (t *Tree) EnsureEnvironment(id string) (env *Environment, synthesized []string) {
	if env, ok := t.envs[id]; ok {
		return env, nil
	}
	path := ir.ModulePath(id)
	parent := t.root
	for i := 1; i <= len(path); i++ {
		envID := ir.EnvIDForPath(path[:i])
		child, ok := t.envs[envID]
		if !ok {
			child = newEnvironment(envID)
			t.envs[envID] = child
			parent.Children[envID] = child
			if envID != id {
				synthesized = append(synthesized, envID)
			}
		}
		parent = child
	}
	return parent, synthesized
}

// EnvironmentIDs returns every Environment id in depth-first order from root.
func (t *Tree) EnvironmentIDs() []string {
	var ids []string
	t.Walk(func(env *Environment) bool {
		ids = append(ids, env.ID)
		return true
	})
	return ids
}

// Walk visits Environments depth first from root, children in id order.
// Returning false from fn stops the walk.
func (t *Tree) Walk(fn func(env *Environment) bool) {
	var visit func(env *Environment) bool
	visit = func(env *Environment) bool {
		if !fn(env) {
			return false
		}
		for _, id := range env.ChildIDs() {
			if !visit(env.Children[id]) {
				return false
			}
		}
		return true
	}
	visit(t.root)
}

// NodeCount returns the number of nodes across the whole tree.
func (t *Tree) NodeCount() int {
	return len(t.nodeEnv)
}

// =============================================================================
// Scope cursor
// =============================================================================

// Current returns the Environment at the end of the breadcrumb path.
func (t *Tree) Current() *Environment {
	return t.envs[t.path[len(t.path)-1]]
}

// Path returns the breadcrumb Environment ids, root first.
func (t *Tree) Path() []string {
	return slices.Clone(t.path)
}

// Enter moves the cursor into the Environment owned by the Module node
// moduleID, creating it if needed. The breadcrumb path becomes the chain of
// Environments from root to the module, param inputs are reset and a layout
// is requested for the entered Environment.
func (t *Tree) Enter(moduleID string) error {
	n, ok := t.FindByID(moduleID)
	if !ok {
		return fmt.Errorf("enter %q: %w", moduleID, ErrNodeNotFound)
	}
	if n.Kind != ir.KindModule {
		return fmt.Errorf("enter %q: %w", moduleID, ErrNotModule)
	}

	t.EnsureEnvironment(moduleID)
	modPath := ir.ModulePath(moduleID)
	path := make([]string, 0, len(modPath)+1)
	path = append(path, ir.RootEnvID)
	for i := 1; i <= len(modPath); i++ {
		path = append(path, ir.EnvIDForPath(modPath[:i]))
	}
	t.path = path
	t.resetParamInputs()
	t.RequestLayout(moduleID)
	return nil
}

// Exit moves the cursor to the parent Environment. It reports false when
// already at root.
func (t *Tree) Exit() bool {
	if len(t.path) == 1 {
		return false
	}
	t.path = t.path[:len(t.path)-1]
	t.resetParamInputs()
	t.RequestLayout(t.path[len(t.path)-1])
	return true
}

// SetCurrent jumps to an Environment already on the breadcrumb path,
// dropping everything after it.
func (t *Tree) SetCurrent(envID string) error {
	i := slices.Index(t.path, envID)
	if i < 0 {
		return fmt.Errorf("set current %q: not on path: %w", envID, ErrEnvironmentNotFound)
	}
	t.path = t.path[:i+1]
	t.resetParamInputs()
	t.RequestLayout(envID)
	return nil
}

// SetParamInput records a per-session input for a parameter of the current
// module.
func (t *Tree) SetParamInput(name, value string) {
	t.paramInputs[name] = value
}

// ParamInputs returns a copy of the current param inputs.
func (t *Tree) ParamInputs() map[string]string {
	return maps.Clone(t.paramInputs)
}

// RestoreScope puts back a cursor saved with Path and ParamInputs. The path
// must run from root through nested Environments that still exist; otherwise
// the cursor stays where it is and RestoreScope reports false. No layout is
// requested.
func (t *Tree) RestoreScope(path []string, params map[string]string) bool {
	if len(path) == 0 || path[0] != ir.RootEnvID {
		return false
	}
	for i := 1; i < len(path); i++ {
		if _, ok := t.envs[path[i]]; !ok || ir.EnvIDOf(path[i]) != path[i-1] {
			return false
		}
	}
	t.path = slices.Clone(path)
	t.paramInputs = maps.Clone(params)
	if t.paramInputs == nil {
		t.paramInputs = make(map[string]string)
	}
	return true
}

func (t *Tree) resetParamInputs() {
	t.paramInputs = make(map[string]string)
}

// RequestLayout marks an Environment as needing a layout pass.
func (t *Tree) RequestLayout(envID string) {
	t.layoutRequests[envID] = true
}

// TakeLayoutRequests returns and clears pending layout requests, sorted.
// Requests for Environments that no longer exist are dropped.
func (t *Tree) TakeLayoutRequests() []string {
	var ids []string
	for id := range t.layoutRequests {
		if _, ok := t.envs[id]; ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	t.layoutRequests = make(map[string]bool)
	return ids
}

// =============================================================================
// Nodes
// =============================================================================

// AddNode appends a node to the Environment envID, creating the Environment
// if needed. Node ids are unique across the whole tree.
func (t *Tree) AddNode(envID string, n *ir.Node) error {
	return t.addNode(envID, n, false)
}

// AddLocalNode adds a node created by a local user action. Module nodes are
// placed at the front of the node order, everything else is appended.
func (t *Tree) AddLocalNode(envID string, n *ir.Node) error {
	return t.addNode(envID, n, n.Kind == ir.KindModule)
}

func (t *Tree) addNode(envID string, n *ir.Node, front bool) error {
	if _, ok := t.nodeEnv[n.ID]; ok {
		return fmt.Errorf("add %q: %w", n.ID, ErrNodeExists)
	}
	env, _ := t.EnsureEnvironment(envID)
	if front {
		env.Nodes = slices.Insert(env.Nodes, 0, n)
	} else {
		env.Nodes = append(env.Nodes, n)
	}
	t.nodeEnv[n.ID] = env.ID
	return nil
}

// UpdateNode applies fn to the node with the given id. fn must not change
// the node's id.
func (t *Tree) UpdateNode(id string, fn func(n *ir.Node)) error {
	n, ok := t.FindByID(id)
	if !ok {
		return fmt.Errorf("update %q: %w", id, ErrNodeNotFound)
	}
	fn(n)
	n.ID = id
	return nil
}

// RemoveNode deletes a node and every edge touching it. Removing a Module
// node also deletes the Environment it owns, detaching it from its parent.
// It reports whether a node was removed.
func (t *Tree) RemoveNode(id string) bool {
	envID, ok := t.nodeEnv[id]
	if !ok {
		return false
	}
	env := t.envs[envID]
	i := env.indexOf(id)
	kind := env.Nodes[i].Kind
	env.Nodes = slices.Delete(env.Nodes, i, i+1)
	env.removeEdgesTouching(id)
	delete(t.nodeEnv, id)

	if kind == ir.KindModule {
		t.RemoveEnvironment(id)
	}
	return true
}

// RemoveEnvironment deletes an Environment together with its nodes and
// descendants. The root Environment cannot be removed.
func (t *Tree) RemoveEnvironment(id string) bool {
	env, ok := t.envs[id]
	if !ok || id == ir.RootEnvID {
		return false
	}
	for _, parent := range t.envs {
		delete(parent.Children, id)
	}

	var drop func(e *Environment)
	drop = func(e *Environment) {
		for _, n := range e.Nodes {
			delete(t.nodeEnv, n.ID)
		}
		for _, child := range e.Children {
			drop(child)
		}
		delete(t.envs, e.ID)
		delete(t.layoutRequests, e.ID)
	}
	drop(env)

	// Truncate the breadcrumb path at the first Environment that is gone.
	for i, envID := range t.path {
		if _, ok := t.envs[envID]; !ok {
			t.path = t.path[:i]
			t.resetParamInputs()
			break
		}
	}
	return true
}

// SetOrder reorders the nodes of an Environment. order must be a permutation
// of the Environment's node ids.
func (t *Tree) SetOrder(envID string, order []string) error {
	env, ok := t.envs[envID]
	if !ok {
		return fmt.Errorf("set order %q: %w", envID, ErrEnvironmentNotFound)
	}
	if len(order) != len(env.Nodes) {
		return fmt.Errorf("set order %q: got %d ids for %d nodes", envID, len(order), len(env.Nodes))
	}
	nodes := make([]*ir.Node, 0, len(order))
	for _, id := range order {
		n, ok := env.Node(id)
		if !ok {
			return fmt.Errorf("set order %q: %q: %w", envID, id, ErrNodeNotFound)
		}
		nodes = append(nodes, n)
	}
	env.Nodes = nodes
	return nil
}

// Rename gives a node a new label within its Environment. The node keeps its
// module path; edges touching the old id are dropped so inference can
// rebuild them. Module nodes cannot be renamed because they own an
// Environment keyed by their id. The new id is returned.
func (t *Tree) Rename(id, label string) (string, error) {
	envID, ok := t.nodeEnv[id]
	if !ok {
		return "", fmt.Errorf("rename %q: %w", id, ErrNodeNotFound)
	}
	env := t.envs[envID]
	n, _ := env.Node(id)
	if n.Kind == ir.KindModule {
		return "", fmt.Errorf("rename %q: modules cannot be renamed", id)
	}
	_, path := ir.ParseQualified(id)
	newID := ir.QualifiedID(label, path)
	if newID == id {
		return id, nil
	}
	if _, exists := t.nodeEnv[newID]; exists {
		return "", fmt.Errorf("rename %q to %q: %w", id, newID, ErrNodeExists)
	}

	env.removeEdgesTouching(id)
	delete(t.nodeEnv, id)
	n.ID = newID
	n.Label = label
	t.nodeEnv[newID] = envID
	return newID, nil
}

// =============================================================================
// Edges
// =============================================================================

// AddEdge ensures an edge exists in the Environment envID. Adding an edge
// whose id already exists replaces its cargo, so repeated calls are
// idempotent. Both endpoints must belong to envID.
func (t *Tree) AddEdge(envID string, e ir.Edge) error {
	env, ok := t.envs[envID]
	if !ok {
		return fmt.Errorf("add edge %q: %w", e.ID, ErrEnvironmentNotFound)
	}
	if _, ok := env.Node(e.Source); !ok {
		return fmt.Errorf("add edge %q: source %q: %w", e.ID, e.Source, ErrEdgeEndpoint)
	}
	if _, ok := env.Node(e.Target); !ok {
		return fmt.Errorf("add edge %q: target %q: %w", e.ID, e.Target, ErrEdgeEndpoint)
	}
	if e.ID == "" {
		e.ID = ir.EdgeID(e.Kind, e.Source, e.Target)
	}
	for i, existing := range env.Edges {
		if existing.ID == e.ID {
			env.Edges[i] = e
			return nil
		}
	}
	env.Edges = append(env.Edges, e)
	return nil
}

// RemoveEdge deletes an edge and reports whether it existed.
func (t *Tree) RemoveEdge(envID, edgeID string) bool {
	env, ok := t.envs[envID]
	if !ok {
		return false
	}
	before := len(env.Edges)
	env.Edges = slices.DeleteFunc(env.Edges, func(e ir.Edge) bool { return e.ID == edgeID })
	return len(env.Edges) != before
}

// EdgeCount returns the number of edges across the whole tree.
func (t *Tree) EdgeCount() int {
	count := 0
	for _, env := range t.envs {
		count += len(env.Edges)
	}
	return count
}

// =============================================================================
// Lookup
// =============================================================================

// FindByID finds a node anywhere in the tree.
func (t *Tree) FindByID(id string) (*ir.Node, bool) {
	envID, ok := t.nodeEnv[id]
	if !ok {
		return nil, false
	}
	return t.envs[envID].Node(id)
}

// EnvironmentOf returns the Environment that owns the node.
func (t *Tree) EnvironmentOf(nodeID string) (*Environment, bool) {
	envID, ok := t.nodeEnv[nodeID]
	if !ok {
		return nil, false
	}
	return t.envs[envID], true
}

// FindByLabel returns the first node with the given label, searching
// depth first from root (see Walk). When unrelated modules share a label
// the outermost, then alphabetically first, match wins.
func (t *Tree) FindByLabel(label string) (*ir.Node, bool) {
	var found *ir.Node
	t.Walk(func(env *Environment) bool {
		if n, ok := env.NodeByLabel(label); ok {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

// FindLabelIn returns the first node with the given label inside one
// Environment.
func (t *Tree) FindLabelIn(envID, label string) (*ir.Node, bool) {
	env, ok := t.envs[envID]
	if !ok {
		return nil, false
	}
	return env.NodeByLabel(label)
}

// Search returns nodes whose label contains query, case-insensitively, in
// depth-first order.
func (t *Tree) Search(query string) []*ir.Node {
	q := strings.ToLower(query)
	var out []*ir.Node
	t.Walk(func(env *Environment) bool {
		for _, n := range env.Nodes {
			if strings.Contains(strings.ToLower(n.Label), q) {
				out = append(out, n)
			}
		}
		return true
	})
	return out
}

// Filter returns nodes of the given kinds in depth-first order.
func (t *Tree) Filter(kinds ...ir.Kind) []*ir.Node {
	var out []*ir.Node
	t.Walk(func(env *Environment) bool {
		for _, n := range env.Nodes {
			if slices.Contains(kinds, n.Kind) {
				out = append(out, n)
			}
		}
		return true
	})
	return out
}

// =============================================================================
// Copy
// =============================================================================

// Clone returns a deep copy of the tree, cursor state included.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		root:           t.root.clone(),
		envs:           make(map[string]*Environment, len(t.envs)),
		nodeEnv:        maps.Clone(t.nodeEnv),
		path:           slices.Clone(t.path),
		paramInputs:    maps.Clone(t.paramInputs),
		layoutRequests: maps.Clone(t.layoutRequests),
	}
	var index func(env *Environment)
	index = func(env *Environment) {
		c.envs[env.ID] = env
		for _, child := range env.Children {
			index(child)
		}
	}
	index(c.root)
	return c
}

// Replace swaps the whole content of t for that of other. It is the commit
// step of a reconciliation pass; other must not be used afterwards.
func (t *Tree) Replace(other *Tree) {
	*t = *other
}
