package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/envgraph/internal/envtree"
	"github.com/roach88/envgraph/internal/infer"
	"github.com/roach88/envgraph/internal/ir"
	"github.com/roach88/envgraph/internal/layout"
	"github.com/roach88/envgraph/internal/resolver"
	"github.com/roach88/envgraph/internal/snapshot"
	"github.com/roach88/envgraph/internal/store"
)

// Confirmer asks the external engine for the authoritative dependency list
// of a node. Replies arrive later as Confirmation events.
type Confirmer interface {
	RequestDependencies(ctx context.Context, nodeID string) error
}

// Checkpointer persists committed trees and the pass log.
// Implemented by *store.Store.
type Checkpointer interface {
	Checkpoint(ctx context.Context, tree *envtree.Tree, pass store.Pass) error
	RecordPass(ctx context.Context, pass store.Pass) error
	SaveTree(ctx context.Context, tree *envtree.Tree) error
}

// Recorder receives reconciliation metrics.
// Implemented by *metrics.Recorder.
type Recorder interface {
	ObservePass(outcome string, d time.Duration)
	ObserveMutations(created, updated, deleted int)
	ObserveEdges(added, removed int)
	ObserveWarning(code string)
	ObserveConfirmation(outcome string)
	SetNodes(n int)
}

// PassResult summarizes one committed reconciliation pass.
type PassResult struct {
	Seq    int64
	Token  string
	Digest string // snapshot digest

	Created []string
	Updated []string
	Deleted []string

	// Environments lists the Environments laid out by the pass.
	Environments []string

	EdgesAdded   []string
	EdgesRemoved []string

	// Warnings holds recovered *RuntimeError values.
	Warnings []error
}

// Touched returns the created and updated node ids.
func (r *PassResult) Touched() []string {
	return append(slices.Clone(r.Created), r.Updated...)
}

// Confirmation is the external engine's reply to a dependency request.
type Confirmation struct {
	NodeID       string
	Dependencies []string
}

// ConfirmationResult reports the outcome of ApplyConfirmation.
type ConfirmationResult struct {
	NodeID  string
	Stale   bool
	Added   []string
	Removed []string

	// Warning is set for stale confirmations.
	Warning error
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLayout sets the layout options applied to touched Environments.
func WithLayout(opts layout.Options) Option {
	return func(r *Reconciler) {
		r.layout = opts
	}
}

// WithCheckpointer persists every pass.
func WithCheckpointer(c Checkpointer) Option {
	return func(r *Reconciler) {
		r.checkpointer = c
	}
}

// WithRecorder records metrics for every pass.
func WithRecorder(rec Recorder) Option {
	return func(r *Reconciler) {
		r.recorder = rec
	}
}

// WithTokenGenerator replaces the UUIDv7 pass token generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(r *Reconciler) {
		r.tokens = g
	}
}

// WithClock sets the pass clock, e.g. one resumed from the store.
func WithClock(c *Clock) Option {
	return func(r *Reconciler) {
		r.clock = c
	}
}

// WithConfirmer requests dependency confirmations after every commit.
func WithConfirmer(c Confirmer) Option {
	return func(r *Reconciler) {
		r.confirmer = c
	}
}

// WithInferrer replaces the default edge inferrer.
func WithInferrer(inf *infer.Inferrer) Option {
	return func(r *Reconciler) {
		r.inferrer = inf
	}
}

// Reconciler turns snapshots into committed tree mutations.
//
// A pass works on a clone of the tree and commits it with a single swap, so
// a rejected pass leaves no trace. Reconciler is not safe for concurrent
// use; Engine serializes all calls.
type Reconciler struct {
	tree     *envtree.Tree
	decoder  *snapshot.Decoder
	inferrer *infer.Inferrer
	layout   layout.Options
	clock    *Clock
	tokens   TokenGenerator

	checkpointer Checkpointer
	recorder     Recorder
	confirmer    Confirmer
}

// New creates a Reconciler mutating tree.
func New(tree *envtree.Tree, opts ...Option) (*Reconciler, error) {
	dec, err := snapshot.NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("new reconciler: %w", err)
	}
	r := &Reconciler{
		tree:     tree,
		decoder:  dec,
		inferrer: infer.New(),
		layout:   layout.DefaultOptions(),
		clock:    NewClock(),
		tokens:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.layout.Validate(); err != nil {
		return nil, fmt.Errorf("new reconciler: %w", err)
	}
	return r, nil
}

// Tree returns the committed tree.
func (r *Reconciler) Tree() *envtree.Tree {
	return r.tree
}

// Clock returns the pass clock.
func (r *Reconciler) Clock() *Clock {
	return r.clock
}

// ApplyJSON decodes a raw snapshot and applies it.
func (r *Reconciler) ApplyJSON(ctx context.Context, data []byte) (*PassResult, error) {
	snap, err := r.decoder.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("apply snapshot: %w", err)
	}
	return r.Apply(ctx, snap)
}

// ApplyMessage decodes a server message envelope and applies its snapshot.
func (r *Reconciler) ApplyMessage(ctx context.Context, data []byte) (*PassResult, error) {
	snap, err := r.decoder.DecodeMessage(data)
	if err != nil {
		return nil, fmt.Errorf("apply message: %w", err)
	}
	return r.Apply(ctx, snap)
}

// pass holds the state of one reconciliation pass.
type pass struct {
	result  *PassResult
	working *envtree.Tree
	records map[string]ir.Record // pending records by id
	touched map[string]bool      // Environments with created, updated or deleted nodes
}

// Apply reconciles the tree with snap.
//
// Deletes run first, then the remaining records in dependency order: known
// ids are updated in place, unknown ids are created in the Environment named
// by their qualified id. Touched Environments are reordered topologically,
// touched nodes get their edges inferred and touched Environments are laid
// out. The only error is a *RuntimeError with code CYCLE_DETECTED, in which
// case the committed tree is unchanged.
func (r *Reconciler) Apply(ctx context.Context, snap *snapshot.Snapshot) (*PassResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	p := &pass{
		result: &PassResult{
			Seq:   r.clock.Next(),
			Token: r.tokens.Generate(),
		},
		working: r.tree.Clone(),
		records: make(map[string]ir.Record),
		touched: make(map[string]bool),
	}
	res := p.result
	slog.Debug("pass starting", "pass", res.Token, "seq", res.Seq, "entries", len(snap.Entries))

	if snap.EngineError != "" {
		r.warn(p, newWarning(ErrCodeEngineReported, "", snap.EngineError, nil))
	}

	// Flatten includes the decode warnings of snap.
	records, warnings := r.decoder.Flatten(snap)
	for _, w := range warnings {
		r.warn(p, malformed(w))
	}

	digest, err := ir.SnapshotDigest(records)
	if err != nil {
		return nil, fmt.Errorf("apply snapshot: %w", err)
	}
	res.Digest = digest

	var deletes, pending []ir.Record
	for _, rec := range records {
		if rec.Delete {
			deletes = append(deletes, rec)
			continue
		}
		pending = append(pending, rec)
		if _, dup := p.records[rec.ID]; !dup {
			p.records[rec.ID] = rec
		}
	}

	r.applyDeletes(p, deletes, pending)

	ordered, err := resolver.OrderRecords(pending)
	if err != nil {
		return nil, r.reject(ctx, p, start, err)
	}
	for _, rec := range ordered {
		if err := r.applyRecord(p, rec); err != nil {
			return nil, fmt.Errorf("apply %q: %w", rec.ID, err)
		}
	}

	if err := r.reorder(p); err != nil {
		return nil, r.reject(ctx, p, start, err)
	}
	if err := r.inferTouched(p); err != nil {
		return nil, fmt.Errorf("apply snapshot: %w", err)
	}

	for _, envID := range p.working.TakeLayoutRequests() {
		env, _ := p.working.Environment(envID)
		layout.Apply(env, r.layout)
		res.Environments = append(res.Environments, envID)
	}

	r.tree.Replace(p.working)
	r.commit(ctx, p, start)
	return res, nil
}

func (r *Reconciler) applyDeletes(p *pass, deletes, pending []ir.Record) {
	for _, del := range deletes {
		for _, rec := range pending {
			if slices.Contains(rec.DependsOn, del.ID) {
				r.warn(p, newWarning(ErrCodeDanglingDelete, del.ID,
					fmt.Sprintf("deleting %s still referenced by %s", del.ID, rec.ID), nil))
				break
			}
		}

		envID := ir.EnvIDOf(del.ID)
		if !p.working.RemoveNode(del.ID) {
			slog.Debug("delete of unknown node ignored", "pass", p.result.Token, "node_id", del.ID)
			continue
		}
		p.result.Deleted = append(p.result.Deleted, del.ID)
		p.touched[envID] = true
		p.working.RequestLayout(envID)
	}
}

func (r *Reconciler) applyRecord(p *pass, rec ir.Record) error {
	envID := rec.EnvID()

	if existing, ok := p.working.FindByID(rec.ID); ok {
		wasModule := existing.Kind == ir.KindModule
		if err := p.working.UpdateNode(rec.ID, func(n *ir.Node) { mergePayload(n, rec) }); err != nil {
			return err
		}
		if wasModule && rec.Kind != ir.KindModule {
			p.working.RemoveEnvironment(rec.ID)
		}
		if rec.Kind == ir.KindModule {
			p.working.EnsureEnvironment(rec.ID)
		}
		p.result.Updated = append(p.result.Updated, rec.ID)
		p.touched[envID] = true
		p.working.RequestLayout(envID)
		return nil
	}

	path := rec.ParentPath
	for i := 1; i <= len(path); i++ {
		id := ir.EnvIDForPath(path[:i])
		if _, ok := p.working.Environment(id); ok {
			continue
		}
		if owner, ok := p.working.FindByID(id); ok && owner.Kind == ir.KindModule {
			continue
		}
		r.warn(p, newWarning(ErrCodeUnknownModulePath, id,
			fmt.Sprintf("environment %s synthesized for %s", id, rec.ID), nil))
	}

	n := &ir.Node{ID: rec.ID}
	mergePayload(n, rec)
	if err := p.working.AddNode(envID, n); err != nil {
		return err
	}
	if rec.Kind == ir.KindModule {
		p.working.EnsureEnvironment(rec.ID)
	}
	p.result.Created = append(p.result.Created, rec.ID)
	p.touched[envID] = true
	p.working.RequestLayout(envID)
	return nil
}

// mergePayload copies a record onto a node. Position and edges are kept;
// payload fields that do not belong to the record's kind are cleared.
func mergePayload(n *ir.Node, rec ir.Record) {
	n.Label = rec.Label
	n.Kind = rec.Kind
	n.Value = rec.Value
	n.Definition = ""
	n.Action = ""

	switch rec.Kind {
	case ir.KindDefinition, ir.KindHTML:
		n.Definition = rec.Expression
	case ir.KindAction:
		n.Action = rec.Expression
	}

	if rec.Kind == ir.KindTable {
		if len(rec.Columns) > 0 {
			n.Columns = slices.Clone(rec.Columns)
		}
		n.Rows = rec.Rows
	} else {
		n.Columns = nil
		n.Rows = nil
	}

	if rec.Kind == ir.KindVariable {
		n.Parsed = slices.Clone(rec.Parsed)
	} else {
		n.Parsed = nil
	}

	if rec.Kind == ir.KindModule {
		if rec.Params != nil {
			n.Params = rec.Params
		}
	} else {
		n.Params = nil
	}
}

// reorder sorts every touched Environment topologically. Nodes touched by
// the pass use their record's dependencies, the others their payload text.
func (r *Reconciler) reorder(p *pass) error {
	for _, envID := range sortedKeys(p.touched) {
		env, ok := p.working.Environment(envID)
		if !ok {
			continue
		}
		pending := make([]resolver.Pending, len(env.Nodes))
		for i, n := range env.Nodes {
			refs := textRefs(n, ir.ModulePath(envID))
			if rec, ok := p.records[n.ID]; ok {
				refs = rec.DependsOn
			}
			pending[i] = resolver.Pending{ID: n.ID, Refs: refs}
		}
		order, err := resolver.Order(pending)
		if err != nil {
			return err
		}
		if err := p.working.SetOrder(envID, order); err != nil {
			return err
		}
	}
	return nil
}

func textRefs(n *ir.Node, path []string) []string {
	var refs []string
	for _, label := range infer.Identifiers(n.Text()) {
		if label != n.Label {
			refs = append(refs, ir.QualifiedID(label, path))
		}
	}
	return refs
}

// inferTouched refreshes edges of touched nodes, and of untouched nodes whose
// text mentions a node created by this pass.
func (r *Reconciler) inferTouched(p *pass) error {
	targets := p.result.Touched()
	created := make(map[string]bool, len(p.result.Created))
	for _, id := range p.result.Created {
		created[id] = true
	}

	for _, envID := range sortedKeys(p.touched) {
		env, ok := p.working.Environment(envID)
		if !ok {
			continue
		}
		path := ir.ModulePath(envID)
		for _, n := range env.Nodes {
			if _, ok := p.records[n.ID]; ok {
				continue
			}
			for _, ref := range textRefs(n, path) {
				if created[ref] {
					targets = append(targets, n.ID)
					break
				}
			}
		}
	}

	for _, id := range targets {
		res, err := r.inferrer.ApplyLocal(p.working, id)
		if err != nil {
			return err
		}
		p.result.EdgesAdded = append(p.result.EdgesAdded, res.Added...)
		p.result.EdgesRemoved = append(p.result.EdgesRemoved, res.Removed...)
	}
	return nil
}

func (r *Reconciler) warn(p *pass, w *RuntimeError) {
	w.PassToken = p.result.Token
	p.result.Warnings = append(p.result.Warnings, w)
	slog.Warn("reconcile warning",
		"pass", w.PassToken,
		"code", w.Code,
		"node_id", w.NodeID,
		"message", w.Message,
	)
}

func malformed(err error) *RuntimeError {
	var me *snapshot.MalformedError
	if errors.As(err, &me) {
		return newWarning(ErrCodeMalformedDescriptor, me.Key, me.Error(), err)
	}
	return newWarning(ErrCodeMalformedDescriptor, "", err.Error(), err)
}

// reject converts a resolver cycle into a CYCLE_DETECTED error and records
// the rejected pass. The committed tree is not touched.
func (r *Reconciler) reject(ctx context.Context, p *pass, start time.Time, err error) error {
	res := p.result
	var ce *resolver.CycleError
	if !errors.As(err, &ce) {
		return fmt.Errorf("apply snapshot: %w", err)
	}
	rerr := NewCycleError(res.Token, ce.ID, ce.Path, err)

	slog.Error("pass rejected",
		"pass", res.Token,
		"seq", res.Seq,
		"node_id", ce.ID,
		"cycle", ce.Path,
	)

	if r.recorder != nil {
		r.recorder.ObservePass(store.OutcomeRejected, time.Since(start))
		r.recorder.ObserveWarning(string(ErrCodeCycleDetected))
	}
	if r.checkpointer != nil {
		if cerr := r.checkpointer.RecordPass(ctx, store.Pass{
			Seq:      res.Seq,
			Token:    res.Token,
			Digest:   res.Digest,
			Outcome:  store.OutcomeRejected,
			Warnings: len(res.Warnings),
			Error:    rerr.Error(),
		}); cerr != nil {
			slog.Error("record rejected pass failed", "pass", res.Token, "error", cerr)
		}
	}
	return rerr
}

// commit runs the side effects of a committed pass. Failures are logged and
// never undo the commit.
func (r *Reconciler) commit(ctx context.Context, p *pass, start time.Time) {
	res := p.result

	slog.Info("pass committed",
		"pass", res.Token,
		"seq", res.Seq,
		"created", len(res.Created),
		"updated", len(res.Updated),
		"deleted", len(res.Deleted),
		"edges_added", len(res.EdgesAdded),
		"edges_removed", len(res.EdgesRemoved),
		"warnings", len(res.Warnings),
	)

	if r.checkpointer != nil {
		treeDigest, err := r.tree.Digest()
		if err != nil {
			slog.Error("tree digest failed", "pass", res.Token, "error", err)
		}
		if err := r.checkpointer.Checkpoint(ctx, r.tree, store.Pass{
			Seq:        res.Seq,
			Token:      res.Token,
			Digest:     res.Digest,
			Outcome:    store.OutcomeCommitted,
			Created:    len(res.Created),
			Updated:    len(res.Updated),
			Deleted:    len(res.Deleted),
			Warnings:   len(res.Warnings),
			TreeDigest: treeDigest,
		}); err != nil {
			slog.Error("checkpoint failed", "pass", res.Token, "error", err)
		}
	}

	if r.recorder != nil {
		r.recorder.ObservePass(store.OutcomeCommitted, time.Since(start))
		r.recorder.ObserveMutations(len(res.Created), len(res.Updated), len(res.Deleted))
		r.recorder.ObserveEdges(len(res.EdgesAdded), len(res.EdgesRemoved))
		for _, w := range res.Warnings {
			if code, ok := CodeOf(w); ok {
				r.recorder.ObserveWarning(string(code))
			}
		}
		r.recorder.SetNodes(r.tree.NodeCount())
	}

	if r.confirmer != nil {
		for _, id := range res.Touched() {
			if err := r.confirmer.RequestDependencies(ctx, id); err != nil {
				slog.Warn("dependency request failed", "pass", res.Token, "node_id", id, "error", err)
			}
		}
	}
}

// ApplyConfirmation refreshes the edges of one node from the external
// engine's dependency list. The node is looked up across the whole tree, so
// replies that arrive after the user changed scope still land. A reply for
// an unknown node is stale and ignored.
func (r *Reconciler) ApplyConfirmation(ctx context.Context, c Confirmation) (ConfirmationResult, error) {
	out := ConfirmationResult{NodeID: c.NodeID}

	if _, ok := r.tree.FindByID(c.NodeID); !ok {
		out.Stale = true
		out.Warning = newWarning(ErrCodeStaleConfirmation, c.NodeID,
			fmt.Sprintf("confirmation for unknown node %s", c.NodeID), nil)
		slog.Debug("stale confirmation ignored", "node_id", c.NodeID)
		if r.recorder != nil {
			r.recorder.ObserveConfirmation("stale")
		}
		return out, nil
	}

	working := r.tree.Clone()
	res, err := r.inferrer.Apply(working, c.NodeID, c.Dependencies)
	if err != nil {
		return out, fmt.Errorf("apply confirmation %q: %w", c.NodeID, err)
	}
	out.Added = res.Added
	out.Removed = res.Removed

	if res.Changed() {
		envID := ir.EnvIDOf(c.NodeID)
		if env, ok := working.Environment(envID); ok {
			layout.Apply(env, r.layout)
		}
	}
	r.tree.Replace(working)

	slog.Debug("confirmation applied",
		"node_id", c.NodeID,
		"dependencies", len(c.Dependencies),
		"edges_added", len(res.Added),
		"edges_removed", len(res.Removed),
	)

	if r.recorder != nil {
		r.recorder.ObserveConfirmation("applied")
		r.recorder.ObserveEdges(len(res.Added), len(res.Removed))
	}
	if res.Changed() && r.checkpointer != nil {
		if err := r.checkpointer.SaveTree(ctx, r.tree); err != nil {
			slog.Error("save tree failed", "node_id", c.NodeID, "error", err)
		}
	}
	return out, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
