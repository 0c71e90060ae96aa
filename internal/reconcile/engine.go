package reconcile

import (
	"context"
	"fmt"
	"log/slog"
)

// Engine is the single-writer event loop around a Reconciler.
//
// Snapshots, server messages and dependency confirmations are processed in
// FIFO order by the one goroutine calling Run. External callers submit work
// with Enqueue.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - the Reconciler and its tree must not be touched while Run is active
type Engine struct {
	reconciler *Reconciler
	queue      *eventQueue

	onPass         func(*PassResult, error)
	onConfirmation func(ConfirmationResult, error)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPassHandler is called from the Run goroutine after every snapshot
// event, with the pass result or the error that rejected it.
func WithPassHandler(fn func(*PassResult, error)) EngineOption {
	return func(e *Engine) {
		e.onPass = fn
	}
}

// WithConfirmationHandler is called from the Run goroutine after every
// confirmation event.
func WithConfirmationHandler(fn func(ConfirmationResult, error)) EngineOption {
	return func(e *Engine) {
		e.onConfirmation = fn
	}
}

// WithLocalConfirmations answers every dependency request with an empty
// dependency list, enqueued behind the pass that asked. An empty list means
// local text inference, so this stands in for an external engine that
// reports no dependencies.
func WithLocalConfirmations() EngineOption {
	return func(e *Engine) {
		e.reconciler.confirmer = localConfirmer{queue: e.queue}
	}
}

// NewEngine creates an Engine driving r.
func NewEngine(r *Reconciler, opts ...EngineOption) *Engine {
	e := &Engine{
		reconciler: r,
		queue:      newEventQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue submits an event for processing by the Run loop.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// EnqueueSnapshot submits a raw snapshot document.
func (e *Engine) EnqueueSnapshot(data []byte) bool {
	return e.Enqueue(Event{Type: EventSnapshot, Data: data})
}

// EnqueueMessage submits a server message envelope.
func (e *Engine) EnqueueMessage(data []byte) bool {
	return e.Enqueue(Event{Type: EventMessage, Data: data})
}

// EnqueueConfirmation submits a dependency confirmation.
func (e *Engine) EnqueueConfirmation(c Confirmation) bool {
	return e.Enqueue(Event{Type: EventConfirmation, Confirmation: &c})
}

// QueueLen returns the number of events waiting.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run processes events until ctx is cancelled or Stop is called and the
// queue has drained.
//
// A failing event is logged with its context and processing continues with
// the next one; a rejected snapshot never blocks the ones behind it.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed with the queue, so a closed
			// queue keeps firing here until it is empty.
			if e.queue.Len() == 0 && e.queue.Closed() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the queued events are processed.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) processEvent(ctx context.Context, event Event) error {
	switch event.Type {
	case EventSnapshot, EventMessage:
		var (
			res *PassResult
			err error
		)
		if event.Type == EventSnapshot {
			res, err = e.reconciler.ApplyJSON(ctx, event.Data)
		} else {
			res, err = e.reconciler.ApplyMessage(ctx, event.Data)
		}
		if e.onPass != nil {
			e.onPass(res, err)
		}
		return err

	case EventConfirmation:
		if event.Confirmation == nil {
			return fmt.Errorf("confirmation event missing confirmation data")
		}
		res, err := e.reconciler.ApplyConfirmation(ctx, *event.Confirmation)
		if e.onConfirmation != nil {
			e.onConfirmation(res, err)
		}
		return err

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

func logEventError(event Event, err error) {
	switch event.Type {
	case EventConfirmation:
		nodeID := ""
		if event.Confirmation != nil {
			nodeID = event.Confirmation.NodeID
		}
		slog.Error("confirmation processing failed",
			"error", err,
			"node_id", nodeID,
		)
	default:
		attrs := []any{
			"error", err,
			"event_type", event.Type.String(),
			"bytes", len(event.Data),
		}
		if code, ok := CodeOf(err); ok {
			attrs = append(attrs, "code", code)
		}
		slog.Error("event processing failed", attrs...)
	}
}

// localConfirmer answers dependency requests with empty lists.
type localConfirmer struct {
	queue *eventQueue
}

func (c localConfirmer) RequestDependencies(_ context.Context, nodeID string) error {
	if !c.queue.Enqueue(Event{Type: EventConfirmation, Confirmation: &Confirmation{NodeID: nodeID}}) {
		slog.Debug("dependency request dropped: engine stopped", "node_id", nodeID)
	}
	return nil
}
