package interfaces

import "github.com/cirromulus/paffs-go/internal/types"

// Journal records intended mutations so an interrupted operation is
// either fully applied or fully discarded on the next mount (component I).
type Journal interface {
	// AddEvent appends one entry. Writers call this before performing
	// the mutation in memory.
	AddEvent(e types.Entry) error

	// Checkpoint appends a checkpoint entry closing the current
	// transaction.
	Checkpoint() error

	// Clear truncates the journal once every topic has emitted Success
	// for the latest checkpoint.
	Clear() error

	// ProcessBuffer replays every entry in write order, dispatching to
	// handlers and offering uncheckpointed tail entries to
	// handlers.Uncheckpointed for rollback.
	ProcessBuffer(handlers TopicHandlers) error
}

// TopicHandler applies one committed journal entry for its topic.
type TopicHandler func(e types.Entry) error

// UncheckpointedHandler is offered entries with no matching checkpoint
// (a transaction that never closed); it decides rollback semantics.
type UncheckpointedHandler func(e types.Entry) error

// TopicHandlers wires each topic to its apply/rollback functions.
type TopicHandlers struct {
	Apply         map[types.Topic]TopicHandler
	Uncheckpointed map[types.Topic]UncheckpointedHandler
}
