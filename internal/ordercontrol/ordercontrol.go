// Package ordercontrol tracks, per stream, the revision of the last event
// applied to the read model. Its single primitive is a per-key conditional
// write, which is enough to turn at-least-once unordered delivery into
// exactly-once in-order application.
package ordercontrol

import (
	"context"
	"errors"
)

// ErrOutOfOrder means the conditional write found a different stored revision
// than expected: either an earlier event is still missing or the event was
// already applied. Internal to the pipeline, never surfaced to callers.
var ErrOutOfOrder = errors.New("out_of_order")

// ErrInvalidAdvance rejects an advance that would move a record backwards.
// Records only ever grow.
var ErrInvalidAdvance = errors.New("invalid_advance")

// Update is one independent per-stream advance.
type Update struct {
	StreamID string
	From     uint64
	To       uint64
}

// Store is the last-processed-revision tracker.
type Store interface {
	// LastProcessed returns the stored revision for a stream, 0 if unknown.
	LastProcessed(ctx context.Context, streamID string) (uint64, error)
	// LastProcessedBatch resolves several streams at once; streams with no
	// record map to 0.
	LastProcessedBatch(ctx context.Context, streamIDs []string) (map[string]uint64, error)
	// Advance stores to if the current value equals from. from == 0 also
	// matches a missing record (first event of a stream). A mismatch returns
	// ErrOutOfOrder; to < from returns ErrInvalidAdvance.
	Advance(ctx context.Context, streamID string, from, to uint64) error
	// AdvanceBatch applies independent advances; result[i] is the outcome of
	// updates[i]. No cross-stream atomicity.
	AdvanceBatch(ctx context.Context, updates []Update) []error
	// Reset clears the given streams, or every record when none are given.
	// Test/administrative use only.
	Reset(ctx context.Context, streamIDs ...string) error
}
