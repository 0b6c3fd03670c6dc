package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	// ErrConcurrencyConflict means the stream tail moved past the expected
	// revision. The caller must reread the aggregate and retry.
	ErrConcurrencyConflict = errors.New("concurrency_conflict")
	// ErrStreamNotFound means the stream has no events.
	ErrStreamNotFound = errors.New("stream_not_found")
	// ErrInvalidEvent means the event failed validation before append.
	ErrInvalidEvent = errors.New("invalid_event")
	// ErrStoreUnavailable wraps transient infrastructure failures. Safe to
	// retry with backoff.
	ErrStoreUnavailable = errors.New("store_unavailable")
)

// Store is the append-only event log.
type Store interface {
	// Append appends evt to its stream, conditional on the stream tail being
	// evt.Revision-1. A revision of 1 requires the stream to not exist yet.
	// Losing a race returns ErrConcurrencyConflict.
	Append(ctx context.Context, evt *Event) error
	// ListStream returns up to limit events of a stream with revision greater
	// than afterRevision, in ascending revision order.
	ListStream(ctx context.Context, streamID string, afterRevision uint64, limit int) ([]Event, error)
	// TailRevision returns the highest revision of a stream, 0 when the
	// stream does not exist.
	TailRevision(ctx context.Context, streamID string) (uint64, error)

	// ListUnpublished returns events not yet handed to the message channel,
	// oldest first. Used by the outbox relay.
	ListUnpublished(ctx context.Context, limit int) ([]Event, error)
	// MarkPublished flags events as handed to the message channel.
	MarkPublished(ctx context.Context, ids []snowflake.ID) error
}
