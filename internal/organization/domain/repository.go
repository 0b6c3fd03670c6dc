package domain

import "context"

// Repository bridges the aggregate and the event log. Mutations are persisted
// as events with optimistic concurrency: every append is conditional on
// expectedRevision being the stream tail, and a stale expectation surfaces as
// eventstore ErrConcurrencyConflict.
type Repository interface {
	// Created appends the creation event (revision 1). The stream must not
	// exist yet.
	Created(ctx context.Context, org *Organization) error
	// Get replays the stream and returns the aggregate plus its tail
	// revision, the value the next append must pass as expectedRevision.
	Get(ctx context.Context, orgID string) (*Organization, uint64, error)

	RoleAdded(ctx context.Context, org *Organization, role Role, expectedRevision uint64) error
	RoleRemoved(ctx context.Context, org *Organization, roleID string, expectedRevision uint64) error
	UserAdded(ctx context.Context, org *Organization, userID string, roles []string, expectedRevision uint64) error
	UserRemoved(ctx context.Context, org *Organization, userID string, expectedRevision uint64) error
	RolesAssigned(ctx context.Context, org *Organization, userID string, roles []string, expectedRevision uint64) error
	RolesRemoved(ctx context.Context, org *Organization, userID string, roles []string, expectedRevision uint64) error
	Deleted(ctx context.Context, org *Organization, expectedRevision uint64) error
}
