package repository

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/orgstream/orgstream/internal/clock"
	"github.com/orgstream/orgstream/internal/eventstore/domain"
)

func newTestStore(t *testing.T) domain.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Event{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewStore(db, node, clock.NewSystemClock())
}

func appendEvent(t *testing.T, store domain.Store, streamID string, revision uint64) domain.Event {
	t.Helper()
	evt := domain.Event{
		StreamID: streamID,
		Revision: revision,
		Type:     domain.TypeRoleAdded,
		Payload:  []byte(`{}`),
	}
	require.NoError(t, store.Append(context.Background(), &evt))
	return evt
}

func TestAppend_AssignsIDAndTimestamp(t *testing.T) {
	store := newTestStore(t)

	evt := domain.Event{
		StreamID: "org-1",
		Revision: 1,
		Type:     domain.TypeOrganizationCreated,
		Payload:  []byte(`{"org_id":"org-1"}`),
	}
	require.NoError(t, store.Append(context.Background(), &evt))

	assert.NotZero(t, evt.ID)
	assert.False(t, evt.CreatedAt.IsZero())
}

func TestAppend_RevisionsAreGapFree(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for rev := uint64(1); rev <= 5; rev++ {
		appendEvent(t, store, "org-1", rev)
	}

	events, err := store.ListStream(ctx, "org-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, evt := range events {
		assert.Equal(t, uint64(i+1), evt.Revision)
	}

	tail, err := store.TailRevision(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), tail)
}

func TestAppend_StaleExpectationConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	appendEvent(t, store, "org-1", 1)
	appendEvent(t, store, "org-1", 2)

	// a second writer holding the old tail loses
	err := store.Append(ctx, &domain.Event{
		StreamID: "org-1",
		Revision: 2,
		Type:     domain.TypeRoleAdded,
		Payload:  []byte(`{}`),
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	// a gap ahead of the tail is rejected the same way
	err = store.Append(ctx, &domain.Event{
		StreamID: "org-1",
		Revision: 5,
		Type:     domain.TypeRoleAdded,
		Payload:  []byte(`{}`),
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	tail, err := store.TailRevision(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), tail)
}

func TestAppend_FirstRevisionRequiresEmptyStream(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	appendEvent(t, store, "org-1", 1)

	err := store.Append(ctx, &domain.Event{
		StreamID: "org-1",
		Revision: 1,
		Type:     domain.TypeOrganizationCreated,
		Payload:  []byte(`{}`),
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}

func TestAppend_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Append(ctx, nil), domain.ErrInvalidEvent)
	assert.ErrorIs(t, store.Append(ctx, &domain.Event{Revision: 1, Type: domain.TypeRoleAdded}), domain.ErrInvalidEvent)
	assert.ErrorIs(t, store.Append(ctx, &domain.Event{StreamID: "org-1", Type: domain.TypeRoleAdded}), domain.ErrInvalidEvent)
	assert.ErrorIs(t, store.Append(ctx, &domain.Event{StreamID: "org-1", Revision: 1, Type: domain.Type("bogus")}), domain.ErrInvalidEvent)
}

func TestListStream_AfterRevision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for rev := uint64(1); rev <= 4; rev++ {
		appendEvent(t, store, "org-1", rev)
	}
	appendEvent(t, store, "org-2", 1)

	events, err := store.ListStream(ctx, "org-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(3), events[0].Revision)
	assert.Equal(t, uint64(4), events[1].Revision)

	events, err = store.ListStream(ctx, "org-1", 0, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Revision)

	events, err = store.ListStream(ctx, "missing", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTailRevision_MissingStream(t *testing.T) {
	store := newTestStore(t)

	tail, err := store.TailRevision(context.Background(), "missing")
	require.NoError(t, err)
	assert.Zero(t, tail)
}

func TestOutbox_ListUnpublishedAndMarkPublished(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := appendEvent(t, store, "org-1", 1)
	second := appendEvent(t, store, "org-1", 2)
	third := appendEvent(t, store, "org-2", 1)

	pending, err := store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, first.ID, pending[0].ID)

	require.NoError(t, store.MarkPublished(ctx, []snowflake.ID{first.ID, second.ID}))

	pending, err = store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, third.ID, pending[0].ID)

	require.NoError(t, store.MarkPublished(ctx, nil))
}

func TestStoreOutageSurfacesAsUnavailable(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Event{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	store := NewStore(conn, node, clock.NewSystemClock())

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	evt := domain.Event{
		StreamID: "org-1",
		Revision: 1,
		Type:     domain.TypeOrganizationCreated,
		Payload:  []byte(`{"org_id":"org-1"}`),
	}
	assert.ErrorIs(t, store.Append(context.Background(), &evt), domain.ErrStoreUnavailable)

	_, err = store.ListStream(context.Background(), "org-1", 0, 10)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = store.TailRevision(context.Background(), "org-1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
