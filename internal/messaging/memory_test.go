package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
)

func testEvent(streamID string, revision uint64) esdomain.Event {
	return esdomain.Event{
		StreamID: streamID,
		Revision: revision,
		Type:     esdomain.TypeRoleAdded,
		Payload:  []byte(`{}`),
	}
}

func TestMemoryChannel_RedeliversUntilAcked(t *testing.T) {
	ch := NewMemoryChannel()
	ctx := context.Background()

	require.NoError(t, ch.Publish(ctx, testEvent("org-1", 1)))
	require.NoError(t, ch.Publish(ctx, testEvent("org-1", 2)))

	got, err := ch.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Event.Revision)
	assert.Equal(t, uint64(2), got[1].Event.Revision)

	// nothing acked, same deliveries come back in order
	again, err := ch.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, got[0].ID, again[0].ID)

	require.NoError(t, ch.Ack(ctx, got[0]))

	remaining, err := ch.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, uint64(2), remaining[0].Event.Revision)
	assert.Equal(t, 1, ch.Pending())
}

func TestMemoryChannel_ReceiveHonorsMax(t *testing.T) {
	ch := NewMemoryChannel()
	ctx := context.Background()

	for rev := uint64(1); rev <= 5; rev++ {
		require.NoError(t, ch.Publish(ctx, testEvent("org-1", rev)))
	}

	got, err := ch.Receive(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
