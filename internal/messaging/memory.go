package messaging

import (
	"context"
	"strconv"
	"sync"

	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
)

// MemoryChannel is an in-process Channel. Deliveries stay pending until
// acknowledged, so a Receive after an unacked batch hands the same entries
// out again in their original order.
type MemoryChannel struct {
	mu      sync.Mutex
	entries []memoryEntry
	nextID  int64
}

type memoryEntry struct {
	id    string
	event esdomain.Event
	acked bool
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{}
}

func (c *MemoryChannel) Publish(_ context.Context, evt esdomain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.entries = append(c.entries, memoryEntry{
		id:    strconv.FormatInt(c.nextID, 10),
		event: evt,
	})
	return nil
}

func (c *MemoryChannel) Receive(_ context.Context, max int) ([]Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Delivery
	for _, e := range c.entries {
		if e.acked {
			continue
		}
		out = append(out, Delivery{Event: e.event, ID: e.id})
		if len(out) == max {
			break
		}
	}
	return out, nil
}

func (c *MemoryChannel) Ack(_ context.Context, d Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].id == d.ID {
			c.entries[i].acked = true
			return nil
		}
	}
	return nil
}

// Pending reports how many deliveries are still unacknowledged.
func (c *MemoryChannel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if !e.acked {
			n++
		}
	}
	return n
}
