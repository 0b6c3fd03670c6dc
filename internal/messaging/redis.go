package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/orgstream/orgstream/internal/config"
	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
	redis "github.com/redis/go-redis/v9"
)

const eventField = "event"

// redisChannel carries events over a Redis Stream with a consumer group.
// Unacknowledged entries are reclaimed from any consumer once they sit idle
// longer than minIdle, which is what turns "don't ack" into redelivery.
type redisChannel struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	minIdle  time.Duration
}

func NewRedisChannel(client *redis.Client, cfg config.Config) (Channel, error) {
	ch := &redisChannel{
		client:   client,
		stream:   cfg.EventStreamKey,
		group:    cfg.ConsumerGroup,
		consumer: cfg.ConsumerGroup + "-" + ulid.Make().String(),
		minIdle:  cfg.RedeliverMinIdle,
	}
	if err := ch.ensureGroup(context.Background()); err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *redisChannel) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func (c *redisChannel) Publish(ctx context.Context, evt esdomain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		Values: map[string]any{eventField: string(data)},
	}).Err()
}

func (c *redisChannel) Receive(ctx context.Context, max int) ([]Delivery, error) {
	if max <= 0 {
		return nil, nil
	}

	// Reclaim entries another consumer received but never acknowledged.
	claimed, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  c.minIdle,
		Start:    "0-0",
		Count:    int64(max),
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	deliveries := make([]Delivery, 0, max)
	for _, msg := range claimed {
		d, err := c.decode(msg)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	remaining := max - len(deliveries)
	if remaining <= 0 {
		return deliveries, nil
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    int64(remaining),
		Block:    100 * time.Millisecond,
	}).Result()
	if err == redis.Nil {
		return deliveries, nil
	}
	if err != nil {
		return nil, err
	}
	for _, s := range streams {
		for _, msg := range s.Messages {
			d, err := c.decode(msg)
			if err != nil {
				return nil, err
			}
			deliveries = append(deliveries, d)
		}
	}
	return deliveries, nil
}

func (c *redisChannel) Ack(ctx context.Context, d Delivery) error {
	return c.client.XAck(ctx, c.stream, c.group, d.ID).Err()
}

func (c *redisChannel) decode(msg redis.XMessage) (Delivery, error) {
	raw, ok := msg.Values[eventField].(string)
	if !ok {
		return Delivery{}, fmt.Errorf("stream entry %s has no %s field", msg.ID, eventField)
	}
	var evt esdomain.Event
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		return Delivery{}, fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
	}
	return Delivery{Event: evt, ID: msg.ID}, nil
}
