package messaging

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/orgstream/orgstream/internal/config"
	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
	"github.com/orgstream/orgstream/internal/observability/metrics"
)

// Relay drains the outbox: unpublished events are pushed onto the channel
// in insertion order and flagged as published afterwards. Publishing is
// at-least-once; a crash between Publish and MarkPublished re-emits the
// event and the denormalizer discards the duplicate.
type Relay struct {
	log       *zap.Logger
	events    esdomain.Store
	channel   Channel
	interval  time.Duration
	batchSize int
}

type RelayParams struct {
	fx.In

	Log     *zap.Logger
	Events  esdomain.Store
	Channel Channel
	Config  config.Config
}

func NewRelay(p RelayParams) *Relay {
	return &Relay{
		log:       p.Log.Named("messaging.relay"),
		events:    p.Events,
		channel:   p.Channel,
		interval:  p.Config.RelayInterval,
		batchSize: p.Config.RelayBatchSize,
	}
}

func (r *Relay) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.log.Error("relay pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce publishes up to one batch of pending events.
func (r *Relay) RunOnce(ctx context.Context) error {
	events, err := r.events.ListUnpublished(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	published := make([]snowflake.ID, 0, len(events))
	for _, evt := range events {
		if err := r.channel.Publish(ctx, evt); err != nil {
			// Mark what already went out so it is not re-emitted next pass;
			// the rest stays unpublished and is retried on the next tick.
			r.log.Warn("publish failed, deferring remainder",
				zap.Int64("event_id", int64(evt.ID)),
				zap.String("stream_id", evt.StreamID),
				zap.Error(err),
			)
			break
		}
		published = append(published, evt.ID)
	}
	if len(published) == 0 {
		return nil
	}
	if err := r.events.MarkPublished(ctx, published); err != nil {
		return err
	}
	metrics.Pipeline().AddEventsRelayed(len(published))
	r.log.Debug("relayed events", zap.Int("count", len(published)))
	return nil
}
