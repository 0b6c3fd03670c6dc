// Package denormalizer consumes the event channel and folds events into the
// query-side documents. Delivery is at-least-once and unordered; the order
// control store is what restores exactly-once in-order application. Every
// event runs the same cycle: check the stream's last processed revision,
// apply when it is the immediate successor, advance the order control record,
// then acknowledge.
package denormalizer

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/orgstream/orgstream/internal/config"
	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
	"github.com/orgstream/orgstream/internal/messaging"
	"github.com/orgstream/orgstream/internal/observability/metrics"
	"github.com/orgstream/orgstream/internal/ordercontrol"
	rmdomain "github.com/orgstream/orgstream/internal/readmodel/domain"
	"github.com/orgstream/orgstream/pkg/log/ctxlogger"
)

type Denormalizer struct {
	log     *zap.Logger
	channel messaging.Channel
	orders  ordercontrol.Store
	docs    rmdomain.Repository
	events  esdomain.Store
	holder  *config.PipelineConfigHolder
	poll    time.Duration

	// consecutive deferrals per stream, reset on progress
	deferred map[string]int
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Channel messaging.Channel
	Orders  ordercontrol.Store
	Docs    rmdomain.Repository
	Events  esdomain.Store
	Config  config.Config
	Holder  *config.PipelineConfigHolder
}

func New(p Params) *Denormalizer {
	return &Denormalizer{
		log:      p.Log.Named("denormalizer"),
		channel:  p.Channel,
		orders:   p.Orders,
		docs:     p.Docs,
		events:   p.Events,
		holder:   p.Holder,
		poll:     p.Config.DenormPollEvery,
		deferred: make(map[string]int),
	}
}

func (d *Denormalizer) RunForever(ctx context.Context) {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil {
				metrics.Pipeline().IncPassError()
				d.log.Error("denormalizer pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce receives up to one batch and processes it. Deliveries are grouped
// by stream; within a stream the channel order is preserved, across streams
// there is no ordering requirement.
func (d *Denormalizer) RunOnce(ctx context.Context) error {
	batchSize := d.holder.Get().BatchSize
	deliveries, err := d.channel.Receive(ctx, batchSize)
	if err != nil {
		return err
	}
	if len(deliveries) == 0 {
		return nil
	}

	streams, order := groupByStream(deliveries)
	last, err := d.orders.LastProcessedBatch(ctx, order)
	if err != nil {
		return err
	}

	type streamRun struct {
		streamID string
		applied  []messaging.Delivery
	}
	var (
		updates []ordercontrol.Update
		runs    []streamRun
	)

	for _, streamID := range order {
		base := last[streamID]
		streamCtx := ctxlogger.ContextWithStreamID(ctx, streamID)
		run, err := d.applyRun(streamCtx, streamID, base, streams[streamID])
		if err != nil {
			return err
		}
		if len(run) == 0 {
			continue
		}
		updates = append(updates, ordercontrol.Update{
			StreamID: streamID,
			From:     base,
			To:       run[len(run)-1].Event.Revision,
		})
		runs = append(runs, streamRun{streamID: streamID, applied: run})
	}
	if len(updates) == 0 {
		return nil
	}

	results := d.orders.AdvanceBatch(ctx, updates)
	for i, run := range runs {
		if err := d.settleRun(ctx, run.streamID, run.applied, results[i]); err != nil {
			return err
		}
	}
	return nil
}

// Process runs the full cycle for a single delivery.
func (d *Denormalizer) Process(ctx context.Context, delivery messaging.Delivery) error {
	last, err := d.orders.LastProcessed(ctx, delivery.Event.StreamID)
	if err != nil {
		return err
	}
	run, err := d.applyRun(ctx, delivery.Event.StreamID, last, []messaging.Delivery{delivery})
	if err != nil {
		return err
	}
	if len(run) == 0 {
		return nil
	}
	advErr := d.orders.Advance(ctx, delivery.Event.StreamID, last, delivery.Event.Revision)
	return d.settleRun(ctx, delivery.Event.StreamID, run, advErr)
}

// applyRun folds the applicable prefix of a stream's deliveries into the read
// model and returns it. Duplicates are acknowledged on the spot; a gap stops
// the run and leaves the remainder unacknowledged for redelivery.
func (d *Denormalizer) applyRun(ctx context.Context, streamID string, base uint64, deliveries []messaging.Delivery) ([]messaging.Delivery, error) {
	next := base + 1
	var run []messaging.Delivery
	for _, delivery := range deliveries {
		rev := delivery.Event.Revision

		if rev < next {
			// Already applied in a previous pass, the document is current.
			metrics.Pipeline().IncEventProcessed(metrics.OutcomeDuplicate)
			if err := d.channel.Ack(ctx, delivery); err != nil {
				return nil, err
			}
			continue
		}

		if rev > next {
			d.deferEvent(ctx, streamID, next-1, rev)
			break
		}

		if err := d.docs.Apply(ctx, delivery.Event); err != nil {
			if errors.Is(err, rmdomain.ErrMissingBase) {
				// The stream's first event has not arrived yet. Same
				// treatment as a gap: leave it for redelivery.
				d.deferEvent(ctx, streamID, next-1, rev)
				break
			}
			if isPoisonEvent(err) {
				metrics.Pipeline().IncEventProcessed(metrics.OutcomeDiscarded)
				ctxlogger.WithContext(ctx, d.log).Warn("discarding unprocessable event",
					zap.Uint64("revision", rev),
					zap.Error(err),
				)
				if err := d.channel.Ack(ctx, delivery); err != nil {
					return nil, err
				}
				// The revision is consumed even though nothing changed, or
				// the stream would stall behind the poison event.
				if err := d.orders.Advance(ctx, streamID, next-1, rev); err != nil && !errors.Is(err, ordercontrol.ErrOutOfOrder) {
					return nil, err
				}
				next = rev + 1
				continue
			}
			return nil, err
		}

		run = append(run, delivery)
		next = rev + 1
	}
	if len(run) > 0 {
		delete(d.deferred, streamID)
	}
	return run, nil
}

// settleRun resolves the order control outcome for an applied run. A clean
// advance acknowledges everything; an out-of-order result means another
// consumer advanced the stream first, so only the revisions it already covers
// are acknowledged.
func (d *Denormalizer) settleRun(ctx context.Context, streamID string, applied []messaging.Delivery, advErr error) error {
	switch {
	case advErr == nil:
		for _, delivery := range applied {
			metrics.Pipeline().IncEventProcessed(metrics.OutcomeApplied)
			if err := d.channel.Ack(ctx, delivery); err != nil {
				return err
			}
		}
		return nil

	case errors.Is(advErr, ordercontrol.ErrOutOfOrder):
		current, err := d.orders.LastProcessed(ctx, streamID)
		if err != nil {
			return err
		}
		for _, delivery := range applied {
			if delivery.Event.Revision > current {
				break
			}
			metrics.Pipeline().IncEventProcessed(metrics.OutcomeDuplicate)
			if err := d.channel.Ack(ctx, delivery); err != nil {
				return err
			}
		}
		return nil

	default:
		return advErr
	}
}

// deferEvent records a gap. A stream stuck behind a lost delivery for too many
// passes is resynced straight from the event store, which is the durable
// source of truth the channel only mirrors.
func (d *Denormalizer) deferEvent(ctx context.Context, streamID string, last, rev uint64) {
	metrics.Pipeline().IncEventProcessed(metrics.OutcomeDeferred)
	d.deferred[streamID]++
	if d.deferred[streamID] < d.holder.Get().MaxDeferredPasses {
		return
	}
	ctxlogger.WithContext(ctx, d.log).Warn("stream stalled, resyncing from event store",
		zap.Uint64("last_processed", last),
		zap.Uint64("waiting_for", rev),
	)
	if err := d.resync(ctx, streamID, last, rev-1); err != nil {
		ctxlogger.WithContext(ctx, d.log).Error("resync failed", zap.Error(err))
		return
	}
	delete(d.deferred, streamID)
}

func (d *Denormalizer) resync(ctx context.Context, streamID string, after, until uint64) error {
	events, err := d.events.ListStream(ctx, streamID, after, int(until-after))
	if err != nil {
		return err
	}
	from := after
	for _, evt := range events {
		if err := d.docs.Apply(ctx, evt); err != nil {
			return err
		}
		if err := d.orders.Advance(ctx, streamID, from, evt.Revision); err != nil && !errors.Is(err, ordercontrol.ErrOutOfOrder) {
			return err
		}
		metrics.Pipeline().IncEventProcessed(metrics.OutcomeApplied)
		from = evt.Revision
	}
	return nil
}

// groupByStream buckets deliveries per stream and sorts each bucket by
// revision, since the channel guarantees no ordering at all.
func groupByStream(deliveries []messaging.Delivery) (map[string][]messaging.Delivery, []string) {
	streams := make(map[string][]messaging.Delivery)
	var order []string
	for _, delivery := range deliveries {
		id := delivery.Event.StreamID
		if _, ok := streams[id]; !ok {
			order = append(order, id)
		}
		streams[id] = append(streams[id], delivery)
	}
	for _, bucket := range streams {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].Event.Revision < bucket[j].Event.Revision
		})
	}
	return streams, order
}

// isPoisonEvent reports whether applying the event can never succeed, as
// opposed to failing transiently.
func isPoisonEvent(err error) bool {
	if errors.Is(err, esdomain.ErrInvalidEvent) {
		return true
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr)
}
