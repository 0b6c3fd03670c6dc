package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/orgstream/orgstream/internal/clock"
	"github.com/orgstream/orgstream/internal/eventstore/domain"
	"github.com/orgstream/orgstream/pkg/db"
	"gorm.io/gorm"
)

type store struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func NewStore(conn *gorm.DB, genID *snowflake.Node, clk clock.Clock) domain.Store {
	return &store{db: conn, genID: genID, clock: clk}
}

func (s *store) Append(ctx context.Context, evt *domain.Event) error {
	if evt == nil || strings.TrimSpace(evt.StreamID) == "" || evt.Revision == 0 || !evt.Type.Known() {
		return domain.ErrInvalidEvent
	}

	if evt.ID == 0 {
		evt.ID = s.genID.Generate()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock.Now()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tail, err := tailRevision(ctx, tx, evt.StreamID)
		if err != nil {
			return err
		}
		if tail != evt.Revision-1 {
			return domain.ErrConcurrencyConflict
		}

		return tx.WithContext(ctx).Exec(
			`INSERT INTO organization_events (id, stream_id, revision, type, payload, published, created_at)
			 VALUES (?, ?, ?, ?, ?, false, ?)`,
			evt.ID,
			evt.StreamID,
			evt.Revision,
			string(evt.Type),
			evt.Payload,
			evt.CreatedAt,
		).Error
	})
	if err == nil {
		return nil
	}
	// Two writers that both observed the same tail race on the unique
	// (stream_id, revision) index; the loser surfaces as a duplicate key.
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrConcurrencyConflict
	}
	return classify(err)
}

func (s *store) ListStream(ctx context.Context, streamID string, afterRevision uint64, limit int) ([]domain.Event, error) {
	var events []domain.Event
	stmt := s.db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("stream_id = ? AND revision > ?", streamID, afterRevision).
		Order("revision asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&events).Error; err != nil {
		return nil, classify(err)
	}
	return events, nil
}

func (s *store) TailRevision(ctx context.Context, streamID string) (uint64, error) {
	tail, err := tailRevision(ctx, s.db, streamID)
	return tail, classify(err)
}

func (s *store) ListUnpublished(ctx context.Context, limit int) ([]domain.Event, error) {
	var events []domain.Event
	err := s.db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("published = ?", false).
		Order("id asc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, classify(err)
	}
	return events, nil
}

func (s *store) MarkPublished(ctx context.Context, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return classify(s.db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("id IN ?", ids).
		Update("published", true).Error)
}

func tailRevision(ctx context.Context, tx *gorm.DB, streamID string) (uint64, error) {
	var tail uint64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(revision), 0) FROM organization_events WHERE stream_id = ?`,
		streamID,
	).Scan(&tail).Error
	if err != nil {
		return 0, err
	}
	return tail, nil
}

// classify tags transient infrastructure failures as ErrStoreUnavailable so
// callers can retry with backoff instead of treating the outage as fatal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if db.IsUnavailableErr(err) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}
