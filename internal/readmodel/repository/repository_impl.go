package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gosimple/slug"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orgstream/orgstream/internal/clock"
	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
	orgdomain "github.com/orgstream/orgstream/internal/organization/domain"
	"github.com/orgstream/orgstream/internal/readmodel/domain"
)

type repo struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewRepository(conn *gorm.DB, clk clock.Clock) domain.Repository {
	return &repo{db: conn, clock: clk}
}

func (r *repo) Apply(ctx context.Context, evt esdomain.Event) error {
	if evt.Type == esdomain.TypeOrganizationCreated {
		var snap orgdomain.Snapshot
		if err := json.Unmarshal(evt.Payload, &snap); err != nil {
			return err
		}
		doc, err := docFromSnapshot(snap, evt.Revision, r.clock.Now())
		if err != nil {
			return err
		}
		// Re-creation of an existing document only moves the revision forward.
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "org_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "slug", "status", "roles", "users", "revision", "updated_at",
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("organization_docs.revision < ?", evt.Revision),
			}},
		}).Create(doc).Error
	}

	var current domain.OrganizationDoc
	err := r.db.WithContext(ctx).
		Where("org_id = ?", evt.StreamID).
		First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrMissingBase
	}
	if err != nil {
		return err
	}
	if current.Revision >= evt.Revision {
		return nil
	}

	org, err := orgFromDoc(current)
	if err != nil {
		return err
	}
	if err := org.Apply(evt); err != nil {
		return err
	}
	doc, err := docFromSnapshot(org.Snapshot(), evt.Revision, r.clock.Now())
	if err != nil {
		return err
	}

	// The revision guard in the WHERE clause makes concurrent appliers safe:
	// only the state derived from the newer event wins.
	return r.db.WithContext(ctx).
		Model(&domain.OrganizationDoc{}).
		Where("org_id = ? AND revision < ?", evt.StreamID, evt.Revision).
		Updates(map[string]any{
			"name":       doc.Name,
			"slug":       doc.Slug,
			"status":     doc.Status,
			"roles":      doc.Roles,
			"users":      doc.Users,
			"revision":   doc.Revision,
			"updated_at": doc.UpdatedAt,
		}).Error
}

func (r *repo) Get(ctx context.Context, orgID string) (*domain.OrganizationDoc, error) {
	var doc domain.OrganizationDoc
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrDocNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *repo) List(ctx context.Context, limit, offset int) ([]domain.OrganizationDoc, error) {
	var docs []domain.OrganizationDoc
	stmt := r.db.WithContext(ctx).
		Model(&domain.OrganizationDoc{}).
		Order("name asc").
		Offset(offset)
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func docFromSnapshot(snap orgdomain.Snapshot, revision uint64, now time.Time) (*domain.OrganizationDoc, error) {
	roles, err := json.Marshal(snap.Roles)
	if err != nil {
		return nil, err
	}
	users, err := json.Marshal(snap.Users)
	if err != nil {
		return nil, err
	}
	return &domain.OrganizationDoc{
		OrgID:     snap.OrgID,
		Name:      snap.Name,
		Slug:      slug.Make(snap.Name),
		Status:    string(snap.Status),
		Roles:     datatypes.JSON(roles),
		Users:     datatypes.JSON(users),
		Revision:  revision,
		UpdatedAt: now,
	}, nil
}

func orgFromDoc(doc domain.OrganizationDoc) (*orgdomain.Organization, error) {
	snap := orgdomain.Snapshot{
		OrgID:  doc.OrgID,
		Name:   doc.Name,
		Status: orgdomain.Status(doc.Status),
	}
	if len(doc.Roles) > 0 {
		if err := json.Unmarshal(doc.Roles, &snap.Roles); err != nil {
			return nil, err
		}
	}
	if len(doc.Users) > 0 {
		if err := json.Unmarshal(doc.Users, &snap.Users); err != nil {
			return nil, err
		}
	}
	return orgdomain.FromSnapshot(snap)
}
