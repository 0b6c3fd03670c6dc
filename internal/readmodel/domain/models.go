package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"

	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
)

var (
	// ErrDocNotFound means no document exists for the organization.
	ErrDocNotFound = errors.New("document_not_found")
	// ErrMissingBase means a delta event arrived for an organization whose
	// document was never created. The caller should not acknowledge it.
	ErrMissingBase = errors.New("missing_base_document")
)

// OrganizationDoc is the denormalized query-side view of an organization.
// Revision records the event that produced this state and guards against
// applying an event twice.
type OrganizationDoc struct {
	OrgID     string         `gorm:"column:org_id;primaryKey" json:"org_id"`
	Name      string         `gorm:"column:name" json:"name"`
	Slug      string         `gorm:"column:slug" json:"slug"`
	Status    string         `gorm:"column:status" json:"status"`
	Roles     datatypes.JSON `gorm:"column:roles" json:"roles"`
	Users     datatypes.JSON `gorm:"column:users" json:"users"`
	Revision  uint64         `gorm:"column:revision" json:"revision"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (OrganizationDoc) TableName() string {
	return "organization_docs"
}

// Repository maintains and serves organization documents.
type Repository interface {
	// Apply folds one event into the document for its stream. Applying an
	// event at or below the document's revision is a no-op.
	Apply(ctx context.Context, evt esdomain.Event) error
	// Get returns the document for an organization.
	Get(ctx context.Context, orgID string) (*OrganizationDoc, error)
	// List returns documents ordered by name.
	List(ctx context.Context, limit, offset int) ([]OrganizationDoc, error)
}
