package repository

import (
	"context"
	"encoding/json"

	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
	"github.com/orgstream/orgstream/internal/organization/domain"
)

const replayPageSize = 200

type repository struct {
	events esdomain.Store
}

func NewRepository(events esdomain.Store) domain.Repository {
	return &repository{events: events}
}

func (r *repository) Created(ctx context.Context, org *domain.Organization) error {
	return r.append(ctx, org.ID(), esdomain.TypeOrganizationCreated, org.Snapshot(), 0)
}

func (r *repository) Get(ctx context.Context, orgID string) (*domain.Organization, uint64, error) {
	var all []esdomain.Event
	var after uint64
	for {
		page, err := r.events.ListStream(ctx, orgID, after, replayPageSize)
		if err != nil {
			return nil, 0, err
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		after = page[len(page)-1].Revision
	}
	if len(all) == 0 {
		return nil, 0, esdomain.ErrStreamNotFound
	}
	return domain.Replay(all)
}

func (r *repository) RoleAdded(ctx context.Context, org *domain.Organization, role domain.Role, expectedRevision uint64) error {
	return r.append(ctx, org.ID(), esdomain.TypeRoleAdded, domain.RoleAddedPayload{
		OrgID: org.ID(),
		Role:  role,
	}, expectedRevision)
}

func (r *repository) RoleRemoved(ctx context.Context, org *domain.Organization, roleID string, expectedRevision uint64) error {
	return r.append(ctx, org.ID(), esdomain.TypeRoleRemoved, domain.RoleRemovedPayload{
		OrgID:  org.ID(),
		RoleID: roleID,
	}, expectedRevision)
}

func (r *repository) UserAdded(ctx context.Context, org *domain.Organization, userID string, roles []string, expectedRevision uint64) error {
	return r.append(ctx, org.ID(), esdomain.TypeUserAdded, domain.UserAddedPayload{
		OrgID:  org.ID(),
		UserID: userID,
		Roles:  roles,
	}, expectedRevision)
}

func (r *repository) UserRemoved(ctx context.Context, org *domain.Organization, userID string, expectedRevision uint64) error {
	return r.append(ctx, org.ID(), esdomain.TypeUserRemoved, domain.UserRemovedPayload{
		OrgID:  org.ID(),
		UserID: userID,
	}, expectedRevision)
}

func (r *repository) RolesAssigned(ctx context.Context, org *domain.Organization, userID string, roles []string, expectedRevision uint64) error {
	return r.append(ctx, org.ID(), esdomain.TypeRolesAssigned, domain.UserRolesPayload{
		OrgID:  org.ID(),
		UserID: userID,
		Roles:  roles,
	}, expectedRevision)
}

func (r *repository) RolesRemoved(ctx context.Context, org *domain.Organization, userID string, roles []string, expectedRevision uint64) error {
	return r.append(ctx, org.ID(), esdomain.TypeRolesRemoved, domain.UserRolesPayload{
		OrgID:  org.ID(),
		UserID: userID,
		Roles:  roles,
	}, expectedRevision)
}

func (r *repository) Deleted(ctx context.Context, org *domain.Organization, expectedRevision uint64) error {
	return r.append(ctx, org.ID(), esdomain.TypeOrganizationDeleted, domain.DeletedPayload{
		OrgID:  org.ID(),
		Status: org.Status(),
	}, expectedRevision)
}

func (r *repository) append(ctx context.Context, streamID string, eventType esdomain.Type, payload any, expectedRevision uint64) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.events.Append(ctx, &esdomain.Event{
		StreamID: streamID,
		Revision: expectedRevision + 1,
		Type:     eventType,
		Payload:  data,
	})
}
