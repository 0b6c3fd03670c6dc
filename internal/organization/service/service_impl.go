package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
	"github.com/orgstream/orgstream/internal/observability/metrics"
	"github.com/orgstream/orgstream/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// conflictRetries bounds rereads after a lost optimistic-concurrency race.
const conflictRetries = 3

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		log:  p.Log.Named("organization.service"),
		repo: p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (domain.Snapshot, error) {
	org, err := domain.NewOrganization(strings.TrimSpace(req.Name))
	if err != nil {
		return domain.Snapshot{}, err
	}
	if err := s.repo.Created(ctx, org); err != nil {
		return domain.Snapshot{}, err
	}
	s.log.Info("organization created", zap.String("org_id", org.ID()))
	return org.Snapshot(), nil
}

func (s *Service) Get(ctx context.Context, orgID string) (domain.Snapshot, error) {
	org, _, err := s.getOrganization(ctx, orgID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return org.Snapshot(), nil
}

func (s *Service) Delete(ctx context.Context, orgID string) error {
	return s.mutate(ctx, orgID, func(org *domain.Organization, revision uint64) error {
		if err := org.Delete(); err != nil {
			return err
		}
		return s.repo.Deleted(ctx, org, revision)
	})
}

func (s *Service) AddRole(ctx context.Context, req domain.AddRoleRequest) (domain.Role, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Role{}, domain.ErrInvalidRole
	}
	role := domain.Role{
		RoleID:      uuid.NewString(),
		Name:        name,
		Permissions: req.Permissions,
	}
	err := s.mutate(ctx, req.OrgID, func(org *domain.Organization, revision uint64) error {
		if err := org.AddRole(role); err != nil {
			return err
		}
		return s.repo.RoleAdded(ctx, org, role, revision)
	})
	if err != nil {
		return domain.Role{}, err
	}
	return role, nil
}

func (s *Service) RemoveRole(ctx context.Context, orgID, roleID string) error {
	return s.mutate(ctx, orgID, func(org *domain.Organization, revision uint64) error {
		if err := org.RemoveRole(roleID); err != nil {
			return err
		}
		return s.repo.RoleRemoved(ctx, org, roleID, revision)
	})
}

func (s *Service) AddUser(ctx context.Context, req domain.AddUserRequest) error {
	return s.mutate(ctx, req.OrgID, func(org *domain.Organization, revision uint64) error {
		if err := org.AddUser(req.UserID, req.Roles); err != nil {
			return err
		}
		return s.repo.UserAdded(ctx, org, req.UserID, req.Roles, revision)
	})
}

func (s *Service) RemoveUser(ctx context.Context, orgID, userID string) error {
	return s.mutate(ctx, orgID, func(org *domain.Organization, revision uint64) error {
		if err := org.RemoveUser(userID); err != nil {
			return err
		}
		return s.repo.UserRemoved(ctx, org, userID, revision)
	})
}

func (s *Service) AssignRoles(ctx context.Context, req domain.UserRolesRequest) error {
	return s.mutate(ctx, req.OrgID, func(org *domain.Organization, revision uint64) error {
		if err := org.AssignRoles(req.UserID, req.Roles); err != nil {
			return err
		}
		return s.repo.RolesAssigned(ctx, org, req.UserID, req.Roles, revision)
	})
}

func (s *Service) RemoveRoles(ctx context.Context, req domain.UserRolesRequest) error {
	return s.mutate(ctx, req.OrgID, func(org *domain.Organization, revision uint64) error {
		if err := org.RemoveRoles(req.UserID, req.Roles); err != nil {
			return err
		}
		return s.repo.RolesRemoved(ctx, org, req.UserID, req.Roles, revision)
	})
}

// mutate runs one read-modify-append cycle. A ConcurrencyConflict means the
// expectation went stale, so the aggregate is reread and the mutation replayed
// against fresh state; this also covers the timeout-outcome-unknown case,
// since the reread re-derives the expected revision instead of assuming the
// previous append did not land.
func (s *Service) mutate(ctx context.Context, orgID string, fn func(org *domain.Organization, revision uint64) error) error {
	var err error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		var org *domain.Organization
		var revision uint64
		org, revision, err = s.getOrganization(ctx, orgID)
		if err != nil {
			return err
		}
		err = fn(org, revision)
		if !errors.Is(err, esdomain.ErrConcurrencyConflict) {
			return err
		}
		metrics.Pipeline().IncAppendConflict()
		s.log.Debug("append lost optimistic race, rereading",
			zap.String("org_id", orgID),
			zap.Int("attempt", attempt+1),
		)
	}
	return err
}

func (s *Service) getOrganization(ctx context.Context, orgID string) (*domain.Organization, uint64, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, 0, domain.ErrOrganizationNotFound
	}
	org, revision, err := s.repo.Get(ctx, orgID)
	if errors.Is(err, esdomain.ErrStreamNotFound) {
		return nil, 0, domain.ErrOrganizationNotFound
	}
	return org, revision, err
}
