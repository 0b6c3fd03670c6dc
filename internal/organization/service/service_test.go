package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/orgstream/orgstream/internal/clock"
	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
	esrepository "github.com/orgstream/orgstream/internal/eventstore/repository"
	"github.com/orgstream/orgstream/internal/organization/domain"
	orgrepository "github.com/orgstream/orgstream/internal/organization/repository"
)

func newTestService(t *testing.T) (domain.Service, esdomain.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&esdomain.Event{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	events := esrepository.NewStore(db, node, clock.NewSystemClock())
	svc := New(Params{
		Log:  zap.NewNop(),
		Repo: orgrepository.NewRepository(events),
	})
	return svc, events
}

func TestCreate(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()

	snap, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Risto"})
	require.NoError(t, err)
	assert.NotEmpty(t, snap.OrgID)
	assert.Equal(t, "Risto", snap.Name)
	assert.Equal(t, domain.StatusActive, snap.Status)

	stream, err := events.ListStream(ctx, snap.OrgID, 0, 0)
	require.NoError(t, err)
	require.Len(t, stream, 1)
	assert.Equal(t, esdomain.TypeOrganizationCreated, stream[0].Type)
	assert.Equal(t, uint64(1), stream[0].Revision)
}

func TestCreate_InvalidName(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestGet_ReplaysHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Risto"})
	require.NoError(t, err)

	role, err := svc.AddRole(ctx, domain.AddRoleRequest{OrgID: created.OrgID, Name: "waiter"})
	require.NoError(t, err)
	require.NoError(t, svc.AddUser(ctx, domain.AddUserRequest{
		OrgID:  created.OrgID,
		UserID: "u1",
		Roles:  []string{role.RoleID},
	}))

	snap, err := svc.Get(ctx, created.OrgID)
	require.NoError(t, err)
	assert.Equal(t, "Risto", snap.Name)
	require.Len(t, snap.Roles, 1)
	assert.Equal(t, "waiter", snap.Roles[0].Name)
	assert.Equal(t, map[string][]string{"u1": {role.RoleID}}, snap.Users)
}

func TestGet_Missing(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)

	_, err = svc.Get(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)
}

func TestMutations_AppendOrderedRevisions(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Risto"})
	require.NoError(t, err)

	waiter, err := svc.AddRole(ctx, domain.AddRoleRequest{OrgID: created.OrgID, Name: "waiter"})
	require.NoError(t, err)
	chef, err := svc.AddRole(ctx, domain.AddRoleRequest{OrgID: created.OrgID, Name: "chef"})
	require.NoError(t, err)
	require.NoError(t, svc.AddUser(ctx, domain.AddUserRequest{OrgID: created.OrgID, UserID: "u1", Roles: []string{waiter.RoleID}}))
	require.NoError(t, svc.AssignRoles(ctx, domain.UserRolesRequest{OrgID: created.OrgID, UserID: "u1", Roles: []string{chef.RoleID}}))
	require.NoError(t, svc.RemoveRoles(ctx, domain.UserRolesRequest{OrgID: created.OrgID, UserID: "u1", Roles: []string{waiter.RoleID}}))
	require.NoError(t, svc.RemoveUser(ctx, created.OrgID, "u1"))
	require.NoError(t, svc.RemoveRole(ctx, created.OrgID, waiter.RoleID))

	stream, err := events.ListStream(ctx, created.OrgID, 0, 0)
	require.NoError(t, err)
	require.Len(t, stream, 8)
	for i, evt := range stream {
		assert.Equal(t, uint64(i+1), evt.Revision)
	}

	snap, err := svc.Get(ctx, created.OrgID)
	require.NoError(t, err)
	require.Len(t, snap.Roles, 1)
	assert.Equal(t, chef.RoleID, snap.Roles[0].RoleID)
	assert.Empty(t, snap.Users)
}

func TestDelete_ThenMutationFails(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Risto"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.OrgID))

	snap, err := svc.Get(ctx, created.OrgID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeleted, snap.Status)

	_, err = svc.AddRole(ctx, domain.AddRoleRequest{OrgID: created.OrgID, Name: "waiter"})
	assert.ErrorIs(t, err, domain.ErrOrganizationDeleted)
	assert.ErrorIs(t, svc.Delete(ctx, created.OrgID), domain.ErrOrganizationDeleted)
}

func TestMutate_RetriesLostRace(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Risto"})
	require.NoError(t, err)

	// another writer moves the tail between our read and append
	raced := &racingRepo{
		Repository: orgrepository.NewRepository(events),
		events:     events,
		streamID:   created.OrgID,
	}
	racedSvc := New(Params{Log: zap.NewNop(), Repo: raced})

	conflictsBefore := appendConflictTotal(t)
	_, err = racedSvc.AddRole(ctx, domain.AddRoleRequest{OrgID: created.OrgID, Name: "waiter"})
	require.NoError(t, err)
	assert.Equal(t, 1, raced.injected)
	assert.Equal(t, conflictsBefore+1, appendConflictTotal(t))

	stream, err := events.ListStream(ctx, created.OrgID, 0, 0)
	require.NoError(t, err)
	require.Len(t, stream, 3)
	assert.Equal(t, esdomain.TypeRoleAdded, stream[2].Type)
}

// appendConflictTotal reads the exported conflict counter, summed across
// label sets.
func appendConflictTotal(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "orgstream_append_conflicts_total" {
			continue
		}
		total := 0.0
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

// racingRepo injects a competing append before the first RoleAdded attempt.
type racingRepo struct {
	domain.Repository
	events   esdomain.Store
	streamID string
	injected int
}

func (r *racingRepo) RoleAdded(ctx context.Context, org *domain.Organization, role domain.Role, expectedRevision uint64) error {
	if r.injected == 0 {
		r.injected++
		err := r.events.Append(ctx, &esdomain.Event{
			StreamID: r.streamID,
			Revision: expectedRevision + 1,
			Type:     esdomain.TypeUserAdded,
			Payload:  []byte(`{"org_id":"` + r.streamID + `","user_id":"intruder"}`),
		})
		if err != nil {
			return err
		}
	}
	return r.Repository.RoleAdded(ctx, org, role, expectedRevision)
}

func TestRepositoryGet_MissingStream(t *testing.T) {
	_, events := newTestService(t)
	repo := orgrepository.NewRepository(events)

	_, _, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, esdomain.ErrStreamNotFound)
}
