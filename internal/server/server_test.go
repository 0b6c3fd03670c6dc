package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/orgstream/orgstream/internal/clock"
	"github.com/orgstream/orgstream/internal/config"
	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
	esrepository "github.com/orgstream/orgstream/internal/eventstore/repository"
	orgdomain "github.com/orgstream/orgstream/internal/organization/domain"
	orgrepository "github.com/orgstream/orgstream/internal/organization/repository"
	orgservice "github.com/orgstream/orgstream/internal/organization/service"
	rmdomain "github.com/orgstream/orgstream/internal/readmodel/domain"
	rmrepository "github.com/orgstream/orgstream/internal/readmodel/repository"
)

func newTestServer(t *testing.T) (*gin.Engine, esdomain.Store, rmdomain.Repository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&esdomain.Event{}, &rmdomain.OrganizationDoc{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	events := esrepository.NewStore(db, node, clock.NewSystemClock())
	docs := rmrepository.NewRepository(db, clock.NewSystemClock())
	svc := orgservice.New(orgservice.Params{
		Log:  zap.NewNop(),
		Repo: orgrepository.NewRepository(events),
	})

	engine := NewEngine(zap.NewNop())
	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{},
		OrganizationSvc: svc,
		Docs:            docs,
	})
	return engine, events, docs
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func createOrg(t *testing.T, engine *gin.Engine, name string) orgdomain.Snapshot {
	t.Helper()
	rec := doJSON(t, engine, http.MethodPost, "/v1/organizations", gin.H{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code)

	var snap orgdomain.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap
}

func TestCreateOrganizationEndpoint(t *testing.T) {
	engine, events, _ := newTestServer(t)

	snap := createOrg(t, engine, "Risto")
	assert.NotEmpty(t, snap.OrgID)
	assert.Equal(t, "Risto", snap.Name)

	stream, err := events.ListStream(t.Context(), snap.OrgID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, stream, 1)
}

func TestCreateOrganization_Invalid(t *testing.T) {
	engine, _, _ := newTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/v1/organizations", gin.H{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/organizations", bytes.NewBufferString("{"))
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoleAndUserEndpoints(t *testing.T) {
	engine, _, _ := newTestServer(t)
	snap := createOrg(t, engine, "Risto")

	rec := doJSON(t, engine, http.MethodPost, "/v1/organizations/"+snap.OrgID+"/roles", gin.H{
		"name": "waiter",
		"permissions": []gin.H{
			{"service": "orders", "action": "write"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var role orgdomain.Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))
	assert.NotEmpty(t, role.RoleID)

	rec = doJSON(t, engine, http.MethodPost, "/v1/organizations/"+snap.OrgID+"/users", gin.H{
		"user_id": "u1",
		"roles":   []string{role.RoleID},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/v1/organizations/"+snap.OrgID+"/aggregate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var current orgdomain.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	assert.Equal(t, map[string][]string{"u1": {role.RoleID}}, current.Users)

	// duplicate user
	rec = doJSON(t, engine, http.MethodPost, "/v1/organizations/"+snap.OrgID+"/users", gin.H{"user_id": "u1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// unknown role
	rec = doJSON(t, engine, http.MethodPost, "/v1/organizations/"+snap.OrgID+"/users/u1/roles", gin.H{
		"roles": []string{"missing"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteOrganizationEndpoint(t *testing.T) {
	engine, _, _ := newTestServer(t)
	snap := createOrg(t, engine, "Risto")

	rec := doJSON(t, engine, http.MethodDelete, "/v1/organizations/"+snap.OrgID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// a deleted organization rejects mutations with 410
	rec = doJSON(t, engine, http.MethodPost, "/v1/organizations/"+snap.OrgID+"/roles", gin.H{"name": "waiter"})
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestGetOrganization_NotFound(t *testing.T) {
	engine, _, _ := newTestServer(t)

	rec := doJSON(t, engine, http.MethodGet, "/v1/organizations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/v1/organizations/missing/aggregate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrganizations_FromReadModel(t *testing.T) {
	engine, events, docs := newTestServer(t)
	snap := createOrg(t, engine, "Risto")

	// documents appear only after the denormalizer applies the event
	rec := doJSON(t, engine, http.MethodGet, "/v1/organizations/"+snap.OrgID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	stream, err := events.ListStream(t.Context(), snap.OrgID, 0, 0)
	require.NoError(t, err)
	require.Len(t, stream, 1)
	require.NoError(t, docs.Apply(t.Context(), stream[0]))

	rec = doJSON(t, engine, http.MethodGet, "/v1/organizations/"+snap.OrgID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/v1/organizations?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Data []rmdomain.OrganizationDoc `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Data, 1)
	assert.Equal(t, "risto", listResp.Data[0].Slug)
}

func TestMapError_StoreOutageIs503(t *testing.T) {
	err := fmt.Errorf("%w: connection refused", esdomain.ErrStoreUnavailable)

	status, payload := mapError(err)

	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "service_unavailable", payload.Type)
}
