package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajagana/pcvgate/pkg/models"
)

func serveRuns(h *RunsHandler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.List(rec, r)
	return rec
}

func TestRunsList_Success(t *testing.T) {
	tenantID := uuid.New()
	fs := &fakeStore{runs: []*models.Run{
		{ID: uuid.New(), TenantID: tenantID, Operation: "create", JobName: "add-bd"},
		{ID: uuid.New(), TenantID: tenantID, Operation: "delete", JobName: "add-bd"},
	}}
	h := NewRunsHandler(fs)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := serveRuns(h, withTenant(req, tenantID))

	require.Equal(t, http.StatusOK, rec.Code)
	var runs []*models.Run
	decodeData(t, rec, &runs)
	assert.Len(t, runs, 2)
}

func TestRunsList_Empty(t *testing.T) {
	h := NewRunsHandler(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := serveRuns(h, withTenant(req, uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)
	var runs []*models.Run
	decodeData(t, rec, &runs)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestRunsList_InvalidLimit(t *testing.T) {
	h := NewRunsHandler(&fakeStore{})

	for _, limit := range []string{"abc", "0", "-5"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit="+limit, nil)
		rec := serveRuns(h, withTenant(req, uuid.New()))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestRunsList_NoTenantContext(t *testing.T) {
	h := NewRunsHandler(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := serveRuns(h, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRunsList_StoreFailure(t *testing.T) {
	h := NewRunsHandler(&fakeStore{listRunsErr: fmt.Errorf("connection lost")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := serveRuns(h, withTenant(req, uuid.New()))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
