package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajagana/pcvgate/internal/cache"
	"github.com/sajagana/pcvgate/internal/nd"
	"github.com/sajagana/pcvgate/internal/store"
	"github.com/sajagana/pcvgate/pkg/models"
)

// --- mock store ---

type testStore struct {
	pingErr error
}

func (s *testStore) Ping(_ context.Context) error { return s.pingErr }
func (s *testStore) GetDefaultTenant(_ context.Context) (*models.Tenant, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *testStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *testStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *testStore) ListAPIKeys(_ context.Context, _ uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *testStore) RevokeAPIKey(_ context.Context, _ uuid.UUID, _ uuid.UUID) error { return nil }
func (s *testStore) CreateRun(_ context.Context, _ *models.Run) error               { return nil }
func (s *testStore) ListRuns(_ context.Context, _ store.RunFilter) ([]*models.Run, error) {
	return nil, nil
}

var _ store.Store = (*testStore)(nil)

// --- mock cache ---

type testCache struct {
	pingErr error
}

func (c *testCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *testCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *testCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *testCache) Ping(_ context.Context) error                                     { return c.pingErr }
func (c *testCache) SetEpoch(_ context.Context, _, _ string, _ *models.Epoch, _ time.Duration) error {
	return nil
}
func (c *testCache) GetEpoch(_ context.Context, _, _ string) (*models.Epoch, bool, error) {
	return nil, false, nil
}
func (c *testCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*testCache)(nil)

// --- mock insights client ---

type testInsights struct {
	pingErr error
}

func (i *testInsights) ListPCVs(_ context.Context, _ string) ([]*models.PCVJob, error) {
	return nil, nil
}
func (i *testInsights) GetPCV(_ context.Context, _, _, _ string) (*models.PCVJob, error) {
	return nil, nd.ErrNotFound
}
func (i *testInsights) SubmitFileChanges(_ context.Context, _, _ string, _ *models.SubmissionPayload, _ string) (*models.PCVJob, error) {
	return nil, nil
}
func (i *testInsights) SubmitManualChanges(_ context.Context, _, _ string, _ *models.SubmissionPayload) (*models.PCVJob, error) {
	return nil, nil
}
func (i *testInsights) DeletePCVs(_ context.Context, _ string, _ []string) error { return nil }
func (i *testInsights) GetLastEpoch(_ context.Context, _, _ string) (*models.Epoch, error) {
	return nil, nd.ErrNoEpoch
}
func (i *testInsights) Ping(_ context.Context) error { return i.pingErr }

var _ nd.Client = (*testInsights)(nil)

// --- health handler tests ---

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{}, &testInsights{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
	assert.Equal(t, "ok", services["insights"])
}

func TestHealthHandler_DatabaseDegraded(t *testing.T) {
	h := healthHandler(&testStore{pingErr: errors.New("connection refused")}, &testCache{}, &testInsights{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{pingErr: errors.New("redis down")}, &testInsights{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// An unreachable Insights service is reported but the probe stays healthy;
// the gateway can still serve reads from its own state.
func TestHealthHandler_InsightsDegraded_StillOK(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{}, &testInsights{pingErr: errors.New("login failed")})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	services := data["services"].(map[string]any)
	assert.Equal(t, "degraded", services["insights"])
}

// --- run() config validation tests ---

func TestRun_FailsOnMissingConfig(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "ND_BASE_URL", "ND_USERNAME", "ND_PASSWORD",
	} {
		t.Setenv(key, "")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("ND_BASE_URL", "https://nd.example.com")
	t.Setenv("ND_USERNAME", "admin")
	t.Setenv("ND_PASSWORD", "secret")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

// --- shutdown timeout constant test ---

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
