package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptivesql/pooltuner/api"
	"github.com/adaptivesql/pooltuner/internal/auth"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

type fakePoolService struct {
	scaleCalls [][2]int
	scaleErr   error
}

func (f *fakePoolService) Stats() models.PoolStats {
	return models.PoolStats{Size: 10, MaxSize: 30, CheckedOut: 3, Utilization: 0.3}
}

func (f *fakePoolService) ScalingHistory() []models.ScalingEvent { return nil }

func (f *fakePoolService) Scale(targetSize, targetOverflow int, reason string) error {
	if f.scaleErr != nil {
		return f.scaleErr
	}
	f.scaleCalls = append(f.scaleCalls, [2]int{targetSize, targetOverflow})
	return nil
}

func (f *fakePoolService) RefreshEngine(reason string) error { return nil }

type fakeLifecycle struct{}

func (fakeLifecycle) Connections() []models.ConnectionMetadata { return nil }
func (fakeLifecycle) TotalRecycled() int64                     { return 0 }
func (fakeLifecycle) Strategy() string                         { return "best_performance" }

type fakeWorkload struct{}

func (fakeWorkload) Report() models.WorkloadReport {
	return models.WorkloadReport{Pattern: models.WorkloadModerate}
}

type fakeHealthService struct {
	status models.HealthStatus
}

func (f *fakeHealthService) Report() models.SSLHealthReport {
	return models.SSLHealthReport{Status: f.status}
}

func (f *fakeHealthService) Status() models.HealthStatus { return f.status }

type fakeRemediations struct{}

func (fakeRemediations) History() []models.RemediationResult { return nil }

type fakeMetrics struct{}

func (fakeMetrics) Current() map[models.MetricKind]float64 { return nil }
func (fakeMetrics) Kinds() []models.MetricKind             { return nil }
func (fakeMetrics) Aggregates(models.MetricKind, int) []models.AggregatedMetrics {
	return nil
}
func (fakeMetrics) Trend(models.MetricKind) (models.TrendResult, bool) {
	return models.TrendResult{}, false
}
func (fakeMetrics) Report(workload models.WorkloadReport) models.AnalyticsReport {
	return models.AnalyticsReport{Workload: workload}
}

type fakeAlerts struct{}

func (fakeAlerts) Status() models.AlertingStatus  { return models.AlertingStatus{} }
func (fakeAlerts) Rules() []models.AlertRule      { return nil }
func (fakeAlerts) AddRule(models.AlertRule) error { return nil }
func (fakeAlerts) RemoveRule(string) bool         { return true }
func (fakeAlerts) Acknowledge(string) bool        { return false }
func (fakeAlerts) Resolve(string) bool            { return false }

type fakeEvents struct{}

func (fakeEvents) Recent(int) []*models.Event { return nil }

type serverFixture struct {
	server *api.Server
	pool   *fakePoolService
	health *fakeHealthService
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)

	cfg := config.APIConfig{
		Enabled:      true,
		Port:         0,
		RateLimit:    1000,
		JWTSecret:    "test-secret",
		JWTDuration:  time.Hour,
		OperatorUser: "operator",
		OperatorHash: hash,
	}
	wsCfg := config.WebSocketConfig{
		MaxConnections:  10,
		PingInterval:    30 * time.Second,
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		MaxMessageSize:  4096,
		BroadcastBuffer: 16,
		ClientBuffer:    8,
	}

	f := &serverFixture{
		pool:   &fakePoolService{},
		health: &fakeHealthService{status: models.HealthGood},
	}
	f.server = api.NewServer(cfg, wsCfg, "test", api.Services{
		Pool:         f.pool,
		PoolLimits:   config.PoolConfig{MaxPoolSize: 30, MaxOverflow: 15},
		Lifecycle:    fakeLifecycle{},
		Workload:     fakeWorkload{},
		Health:       f.health,
		Remediations: fakeRemediations{},
		Metrics:      fakeMetrics{},
		Alerts:       fakeAlerts{},
		Events:       fakeEvents{},
	})
	return f
}

func (f *serverFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) login(t *testing.T) string {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "operator",
		"password": "hunter2",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestServer_PublicProbes(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "good")

	rec = f.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CriticalHealthFlipsProbes(t *testing.T) {
	f := newServerFixture(t)
	f.health.status = models.HealthCritical

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "liveness ignores transport health")
}

func TestServer_Login(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "operator",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "intruder",
		"password": "hunter2",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "operator"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.login(t)
}

func TestServer_ProtectedRoutesRequireToken(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/pool/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/pool/stats", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := f.login(t)
	rec = f.do(t, http.MethodGet, "/pool/stats", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats models.PoolStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 10, stats.Size)
}

func TestServer_ManualScale(t *testing.T) {
	f := newServerFixture(t)
	token := f.login(t)

	rec := f.do(t, http.MethodPost, "/pool/scale", token, map[string]any{
		"target_size":     15,
		"target_overflow": 5,
		"reason":          "load test",
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, [][2]int{{15, 5}}, f.pool.scaleCalls)

	rec = f.do(t, http.MethodPost, "/pool/scale", token, map[string]any{
		"target_size": 100,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "exceeds maximum")
}
