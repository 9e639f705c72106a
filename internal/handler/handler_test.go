package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-txn-monitor/internal/db"
	"bank-txn-monitor/internal/mailbox"
	"bank-txn-monitor/internal/metrics"
	"bank-txn-monitor/internal/model"
	"bank-txn-monitor/internal/poller"
	"bank-txn-monitor/internal/repository"
)

type stubMailbox struct {
	mu            sync.Mutex
	authenticated bool
}

func (s *stubMailbox) ListCandidateMessages(context.Context) ([]string, error) { return nil, nil }
func (s *stubMailbox) Close() error                                            { return nil }

func (s *stubMailbox) FetchBody(_ context.Context, id string) (mailbox.Message, error) {
	return mailbox.Message{ID: id}, nil
}

func (s *stubMailbox) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

type stubAuth struct {
	mb          *stubMailbox
	exchangeErr error
}

func (a *stubAuth) AuthURL() (string, error) {
	return "https://accounts.example.com/o/oauth2/auth?access_type=offline", nil
}

func (a *stubAuth) Exchange(ctx context.Context, state, code string) error {
	if state != "issued-state" {
		return mailbox.ErrInvalidState
	}
	if a.exchangeErr != nil {
		return a.exchangeErr
	}
	a.mb.mu.Lock()
	a.mb.authenticated = true
	a.mb.mu.Unlock()
	return nil
}

type testEnv struct {
	router *gin.Engine
	repo   *repository.Repository
	poller *poller.Poller
	mb     *stubMailbox
	auth   *stubAuth
}

func newTestEnv(t *testing.T, withAuth bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Init("sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})

	repo := repository.New(conn)
	m := metrics.NewMetrics()
	mb := &stubMailbox{}
	p := poller.New(mb, nil, repo, m, 30*time.Second)
	t.Cleanup(func() {
		p.Stop()
		p.Wait()
	})

	env := &testEnv{repo: repo, poller: p, mb: mb}
	var h *Handlers
	if withAuth {
		env.auth = &stubAuth{mb: mb}
		h = NewHandlers(repo, p, env.auth, m)
	} else {
		h = NewHandlers(repo, p, nil, m)
	}

	env.router = gin.New()
	h.SetupRoutes(env.router)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seed(t *testing.T, ref, amount string, at time.Time) {
	t.Helper()
	_, err := e.repo.InsertIfAbsent(context.Background(), &model.Transaction{
		Amount:    decimal.RequireFromString(amount),
		Reference: ref,
		Timestamp: at,
	})
	require.NoError(t, err)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

var day = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["database"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "txn_monitor_poll_count")
}

func TestAuthEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodGet, "/api/auth-url", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["authUrl"], "access_type=offline")

	w = env.do(t, http.MethodGet, "/api/auth/callback", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/auth/callback?code=good&state=forged", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_state", decode(t, w)["error"])
	assert.False(t, env.mb.IsAuthenticated())

	env.auth.exchangeErr = errors.New("saving OAuth token: read-only file system")
	w = env.do(t, http.MethodGet, "/api/auth/callback?code=good&state=issued-state", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode(t, w)["message"], "saving OAuth token")

	env.auth.exchangeErr = nil
	w = env.do(t, http.MethodGet, "/api/auth/callback?code=good&state=issued-state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["message"])
	assert.True(t, env.mb.IsAuthenticated())
}

func TestAuthEndpoints_UnsupportedBackend(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/api/auth-url", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = env.do(t, http.MethodGet, "/api/auth/callback?code=x", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMonitorLifecycle(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodPost, "/api/monitor/start", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "authentication_required", body["error"])
	assert.Equal(t, float64(http.StatusInternalServerError), body["code"])

	env.mb.authenticated = true

	w = env.do(t, http.MethodPost, "/api/monitor/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "Monitoring started", body["message"])
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, float64(30), body["interval"])

	w = env.do(t, http.MethodPost, "/api/monitor/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Monitoring already active", decode(t, w)["message"])

	w = env.do(t, http.MethodGet, "/api/monitor/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, true, body["isMonitoring"])
	assert.Equal(t, true, body["isAuthenticated"])
	assert.Equal(t, float64(30), body["pollInterval"])
	for _, key := range []string{"transactionCount", "unclaimedCount", "seenMessagesCount"} {
		assert.Contains(t, body, key)
	}

	w = env.do(t, http.MethodPost, "/api/monitor/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Monitoring stopped", decode(t, w)["message"])

	w = env.do(t, http.MethodPost, "/api/monitor/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Monitoring not active", decode(t, w)["message"])
}

func TestGetTransactions(t *testing.T) {
	env := newTestEnv(t, true)
	env.seed(t, "1", "10.00", day)
	env.seed(t, "2", "20.00", day.Add(time.Hour))
	env.seed(t, "3", "30.00", day.Add(2*time.Hour))

	w := env.do(t, http.MethodGet, "/api/transactions?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Transactions []struct {
			UTR     string `json:"utr"`
			Amount  string `json:"amount"`
			Claimed bool   `json:"claimed"`
		} `json:"transactions"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "3", resp.Transactions[0].UTR)
	assert.Equal(t, "30", resp.Transactions[0].Amount)
	assert.Equal(t, "2", resp.Transactions[1].UTR)

	w = env.do(t, http.MethodGet, "/api/transactions?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/transactions?limit=100000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["count"])
}

func TestGetTransactions_EmptyListIsArray(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodGet, "/api/transactions/unclaimed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"transactions":[],"count":0}`, w.Body.String())
}

func TestClaimTransaction(t *testing.T) {
	env := newTestEnv(t, true)
	env.seed(t, "506912345678", "1500.00", day)

	w := env.do(t, http.MethodPost, "/api/transactions/claim", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/transactions/claim", map[string]string{"utr": "506912345678"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Transaction claimed successfully", body["message"])
	tx := body["transaction"].(map[string]interface{})
	assert.Equal(t, true, tx["claimed"])
	assert.Equal(t, "506912345678", tx["utr"])

	w = env.do(t, http.MethodPost, "/api/transactions/claim", map[string]string{"utr": "506912345678"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/transactions/claim", map[string]string{"utr": "unknown"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/transactions/unclaimed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["count"])
}

func TestGetLatestTransaction(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodGet, "/api/transactions/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", w.Body.String())

	env.seed(t, "a", "1.00", day)
	env.seed(t, "b", "2.00", day.Add(time.Minute))

	w = env.do(t, http.MethodGet, "/api/transactions/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b", decode(t, w)["utr"])
}

func TestGetTransactionStats(t *testing.T) {
	env := newTestEnv(t, true)
	env.seed(t, "r1", "100.00", day)
	env.seed(t, "r2", "200.00", day.AddDate(0, 0, 1))
	env.seed(t, "r3", "300.00", day.AddDate(0, 0, 2))
	_, err := env.repo.Claim(context.Background(), "r1")
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/transactions/stats?claimedOnly=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":"100","count":1}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/transactions/stats?startDate=2025-03-11&endDate=2025-03-12", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":"500","count":2}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/transactions/stats?startDate=2025-03-11T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":"500","count":2}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/transactions/stats?startDate=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/transactions/stats?claimedOnly=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearTransactions(t *testing.T) {
	env := newTestEnv(t, true)
	env.seed(t, "x", "1.00", day)
	env.seed(t, "y", "2.00", day)

	w := env.do(t, http.MethodDelete, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["deletedCount"])

	n, err := env.repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, env.poller.SeenCount())
}

func TestParseDate(t *testing.T) {
	start, err := parseDate("2025-03-10", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), start)

	end, err := parseDate("2025-03-10", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 23, 59, 59, 999999999, time.UTC), end)

	exact, err := parseDate("2025-03-10T08:30:00+05:30", true)
	require.NoError(t, err)
	assert.True(t, exact.Equal(time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)))

	_, err = parseDate("10/03/2025", false)
	assert.Error(t, err)
}
