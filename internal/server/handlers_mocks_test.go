package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/pittpv/mon-far-app/internal/domain"
	"github.com/pittpv/mon-far-app/internal/platform/config"
)

// --- Mock implementations ---

type mockCooldownService struct {
	recordVoteFn         func(ctx context.Context, event domain.VoteEvent) error
	saveSubscriptionFn   func(ctx context.Context, fid int64, token, url string) error
	removeSubscriptionFn func(ctx context.Context, fid int64) error

	mu       sync.Mutex
	votes    []domain.VoteEvent
	saves    []savedSubscription
	removals []int64
}

type savedSubscription struct {
	fid   int64
	token string
	url   string
}

func (m *mockCooldownService) RecordVote(ctx context.Context, event domain.VoteEvent) error {
	m.mu.Lock()
	m.votes = append(m.votes, event)
	m.mu.Unlock()
	if m.recordVoteFn != nil {
		return m.recordVoteFn(ctx, event)
	}
	return nil
}

func (m *mockCooldownService) SaveSubscription(ctx context.Context, fid int64, token, url string) error {
	m.mu.Lock()
	m.saves = append(m.saves, savedSubscription{fid: fid, token: token, url: url})
	m.mu.Unlock()
	if m.saveSubscriptionFn != nil {
		return m.saveSubscriptionFn(ctx, fid, token, url)
	}
	return nil
}

func (m *mockCooldownService) RemoveSubscription(ctx context.Context, fid int64) error {
	m.mu.Lock()
	m.removals = append(m.removals, fid)
	m.mu.Unlock()
	if m.removeSubscriptionFn != nil {
		return m.removeSubscriptionFn(ctx, fid)
	}
	return nil
}

func (m *mockCooldownService) recordedVotes() []domain.VoteEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.VoteEvent(nil), m.votes...)
}

func (m *mockCooldownService) savedSubscriptions() []savedSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]savedSubscription(nil), m.saves...)
}

func (m *mockCooldownService) removedFIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.removals...)
}

type mockReconcileService struct {
	restoreFn func(ctx context.Context) (domain.RestoreSummary, error)
}

func (m *mockReconcileService) RestoreAll(ctx context.Context) (domain.RestoreSummary, error) {
	if m.restoreFn != nil {
		return m.restoreFn(ctx)
	}
	return domain.RestoreSummary{}, errors.New("not implemented")
}

// --- Test helpers ---

// testServerEpoch pins the fake clock to a plausible wall time so
// timestamp sanity checks behave like production.
var testServerEpoch = time.Unix(1700000000, 0)

func newTestServer(t *testing.T, cooldowns domain.CooldownService, opts ...func(*Server)) *Server {
	t.Helper()

	srv := &Server{
		echo:       echo.New(),
		config:     &config.Config{Port: "8080"},
		clock:      clockwork.NewFakeClockAt(testServerEpoch),
		cooldowns:  cooldowns,
		reconciler: &mockReconcileService{},
		startTime:  time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	// Register routes so endpoints are available for testing
	srv.registerRoutes()

	return srv
}

func withReconciler(r domain.ReconcileService) func(*Server) {
	return func(s *Server) {
		s.reconciler = r
	}
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

// postJSON drives a request through the full middleware chain.
func postJSON(srv *Server, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}
