package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/telehealth-scheduling/internal/appointments"
	"github.com/wolfman30/telehealth-scheduling/internal/audit"
	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

type noopBackend struct{}

func (noopBackend) Name() scheduling.Variant { return scheduling.VariantNative }

func (noopBackend) CreateBooking(ctx context.Context, req scheduling.BookingRequest) (*scheduling.RemoteBooking, error) {
	return &scheduling.RemoteBooking{RemoteID: "NAT-test"}, nil
}

func (noopBackend) CancelBooking(ctx context.Context, remoteID, reason string) error { return nil }

func (noopBackend) QuerySchedule(ctx context.Context, remotePatientID string, from, to time.Time) ([]scheduling.RemoteAppointment, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)

	logger := logging.Default()
	orch := appointments.NewOrchestrator(appointments.OrchestratorDeps{
		DB:         mock,
		Repo:       appointments.NewRepository(mock),
		Registry:   scheduling.NewRegistry(noopBackend{}),
		AuditStore: audit.NewStore(mock),
	})

	registry := prometheus.NewRegistry()
	cfg := &Config{
		Logger:              logger,
		AppointmentsHandler: appointments.NewHandler(orch, logger),
		WebhookHandler:      appointments.NewWebhookHandler(orch, "webhook-secret", logger),
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		StaffAuthSecret:     "staff-secret",
	}
	return New(cfg)
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterWebhookRejectsUnsignedPayload(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/scheduling", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected %d for unsigned webhook, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterStaffRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/staff/appointments/123/attendance", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected %d without staff token, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterAppointmentsRejectsBadJSON(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/appointments/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected %d for empty body, got %d", http.StatusBadRequest, rr.Code)
	}
}
