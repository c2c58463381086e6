package availability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
)

func newTestHandler(t *testing.T, source SlotSource) *Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewHandler(NewCache(rdb, source, time.Minute, nil), nil)
}

func TestOpenSlotsEndpoint(t *testing.T) {
	providerID := uuid.New()
	start := time.Now().Add(24 * time.Hour).Truncate(time.Minute)
	source := &stubSource{slots: []scheduling.Slot{
		{ProviderID: providerID, Start: start, End: start.Add(30 * time.Minute), Timezone: "America/New_York"},
		{ProviderID: providerID, Start: start.Add(30 * time.Minute), End: start.Add(time.Hour), Timezone: "America/New_York"},
		{ProviderID: providerID, Start: start.Add(time.Hour), End: start.Add(90 * time.Minute), Timezone: "America/New_York"},
	}}
	h := newTestHandler(t, source)

	req := httptest.NewRequest(http.MethodGet, "/"+providerID.String()+"/slots", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Slots []slotResponse `json:"slots"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Slots) != 3 {
		t.Fatalf("expected 3 slots, got %+v", resp.Slots)
	}
}

func TestOpenSlotsRejectsBadProviderID(t *testing.T) {
	h := newTestHandler(t, &stubSource{})

	req := httptest.NewRequest(http.MethodGet, "/not-a-uuid/slots", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestOpenSlotsRejectsInvertedWindow(t *testing.T) {
	h := newTestHandler(t, &stubSource{})
	providerID := uuid.New()

	from := time.Now().Add(48 * time.Hour).Format(time.RFC3339)
	to := time.Now().Add(24 * time.Hour).Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodGet, "/"+providerID.String()+"/slots?from="+from+"&to="+to, nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
