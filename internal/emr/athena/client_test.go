package athena

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wolfman30/telehealth-scheduling/internal/emr"
	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
)

// newTestServer serves a token endpoint plus the given FHIR handler.
func newTestServer(t *testing.T, fhir http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if user, _, ok := r.BasicAuth(); !ok || user != "client-1" {
			t.Fatalf("token request missing client credentials")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-abc", "expires_in": 3600})
	})
	mux.HandleFunc("/fhir/r4/195900/", fhir)
	return httptest.NewServer(mux)
}

func newTestClient(ts *httptest.Server) *Client {
	return NewClient(Config{
		BaseURL:      ts.URL,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		PracticeID:   "195900",
	}, nil)
}

func TestCreateAppointment(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-abc" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		var appt FHIRAppointment
		if err := json.NewDecoder(r.Body).Decode(&appt); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if appt.Status != "booked" {
			t.Fatalf("unexpected status: %s", appt.Status)
		}
		appt.ID = "appt-5150"
		_ = json.NewEncoder(w).Encode(appt)
	})
	defer ts.Close()

	appt, err := newTestClient(ts).CreateAppointment(context.Background(), emr.AppointmentRequest{
		PatientID:   "a-1959.E-4521",
		ProviderID:  "a-1959.PR-77",
		VisitTypeID: "562",
		StartTime:   time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}
	if appt.ID != "appt-5150" {
		t.Fatalf("unexpected id: %s", appt.ID)
	}
	if appt.PatientID != "a-1959.E-4521" || appt.ProviderID != "a-1959.PR-77" {
		t.Fatalf("participants not round-tripped: %+v", appt)
	}
}

func TestCancelAppointmentUpdatesStatus(t *testing.T) {
	var updated FHIRAppointment
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(FHIRAppointment{
				ResourceType: "Appointment", ID: "appt-1", Status: "booked",
				Start: "2026-03-01T15:00:00Z", End: "2026-03-01T15:30:00Z",
			})
		case http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
				t.Fatalf("decode update: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		}
	})
	defer ts.Close()

	if err := newTestClient(ts).CancelAppointment(context.Background(), "appt-1", "patient request"); err != nil {
		t.Fatalf("CancelAppointment error: %v", err)
	}
	if updated.Status != "cancelled" || updated.Comment != "patient request" {
		t.Fatalf("unexpected update payload: %+v", updated)
	}
}

func TestCancelAlreadyCancelledIsNoop(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			t.Fatalf("no update expected for already cancelled appointment")
		}
		_ = json.NewEncoder(w).Encode(FHIRAppointment{ID: "appt-1", Status: "cancelled", Start: "2026-03-01T15:00:00Z"})
	})
	defer ts.Close()

	if err := newTestClient(ts).CancelAppointment(context.Background(), "appt-1", ""); err != nil {
		t.Fatalf("CancelAppointment error: %v", err)
	}
}

func TestListPatientAppointments(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("patient"); got != "a-1959.E-4521" {
			t.Fatalf("unexpected patient filter: %s", got)
		}
		_ = json.NewEncoder(w).Encode(FHIRBundle{
			ResourceType: "Bundle", Type: "searchset", Total: 2,
			Entry: []FHIREntry{
				{Resource: FHIRAppointment{ID: "appt-1", Status: "booked",
					Start: "2026-03-02T09:00:00Z", End: "2026-03-02T09:30:00Z",
					ServiceType: []FHIRConcept{{Coding: []FHIRCoding{{Code: "562"}}}},
					Participant: []FHIRParticipant{
						{Actor: FHIRReference{Reference: "Patient/a-1959.E-4521"}},
						{Actor: FHIRReference{Reference: "Practitioner/a-1959.PR-77"}},
					}}},
				{Resource: FHIRAppointment{ID: "appt-2", Status: "booked", Start: "not-a-time"}},
			},
		})
	})
	defer ts.Close()

	appts, err := newTestClient(ts).ListPatientAppointments(context.Background(), "a-1959.E-4521",
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ListPatientAppointments error: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("expected unparseable entry skipped, got %d appts", len(appts))
	}
	if appts[0].ProviderID != "a-1959.PR-77" || appts[0].VisitTypeID != "562" {
		t.Fatalf("unexpected appointment: %+v", appts[0])
	}
}

func TestAdapterMapsConflictToUnavailable(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(FHIROperationOutcome{
			ResourceType: "OperationOutcome",
			Issue: []struct {
				Severity    string `json:"severity"`
				Code        string `json:"code"`
				Diagnostics string `json:"diagnostics"`
			}{{Severity: "error", Code: "conflict", Diagnostics: "slot already booked"}},
		})
	})
	defer ts.Close()

	adapter := NewAdapter(newTestClient(ts), nil)
	_, err := adapter.CreateBooking(context.Background(), scheduling.BookingRequest{
		Slot:     scheduling.Slot{ProviderRemoteID: "a-1959.PR-77", Start: time.Now()},
		Attendee: scheduling.Attendee{RemotePatientID: "a-1959.E-4521"},
	})
	if !errors.Is(err, scheduling.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestAdapterRejectsUnregisteredPatient(t *testing.T) {
	adapter := NewAdapter(newTestClient(httptest.NewServer(http.NotFoundHandler())), nil)
	_, err := adapter.CreateBooking(context.Background(), scheduling.BookingRequest{
		Slot: scheduling.Slot{ProviderRemoteID: "a-1959.PR-77"},
	})
	if !scheduling.IsPermanent(err) {
		t.Fatalf("expected permanent error for missing patient id, got %v", err)
	}
}

func TestAdapterCancelGoneBookingSucceeds(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer ts.Close()

	adapter := NewAdapter(newTestClient(ts), nil)
	if err := adapter.CancelBooking(context.Background(), "appt-gone", "cleanup"); err != nil {
		t.Fatalf("cancel of missing booking must succeed, got %v", err)
	}
}

func TestAdapterQueryScheduleMapsFields(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(FHIRBundle{Entry: []FHIREntry{
			{Resource: FHIRAppointment{ID: "appt-9", Status: "booked",
				Start: "2026-03-05T14:00:00Z", End: "2026-03-05T14:30:00Z",
				Participant: []FHIRParticipant{{Actor: FHIRReference{Reference: "Practitioner/pr-1"}}}}},
			{Resource: FHIRAppointment{ID: "appt-10", Status: "cancelled", Start: "2026-03-06T14:00:00Z"}},
		}})
	})
	defer ts.Close()

	adapter := NewAdapter(newTestClient(ts), nil)
	appts, err := adapter.QuerySchedule(context.Background(), "a-1959.E-4521",
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	if err != nil {
		t.Fatalf("QuerySchedule error: %v", err)
	}
	if len(appts) != 1 || appts[0].RemoteID != "appt-9" || appts[0].ProviderRemoteID != "pr-1" {
		t.Fatalf("unexpected schedule: %+v", appts)
	}
}
