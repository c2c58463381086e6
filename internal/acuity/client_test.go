package acuity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
)

func TestCreateAppointment(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, key, ok := r.BasicAuth(); !ok || user != "user-1" || key != "key-1" {
			t.Fatalf("missing basic auth: %s %s", user, key)
		}
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode req: %v", err)
		}
		if req.AppointmentTypeID != 42 {
			t.Fatalf("unexpected type id: %d", req.AppointmentTypeID)
		}
		_ = json.NewEncoder(w).Encode(Appointment{ID: 9001, Datetime: req.Datetime})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "user-1", "key-1", nil)
	appt, err := c.CreateAppointment(context.Background(), CreateAppointmentRequest{
		Datetime:          "2026-03-01T10:00:00-05:00",
		AppointmentTypeID: 42,
		FirstName:         "Jane",
		LastName:          "Doe",
		Email:             "jane@example.com",
	})
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}
	if appt.ID != 9001 {
		t.Fatalf("unexpected id: %d", appt.ID)
	}
}

func TestAdapterMapsUnavailableSlot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(apiError{StatusCode: 400, ErrorCode: "not_available", Message: "That time is not available"})
	}))
	defer ts.Close()

	adapter := NewAdapter(NewClient(ts.URL, "u", "k", nil), nil)
	_, err := adapter.CreateBooking(context.Background(), scheduling.BookingRequest{
		Slot:              scheduling.Slot{Start: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		VisitTypeRemoteID: "42",
	})
	if !errors.Is(err, scheduling.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestAdapterMapsServerErrorAsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer ts.Close()

	adapter := NewAdapter(NewClient(ts.URL, "u", "k", nil), nil)
	_, err := adapter.CreateBooking(context.Background(), scheduling.BookingRequest{VisitTypeRemoteID: "42"})
	if !scheduling.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestAdapterCancelGoneBookingSucceeds(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(apiError{StatusCode: 404, Message: "appointment not found"})
	}))
	defer ts.Close()

	adapter := NewAdapter(NewClient(ts.URL, "u", "k", nil), nil)
	if err := adapter.CancelBooking(context.Background(), "777", "no longer needed"); err != nil {
		t.Fatalf("cancel of missing booking must succeed, got %v", err)
	}
}

func TestAdapterQueryScheduleSkipsCanceled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("email"); got != "jane@example.com" {
			t.Fatalf("unexpected email filter: %s", got)
		}
		_ = json.NewEncoder(w).Encode([]Appointment{
			{ID: 1, Datetime: "2026-03-02T09:00:00-05:00", EndTime: "2026-03-02T09:30:00-05:00", CalendarID: 5, AppointmentTypeID: 42},
			{ID: 2, Datetime: "2026-03-03T09:00:00-05:00", EndTime: "2026-03-03T09:30:00-05:00", Canceled: true},
		})
	}))
	defer ts.Close()

	adapter := NewAdapter(NewClient(ts.URL, "u", "k", nil), nil)
	appts, err := adapter.QuerySchedule(context.Background(), "jane@example.com",
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	if err != nil {
		t.Fatalf("QuerySchedule error: %v", err)
	}
	if len(appts) != 1 || appts[0].RemoteID != "1" {
		t.Fatalf("unexpected schedule: %+v", appts)
	}
}
