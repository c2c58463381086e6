package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

// Handler exposes the scheduling operations over HTTP.
type Handler struct {
	orchestrator *Orchestrator
	logger       *logging.Logger
}

// NewHandler creates the appointments HTTP handler.
func NewHandler(orchestrator *Orchestrator, logger *logging.Logger) *Handler {
	if orchestrator == nil {
		panic("appointments: orchestrator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{orchestrator: orchestrator, logger: logger.Component("appointments-api")}
}

// Routes returns the appointment routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Delete("/{id}", h.cancel)
	r.Post("/{id}/reschedule", h.reschedule)
	r.Post("/{id}/attendance", h.attendance)
	return r
}

type createPayload struct {
	AccountID        string `json:"account_id"`
	CreatorAccountID string `json:"creator_account_id,omitempty"`
	ProviderID       string `json:"provider_id,omitempty"`
	GroupSessionID   string `json:"group_session_id,omitempty"`
	TypeID           string `json:"type_id"`
	Start            string `json:"start"` // RFC 3339
	Timezone         string `json:"timezone"`
	Notes            string `json:"notes,omitempty"`
}

type appointmentResponse struct {
	ID         string     `json:"id"`
	ProviderID string     `json:"provider_id"`
	AccountID  string     `json:"account_id"`
	Backend    string     `json:"backend"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	Timezone   string     `json:"timezone"`
	JoinURL    string     `json:"join_url,omitempty"`
	AccessCode string     `json:"access_code,omitempty"`
	Canceled   bool       `json:"canceled"`
	Attendance Attendance `json:"attendance"`
}

func toResponse(a *Appointment) appointmentResponse {
	return appointmentResponse{
		ID:         a.ID.String(),
		ProviderID: a.ProviderID.String(),
		AccountID:  a.AccountID.String(),
		Backend:    string(a.Backend),
		Start:      a.Start,
		End:        a.End,
		Timezone:   a.Timezone,
		JoinURL:    a.JoinURL,
		AccessCode: a.AccessCode,
		Canceled:   a.Canceled,
		Attendance: a.Attendance,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := CreateRequest{Timezone: payload.Timezone, Notes: payload.Notes}
	var err error
	if req.AccountID, err = uuid.Parse(payload.AccountID); err != nil {
		respondError(w, http.StatusBadRequest, "account_id must be a UUID")
		return
	}
	if payload.ProviderID != "" {
		if req.ProviderID, err = uuid.Parse(payload.ProviderID); err != nil {
			respondError(w, http.StatusBadRequest, "provider_id must be a UUID")
			return
		}
	}
	if payload.GroupSessionID != "" {
		if req.GroupSessionID, err = uuid.Parse(payload.GroupSessionID); err != nil {
			respondError(w, http.StatusBadRequest, "group_session_id must be a UUID")
			return
		}
	}
	if req.TypeID, err = uuid.Parse(payload.TypeID); err != nil {
		respondError(w, http.StatusBadRequest, "type_id must be a UUID")
		return
	}
	if payload.CreatorAccountID != "" {
		if req.CreatorAccountID, err = uuid.Parse(payload.CreatorAccountID); err != nil {
			respondError(w, http.StatusBadRequest, "creator_account_id must be a UUID")
			return
		}
	}
	if req.Start, err = time.Parse(time.RFC3339, payload.Start); err != nil {
		respondError(w, http.StatusBadRequest, "start must be RFC 3339")
		return
	}

	appt, err := h.orchestrator.Create(r.Context(), req)
	if err != nil {
		h.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toResponse(appt))
}

type cancelPayload struct {
	CanceledBy string `json:"canceled_by,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "appointment id must be a UUID")
		return
	}

	var payload cancelPayload
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}
	req := CancelRequest{AppointmentID: id, Reason: payload.Reason}
	if payload.CanceledBy != "" {
		if req.CanceledBy, err = uuid.Parse(payload.CanceledBy); err != nil {
			respondError(w, http.StatusBadRequest, "canceled_by must be a UUID")
			return
		}
	}

	if err := h.orchestrator.Cancel(r.Context(), req); err != nil {
		h.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

type reschedulePayload struct {
	Start string `json:"start"` // RFC 3339
	Actor string `json:"actor,omitempty"`
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "appointment id must be a UUID")
		return
	}
	var payload reschedulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	newStart, err := time.Parse(time.RFC3339, payload.Start)
	if err != nil {
		respondError(w, http.StatusBadRequest, "start must be RFC 3339")
		return
	}
	var actor uuid.UUID
	if payload.Actor != "" {
		if actor, err = uuid.Parse(payload.Actor); err != nil {
			respondError(w, http.StatusBadRequest, "actor must be a UUID")
			return
		}
	}

	replacement, err := h.orchestrator.Reschedule(r.Context(), id, newStart, actor)
	if err != nil {
		h.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toResponse(replacement))
}

type attendancePayload struct {
	Status string `json:"status"`
}

func (h *Handler) attendance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "appointment id must be a UUID")
		return
	}
	var payload attendancePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.orchestrator.SetAttendance(r.Context(), id, Attendance(payload.Status)); err != nil {
		h.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": payload.Status})
}

// UpcomingRoutes returns the account-scoped read routes.
func (h *Handler) UpcomingRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{accountID}/appointments/upcoming", h.upcoming)
	return r
}

func (h *Handler) upcoming(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "account id must be a UUID")
		return
	}

	appts, err := h.orchestrator.UpcomingAppointments(r.Context(), accountID)
	if err != nil {
		h.respondOperationError(w, err)
		return
	}
	out := make([]appointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toResponse(&appts[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

// respondOperationError maps the error taxonomy onto HTTP statuses. A
// gating rejection carries a machine-readable code so the client can
// redirect into intake.
func (h *Handler) respondOperationError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		respondError(w, http.StatusBadRequest, ve.Error())
	case IsGating(err):
		respondJSON(w, http.StatusForbidden, map[string]string{
			"error": "intake assessment required before booking",
			"code":  "intake_required",
		})
	case errors.Is(err, ErrNotFound):
		respondError(w, http.StatusNotFound, "appointment not found")
	case scheduling.IsTransient(err):
		respondError(w, http.StatusServiceUnavailable, "scheduling system is temporarily unavailable, please try again later")
	case scheduling.IsPermanent(err):
		var pe *scheduling.PermanentError
		errors.As(err, &pe)
		respondError(w, http.StatusBadGateway, "scheduling system rejected the request: "+pe.Detail)
	default:
		h.logger.Error("appointment operation failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
