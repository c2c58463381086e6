package appointments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

// WebhookHandler receives externally-originated cancellations and
// reschedules from the calendar SaaS and the EHR. Because the change
// already happened remotely, the orchestrator only updates local state.
type WebhookHandler struct {
	orchestrator *Orchestrator
	secret       string
	logger       *logging.Logger
}

// NewWebhookHandler creates the webhook endpoint. An empty secret
// disables signature verification (development only).
func NewWebhookHandler(orchestrator *Orchestrator, secret string, logger *logging.Logger) *WebhookHandler {
	if orchestrator == nil {
		panic("appointments: orchestrator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{orchestrator: orchestrator, secret: secret, logger: logger.Component("scheduling-webhook")}
}

// Routes returns the webhook routes.
func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/scheduling", h.handle)
	return r
}

type webhookPayload struct {
	Event    string `json:"event"` // "booking.canceled" | "booking.rescheduled"
	RemoteID string `json:"remote_id"`
	NewStart string `json:"new_start,omitempty"` // RFC 3339, reschedule only
	Reason   string `json:"reason,omitempty"`
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if !h.verifySignature(r, body) {
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.RemoteID == "" {
		respondError(w, http.StatusBadRequest, "remote_id is required")
		return
	}

	appt, err := h.orchestrator.FindByRemoteID(r.Context(), payload.RemoteID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// nothing local to repair; acknowledge so the sender stops retrying
			h.logger.Debug("webhook for unknown remote booking", "remote_id", payload.RemoteID, "event", payload.Event)
			respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		h.logger.Error("webhook lookup failed", "remote_id", payload.RemoteID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch payload.Event {
	case "booking.canceled":
		err = h.orchestrator.Cancel(r.Context(), CancelRequest{
			AppointmentID:      appt.ID,
			Reason:             nonEmpty(payload.Reason, "canceled by scheduling system"),
			ViaExternalWebhook: true,
		})
	case "booking.rescheduled":
		newStart, parseErr := time.Parse(time.RFC3339, payload.NewStart)
		if parseErr != nil {
			respondError(w, http.StatusBadRequest, "new_start must be RFC 3339")
			return
		}
		h.logger.Info("externally rescheduled booking, repairing local mirror",
			"appointment_id", appt.ID, "remote_id", payload.RemoteID, "new_start", newStart)
		err = h.orchestrator.ApplyExternalReschedule(r.Context(), appt.ID, newStart)
	default:
		respondError(w, http.StatusBadRequest, "unknown event")
		return
	}

	if err != nil {
		h.logger.Error("webhook processing failed", "remote_id", payload.RemoteID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (h *WebhookHandler) verifySignature(r *http.Request, body []byte) bool {
	if h.secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(r.Header.Get("X-Scheduling-Signature")))
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
