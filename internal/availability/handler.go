package availability

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

const defaultLookahead = 14 * 24 * time.Hour

// Handler serves the cached open-slot view to booking frontends.
type Handler struct {
	cache  *Cache
	logger *logging.Logger
}

// NewHandler creates the availability HTTP handler.
func NewHandler(cache *Cache, logger *logging.Logger) *Handler {
	if cache == nil {
		panic("availability: cache required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{cache: cache, logger: logger.Component("availability-api")}
}

// Routes returns the provider-scoped availability routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{providerID}/slots", h.openSlots)
	return r
}

type slotResponse struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone"`
}

func (h *Handler) openSlots(w http.ResponseWriter, r *http.Request) {
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "provider id must be a UUID")
		return
	}

	now := time.Now()
	from, to := now, now.Add(defaultLookahead)
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			respondError(w, http.StatusBadRequest, "from must be RFC 3339")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			respondError(w, http.StatusBadRequest, "to must be RFC 3339")
			return
		}
	}
	if !to.After(from) {
		respondError(w, http.StatusBadRequest, "to must be after from")
		return
	}

	slots, err := h.cache.OpenSlots(r.Context(), providerID, from, to)
	if err != nil {
		h.logger.Error("open slots lookup failed", "provider_id", providerID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"slots": toSlotResponses(slots)})
}

func toSlotResponses(slots []scheduling.Slot) []slotResponse {
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse{Start: s.Start, End: s.End, Timezone: s.Timezone})
	}
	return out
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
