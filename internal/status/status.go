// Package status serves a small local HTTP endpoint describing the
// peripheral.
package status

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"glycoiq-ble/internal/dispatch"
)

// ServiceName is reported by /health.
const ServiceName = "glycoiq-ble"

// Report is the /status response body.
type Report struct {
	Advertisement string         `json:"advertisement"`
	Subscribed    bool           `json:"subscribed"`
	LastPayload   string         `json:"last_payload"`
	Dispatch      dispatch.Stats `json:"dispatch"`
}

// Source produces the current report.
type Source interface {
	Report() (Report, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (Report, error)

// Report implements Source.
func (f SourceFunc) Report() (Report, error) { return f() }

// Handler serves the status routes.
type Handler struct {
	source Source
	log    logrus.FieldLogger
}

// NewHandler creates a Handler reading from source.
func NewHandler(source Source, log logrus.FieldLogger) *Handler {
	return &Handler{source: source, log: log}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", h.Health)
	r.Get("/status", h.Status)
	return r
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": ServiceName,
	})
}

// Status reports advertisement, subscription and dispatch state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	report, err := h.source.Report()
	if err != nil {
		h.log.WithError(err).Warn("Status unavailable")
		errorResponse(w, http.StatusServiceUnavailable, "peripheral not running")
		return
	}
	jsonResponse(w, http.StatusOK, report)
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]interface{}{
		"error": message,
		"code":  status,
	})
}
