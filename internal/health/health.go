// Package health serves liveness and readiness probes.
//
// /healthz answers 200 whenever the process can serve HTTP. /readyz runs the
// registered [Checker] probes and answers 503 with per-check detail when any
// of them fails, so an orchestrator can keep traffic away until the database
// and the transcriber model are usable.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds each individual readiness probe.
const probeTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is usable and must respect ctx cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// checkReport is the per-probe entry in the /readyz response.
type checkReport struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// report is the response body for both endpoints.
type report struct {
	Status string                 `json:"status"`
	Checks map[string]checkReport `json:"checks,omitempty"`
}

// Handler evaluates readiness probes. The probe list is fixed at
// construction, so the handler needs no locking.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] over the given probes. Probes run sequentially in
// the order given on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every probe and answers 200 only when all of them pass. Each
// probe gets its own [probeTimeout] deadline under the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{
		Status: "ok",
		Checks: make(map[string]checkReport, len(h.checkers)),
	}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			rep.Checks[c.Name] = checkReport{Status: "fail", Error: err.Error()}
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[c.Name] = checkReport{Status: "ok"}
	}

	writeReport(w, status, rep)
}

// Register mounts both endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeReport(w http.ResponseWriter, status int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
