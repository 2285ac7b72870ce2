/*
scenarios.go - Demo scenario endpoints

PURPOSE:
  Lets a frontend or a demo script wipe the store and load one of the
  pre-built data sets from app/scenarios.go.

USAGE VIA API:

	GET  /api/scenarios            List scenarios
	GET  /api/scenarios/current    Last scenario loaded, or null
	POST /api/scenarios/load       {"scenario_id": "billing-month"}

NOTE:
  Loading a scenario resets the store. Only mount in development/demo
  environments.

SEE ALSO:
  - app/scenarios.go: Scenario loaders
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/warp/records-engine/app"
	"github.com/warp/records-engine/export"
)

// ScenarioLoader loads demo data. *app.App implements it.
type ScenarioLoader interface {
	LoadScenario(ctx context.Context, id string) error
}

// scenarioState tracks the last scenario loaded through a handler.
type scenarioState struct {
	sync.Mutex
	id string
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Scenarios())
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenario.Lock()
	id := h.scenario.id
	h.scenario.Unlock()

	for _, s := range app.Scenarios() {
		if s.ID == id {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	p := export.Printer(h.lang(r))

	var req LoadScenarioRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.scenario.Lock()
	defer h.scenario.Unlock()
	h.scenario.id = ""

	if err := h.Scenarios.LoadScenario(r.Context(), req.ScenarioID); err != nil {
		switch {
		case errors.Is(err, app.ErrUnknownScenario):
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
		case errors.Is(err, app.ErrResetUnsupported):
			writeError(w, http.StatusNotImplemented, "Store cannot be reset", err)
		default:
			h.Logger.Error("scenario_load_failed", "scenario", req.ScenarioID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		}
		return
	}

	h.scenario.id = req.ScenarioID
	writeJSON(w, http.StatusOK, ScenarioResponse{
		Status:   "loaded",
		Scenario: req.ScenarioID,
		Message:  p.Sprintf(export.MsgScenarioLoaded, req.ScenarioID),
	})
}
