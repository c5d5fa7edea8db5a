package handler

import (
	"log/slog"
	"net/http"

	"tokensniper/internal/engine"
)

// EngineHandler exposes engine lifecycle controls: status, pause, resume.
// Pausing stops trigger polling only; in-flight sell executions always run
// to completion.
type EngineHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewEngineHandler creates an EngineHandler.
func NewEngineHandler(eng *engine.Engine, logger *slog.Logger) *EngineHandler {
	return &EngineHandler{
		engine: eng,
		logger: logger.With(slog.String("component", "engine_handler")),
	}
}

// Status reports the engine lifecycle state and the number of tracked
// positions.
func (h *EngineHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     h.engine.State(),
		"positions": len(h.engine.Positions()),
	})
}

// Pause suspends trigger polling across all positions.
func (h *EngineHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.engine.Pause()
	h.logger.Info("engine paused via api")
	writeJSON(w, http.StatusOK, map[string]any{"state": h.engine.State()})
}

// Resume restarts trigger polling. Positions resume on their original
// polling grid, so a pause never shifts subsequent time_based deadlines.
func (h *EngineHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.engine.Resume()
	h.logger.Info("engine resumed via api")
	writeJSON(w, http.StatusOK, map[string]any{"state": h.engine.State()})
}
