package httphandler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/panelsync/internal/application"
	"github.com/ericfisherdev/panelsync/internal/domain/model"
)

// GetAutomationConfig returns the automation configuration.
func (h *Handler) GetAutomationConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.automation.GetConfig(r.Context())
	if err != nil {
		h.logger.Error("failed to get automation config", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toAutomationConfigResponse(cfg))
}

// UpdateAutomationConfig replaces the operator-editable configuration. The
// scheduler applies it on its next tick.
func (h *Handler) UpdateAutomationConfig(w http.ResponseWriter, r *http.Request) {
	var req UpdateAutomationConfigRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	cfg, err := h.automation.UpdateConfig(r.Context(), model.AutomationConfigUpdate{
		IsEnabled:            *req.IsEnabled,
		RenewalAdvanceTime:   req.RenewalAdvanceTime,
		RenewalPeriodMinutes: req.RenewalPeriodMinutes,
		DefaultAutoRenewal:   *req.DefaultAutoRenewal,
	})
	if err != nil {
		if errors.Is(err, application.ErrInvalidSettings) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to update automation config", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("automation config updated",
		"enabled", cfg.IsEnabled,
		"advance_minutes", cfg.RenewalAdvanceTime,
		"version", cfg.Version,
	)
	writeJSON(w, http.StatusOK, toAutomationConfigResponse(cfg))
}

// ListAutomationLogs returns the newest ledger entries. ?limit defaults to 50
// and is capped at 500.
func (h *Handler) ListAutomationLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := h.automation.ListLogs(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list automation logs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]TaskLogResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toTaskLogResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

// RunAutomation triggers a renewal tick immediately. Answers 409 when a tick
// is already running.
func (h *Handler) RunAutomation(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.Tick(r.Context())
	if err != nil {
		if errors.Is(err, application.ErrTickInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("manual renewal tick failed", "error", err)
		writeJSON(w, remoteFailureStatus(err), toTickResponse(result))
		return
	}

	writeJSON(w, http.StatusOK, toTickResponse(result))
}
