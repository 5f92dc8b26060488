// Package httphandler is the driving HTTP adapter serving the operator API.
package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ericfisherdev/panelsync/internal/application"
	"github.com/ericfisherdev/panelsync/internal/domain/model"
	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
)

// Reconciler runs a reconciliation pass.
type Reconciler interface {
	Reconcile(ctx context.Context) (model.ReconcileResult, error)
}

// DivergenceDetector computes a divergence report.
type DivergenceDetector interface {
	DetectDivergences(ctx context.Context) (model.DivergenceReport, error)
}

// TickRunner runs one renewal scan on demand.
type TickRunner interface {
	Tick(ctx context.Context) (model.TickResult, error)
}

// AutomationService covers automation settings, the ledger and per-account
// renewal controls.
type AutomationService interface {
	GetConfig(ctx context.Context) (model.AutomationConfig, error)
	UpdateConfig(ctx context.Context, update model.AutomationConfigUpdate) (model.AutomationConfig, error)
	ListLogs(ctx context.Context, limit int) ([]model.AutomationTaskLog, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	GetAccount(ctx context.Context, id int64) (model.Account, error)
	SetAccountRenewal(ctx context.Context, id int64, autoRenewal bool, advanceMinutes *int) (model.Account, error)
	ResumeRenewal(ctx context.Context, id int64) (model.Account, error)
	SetAccountNote(ctx context.Context, id int64, note string) (model.Account, error)
}

// CredentialUpdater stores panel credentials and swaps the live client.
type CredentialUpdater interface {
	Update(ctx context.Context, baseURL, token string) error
}

// HealthChecker reports service health.
type HealthChecker interface {
	Check(ctx context.Context) application.HealthSummary
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	reconciler  Reconciler
	detector    DivergenceDetector
	scheduler   TickRunner
	automation  AutomationService
	credentials CredentialUpdater
	health      HealthChecker
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	reconciler Reconciler,
	detector DivergenceDetector,
	scheduler TickRunner,
	automation AutomationService,
	credentials CredentialUpdater,
	health HealthChecker,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		reconciler:  reconciler,
		detector:    detector,
		scheduler:   scheduler,
		automation:  automation,
		credentials: credentials,
		health:      health,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request-id, logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/reconcile", h.Reconcile)
	mux.HandleFunc("GET /api/v1/divergences", h.Divergences)

	mux.HandleFunc("GET /api/v1/automation/config", h.GetAutomationConfig)
	mux.HandleFunc("PUT /api/v1/automation/config", h.UpdateAutomationConfig)
	mux.HandleFunc("GET /api/v1/automation/logs", h.ListAutomationLogs)
	mux.HandleFunc("POST /api/v1/automation/run", h.RunAutomation)

	mux.HandleFunc("GET /api/v1/accounts", h.ListAccounts)
	mux.HandleFunc("GET /api/v1/accounts/{id}", h.GetAccount)
	mux.HandleFunc("PUT /api/v1/accounts/{id}/renewal", h.UpdateAccountRenewal)
	mux.HandleFunc("POST /api/v1/accounts/{id}/renewal/resume", h.ResumeAccountRenewal)
	mux.HandleFunc("PUT /api/v1/accounts/{id}/note", h.UpdateAccountNote)

	mux.HandleFunc("PUT /api/v1/panel/credentials", h.UpdatePanelCredentials)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Reconcile runs a reconciliation pass and returns its result. A run aborted
// by a failed listing answers 502 or 504 with the partial result.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciler.Reconcile(r.Context())
	if err != nil {
		h.logger.Error("reconciliation aborted", "error", err)
		writeJSON(w, remoteFailureStatus(err), toReconcileResponse(result))
		return
	}

	writeJSON(w, http.StatusOK, toReconcileResponse(result))
}

// Divergences returns the current divergence report. A failed or timed-out
// remote listing is an error response, never an "in sync" report.
func (h *Handler) Divergences(w http.ResponseWriter, r *http.Request) {
	report, err := h.detector.DetectDivergences(r.Context())
	if err != nil {
		h.logger.Error("divergence check failed", "error", err)
		writeError(w, remoteFailureStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toDivergenceResponse(report))
}

// UpdatePanelCredentials stores new panel credentials and swaps the client.
func (h *Handler) UpdatePanelCredentials(w http.ResponseWriter, r *http.Request) {
	var req PanelCredentialsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.credentials.Update(r.Context(), req.BaseURL, req.Token); err != nil {
		switch {
		case errors.Is(err, application.ErrInvalidSettings):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, driven.ErrEncryptionKeyNotSet):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error("failed to update panel credentials", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health reports service health. A datastore failure answers 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	summary := h.health.Check(r.Context())

	status := http.StatusOK
	if !summary.StoreOK {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, toHealthResponse(summary))
}

// remoteFailureStatus maps a failed remote-dependent operation to 504 for
// timeouts, 502 for other panel failures and 500 otherwise.
func remoteFailureStatus(err error) int {
	var remoteErr *driven.RemoteError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &remoteErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
