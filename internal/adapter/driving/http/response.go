package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/panelsync/internal/application"
	"github.com/ericfisherdev/panelsync/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body. Fields carries
// per-field validation messages keyed by JSON name.
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ReconcileResponse is the JSON representation of a reconciliation run.
type ReconcileResponse struct {
	Created    int      `json:"created"`
	Updated    int      `json:"updated"`
	Deleted    int      `json:"deleted"`
	Errors     []string `json:"errors"`
	StartedAt  string   `json:"started_at"`
	DurationMS int64    `json:"duration_ms"`
}

// DivergenceResponse is the JSON representation of a divergence report.
type DivergenceResponse struct {
	HasDivergences  bool     `json:"has_divergences"`
	Count           int      `json:"count"`
	MissingLocally  []string `json:"missing_locally"`
	MissingRemotely []string `json:"missing_remotely"`
	LocalCount      int      `json:"local_count"`
	RemoteCount     int      `json:"remote_count"`
	CheckedAt       string   `json:"checked_at"`
}

// TickResponse is the JSON representation of one renewal scan.
type TickResponse struct {
	Scanned  int      `json:"scanned"`
	Eligible int      `json:"eligible"`
	Renewed  int      `json:"renewed"`
	Failed   int      `json:"failed"`
	Skipped  int      `json:"skipped"`
	Expired  int      `json:"expired"`
	Errors   []string `json:"errors"`
}

// AutomationConfigResponse is the JSON representation of the automation
// configuration.
type AutomationConfigResponse struct {
	IsEnabled            bool    `json:"is_enabled"`
	RenewalAdvanceTime   int     `json:"renewal_advance_time"`
	RenewalPeriodMinutes int     `json:"renewal_period_minutes"`
	DefaultAutoRenewal   bool    `json:"default_auto_renewal"`
	LastRunAt            *string `json:"last_run_at"`
	Version              int64   `json:"version"`
	UpdatedAt            string  `json:"updated_at,omitempty"`
}

// TaskLogResponse is the JSON representation of one ledger entry.
type TaskLogResponse struct {
	ID               int64   `json:"id"`
	CorrelationID    string  `json:"correlation_id"`
	TaskType         string  `json:"task_type"`
	Status           string  `json:"status"`
	Message          string  `json:"message"`
	Error            string  `json:"error,omitempty"`
	RelatedAccountID *int64  `json:"related_account_id"`
	Expiration       *string `json:"expiration"`
	CreatedAt        string  `json:"created_at"`
}

// AccountResponse is the JSON representation of a local account. The
// password is never returned.
type AccountResponse struct {
	ID                    int64   `json:"id"`
	RemoteID              string  `json:"remote_id"`
	Username              string  `json:"username"`
	MaxActivePoints       int     `json:"max_active_points"`
	Expiration            string  `json:"expiration"`
	Note                  string  `json:"note,omitempty"`
	NoteHTML              string  `json:"note_html,omitempty"`
	AutoRenewalEnabled    bool    `json:"auto_renewal_enabled"`
	RenewalAdvanceMinutes *int    `json:"renewal_advance_minutes"`
	RenewalCount          int     `json:"renewal_count"`
	LastRenewalAt         *string `json:"last_renewal_at"`
	RenewalSuspended      bool    `json:"renewal_suspended"`
	RenewalSuspendedAt    *string `json:"renewal_suspended_at"`
	RenewalSuspendReason  string  `json:"renewal_suspend_reason,omitempty"`
}

// HealthResponse is the JSON representation of the health summary.
type HealthResponse struct {
	Status            string  `json:"status"`
	StoreOK           bool    `json:"store_ok"`
	PanelConfigured   bool    `json:"panel_configured"`
	AutomationEnabled bool    `json:"automation_enabled"`
	TickRunning       bool    `json:"tick_running"`
	LastRunAt         *string `json:"last_run_at"`
}

func toReconcileResponse(r model.ReconcileResult) ReconcileResponse {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return ReconcileResponse{
		Created:    r.Created,
		Updated:    r.Updated,
		Deleted:    r.Deleted,
		Errors:     errs,
		StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
		DurationMS: r.Duration.Milliseconds(),
	}
}

func toDivergenceResponse(d model.DivergenceReport) DivergenceResponse {
	missingLocally := d.MissingLocally
	if missingLocally == nil {
		missingLocally = []string{}
	}
	missingRemotely := d.MissingRemotely
	if missingRemotely == nil {
		missingRemotely = []string{}
	}
	return DivergenceResponse{
		HasDivergences:  d.HasDivergences,
		Count:           d.Count,
		MissingLocally:  missingLocally,
		MissingRemotely: missingRemotely,
		LocalCount:      d.LocalCount,
		RemoteCount:     d.RemoteCount,
		CheckedAt:       d.CheckedAt.UTC().Format(time.RFC3339),
	}
}

func toTickResponse(t model.TickResult) TickResponse {
	errs := t.Errors
	if errs == nil {
		errs = []string{}
	}
	return TickResponse{
		Scanned:  t.Scanned,
		Eligible: t.Eligible,
		Renewed:  t.Renewed,
		Failed:   t.Failed,
		Skipped:  t.Skipped,
		Expired:  t.Expired,
		Errors:   errs,
	}
}

func toAutomationConfigResponse(c model.AutomationConfig) AutomationConfigResponse {
	resp := AutomationConfigResponse{
		IsEnabled:            c.IsEnabled,
		RenewalAdvanceTime:   c.RenewalAdvanceTime,
		RenewalPeriodMinutes: c.RenewalPeriodMinutes,
		DefaultAutoRenewal:   c.DefaultAutoRenewal,
		LastRunAt:            formatOptionalTime(c.LastRunAt),
		Version:              c.Version,
	}
	if !c.UpdatedAt.IsZero() {
		resp.UpdatedAt = c.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toTaskLogResponse(e model.AutomationTaskLog) TaskLogResponse {
	return TaskLogResponse{
		ID:               e.ID,
		CorrelationID:    e.CorrelationID,
		TaskType:         string(e.TaskType),
		Status:           string(e.Status),
		Message:          e.Message,
		Error:            e.Error,
		RelatedAccountID: e.RelatedAccountID,
		Expiration:       formatOptionalTime(e.Expiration),
		CreatedAt:        e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toAccountResponse(a model.Account) AccountResponse {
	return AccountResponse{
		ID:                    a.ID,
		RemoteID:              a.RemoteID,
		Username:              a.Username,
		MaxActivePoints:       a.MaxActivePoints,
		Expiration:            a.Expiration.UTC().Format(time.RFC3339),
		Note:                  a.Note,
		AutoRenewalEnabled:    a.AutoRenewalEnabled,
		RenewalAdvanceMinutes: a.RenewalAdvanceMinutes,
		RenewalCount:          a.RenewalCount,
		LastRenewalAt:         formatOptionalTime(a.LastRenewalAt),
		RenewalSuspended:      a.IsRenewalSuspended(),
		RenewalSuspendedAt:    formatOptionalTime(a.RenewalSuspendedAt),
		RenewalSuspendReason:  a.RenewalSuspendReason,
	}
}

func toHealthResponse(s application.HealthSummary) HealthResponse {
	return HealthResponse{
		Status:            s.Status,
		StoreOK:           s.StoreOK,
		PanelConfigured:   s.PanelConfigured,
		AutomationEnabled: s.AutomationEnabled,
		TickRunning:       s.TickRunning,
		LastRunAt:         formatOptionalTime(s.LastRunAt),
	}
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
