package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/panelsync/internal/adapter/driving/http"
	"github.com/ericfisherdev/panelsync/internal/application"
	"github.com/ericfisherdev/panelsync/internal/domain/model"
	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
)

var (
	testTime    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testTimeStr = "2026-03-01T12:00:00Z"
)

// --- Mock implementations ---

type mockReconciler struct {
	result model.ReconcileResult
	err    error
	calls  int
}

func (m *mockReconciler) Reconcile(_ context.Context) (model.ReconcileResult, error) {
	m.calls++
	return m.result, m.err
}

type mockDetector struct {
	report model.DivergenceReport
	err    error
}

func (m *mockDetector) DetectDivergences(_ context.Context) (model.DivergenceReport, error) {
	return m.report, m.err
}

type mockTickRunner struct {
	result model.TickResult
	err    error
}

func (m *mockTickRunner) Tick(_ context.Context) (model.TickResult, error) {
	return m.result, m.err
}

type mockAutomation struct {
	cfg       model.AutomationConfig
	cfgErr    error
	update    *model.AutomationConfigUpdate
	logs      []model.AutomationTaskLog
	logLimit  int
	accounts  []model.Account
	account   model.Account
	acctErr   error
	gotAuto   *bool
	gotAdv    *int
	resumedID int64
	notedID   int64
}

func (m *mockAutomation) GetConfig(_ context.Context) (model.AutomationConfig, error) {
	return m.cfg, m.cfgErr
}
func (m *mockAutomation) UpdateConfig(_ context.Context, u model.AutomationConfigUpdate) (model.AutomationConfig, error) {
	m.update = &u
	if m.cfgErr != nil {
		return model.AutomationConfig{}, m.cfgErr
	}
	return model.AutomationConfig{
		IsEnabled:            u.IsEnabled,
		RenewalAdvanceTime:   u.RenewalAdvanceTime,
		RenewalPeriodMinutes: u.RenewalPeriodMinutes,
		DefaultAutoRenewal:   u.DefaultAutoRenewal,
		Version:              m.cfg.Version + 1,
	}, nil
}
func (m *mockAutomation) ListLogs(_ context.Context, limit int) ([]model.AutomationTaskLog, error) {
	m.logLimit = limit
	return m.logs, m.cfgErr
}
func (m *mockAutomation) ListAccounts(_ context.Context) ([]model.Account, error) {
	return m.accounts, m.acctErr
}
func (m *mockAutomation) GetAccount(_ context.Context, _ int64) (model.Account, error) {
	return m.account, m.acctErr
}
func (m *mockAutomation) SetAccountRenewal(_ context.Context, _ int64, auto bool, adv *int) (model.Account, error) {
	m.gotAuto = &auto
	m.gotAdv = adv
	if m.acctErr != nil {
		return model.Account{}, m.acctErr
	}
	a := m.account
	a.AutoRenewalEnabled = auto
	a.RenewalAdvanceMinutes = adv
	return a, nil
}
func (m *mockAutomation) ResumeRenewal(_ context.Context, id int64) (model.Account, error) {
	m.resumedID = id
	if m.acctErr != nil {
		return model.Account{}, m.acctErr
	}
	a := m.account
	a.RenewalSuspendedAt = nil
	a.RenewalSuspendReason = ""
	return a, nil
}

func (m *mockAutomation) SetAccountNote(_ context.Context, id int64, note string) (model.Account, error) {
	m.notedID = id
	if m.acctErr != nil {
		return model.Account{}, m.acctErr
	}
	m.account.Note = note
	return m.account, nil
}

type mockCredentials struct {
	baseURL, token string
	err            error
}

func (m *mockCredentials) Update(_ context.Context, baseURL, token string) error {
	m.baseURL, m.token = baseURL, token
	return m.err
}

type mockHealth struct {
	summary application.HealthSummary
}

func (m *mockHealth) Check(_ context.Context) application.HealthSummary { return m.summary }

// --- Helpers ---

type deps struct {
	reconciler  *mockReconciler
	detector    *mockDetector
	ticker      *mockTickRunner
	automation  *mockAutomation
	credentials *mockCredentials
	health      *mockHealth
}

func newDeps() *deps {
	return &deps{
		reconciler:  &mockReconciler{},
		detector:    &mockDetector{},
		ticker:      &mockTickRunner{},
		automation:  &mockAutomation{},
		credentials: &mockCredentials{},
		health:      &mockHealth{},
	}
}

func setupMux(d *deps) http.Handler {
	h := httphandler.NewHandler(d.reconciler, d.detector, d.ticker, d.automation, d.credentials, d.health, slog.Default())
	return httphandler.NewServeMux(h, slog.Default())
}

func serve(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	err := json.NewDecoder(rec.Body).Decode(v)
	require.NoError(t, err)
}

func intPtr(v int) *int { return &v }

// --- Tests ---

func TestReconcile(t *testing.T) {
	d := newDeps()
	d.reconciler.result = model.ReconcileResult{Created: 2, Updated: 1, Deleted: 1, StartedAt: testTime, Duration: 1500 * time.Millisecond}
	mux := setupMux(d)

	rec := serve(t, mux, http.MethodPost, "/api/v1/reconcile", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, float64(2), resp["created"])
	assert.Equal(t, float64(1), resp["updated"])
	assert.Equal(t, float64(1), resp["deleted"])
	assert.Equal(t, float64(1500), resp["duration_ms"])
	assert.Equal(t, testTimeStr, resp["started_at"])
	errs, ok := resp["errors"].([]any)
	require.True(t, ok, "errors must be an array, not null")
	assert.Empty(t, errs)
}

func TestReconcile_Aborted(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "panel unreachable",
			err:        &driven.RemoteError{Kind: driven.RemoteTransient, Op: "list lines", StatusCode: 503, Err: errors.New("unavailable")},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "panel timeout",
			err:        fmt.Errorf("listing remote accounts: %w", context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "local store failure",
			err:        errors.New("database is locked"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.reconciler.result = model.ReconcileResult{StartedAt: testTime, Errors: []string{tt.err.Error()}}
			d.reconciler.err = tt.err

			rec := serve(t, setupMux(d), http.MethodPost, "/api/v1/reconcile", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp map[string]any
			decodeJSON(t, rec, &resp)
			assert.Len(t, resp["errors"], 1)
		})
	}
}

func TestReconcile_WrongMethod(t *testing.T) {
	d := newDeps()
	rec := serve(t, setupMux(d), http.MethodGet, "/api/v1/reconcile", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 0, d.reconciler.calls)
}

func TestDivergences(t *testing.T) {
	d := newDeps()
	d.detector.report = model.DivergenceReport{
		HasDivergences:  true,
		Count:           2,
		MissingLocally:  []string{"C"},
		MissingRemotely: []string{"B"},
		LocalCount:      2,
		RemoteCount:     2,
		CheckedAt:       testTime,
	}

	rec := serve(t, setupMux(d), http.MethodGet, "/api/v1/divergences", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, true, resp["has_divergences"])
	assert.Equal(t, float64(2), resp["count"])
	assert.Equal(t, []any{"C"}, resp["missing_locally"])
	assert.Equal(t, []any{"B"}, resp["missing_remotely"])
	assert.Equal(t, testTimeStr, resp["checked_at"])
}

func TestDivergences_InSyncHasEmptyArrays(t *testing.T) {
	d := newDeps()
	d.detector.report = model.DivergenceReport{LocalCount: 3, RemoteCount: 3, CheckedAt: testTime}

	rec := serve(t, setupMux(d), http.MethodGet, "/api/v1/divergences", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, false, resp["has_divergences"])
	assert.Equal(t, []any{}, resp["missing_locally"])
	assert.Equal(t, []any{}, resp["missing_remotely"])
}

func TestDivergences_RemoteFailureIsNotInSync(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"timeout", fmt.Errorf("listing remote accounts: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unauthorized", &driven.RemoteError{Kind: driven.RemoteUnauthorized, Op: "list lines", StatusCode: 401, Err: errors.New("bad token")}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.detector.report = model.DivergenceReport{CheckedAt: testTime}
			d.detector.err = tt.err

			rec := serve(t, setupMux(d), http.MethodGet, "/api/v1/divergences", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp map[string]any
			decodeJSON(t, rec, &resp)
			assert.NotEmpty(t, resp["error"])
			assert.NotContains(t, resp, "has_divergences")
		})
	}
}

func TestGetAutomationConfig(t *testing.T) {
	d := newDeps()
	last := testTime
	d.automation.cfg = model.AutomationConfig{
		IsEnabled:            true,
		RenewalAdvanceTime:   10,
		RenewalPeriodMinutes: 43200,
		DefaultAutoRenewal:   true,
		LastRunAt:            &last,
		Version:              3,
	}

	rec := serve(t, setupMux(d), http.MethodGet, "/api/v1/automation/config", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, true, resp["is_enabled"])
	assert.Equal(t, float64(10), resp["renewal_advance_time"])
	assert.Equal(t, float64(43200), resp["renewal_period_minutes"])
	assert.Equal(t, testTimeStr, resp["last_run_at"])
	assert.Equal(t, float64(3), resp["version"])
}

func TestGetAutomationConfig_StoreError(t *testing.T) {
	d := newDeps()
	d.automation.cfgErr = errors.New("db fail")

	rec := serve(t, setupMux(d), http.MethodGet, "/api/v1/automation/config", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUpdateAutomationConfig(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantField  string
	}{
		{
			name:       "valid update",
			body:       `{"is_enabled":true,"renewal_advance_time":10,"renewal_period_minutes":43200,"default_auto_renewal":false}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing is_enabled",
			body:       `{"renewal_advance_time":10,"renewal_period_minutes":43200,"default_auto_renewal":false}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "is_enabled",
		},
		{
			name:       "zero advance",
			body:       `{"is_enabled":true,"renewal_advance_time":0,"renewal_period_minutes":43200,"default_auto_renewal":true}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "renewal_advance_time",
		},
		{
			name:       "advance not below period",
			body:       `{"is_enabled":true,"renewal_advance_time":60,"renewal_period_minutes":60,"default_auto_renewal":true}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "renewal_period_minutes",
		},
		{
			name:       "unknown field",
			body:       `{"is_enabled":true,"enabled":true}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"is_enabled":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "rejected by service",
			body:       `{"is_enabled":true,"renewal_advance_time":10,"renewal_period_minutes":43200,"default_auto_renewal":true}`,
			svcErr:     fmt.Errorf("%w: advance exceeds an account override", application.ErrInvalidSettings),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "store failure",
			body:       `{"is_enabled":true,"renewal_advance_time":10,"renewal_period_minutes":43200,"default_auto_renewal":true}`,
			svcErr:     errors.New("disk full"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.automation.cfgErr = tt.svcErr

			rec := serve(t, setupMux(d), http.MethodPut, "/api/v1/automation/config", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp map[string]any
			decodeJSON(t, rec, &resp)

			if tt.wantField != "" {
				fields, ok := resp["fields"].(map[string]any)
				require.True(t, ok)
				assert.Contains(t, fields, tt.wantField)
				assert.Nil(t, d.automation.update, "invalid body must not reach the service")
			}

			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, d.automation.update)
				assert.True(t, d.automation.update.IsEnabled)
				assert.False(t, d.automation.update.DefaultAutoRenewal)
				assert.Equal(t, 10, d.automation.update.RenewalAdvanceTime)
				assert.Equal(t, float64(1), resp["version"])
			}
		})
	}
}

func TestListAutomationLogs(t *testing.T) {
	accountID := int64(7)
	exp := testTime
	logs := []model.AutomationTaskLog{
		{
			ID:               2,
			CorrelationID:    "c-1",
			TaskType:         model.TaskTypeRenewal,
			Status:           model.TaskStatusSuccess,
			Message:          "renewed",
			RelatedAccountID: &accountID,
			Expiration:       &exp,
			CreatedAt:        testTime,
		},
		{
			ID:            1,
			CorrelationID: "c-1",
			TaskType:      model.TaskTypeRenewal,
			Status:        model.TaskStatusStarted,
			CreatedAt:     testTime,
		},
	}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"default limit", "", http.StatusOK, 0},
		{"explicit limit", "?limit=25", http.StatusOK, 25},
		{"non-numeric limit", "?limit=abc", http.StatusBadRequest, -1},
		{"zero limit", "?limit=0", http.StatusBadRequest, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.automation.logs = logs
			d.automation.logLimit = -1

			rec := serve(t, setupMux(d), http.MethodGet, "/api/v1/automation/logs"+tt.query, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLimit, d.automation.logLimit)

			if tt.wantStatus == http.StatusOK {
				var resp []map[string]any
				decodeJSON(t, rec, &resp)
				require.Len(t, resp, 2)
				assert.Equal(t, "renewal", resp[0]["task_type"])
				assert.Equal(t, "success", resp[0]["status"])
				assert.Equal(t, float64(7), resp[0]["related_account_id"])
				assert.Equal(t, testTimeStr, resp[0]["expiration"])
				assert.Nil(t, resp[1]["related_account_id"])
			}
		})
	}
}

func TestRunAutomation(t *testing.T) {
	tests := []struct {
		name       string
		result     model.TickResult
		err        error
		wantStatus int
	}{
		{
			name:       "tick completes",
			result:     model.TickResult{Scanned: 3, Eligible: 1, Renewed: 1},
			wantStatus: http.StatusOK,
		},
		{
			name:       "tick already running",
			err:        application.ErrTickInProgress,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "panel rejected credentials",
			result:     model.TickResult{Scanned: 3, Errors: []string{"unauthorized"}},
			err:        &driven.RemoteError{Kind: driven.RemoteUnauthorized, Op: "renew line", StatusCode: 401, Err: errors.New("bad token")},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.ticker.result = tt.result
			d.ticker.err = tt.err

			rec := serve(t, setupMux(d), http.MethodPost, "/api/v1/automation/run", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp map[string]any
			decodeJSON(t, rec, &resp)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, float64(3), resp["scanned"])
				assert.Equal(t, float64(1), resp["renewed"])
				assert.Equal(t, []any{}, resp["errors"])
			}
		})
	}
}

func TestListAccounts(t *testing.T) {
	d := newDeps()
	d.automation.accounts = []model.Account{
		{ID: 1, RemoteID: "r-1", Username: "alice", Password: "secret", MaxActivePoints: 2, Expiration: testTime, AutoRenewalEnabled: true},
	}

	rec := serve(t, setupMux(d), http.MethodGet, "/api/v1/accounts", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "secret", "password must never be returned")

	var resp []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "alice", resp[0]["username"])
	assert.Equal(t, testTimeStr, resp[0]["expiration"])
	assert.Equal(t, true, resp[0]["auto_renewal_enabled"])
	assert.Equal(t, false, resp[0]["renewal_suspended"])
	assert.Nil(t, resp[0]["renewal_advance_minutes"])
}

func TestListAccounts_EmptyIsArray(t *testing.T) {
	d := newDeps()

	rec := serve(t, setupMux(d), http.MethodGet, "/api/v1/accounts", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetAccount(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		account    model.Account
		err        error
		wantStatus int
	}{
		{
			name:       "found with note",
			path:       "/api/v1/accounts/1",
			account:    model.Account{ID: 1, Username: "alice", Expiration: testTime, Note: "**vip** <script>x()</script>"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "not found",
			path:       "/api/v1/accounts/99",
			err:        fmt.Errorf("get account 99: %w", driven.ErrAccountNotFound),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "invalid id",
			path:       "/api/v1/accounts/abc",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "store error",
			path:       "/api/v1/accounts/1",
			err:        errors.New("db fail"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.automation.account = tt.account
			d.automation.acctErr = tt.err

			rec := serve(t, setupMux(d), http.MethodGet, tt.path, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				var resp map[string]any
				decodeJSON(t, rec, &resp)
				noteHTML, ok := resp["note_html"].(string)
				require.True(t, ok)
				assert.Contains(t, noteHTML, "<strong>vip</strong>")
				assert.NotContains(t, noteHTML, "<script>")
			}
		})
	}
}

func TestUpdateAccountRenewal(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantAdv    *int
	}{
		{
			name:       "set override",
			body:       `{"auto_renewal_enabled":true,"renewal_advance_minutes":5}`,
			wantStatus: http.StatusOK,
			wantAdv:    intPtr(5),
		},
		{
			name:       "clear override",
			body:       `{"auto_renewal_enabled":false}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "zero override",
			body:       `{"auto_renewal_enabled":true,"renewal_advance_minutes":0}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing flag",
			body:       `{"renewal_advance_minutes":5}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "override not below period",
			body:       `{"auto_renewal_enabled":true,"renewal_advance_minutes":50000}`,
			err:        fmt.Errorf("%w: advance must be below the renewal period", application.ErrInvalidSettings),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown account",
			body:       `{"auto_renewal_enabled":true}`,
			err:        driven.ErrAccountNotFound,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.automation.account = model.Account{ID: 1, Username: "alice", Expiration: testTime}
			d.automation.acctErr = tt.err

			rec := serve(t, setupMux(d), http.MethodPut, "/api/v1/accounts/1/renewal", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, d.automation.gotAuto)
				assert.Equal(t, tt.wantAdv, d.automation.gotAdv)

				var resp map[string]any
				decodeJSON(t, rec, &resp)
				if tt.wantAdv != nil {
					assert.Equal(t, float64(*tt.wantAdv), resp["renewal_advance_minutes"])
				} else {
					assert.Nil(t, resp["renewal_advance_minutes"])
				}
			}
		})
	}
}

func TestResumeAccountRenewal(t *testing.T) {
	d := newDeps()
	suspended := testTime
	d.automation.account = model.Account{
		ID:                   4,
		Username:             "bob",
		Expiration:           testTime,
		RenewalSuspendedAt:   &suspended,
		RenewalSuspendReason: "panel 404",
	}

	rec := serve(t, setupMux(d), http.MethodPost, "/api/v1/accounts/4/renewal/resume", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(4), d.automation.resumedID)
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, false, resp["renewal_suspended"])
	assert.Nil(t, resp["renewal_suspended_at"])
}

func TestUpdateAccountNote_RoundTripsSanitizedHTML(t *testing.T) {
	d := newDeps()
	d.automation.account = model.Account{ID: 7, Username: "carol", Expiration: testTime}
	mux := setupMux(d)

	rec := serve(t, mux, http.MethodPut, "/api/v1/accounts/7/note",
		`{"note":"**vip** reseller\n<script>alert(1)</script>\n[site](javascript:alert(1))"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), d.automation.notedID)
	var put map[string]any
	decodeJSON(t, rec, &put)
	assert.Contains(t, put["note"], "**vip** reseller")
	putHTML, ok := put["note_html"].(string)
	require.True(t, ok)
	assert.Contains(t, putHTML, "<strong>vip</strong>")

	rec = serve(t, mux, http.MethodGet, "/api/v1/accounts/7", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	decodeJSON(t, rec, &got)
	noteHTML, ok := got["note_html"].(string)
	require.True(t, ok)
	assert.Equal(t, putHTML, noteHTML)
	assert.Contains(t, noteHTML, "<strong>vip</strong>")
	assert.NotContains(t, noteHTML, "<script>")
	assert.NotContains(t, noteHTML, "javascript:")
}

func TestUpdateAccountNote_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		err        error
		wantStatus int
	}{
		{
			name:       "missing note",
			path:       "/api/v1/accounts/1/note",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "too long",
			path:       "/api/v1/accounts/1/note",
			body:       `{"note":"` + strings.Repeat("a", 4001) + `"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid id",
			path:       "/api/v1/accounts/zero/note",
			body:       `{"note":"x"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown account",
			path:       "/api/v1/accounts/9/note",
			body:       `{"note":"x"}`,
			err:        driven.ErrAccountNotFound,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.automation.acctErr = tt.err

			rec := serve(t, setupMux(d), http.MethodPut, tt.path, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestUpdatePanelCredentials(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{
			name:       "stored",
			body:       `{"base_url":"https://panel.example.com","token":"tok"}`,
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "bad url",
			body:       `{"base_url":"not a url","token":"tok"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing token",
			body:       `{"base_url":"https://panel.example.com"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "client rejected",
			body:       `{"base_url":"ftp://panel.example.com","token":"tok"}`,
			err:        fmt.Errorf("%w: unsupported scheme", application.ErrInvalidSettings),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no encryption key",
			body:       `{"base_url":"https://panel.example.com","token":"tok"}`,
			err:        driven.ErrEncryptionKeyNotSet,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.credentials.err = tt.err

			rec := serve(t, setupMux(d), http.MethodPut, "/api/v1/panel/credentials", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, "https://panel.example.com", d.credentials.baseURL)
				assert.Equal(t, "tok", d.credentials.token)
				assert.Empty(t, rec.Body.String())
			}
		})
	}
}

func TestHealth(t *testing.T) {
	last := testTime
	tests := []struct {
		name       string
		summary    application.HealthSummary
		wantStatus int
	}{
		{
			name:       "healthy",
			summary:    application.HealthSummary{Status: "ok", StoreOK: true, PanelConfigured: true, AutomationEnabled: true, LastRunAt: &last},
			wantStatus: http.StatusOK,
		},
		{
			name:       "panel not configured",
			summary:    application.HealthSummary{Status: "degraded", StoreOK: true},
			wantStatus: http.StatusOK,
		},
		{
			name:       "store unavailable",
			summary:    application.HealthSummary{Status: "degraded", StoreOK: false, PanelConfigured: true},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.health.summary = tt.summary

			rec := serve(t, setupMux(d), http.MethodGet, "/api/v1/health", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp map[string]any
			decodeJSON(t, rec, &resp)
			assert.Equal(t, tt.summary.Status, resp["status"])
			assert.Equal(t, tt.summary.PanelConfigured, resp["panel_configured"])
		})
	}
}

func TestRequestID(t *testing.T) {
	d := newDeps()
	mux := setupMux(d)

	t.Run("assigned when absent", func(t *testing.T) {
		rec := serve(t, mux, http.MethodGet, "/api/v1/health", "")
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("propagated when present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	})
}

type panickingDetector struct{}

func (panickingDetector) DetectDivergences(context.Context) (model.DivergenceReport, error) {
	panic("boom")
}

func TestRecoveryMiddleware(t *testing.T) {
	d := newDeps()
	h := httphandler.NewHandler(d.reconciler, panickingDetector{}, d.ticker, d.automation, d.credentials, d.health, slog.Default())
	mux := httphandler.NewServeMux(h, slog.Default())

	rec := serve(t, mux, http.MethodGet, "/api/v1/divergences", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
