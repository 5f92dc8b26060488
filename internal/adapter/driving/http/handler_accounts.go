package httphandler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/panelsync/internal/application"
	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
)

// ListAccounts returns every local account, soonest expiration first.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.automation.ListAccounts(r.Context())
	if err != nil {
		h.logger.Error("failed to list accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetAccount returns one account with its note rendered as sanitized HTML.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAccountID(w, r)
	if !ok {
		return
	}

	account, err := h.automation.GetAccount(r.Context(), id)
	if err != nil {
		h.writeAccountError(w, id, "get account", err)
		return
	}

	resp := toAccountResponse(account)
	resp.NoteHTML = RenderMarkdown(account.Note)
	writeJSON(w, http.StatusOK, resp)
}

// UpdateAccountRenewal sets the per-account auto-renewal flag and advance
// override. Omitting renewal_advance_minutes clears the override.
func (h *Handler) UpdateAccountRenewal(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAccountID(w, r)
	if !ok {
		return
	}

	var req AccountRenewalRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	account, err := h.automation.SetAccountRenewal(r.Context(), id, *req.AutoRenewalEnabled, req.RenewalAdvanceMinutes)
	if err != nil {
		h.writeAccountError(w, id, "update account renewal", err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// ResumeAccountRenewal clears a renewal suspension.
func (h *Handler) ResumeAccountRenewal(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAccountID(w, r)
	if !ok {
		return
	}

	account, err := h.automation.ResumeRenewal(r.Context(), id)
	if err != nil {
		h.writeAccountError(w, id, "resume account renewal", err)
		return
	}

	h.logger.Info("account renewal resumed", "account", account.Username)
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// UpdateAccountNote replaces the account's markdown note and echoes the
// account back with the rendered note.
func (h *Handler) UpdateAccountNote(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAccountID(w, r)
	if !ok {
		return
	}

	var req AccountNoteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	account, err := h.automation.SetAccountNote(r.Context(), id, *req.Note)
	if err != nil {
		h.writeAccountError(w, id, "update account note", err)
		return
	}

	resp := toAccountResponse(account)
	resp.NoteHTML = RenderMarkdown(account.Note)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeAccountError(w http.ResponseWriter, id int64, op string, err error) {
	switch {
	case errors.Is(err, driven.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, application.ErrInvalidSettings):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("account request failed", "op", op, "account_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func parseAccountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return 0, false
	}
	return id, true
}

// Compile-time check that the application service satisfies the handler's
// port.
var _ AutomationService = (*application.AutomationService)(nil)
