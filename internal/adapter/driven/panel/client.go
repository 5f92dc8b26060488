// Package panel implements the PanelClient port against the reseller panel's
// JSON API.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PanelClient = (*Client)(nil)

// defaultHTTPTimeout bounds a single request at the transport level, on top of
// the per-call context deadline set by callers.
const defaultHTTPTimeout = 30 * time.Second

const pageSize = 100

// Client implements the driven.PanelClient port over HTTP/JSON.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	token   string
}

// NewClient creates a panel API client with the following transport stack:
//  1. httpcache (stores responses; GETs carry Cache-Control: no-cache so a
//     listing is never answered from memory without reaching the panel)
//  2. go-github-ratelimit (sleeps on 429 / Retry-After instead of hammering the panel)
//  3. bearer token auth added per request
func NewClient(baseURL, token string) (*Client, error) {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	rateLimitClient.Timeout = defaultHTTPTimeout

	return NewClientWithHTTPClient(rateLimitClient, baseURL, token)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("panel base URL is empty")
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("panel base URL %q: scheme must be http or https", baseURL)
	}

	return &Client{http: httpClient, baseURL: u, token: token}, nil
}

// lineJSON is the panel's representation of an account ("line").
type lineJSON struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Password       string    `json:"password"`
	MaxConnections int       `json:"max_connections"`
	ExpDate        time.Time `json:"exp_date"`
}

type lineEnvelope struct {
	Data lineJSON `json:"data"`
}

type lineListEnvelope struct {
	Data     []lineJSON `json:"data"`
	NextPage int        `json:"next_page"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// ListRemoteAccounts retrieves every line on the panel, following pagination.
func (c *Client) ListRemoteAccounts(ctx context.Context) ([]model.RemoteAccount, error) {
	accounts := []model.RemoteAccount{}

	page := 1
	for {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(pageSize))

		var env lineListEnvelope
		if err := c.do(ctx, "list accounts", http.MethodGet, "/api/lines?"+q.Encode(), nil, &env); err != nil {
			return nil, fmt.Errorf("listing accounts (page %d): %w", page, err)
		}

		slog.Debug("panel api call", "endpoint", "/api/lines", "page", page, "count", len(env.Data))

		for _, line := range env.Data {
			accounts = append(accounts, mapLine(line))
		}

		if env.NextPage == 0 || env.NextPage <= page {
			break
		}
		page = env.NextPage
	}

	return accounts, nil
}

// RenewAccount asks the panel to extend the line by one period. The returned
// expiration is the panel's, never computed locally.
func (c *Client) RenewAccount(ctx context.Context, remoteID string) (model.RenewalOutcome, error) {
	var env lineEnvelope
	if err := c.do(ctx, "renew account", http.MethodPost, "/api/lines/"+url.PathEscape(remoteID)+"/renew", nil, &env); err != nil {
		return model.RenewalOutcome{}, fmt.Errorf("renewing account %s: %w", remoteID, err)
	}

	if env.Data.ExpDate.IsZero() {
		return model.RenewalOutcome{}, &driven.RemoteError{
			Kind: driven.RemotePermanent,
			Op:   "renew account",
			Err:  errors.New("panel response has no expiration"),
		}
	}

	return model.RenewalOutcome{NewExpiration: env.Data.ExpDate.UTC()}, nil
}

// CreateRemoteAccount provisions a new line.
func (c *Client) CreateRemoteAccount(ctx context.Context, in model.RemoteAccountInput) (model.RemoteAccount, error) {
	var env lineEnvelope
	if err := c.do(ctx, "create account", http.MethodPost, "/api/lines", toLine(in), &env); err != nil {
		return model.RemoteAccount{}, fmt.Errorf("creating account %s: %w", in.Username, err)
	}
	return mapLine(env.Data), nil
}

// UpdateRemoteAccount replaces the editable fields of an existing line.
func (c *Client) UpdateRemoteAccount(ctx context.Context, remoteID string, in model.RemoteAccountInput) (model.RemoteAccount, error) {
	var env lineEnvelope
	if err := c.do(ctx, "update account", http.MethodPut, "/api/lines/"+url.PathEscape(remoteID), toLine(in), &env); err != nil {
		return model.RemoteAccount{}, fmt.Errorf("updating account %s: %w", remoteID, err)
	}
	return mapLine(env.Data), nil
}

// DeleteRemoteAccount removes a line. Deleting a line that no longer exists
// is not an error.
func (c *Client) DeleteRemoteAccount(ctx context.Context, remoteID string) error {
	err := c.do(ctx, "delete account", http.MethodDelete, "/api/lines/"+url.PathEscape(remoteID), nil, nil)
	var remoteErr *driven.RemoteError
	if errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting account %s: %w", remoteID, err)
	}
	return nil
}

// do performs a JSON request and decodes the response into out (if non-nil).
// Every failure is returned as a *driven.RemoteError.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &driven.RemoteError{Kind: driven.RemotePermanent, Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reqBody)
	if err != nil {
		return &driven.RemoteError{Kind: driven.RemotePermanent, Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodGet {
		// Listings drive reconciliation and must reflect the panel right now.
		req.Header.Set("Cache-Control", "no-cache")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failures, deadlines included, are retried on the next tick.
		return &driven.RemoteError{Kind: driven.RemoteTransient, Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &driven.RemoteError{Kind: driven.RemoteTransient, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// statusError classifies a non-2xx response.
func statusError(op string, resp *http.Response) error {
	msg := http.StatusText(resp.StatusCode)

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil && env.Error != "" {
		msg = env.Error
	}

	return &driven.RemoteError{
		Kind:       classifyStatus(resp.StatusCode),
		Op:         op,
		StatusCode: resp.StatusCode,
		Err:        errors.New(msg),
	}
}

func classifyStatus(code int) driven.RemoteErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return driven.RemoteUnauthorized
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500:
		return driven.RemoteTransient
	default:
		return driven.RemotePermanent
	}
}

func mapLine(l lineJSON) model.RemoteAccount {
	return model.RemoteAccount{
		ID:              l.ID,
		Username:        l.Username,
		Password:        l.Password,
		MaxActivePoints: l.MaxConnections,
		Expiration:      l.ExpDate.UTC(),
	}
}

func toLine(in model.RemoteAccountInput) lineJSON {
	return lineJSON{
		Username:       in.Username,
		Password:       in.Password,
		MaxConnections: in.MaxActivePoints,
		ExpDate:        in.Expiration.UTC(),
	}
}
