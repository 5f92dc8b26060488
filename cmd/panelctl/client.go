package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiClient is a thin JSON client for the panelsync HTTP API.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

// apiError is a non-2xx answer from the API.
type apiError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("panelsync returned %d: %s", e.Status, e.Message)
	for field, rule := range e.Fields {
		msg += fmt.Sprintf("\n  %s: %s", field, rule)
	}
	return msg
}

func newAPIClient(addr, timeout string) (*apiClient, error) {
	u, err := url.Parse(addr)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid --addr %q: want http(s)://host:port", addr)
	}

	d, err := time.ParseDuration(timeout)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("invalid --timeout %q", timeout)
	}

	return &apiClient{
		baseURL:    strings.TrimRight(addr, "/") + "/api/v1",
		httpClient: &http.Client{Timeout: d},
	}, nil
}

// do sends body as JSON (when non-nil) and decodes a 2xx response into out
// (when non-nil). Responses the server marks as failures still decode into
// out when they carry a result body, and the apiError is returned alongside.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}

	var errBody struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	apiErr := &apiError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
		apiErr.Message = errBody.Error
		apiErr.Fields = errBody.Fields
	} else if out != nil && json.Unmarshal(data, out) == nil {
		apiErr.Message = "operation did not complete"
	}
	return apiErr
}
