// Package client talks to the checklist HTTP API. Every request carries a
// finite timeout; transport failures and timeouts surface as
// checklist.ErrStorageUnavailable and API error codes map back onto the
// checklist sentinels.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"checklist/api/internal/checklist"
	"checklist/api/internal/store"
)

const (
	DefaultTimeout = 5 * time.Second
	userHeader     = "X-Checklist-User"
)

// APIError is a non-2xx response. It unwraps to the checklist sentinel named
// by Code.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if err := checklist.FromCode(e.Code); err != nil {
		return err
	}
	switch e.Status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return checklist.ErrStorageUnavailable
	}
	return nil
}

type Client struct {
	baseURL string
	user    string
	http    *http.Client
}

// New returns a client for the API at baseURL acting as user. A non-positive
// timeout selects DefaultTimeout.
func New(baseURL, user string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) User() string {
	return c.user
}

func (c *Client) ListTemplates(ctx context.Context) ([]checklist.TemplateSummary, error) {
	var out struct {
		Templates []checklist.TemplateSummary `json:"templates"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/templates", nil, &out); err != nil {
		return nil, err
	}
	return out.Templates, nil
}

func (c *Client) GetTemplate(ctx context.Context, name string) (store.Template, error) {
	var out store.Template
	err := c.do(ctx, http.MethodGet, "/api/templates/"+url.PathEscape(name), nil, &out)
	return out, err
}

func (c *Client) UpsertTemplate(ctx context.Context, name string, items []string, mandatory []bool) (store.Template, error) {
	body := map[string]any{"items": items, "mandatory": mandatory}
	var out store.Template
	err := c.do(ctx, http.MethodPut, "/api/templates/"+url.PathEscape(name), body, &out)
	return out, err
}

func (c *Client) DeleteTemplate(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/templates/"+url.PathEscape(name), nil, nil)
}

func (c *Client) CreateSession(ctx context.Context, sessionName, templateName string) (string, error) {
	body := map[string]any{"sessionName": sessionName, "templateName": templateName}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ListSessions returns active sessions, or the completed archive when
// completed is true.
func (c *Client) ListSessions(ctx context.Context, completed bool) ([]checklist.SessionSummary, error) {
	path := "/api/sessions?status=active"
	if completed {
		path = "/api/sessions?status=completed"
	}
	var out struct {
		Sessions []checklist.SessionSummary `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (checklist.SessionView, error) {
	var out checklist.SessionView
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Fetch is GetSession under the name the polling viewer expects.
func (c *Client) Fetch(ctx context.Context, id string) (checklist.SessionView, error) {
	return c.GetSession(ctx, id)
}

// ApplyItemUpdate sends the update attributed to the client's user.
func (c *Client) ApplyItemUpdate(ctx context.Context, id string, index int, update checklist.ItemUpdate) (checklist.Progress, error) {
	body := map[string]any{"user": c.user}
	if update.Checked != nil {
		body["checked"] = *update.Checked
	}
	if update.Comment != nil {
		body["comment"] = *update.Comment
	}
	var out checklist.Progress
	path := "/api/sessions/" + url.PathEscape(id) + "/items/" + strconv.Itoa(index)
	err := c.do(ctx, http.MethodPatch, path, body, &out)
	return out, err
}

func (c *Client) CompleteSession(ctx context.Context, id string) (checklist.SessionView, error) {
	var out checklist.SessionView
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/complete", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set(userHeader, c.user)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		}
		return fmt.Errorf("%s %s: %w: %w", method, path, checklist.ErrStorageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Code == "" {
		payload.Code = checklist.CodeServerError
		payload.Error = strings.TrimSpace(string(raw))
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
	}
	return &APIError{Status: resp.StatusCode, Code: payload.Code, Message: payload.Error}
}
