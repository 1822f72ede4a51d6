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
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/models"
	"github.com/dmitrijs2005/teamsync/internal/netx"
)

const maxErrorBody = 64 << 10

// HTTPClient talks to the teamsync REST API. It is safe for concurrent use.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client

	mu    sync.RWMutex
	token string
}

var _ API = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse server url: unsupported scheme %q", u.Scheme)
	}
	return &HTTPClient{baseURL: u, http: &http.Client{Timeout: timeout}}, nil
}

func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *HTTPClient) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type errorBody struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	HeldBy  *Holder `json:"held_by"`
}

// do sends one request. in is JSON-encoded when non-nil; out is decoded
// from a 2xx body when non-nil.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	op := method + " " + path

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	u := *c.baseURL
	u.Path += path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.currentToken(); tok != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &ConnectivityError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	appErr := &ApplicationError{Status: resp.StatusCode}

	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Code != "" {
		appErr.Code = eb.Code
		appErr.Message = eb.Message
		appErr.HeldBy = eb.HeldBy
		return appErr
	}
	appErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
	appErr.Message = strings.TrimSpace(string(raw))
	return appErr
}

func rowPath(id string) string {
	return "/api/sales/rows/" + url.PathEscape(id)
}

func lockPath(scope, id string) string {
	return "/api/scopes/" + url.PathEscape(scope) + "/locks/" + url.PathEscape(id)
}

func (c *HTTPClient) Me(ctx context.Context) (Identity, error) {
	var id Identity
	err := c.do(ctx, http.MethodGet, "/api/me", nil, nil, &id)
	return id, err
}

// ListRows returns all rows ordered by date, newest first when desc.
func (c *HTTPClient) ListRows(ctx context.Context, desc bool) ([]models.Row, error) {
	q := url.Values{}
	if !desc {
		q.Set("order", "asc")
	}
	var rows []models.Row
	err := c.do(ctx, http.MethodGet, "/api/sales/rows", q, nil, &rows)
	return rows, err
}

func (c *HTTPClient) GetRow(ctx context.Context, id string) (models.Row, error) {
	var row models.Row
	err := c.do(ctx, http.MethodGet, rowPath(id), nil, nil, &row)
	return row, err
}

func (c *HTTPClient) CreateRow(ctx context.Context, row models.Row) (models.Row, error) {
	var out models.Row
	err := c.do(ctx, http.MethodPost, "/api/sales/rows", nil, row, &out)
	return out, err
}

func (c *HTTPClient) UpdateRow(ctx context.Context, id string, patch models.RowPatch) (models.Row, error) {
	var out models.Row
	err := c.do(ctx, http.MethodPatch, rowPath(id), nil, patch, &out)
	return out, err
}

func (c *HTTPClient) DeleteRow(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, rowPath(id), nil, nil, nil)
}

func (c *HTTPClient) BulkUpdate(ctx context.Context, req models.BulkRowUpdate) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sales/rows/bulk-update", nil, req, &out)
	return out.Count, err
}

func (c *HTTPClient) BulkDelete(ctx context.Context, req models.BulkRowDelete) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sales/rows/bulk-delete", nil, req, &out)
	return out.Count, err
}

func (c *HTTPClient) ListColumns(ctx context.Context) ([]models.Column, error) {
	var cols []models.Column
	err := c.do(ctx, http.MethodGet, "/api/sales/columns", nil, nil, &cols)
	return cols, err
}

func (c *HTTPClient) StartImport(ctx context.Context) (models.ImportUpload, error) {
	var up models.ImportUpload
	err := c.do(ctx, http.MethodPost, "/api/sales/imports", nil, nil, &up)
	return up, err
}

// UploadImport streams a CSV to the presigned URL of up.
func (c *HTTPClient) UploadImport(ctx context.Context, up models.ImportUpload, body io.Reader) error {
	if err := netx.UploadPresigned(ctx, c.http, up.URL, "text/csv", body); err != nil {
		var status *netx.StatusError
		if errors.As(err, &status) {
			return &ApplicationError{Status: status.Code, Code: "upload_failed", Message: status.Body}
		}
		return &ConnectivityError{Op: "PUT import object", Err: err}
	}
	return nil
}

func (c *HTTPClient) CompleteImport(ctx context.Context, importID string) (models.ImportResult, error) {
	var res models.ImportResult
	err := c.do(ctx, http.MethodPost, "/api/sales/imports/"+url.PathEscape(importID), nil, nil, &res)
	return res, err
}

// AcquireLock asks for the edit lease on resourceID. A denial is a normal
// result with HeldBy set.
func (c *HTTPClient) AcquireLock(ctx context.Context, scope, resourceID string) (AcquireResult, error) {
	var res AcquireResult
	err := c.do(ctx, http.MethodPost, lockPath(scope, resourceID), nil, nil, &res)
	return res, err
}

func (c *HTTPClient) Heartbeat(ctx context.Context, scope, resourceID string) (Lease, error) {
	var l Lease
	err := c.do(ctx, http.MethodPut, lockPath(scope, resourceID)+"/heartbeat", nil, nil, &l)
	return l, err
}

func (c *HTTPClient) ReleaseLock(ctx context.Context, scope, resourceID string) error {
	return c.do(ctx, http.MethodDelete, lockPath(scope, resourceID), nil, nil, nil)
}

func (c *HTTPClient) ListLocks(ctx context.Context, scope string) ([]Lease, error) {
	var leases []Lease
	err := c.do(ctx, http.MethodGet, "/api/scopes/"+url.PathEscape(scope)+"/locks", nil, nil, &leases)
	return leases, err
}
