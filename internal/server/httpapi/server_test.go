package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/auth"
	"github.com/dmitrijs2005/teamsync/internal/server/cache"
	"github.com/dmitrijs2005/teamsync/internal/server/events"
	"github.com/dmitrijs2005/teamsync/internal/server/locks"
	"github.com/dmitrijs2005/teamsync/internal/server/metrics"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/teamsync/internal/server/services"
)

var secret = []byte("test-secret")

type env struct {
	srv  *httptest.Server
	mock sqlmock.Sqlmock
	bus  *events.Bus
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	m := metrics.New()
	store := cache.NewStore(cache.Config{Addr: mr.Addr()}, logging.Nop(), m)
	store.Start(context.Background())
	t.Cleanup(func() { _ = store.Close() })

	bus := events.NewBus(16, logging.Nop(), m)
	coord := locks.NewCoordinator(locks.NewMemoryStore(), bus, time.Minute, logging.Nop())

	deps := services.Deps{
		DB:       db,
		Repos:    repomanager.NewPostgresRepositoryManager(),
		Cache:    store,
		CacheTTL: time.Minute,
		Guard:    coord,
		Bus:      bus,
		Logger:   logging.Nop(),
	}
	s := NewServer(Options{
		Sales:   services.NewSalesService(deps, nil),
		Boards:  services.NewBoardService(deps),
		Locks:   coord,
		Events:  events.NewWSHandler(bus, UserIdentifier(secret), logging.Nop()),
		Metrics: m,
		Secret:  secret,
		Logger:  logging.Nop(),
	})

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &env{srv: srv, mock: mock, bus: bus}
}

func token(t *testing.T, id, name string) string {
	t.Helper()
	tok, err := auth.GenerateToken(auth.Identity{UserID: id, DisplayName: name}, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *env) do(t *testing.T, method, path, tok string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealthzAndMetrics(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := e.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "teamsync_http_request_duration_seconds")
}

func TestAuth(t *testing.T) {
	e := newEnv(t)

	resp, body := e.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), `"unauthorized"`)

	expired, err := auth.GenerateToken(auth.Identity{UserID: "u1"}, secret, -time.Minute)
	require.NoError(t, err)
	resp, body = e.do(t, http.MethodGet, "/api/me", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), `"token_expired"`)

	resp, body = e.do(t, http.MethodGet, "/api/me", token(t, "u1", "Alice"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var id auth.Identity
	require.NoError(t, json.Unmarshal(body, &id))
	assert.Equal(t, auth.Identity{UserID: "u1", DisplayName: "Alice"}, id)
}

func TestLockContentionOverHTTP(t *testing.T) {
	e := newEnv(t)
	a := token(t, "u-a", "Alice")
	b := token(t, "u-b", "Bob")
	const path = "/api/scopes/sales/locks/r1"

	var res locks.AcquireResult

	resp, body := e.do(t, http.MethodPost, path, a, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.Granted)

	resp, body = e.do(t, http.MethodPost, path, b, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = locks.AcquireResult{}
	require.NoError(t, json.Unmarshal(body, &res))
	assert.False(t, res.Granted)
	require.NotNil(t, res.HeldBy)
	assert.Equal(t, locks.Holder{ID: "u-a", Name: "Alice"}, *res.HeldBy)

	resp, _ = e.do(t, http.MethodPut, path+"/heartbeat", b, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = e.do(t, http.MethodPut, path+"/heartbeat", a, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = e.do(t, http.MethodGet, "/api/scopes/sales/locks", b, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var leases []locks.Lease
	require.NoError(t, json.Unmarshal(body, &leases))
	require.Len(t, leases, 1)
	assert.Equal(t, "r1", leases[0].ResourceID)

	// Bob's release is a silent no-op.
	resp, _ = e.do(t, http.MethodDelete, path, b, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = e.do(t, http.MethodDelete, path, a, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, path, b, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = locks.AcquireResult{}
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.Granted)
}

func TestWriteToLeasedRowIsLocked(t *testing.T) {
	e := newEnv(t)
	a := token(t, "u-a", "Alice")
	b := token(t, "u-b", "Bob")

	resp, _ := e.do(t, http.MethodPost, "/api/scopes/sales/locks/r1", a, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := e.do(t, http.MethodPatch, "/api/sales/rows/r1", b, map[string]any{"fields": map[string]any{"x": 1}})
	assert.Equal(t, http.StatusLocked, resp.StatusCode)

	var eb ErrorBody
	require.NoError(t, json.Unmarshal(body, &eb))
	assert.Equal(t, "locked", eb.Code)
	require.NotNil(t, eb.HeldBy)
	assert.Equal(t, "Alice", eb.HeldBy.Name)
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestGetRowIsServedFromCacheOnSecondRead(t *testing.T) {
	e := newEnv(t)
	tok := token(t, "u-a", "Alice")
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	e.mock.ExpectQuery(`FROM sales_rows WHERE id = \$1`).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "fields", "row_date", "version", "updated_by", "created_at", "updated_at"}).
			AddRow("r1", []byte(`{"client":"Acme"}`), now, 3, "u-a", now, now))

	for i := 0; i < 2; i++ {
		resp, body := e.do(t, http.MethodGet, "/api/sales/rows/r1", tok, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"client":"Acme"`)
	}
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestBadBodyAndNotFound(t *testing.T) {
	e := newEnv(t)
	tok := token(t, "u-a", "Alice")

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/sales/columns", strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	e.mock.ExpectQuery(`FROM cards WHERE id = \$1`).WithArgs("nope").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	resp, body := e.do(t, http.MethodDelete, "/api/boards/b1/cards/nope", tok, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), `"not_found"`)
}

func TestWebsocketReceivesLockEvents(t *testing.T) {
	e := newEnv(t)
	a := token(t, "u-a", "Alice")

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?scope=sales&access_token=" + token(t, "u-b", "Bob")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return e.bus.Subscribers("sales") == 1 }, time.Second, 5*time.Millisecond)

	resp, _ := e.do(t, http.MethodPost, "/api/scopes/sales/locks/r9", a, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.RowLocked, ev.Name)

	var payload locks.LockEvent
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "r9", payload.ResourceID)
	require.NotNil(t, payload.Holder)
	assert.Equal(t, "Alice", payload.Holder.Name)
}

func TestWebsocketRejectsMissingToken(t *testing.T) {
	e := newEnv(t)
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?scope=sales"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
