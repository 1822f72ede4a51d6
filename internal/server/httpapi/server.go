// Package httpapi is the server's REST surface: the sales and boards write
// endpoints, the lease endpoints and the event-bus websocket.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/locks"
	"github.com/dmitrijs2005/teamsync/internal/server/metrics"
	"github.com/dmitrijs2005/teamsync/internal/server/services"
)

// LockService is the lease API used by the handlers.
type LockService interface {
	Acquire(ctx context.Context, scope, resourceID string, who locks.Holder) (locks.AcquireResult, error)
	Heartbeat(ctx context.Context, scope, resourceID, userID string) (locks.Lease, error)
	Release(ctx context.Context, scope, resourceID, userID string) error
	List(ctx context.Context, scope string) ([]locks.Lease, error)
}

type Server struct {
	address string
	sales   *services.SalesService
	boards  *services.BoardService
	locks   LockService
	events  http.Handler
	metrics *metrics.Metrics
	secret  []byte
	logger  logging.Logger
}

// Options carries the collaborators of a Server.
type Options struct {
	Address string
	Sales   *services.SalesService
	Boards  *services.BoardService
	Locks   LockService
	Events  http.Handler
	Metrics *metrics.Metrics
	Secret  []byte
	Logger  logging.Logger
}

func NewServer(o Options) *Server {
	return &Server{
		address: o.Address,
		sales:   o.Sales,
		boards:  o.Boards,
		locks:   o.Locks,
		events:  o.Events,
		metrics: o.Metrics,
		secret:  o.Secret,
		logger:  o.Logger.With("module", "http_server"),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.accessLog)

	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Methods(http.MethodGet).Path("/metrics").Handler(s.metrics.Handler())
	}
	if s.events != nil {
		r.Methods(http.MethodGet).Path("/ws").Handler(s.events)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate)

	api.Methods(http.MethodGet).Path("/me").HandlerFunc(s.me)

	api.Methods(http.MethodGet).Path("/sales/rows").HandlerFunc(s.listRows)
	api.Methods(http.MethodPost).Path("/sales/rows").HandlerFunc(s.createRow)
	api.Methods(http.MethodPost).Path("/sales/rows/bulk-update").HandlerFunc(s.bulkUpdateRows)
	api.Methods(http.MethodPost).Path("/sales/rows/bulk-delete").HandlerFunc(s.bulkDeleteRows)
	api.Methods(http.MethodGet).Path("/sales/rows/{id}").HandlerFunc(s.getRow)
	api.Methods(http.MethodPatch).Path("/sales/rows/{id}").HandlerFunc(s.updateRow)
	api.Methods(http.MethodDelete).Path("/sales/rows/{id}").HandlerFunc(s.deleteRow)

	api.Methods(http.MethodPost).Path("/sales/imports").HandlerFunc(s.startImport)
	api.Methods(http.MethodPost).Path("/sales/imports/{id}").HandlerFunc(s.completeImport)

	api.Methods(http.MethodGet).Path("/sales/columns").HandlerFunc(s.listColumns)
	api.Methods(http.MethodPost).Path("/sales/columns").HandlerFunc(s.createColumn)
	api.Methods(http.MethodPatch).Path("/sales/columns/{id}").HandlerFunc(s.updateColumn)
	api.Methods(http.MethodDelete).Path("/sales/columns/{id}").HandlerFunc(s.deleteColumn)

	api.Methods(http.MethodGet).Path("/boards/{board}/cards").HandlerFunc(s.listCards)
	api.Methods(http.MethodPost).Path("/boards/{board}/cards").HandlerFunc(s.createCard)
	api.Methods(http.MethodGet).Path("/boards/{board}/cards/{id}").HandlerFunc(s.getCard)
	api.Methods(http.MethodPatch).Path("/boards/{board}/cards/{id}").HandlerFunc(s.updateCard)
	api.Methods(http.MethodDelete).Path("/boards/{board}/cards/{id}").HandlerFunc(s.deleteCard)
	api.Methods(http.MethodPost).Path("/boards/{board}/cards/{id}/subtasks").HandlerFunc(s.createSubtask)
	api.Methods(http.MethodPatch).Path("/subtasks/{nano}").HandlerFunc(s.updateSubtask)

	api.Methods(http.MethodGet).Path("/scopes/{scope}/locks").HandlerFunc(s.listLocks)
	api.Methods(http.MethodPost).Path("/scopes/{scope}/locks/{id}").HandlerFunc(s.acquireLock)
	api.Methods(http.MethodPut).Path("/scopes/{scope}/locks/{id}/heartbeat").HandlerFunc(s.heartbeatLock)
	api.Methods(http.MethodDelete).Path("/scopes/{scope}/locks/{id}").HandlerFunc(s.releaseLock)

	return r
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
