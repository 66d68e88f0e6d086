// Package api exposes the observer-facing HTTP surface: job CRUD and
// actions, the reconciled view's notifications, a health probe carrying
// the live-feed flag, and a server-sent-events bridge onto the stream
// broker.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jobline/jobline/engine"
	"github.com/jobline/jobline/reconcile"
	"github.com/jobline/jobline/stream"
)

// API serves the observer HTTP surface.
type API struct {
	eng    *engine.Engine
	rec    *reconcile.Reconciler
	broker *stream.Broker
	logger *slog.Logger
}

// New creates the API over the orchestration and reconciliation layers.
func New(eng *engine.Engine, rec *reconcile.Reconciler, broker *stream.Broker, logger *slog.Logger) *API {
	return &API{
		eng:    eng,
		rec:    rec,
		broker: broker,
		logger: logger,
	}
}

// Handler returns the routed HTTP handler.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(a.requestLogging)

	r.HandleFunc("/jobs", a.listJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs", a.createJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs/bulk-action", a.bulkAction).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{jobId}", a.getJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{jobId}/retry", a.retryJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{jobId}/cancel", a.cancelJob).Methods(http.MethodPost)
	r.HandleFunc("/notifications", a.listNotifications).Methods(http.MethodGet)
	r.HandleFunc("/events", a.streamEvents).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)

	return r
}
