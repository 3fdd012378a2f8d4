package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jowharshamshiri/GoZaparoo"
	"github.com/jowharshamshiri/GoZaparoo/pkg/forward"
)

// statusReport is the body served at /status
type statusReport struct {
	Endpoint   string         `json:"endpoint"`
	State      string         `json:"state"`
	Reconnects int            `json:"reconnects"`
	LastError  string         `json:"last_error,omitempty"`
	Pending    int            `json:"pending"`
	Queued     int            `json:"queued"`
	WriteID    string         `json:"pending_write,omitempty"`
	Forward    *forward.Stats `json:"forward,omitempty"`
}

// newStatusRouter serves Prometheus metrics from gatherer and a JSON
// connection report. fwd may be nil.
func newStatusRouter(remote *gozaparoo.Remote, gatherer prometheus.Gatherer, fwd *forward.Forwarder) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		report := statusReport{
			Endpoint:   remote.Endpoint.String(),
			State:      remote.State().String(),
			Reconnects: remote.Manager.Reconnects(),
			Pending:    remote.PendingCount(),
			Queued:     remote.QueuedCount(),
			WriteID:    remote.PendingWriteID(),
		}
		if err := remote.Manager.LastError(); err != nil {
			report.LastError = err.Error()
		}
		if fwd != nil {
			stats := fwd.Stats()
			report.Forward = &stats
		}

		w.Header().Set("Content-Type", "application/json")
		if remote.State() != gozaparoo.StateConnected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
	return r
}
