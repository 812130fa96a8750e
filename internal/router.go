package internal

import (
	"encoding/json"
	"net/http"
	"talkstream/observability"
	"talkstream/runtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// SubscriptionsProvider lists the open subscriptions.
type SubscriptionsProvider func() []runtime.Entry

// InspectProvider lists the stored documents under a key prefix.
type InspectProvider func(prefix string) ([]InspectRow, error)

// NewDebugRouter exposes the metrics and the state of the sync core.
func NewDebugRouter(gatherer prometheus.Gatherer, subscriptions SubscriptionsProvider, inspect InspectProvider) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler(gatherer))
	r.Get("/debug/subscriptions", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(subscriptions())
	})
	r.Get("/debug/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = DefaultInspectPrefix
		}
		rows, err := inspect(prefix)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	})
	return r
}
