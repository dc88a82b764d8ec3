package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus is the body of the /health endpoint.
type HealthStatus struct {
	Status       string `json:"status"`
	Height       uint64 `json:"height"`
	SyncedHeight uint64 `json:"synced_height"`
	Error        string `json:"error,omitempty"`
}

func (n *Node) instrumentationHandler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", n.healthHandler).Methods(http.MethodGet)
	return r
}

func pprofHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	r.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	return r
}

func (n *Node) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status, err := n.Health(ctx)
	code := http.StatusOK
	if err != nil {
		status.Status = "unavailable"
		status.Error = err.Error()
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		n.logger.Error("failed to write health response", "error", err)
	}
}

// Health probes the block production loop and the store.
func (n *Node) Health(ctx context.Context) (HealthStatus, error) {
	if err := n.producer.Ready(ctx); err != nil {
		return HealthStatus{}, fmt.Errorf("block producer is not responding: %w", err)
	}
	height, err := n.store.Height(ctx)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("store is not readable: %w", err)
	}
	synced, err := n.store.GetSyncedHeight(ctx)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("store is not readable: %w", err)
	}
	return HealthStatus{Status: "ok", Height: height, SyncedHeight: synced}, nil
}
