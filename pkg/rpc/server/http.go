package server

import (
	"fmt"
	"net/http"
)

// registerHealthEndpoints adds the plain HTTP health checks served next to the gRPC
// methods. The liveness check fails once block production has stopped.
func registerHealthEndpoints(mux *http.ServeMux, notifier BlockNotifier) {
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		select {
		case <-notifier.Done():
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "block production stopped")
		default:
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "OK")
		}
	})
}
