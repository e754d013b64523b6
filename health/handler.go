package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the aggregate health as JSON. Unhealthy aggregates get
// 503 so load balancers and probes can act on the status code alone.
func Handler(monitor *Monitor, systemName string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := monitor.Aggregate(systemName)

		w.Header().Set("Content-Type", "application/json")
		if status.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
