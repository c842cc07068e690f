package obsmetrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// HealthFunc reports whether the replica is ready to serve, called once per
// /healthz request.
type HealthFunc func() error

// NewServer builds the admin HTTP surface: Prometheus's /metrics and a
// /healthz backed by healthFn, wrapped in gorilla/handlers' panic recovery
// and combined access logging the way the teacher wraps its own routers.
func NewServer(addr string, m *Metrics, healthFn HealthFunc) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/healthz", healthzHandler(healthFn)).Methods("GET")

	logged := handlers.CombinedLoggingHandler(logrus.StandardLogger().Writer(), router)
	recovered := handlers.RecoveryHandler()(logged)

	return &http.Server{
		Addr:              addr,
		Handler:           recovered,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func healthzHandler(healthFn HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := healthFn(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
