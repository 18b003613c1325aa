package planter

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether an optional dependency is usable.
type HealthCheck func() bool

// StatusServerOptions configures the local status API.
type StatusServerOptions struct {
	// MaxSyncAge is how old the last successful sync may be before the
	// planter reports itself degraded. Defaults to three sync periods.
	MaxSyncAge time.Duration
	// Checks of optional dependencies, such as the MQTT connection.
	Checks map[string]HealthCheck
	// AccessLog enables the combined access log on stdout.
	AccessLog bool
}

type statusServer struct {
	c    *Controller
	opts StatusServerOptions
}

// NewStatusHandler exposes /healthz, /readyz, /schedule, /readings and /metrics.
func NewStatusHandler(c *Controller, opts StatusServerOptions) http.Handler {
	if opts.MaxSyncAge <= 0 {
		opts.MaxSyncAge = 3 * c.syncPeriod
	}
	s := &statusServer{c: c, opts: opts}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.ready).Methods(http.MethodGet)
	r.HandleFunc("/schedule", s.schedule).Methods(http.MethodGet)
	r.HandleFunc("/readings", s.readings).Methods(http.MethodGet)
	if m := c.deps.Metrics; m != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if !opts.AccessLog {
		return r
	}
	return handlers.CombinedLoggingHandler(os.Stdout, r)
}

type healthStatus struct {
	Status       string          `json:"status"`
	LastSync     *time.Time      `json:"last_sync,omitempty"`
	LastSyncErr  string          `json:"last_sync_error,omitempty"`
	Dependencies map[string]bool `json:"dependencies,omitempty"`
}

func (s *statusServer) health(w http.ResponseWriter, _ *http.Request) {
	last, lastErr := s.c.LastSync()
	st := healthStatus{Dependencies: map[string]bool{}}
	if !last.IsZero() {
		st.LastSync = &last
	}
	if lastErr != nil {
		st.LastSyncErr = lastErr.Error()
	}
	depsOK := true
	for name, check := range s.opts.Checks {
		ok := check()
		st.Dependencies[name] = ok
		depsOK = depsOK && ok
	}

	fresh := !last.IsZero() && s.c.now().Sub(last) <= s.opts.MaxSyncAge
	switch {
	case fresh && depsOK:
		st.Status = "ok"
	case fresh || !last.IsZero():
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	writeJSON(w, http.StatusOK, st)
}

// ready is 200 once the parameters have been synced at least once.
func (s *statusServer) ready(w http.ResponseWriter, _ *http.Request) {
	last, _ := s.c.LastSync()
	ready := !last.IsZero()
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, struct {
		Ready bool `json:"ready"`
	}{ready})
}

func (s *statusServer) schedule(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.c.schedule.Snapshot())
}

func (s *statusServer) readings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.c.Latest())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
