package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twittter_api_requests_total",
		Help: "Signed API requests by endpoint and outcome kind",
	}, []string{"endpoint", "outcome"})
	APIDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "twittter_api_request_duration_seconds",
		Help:    "Signed API request duration seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
	Signatures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twittter_signatures_total",
		Help: "Requests signed with HMAC-SHA1",
	})
	HandshakeTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twittter_handshake_transitions_total",
		Help: "OAuth handshake phase transitions",
	}, []string{"phase"})
	CacheWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twittter_timeline_cache_writes_total",
		Help: "Timeline snapshot writes by result",
	}, []string{"result"})
	CacheFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twittter_timeline_cache_fallbacks_total",
		Help: "Timeline fetches served from the snapshot after a transport failure",
	})
	FollowRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twittter_follow_runs_total",
		Help: "Timeline follow refreshes",
	})
	FollowErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twittter_follow_errors_total",
		Help: "Timeline follow refresh errors",
	})
	FollowDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "twittter_follow_duration_seconds",
		Help:    "Timeline follow refresh duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twittter_command_runs_total",
		Help: "CLI command runs",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twittter_command_errors_total",
		Help: "CLI command errors",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(APIRequests, APIDuration, Signatures, HandshakeTransitions,
		CacheWrites, CacheFallbacks, FollowRuns, FollowErrors, FollowDuration,
		CommandRuns, CommandErrors)
}

// Handler serves /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090"), falling
// back to METRICS_ADDR. Returns nil when neither is set.
func StartServer(addr string) *http.Server {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// ObserveAPI records one request outcome. outcome is "ok" or an error kind.
func ObserveAPI(endpoint, outcome string, start time.Time) {
	APIRequests.WithLabelValues(endpoint, outcome).Inc()
	APIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// ObserveFollowDuration records a follow refresh duration.
func ObserveFollowDuration(start time.Time) {
	FollowDuration.Observe(time.Since(start).Seconds())
}

func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
func IncHandshake(phase string) { HandshakeTransitions.WithLabelValues(phase).Inc() }
func IncCacheWrite(result string) { CacheWrites.WithLabelValues(result).Inc() }
