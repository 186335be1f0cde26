package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage labels for StageDuration.
const (
	StageConfig  = "config"
	StageCandles = "candles"
	StageSignal  = "signal"
	StageRisk    = "risk"
	StagePublish = "publish"
)

// Metrics holds all Prometheus metrics for the signal pipeline.
type Metrics struct {
	CyclesTotal      *prometheus.CounterVec // labels: status
	RejectionsTotal  *prometheus.CounterVec // labels: reason
	SignalsPublished prometheus.Counter
	SignalsFetched   prometheus.Counter
	StageDuration    *prometheus.HistogramVec // labels: stage
	LastATR          *prometheus.GaugeVec     // labels: symbol

	// Ledger and paper execution
	DecisionsLogged prometheus.Counter
	TradesClosed    *prometheus.CounterVec // labels: reason

	// Candle cache
	CacheFallbacks prometheus.Counter

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

// NewMetrics creates all metrics and registers them on reg. A nil reg
// leaves them unregistered, which is what tests and preview runs want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbridge_cycles_total",
			Help: "Pipeline cycles by final status",
		}, []string{"status"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbridge_gate_rejections_total",
			Help: "Signals rejected by the risk gate (by reason)",
		}, []string{"reason"}),
		SignalsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbridge_signals_published_total",
			Help: "Signals pushed onto the queue",
		}),
		SignalsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbridge_signals_fetched_total",
			Help: "Signals claimed from the queue",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalbridge_stage_duration_seconds",
			Help:    "Cycle stage latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"stage"}),
		LastATR: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalbridge_last_atr",
			Help: "ATR computed by the most recent gate evaluation",
		}, []string{"symbol"}),

		DecisionsLogged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbridge_decisions_logged_total",
			Help: "Rows appended to the decision log",
		}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbridge_trades_closed_total",
			Help: "Trade results written (by exit reason)",
		}, []string{"reason"}),

		CacheFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbridge_candle_cache_fallbacks_total",
			Help: "Cycles served from the SQLite candle cache after an upstream failure",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbridge_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbridge_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CyclesTotal,
			m.RejectionsTotal,
			m.SignalsPublished,
			m.SignalsFetched,
			m.StageDuration,
			m.LastATR,
			m.DecisionsLogged,
			m.TradesClosed,
			m.CacheFallbacks,
			m.RedisCircuitBreakerState,
			m.RedisCircuitBreakerTrips,
		)
	}

	return m
}

// ObserveStage records d against stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteEnabled  bool      `json:"sqlite_enabled"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastCycleAt    time.Time `json:"last_cycle_at"`
	LastStatus     string    `json:"last_status"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

// SetRedisConnected marks Redis as a checked dependency. Until Redis is
// set or probed it does not count towards health, as in preview runs.
func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = v
	h.mu.Unlock()
}

// SetCycle records the outcome of the latest cycle.
func (h *HealthStatus) SetCycle(status string, at time.Time) {
	h.mu.Lock()
	h.LastStatus = status
	h.LastCycleAt = at
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a ping against the candle cache and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. sqlDB may be nil
// when no candle cache is configured.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisDown := h.RedisEnabled && !h.RedisConnected
	sqliteDown := h.SQLiteEnabled && !h.SQLiteOK
	if redisDown || sqliteDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if redisDown && sqliteDown {
		overallStatus = "unhealthy"
	}

	cycleAge := ""
	if !h.LastCycleAt.IsZero() {
		cycleAge = time.Since(h.LastCycleAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		LastStatus      string  `json:"last_status"`
		LastCycleAt     string  `json:"last_cycle_at"`
		CycleAge        string  `json:"cycle_age"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteEnabled   bool    `json:"sqlite_enabled"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		LastStatus:      h.LastStatus,
		LastCycleAt:     h.LastCycleAt.Format(time.RFC3339),
		CycleAge:        cycleAge,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server backed by gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the server's mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
