package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Sampling metrics
	SamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubwatch_samples_total",
			Help: "Total activity samples taken, per activity id",
		},
		[]string{"activity"},
	)

	ActiveMinutes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hubwatch_active_minutes",
			Help: "Active minutes tallied for the current day, per activity id",
		},
		[]string{"activity"},
	)

	TotalActiveMinutes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hubwatch_total_active_minutes",
			Help: "Total active minutes for the current day, excluding power-off",
		},
	)

	// Threshold metrics
	WarningsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubwatch_warnings_sent_total",
			Help: "Warning notifications produced, per threshold percentage",
		},
		[]string{"pct"},
	)

	ShutdownsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hubwatch_shutdowns_total",
			Help: "Hub shutdowns triggered by the daily limit",
		},
	)

	// Failure metrics
	TickErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubwatch_tick_errors_total",
			Help: "Abandoned ticks, per pipeline stage",
		},
		[]string{"stage"},
	)

	NotifyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubwatch_notify_failures_total",
			Help: "Notification deliveries that failed, per recipient",
		},
		[]string{"recipient"},
	)
)

func init() {
	prometheus.MustRegister(
		SamplesTotal,
		ActiveMinutes,
		TotalActiveMinutes,
		WarningsSent,
		ShutdownsTotal,
		TickErrors,
		NotifyFailures,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
