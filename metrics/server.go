package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trivia_rounds_total",
			Help: "Total number of trivia rounds by status (started, completed, aborted, rejected, source_unavailable)",
		},
		[]string{"status"},
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trivia_answers_total",
			Help: "Total number of submitted answers by result (accepted, late, duplicate, no_round, invalid)",
		},
		[]string{"result"},
	)

	ScoredAnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trivia_scored_answers_total",
			Help: "Total number of answers scored at finalization by outcome (correct, wrong)",
		},
		[]string{"outcome"},
	)

	FinalizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trivia_finalize_duration_seconds",
			Help:    "Duration of question finalization (scoring and announcement) in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ChatCommandTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_command_total",
			Help: "Total number of chat commands invoked by command type",
		},
		[]string{"command"},
	)

	ChatMessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of chat messages sent by result (ok, error)",
		},
		[]string{"result"},
	)

	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_exports_total",
			Help: "Total number of leaderboard exports by trigger (schedule, admin) and result",
		},
		[]string{"trigger", "result"},
	)

	PayoutSharesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_shares_total",
			Help: "Total number of computed payout shares by result (transferred, skipped, failed)",
		},
		[]string{"result"},
	)
)

// Server serves /metrics and /healthz.
type Server struct {
	*http.Server
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// SetupServer builds the metrics server on addr with its own registry.
// /healthz fails while any check fails.
func SetupServer(addr string, checks ...HealthCheck) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		RoundsTotal,
		AnswersTotal,
		ScoredAnswersTotal,
		FinalizeDuration,
		ChatCommandTotal,
		ChatMessagesSent,
		ExportsTotal,
		PayoutSharesTotal,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", healthzHandler(checks))

	return &Server{&http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

// healthzHandler returns a simple health check response
func healthzHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, check := range checks {
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("UNAVAILABLE: " + err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}
