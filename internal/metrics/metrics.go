// Package metrics exposes the process-wide Prometheus counters for the relay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tmt-films/AutoPostingv2/internal/logger"
)

var (
	// MessagesForwarded counts successfully forwarded messages per job.
	MessagesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_forwarded_total",
		Help: "Messages successfully copied to a target channel.",
	}, []string{"job_id"})

	// ForwardErrors counts messages skipped after exhausting retries.
	ForwardErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_forward_errors_total",
		Help: "Messages skipped after exhausting forward retries.",
	}, []string{"job_id"})

	// MessagesDeleted counts executed auto-deletions.
	MessagesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_deleted_total",
		Help: "Forwarded messages removed by the deletion sweeper.",
	})

	// DeletionFailures counts deletion records dropped on permanent errors.
	DeletionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_deletion_failures_total",
		Help: "Deletion records dropped because the delete failed permanently.",
	})

	// JoinRequestsApproved counts auto-approved channel join requests.
	JoinRequestsApproved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_join_requests_approved_total",
		Help: "Channel join requests approved automatically.",
	})
)

// Serve starts the /metrics listener on addr. It returns immediately; the
// server runs until the process exits. A listen failure is logged, not fatal.
func Serve(addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.L().Infof("Metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L().Errorf("Metrics server stopped: %v", err)
		}
	}()
}
