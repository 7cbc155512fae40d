package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/railtracker-live/internal/common/logger"
)

var (
	// MessagesReceived counts STOMP MESSAGE deliveries, by outcome.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railtracker_messages_received_total",
		Help: "Inbound passenger-event messages, by outcome.",
	}, []string{"outcome"})

	// EventsApplied counts passenger events applied to the graph, by kind.
	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railtracker_passenger_events_applied_total",
		Help: "Passenger events applied to the network graph, by kind.",
	}, []string{"kind"})

	// EventsDropped counts events discarded before reaching the graph.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railtracker_passenger_events_dropped_total",
		Help: "Passenger events dropped, by reason.",
	}, []string{"reason"})
)

// Serve exposes the default registry on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Metrics endpoint failed", "error", err)
	}
}
