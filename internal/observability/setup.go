package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Global logger instance
	Logger *zap.Logger

	tracerProvider *trace.TracerProvider

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_commands_total",
			Help: "Total number of moderation commands handled",
		},
		[]string{"command"},
	)

	restrictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restrictions_total",
			Help: "Total number of restrictions applied",
		},
		[]string{"kind"},
	)

	restoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restriction_restores_total",
			Help: "Outcomes of scheduled restriction restores",
		},
		[]string{"result"},
	)

	challengesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_challenges_total",
			Help: "Outcomes of newbie admission challenges",
		},
		[]string{"outcome"},
	)
)

// Init wires the zap logger, the tracer provider and the prometheus metrics
// endpoint. Call once at startup.
func Init(ctx context.Context, metricsAddr string) error {
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(commandsTotal)
	prometheus.MustRegister(restrictionsTotal)
	prometheus.MustRegister(restoresTotal)
	prometheus.MustRegister(challengesTotal)

	tracerProvider = trace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	Logger.Info("observability initialized", zap.String("metrics_addr", metricsAddr))
	return nil
}

// Shutdown flushes the logger and stops the tracer provider.
func Shutdown(ctx context.Context) {
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("cant shutdown tracer provider")
		}
	}
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// RecordCommand counts one handled chat command.
func RecordCommand(command string) {
	commandsTotal.WithLabelValues(command).Inc()
}

// RecordRestriction counts one applied restriction of the given kind.
func RecordRestriction(kind string) {
	restrictionsTotal.WithLabelValues(kind).Inc()
}

// RecordRestore counts one scheduled restore outcome: applied, stale, failed.
func RecordRestore(result string) {
	restoresTotal.WithLabelValues(result).Inc()
}

// RecordChallenge counts one admission challenge outcome.
func RecordChallenge(outcome string) {
	challengesTotal.WithLabelValues(outcome).Inc()
}
