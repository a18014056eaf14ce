package observability

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

// Metrics is the fixed set of Prometheus instruments the tick loop, the
// client I/O fabric and the journal worker update. Field names mirror
// spec.md §6's "metrics sink" contract: tick duration, connection count,
// queue depth, script errors, and journal lag.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	TickDuration      prometheus.Observer
	TickOverruns      prometheus.Counter
	ActionQueueDepth  prometheus.Gauge
	ScriptErrorTotal  *prometheus.CounterVec
	JournalLagSeconds prometheus.Gauge
	JournalBatchSize  prometheus.Observer
	CommandReject     *prometheus.CounterVec
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer.(*prometheus.Registry)
	}
	return &Metrics{
		ActiveConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "remud_active_connections",
			Help: "Number of live telnet and admin connections",
		}),
		TickDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "remud_tick_duration_ms",
			Help:    "Wall-clock duration of one scheduler tick",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		TickOverruns: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "remud_tick_overrun_total",
			Help: "Ticks whose work exceeded the fixed tick interval",
		}),
		ActionQueueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "remud_action_queue_depth",
			Help: "Actions pending at the start of the Main phase",
		}),
		ScriptErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "remud_script_error_total",
			Help: "Script runtime errors, by script name",
		}, []string{"script"}),
		JournalLagSeconds: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "remud_journal_lag_seconds",
			Help: "Age of the oldest update record still waiting on the journal worker",
		}),
		JournalBatchSize: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "remud_journal_batch_size",
			Help:    "Number of update records applied per journal transaction",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		CommandReject: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "remud_command_reject_total",
			Help: "Commands rejected by the parser or privilege check",
		}, []string{"reason"}),
	}
}

func SetupTracerProvider(ctx context.Context, serviceName string, stdout bool, logger *zap.Logger) (*sdktrace.TracerProvider, error) {
	var exporter *stdouttrace.Exporter
	var err error
	if stdout {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
	}

	rs := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(rs),
	)
	if exporter != nil {
		tp.RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
	}
	otel.SetTracerProvider(tp)
	logger.Info("tracer initialized")
	return tp, nil
}

func SetupLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	return cfg.Build()
}

// ZapToSlog wraps a zap.Logger as slog.Logger.
func ZapToSlog(logger *zap.Logger) *slog.Logger {
	return slog.New(slogHandler{logger.Sugar()})
}

type slogHandler struct {
	sugar *zap.SugaredLogger
}

func (h slogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h slogHandler) Handle(ctx context.Context, r slog.Record) error {
	args := make([]interface{}, 0, r.NumAttrs()*2)
	r.Attrs(func(a slog.Attr) bool {
		args = append(args, a.Key, a.Value.Any())
		return true
	})
	switch r.Level {
	case slog.LevelDebug:
		h.sugar.Debugw(r.Message, args...)
	case slog.LevelInfo:
		h.sugar.Infow(r.Message, args...)
	case slog.LevelWarn:
		h.sugar.Warnw(r.Message, args...)
	case slog.LevelError:
		h.sugar.Errorw(r.Message, args...)
	}
	return nil
}

func (h slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	args := make([]interface{}, 0, len(attrs)*2)
	for _, a := range attrs {
		args = append(args, a.Key, a.Value.Any())
	}
	return slogHandler{h.sugar.With(args...)}
}

func (h slogHandler) WithGroup(name string) slog.Handler {
	return h
}
