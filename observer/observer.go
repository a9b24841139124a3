// Package observer provides OTEL-based observability for the ingestion
// and retrieval paths.
//
// It wraps Embedder, VectorStore, and Retriever with instrumented
// versions that emit traces, metrics, and logs via OpenTelemetry. Users
// export to any OTEL-compatible backend by setting standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/hexleaf/strata/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// Counters
	EmbedRequests metric.Int64Counter
	EmbedTexts    metric.Int64Counter
	ChunksStored  metric.Int64Counter
	QueryRequests metric.Int64Counter

	// Histograms
	EmbedDuration metric.Float64Histogram
	StoreDuration metric.Float64Histogram
	QueryDuration metric.Float64Histogram
	QueryResults  metric.Int64Histogram
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP
// exporters. Configuration comes from standard OTEL env vars
// (OTEL_EXPORTER_OTLP_ENDPOINT, etc.). Returns a shutdown function that
// must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("strata")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	// Log provider
	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := NewInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}
	return inst, shutdown, nil
}

// NewInstruments builds the instrument bundle from the globally
// registered OTEL providers. Init installs OTLP providers first; without
// Init the globals are no-ops, so the bundle is always safe to wire.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(scopeName)

	embedRequests, err := meter.Int64Counter("rag.embed.requests",
		metric.WithDescription("Embedding backend calls"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	embedTexts, err := meter.Int64Counter("rag.embed.texts",
		metric.WithDescription("Texts submitted for embedding"),
		metric.WithUnit("{text}"))
	if err != nil {
		return nil, err
	}
	chunksStored, err := meter.Int64Counter("rag.store.chunks",
		metric.WithDescription("Chunks upserted into vector stores"),
		metric.WithUnit("{chunk}"))
	if err != nil {
		return nil, err
	}
	queryRequests, err := meter.Int64Counter("rag.query.requests",
		metric.WithDescription("Retrieval queries served"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	embedDuration, err := meter.Float64Histogram("rag.embed.duration",
		metric.WithDescription("Embedding call latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	storeDuration, err := meter.Float64Histogram("rag.store.duration",
		metric.WithDescription("Vector store operation latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	queryDuration, err := meter.Float64Histogram("rag.query.duration",
		metric.WithDescription("Retrieval query latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	queryResults, err := meter.Int64Histogram("rag.query.results",
		metric.WithDescription("Results returned per query"),
		metric.WithUnit("{result}"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:        otel.Tracer(scopeName),
		Meter:         meter,
		Logger:        global.GetLoggerProvider().Logger(scopeName),
		EmbedRequests: embedRequests,
		EmbedTexts:    embedTexts,
		ChunksStored:  chunksStored,
		QueryRequests: queryRequests,
		EmbedDuration: embedDuration,
		StoreDuration: storeDuration,
		QueryDuration: queryDuration,
		QueryResults:  queryResults,
	}, nil
}
