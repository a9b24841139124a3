package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	strata "github.com/hexleaf/strata"
)

// ObservedRetriever wraps a strata.Retriever with per-query tracing,
// latency and result-count metrics, and a structured completion log.
type ObservedRetriever struct {
	inner    strata.Retriever
	strategy string
	inst     *Instruments
}

var _ strata.Retriever = (*ObservedRetriever)(nil)

// WrapRetriever returns an instrumented retriever. strategy names the
// configured retrieval strategy for attribution.
func WrapRetriever(inner strata.Retriever, strategy string, inst *Instruments) *ObservedRetriever {
	return &ObservedRetriever{inner: inner, strategy: strategy, inst: inst}
}

func (o *ObservedRetriever) Retrieve(ctx context.Context, query string, opts strata.QueryOptions) ([]strata.RetrievalResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "rag.query", trace.WithAttributes(
		AttrQueryTopK.Int(opts.TopK),
	))
	defer span.End()
	start := time.Now()

	results, err := o.inner.Retrieve(ctx, query, opts)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(AttrQueryResults.Int(len(results)))
		o.inst.QueryResults.Record(ctx, int64(len(results)))
	}
	o.inst.QueryRequests.Add(ctx, 1, metric.WithAttributes(AttrStatus.String(status)))
	o.inst.QueryDuration.Record(ctx, durationMs)

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("retrieval completed"))
	rec.AddAttributes(
		otellog.String("rag.query.strategy", o.strategy),
		otellog.Int("rag.query.results", len(results)),
		otellog.Float64("rag.query.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)

	return results, err
}
