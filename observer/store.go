package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	strata "github.com/hexleaf/strata"
)

// ObservedStore wraps a strata.VectorStore, instrumenting the write path
// (upserts) and the similarity search. Bookkeeping reads pass through.
type ObservedStore struct {
	strata.VectorStore
	inst *Instruments
}

var _ strata.VectorStore = (*ObservedStore)(nil)

// WrapStore returns an instrumented vector store. When the inner store
// supports keyword search, the wrapper does too.
func WrapStore(inner strata.VectorStore, inst *Instruments) strata.VectorStore {
	o := &ObservedStore{VectorStore: inner, inst: inst}
	if ks, ok := inner.(strata.KeywordSearcher); ok {
		return &observedKeywordStore{ObservedStore: o, ks: ks}
	}
	return o
}

func (o *ObservedStore) Upsert(ctx context.Context, chunk strata.Chunk) (bool, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "rag.store.upsert", trace.WithAttributes(
		AttrStoreOp.String("upsert"),
	))
	defer span.End()
	start := time.Now()

	stored, err := o.VectorStore.Upsert(ctx, chunk)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if stored {
		o.inst.ChunksStored.Add(ctx, 1)
	}
	o.inst.StoreDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrStoreOp.String("upsert"), AttrStatus.String(status)))
	return stored, err
}

func (o *ObservedStore) Query(ctx context.Context, embedding []float32, topK int, filters []strata.Filter) ([]strata.ScoredChunk, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "rag.store.query", trace.WithAttributes(
		AttrStoreOp.String("query"),
		AttrQueryTopK.Int(topK),
	))
	defer span.End()
	start := time.Now()

	results, err := o.VectorStore.Query(ctx, embedding, topK, filters)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(AttrQueryResults.Int(len(results)))
	}
	o.inst.StoreDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrStoreOp.String("query"), AttrStatus.String(status)))
	return results, err
}

type observedKeywordStore struct {
	*ObservedStore
	ks strata.KeywordSearcher
}

var _ strata.KeywordSearcher = (*observedKeywordStore)(nil)

func (o *observedKeywordStore) SearchKeyword(ctx context.Context, query string, topK int) ([]strata.ScoredChunk, error) {
	return o.ks.SearchKeyword(ctx, query, topK)
}
