package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	strata "github.com/hexleaf/strata"
)

// Dataset is a named grouping of documents sharing one processing
// strategy and one target database.
type Dataset struct {
	Name     string
	Strategy string
	Database string

	mu    sync.Mutex
	files []TaskFile
}

// AddFile stages a file for later Process runs without processing it.
func (d *Dataset) AddFile(name string, content []byte) {
	d.mu.Lock()
	d.files = append(d.files, TaskFile{Name: name, Content: content})
	d.mu.Unlock()
}

func (d *Dataset) snapshot() []TaskFile {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]TaskFile, len(d.files))
	copy(out, d.files)
	return out
}

// UploadResult reports what happened to one uploaded file.
type UploadResult struct {
	Filename    string `json:"filename"`
	ContentHash string `json:"content_hash"`
	Processed   bool   `json:"processed"`
	Skipped     bool   `json:"skipped"`
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the structured logger for engine operations.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithOrchestrator replaces the default ingestion orchestrator, mainly
// to tune the worker limit.
func WithOrchestrator(o *Orchestrator) EngineOption {
	return func(e *Engine) { e.orch = o }
}

// Engine is the top-level API: dataset lifecycle, asynchronous ingestion,
// and retrieval queries, all resolved through one Resolver. Queries are
// read-only and run fully concurrently with ongoing ingestion; a chunk
// becomes visible only after its upsert completes.
type Engine struct {
	resolver *Resolver
	orch     *Orchestrator
	logger   *slog.Logger

	mu       sync.RWMutex
	datasets map[string]*Dataset
	tasks    map[string]*Task
}

// New creates an engine over the resolver.
func New(resolver *Resolver, opts ...EngineOption) *Engine {
	e := &Engine{
		resolver: resolver,
		orch:     NewOrchestrator(),
		logger:   strata.NopLogger,
		datasets: make(map[string]*Dataset),
		tasks:    make(map[string]*Task),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CreateDataset registers a dataset bound to a processing strategy and a
// database. The (strategy × database) pipeline is resolved eagerly so
// configuration mistakes surface here, not during the first upload.
func (e *Engine) CreateDataset(ctx context.Context, name, strategy, database string) (*Dataset, error) {
	if name == "" {
		return nil, &strata.ConfigError{Field: "dataset", Reason: "name must not be empty"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.datasets[name]; exists {
		return nil, &strata.ConfigError{Field: "dataset", Reason: fmt.Sprintf("dataset %q already exists", name)}
	}
	if _, err := e.resolver.Resolve(ctx, strategy, database); err != nil {
		return nil, err
	}
	d := &Dataset{Name: name, Strategy: strategy, Database: database}
	e.datasets[name] = d
	e.logger.Info("dataset created", "dataset", name, "strategy", strategy, "database", database)
	return d, nil
}

// Dataset returns a dataset by name.
func (e *Engine) Dataset(name string) (*Dataset, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.datasets[name]
	if !ok {
		return nil, fmt.Errorf("dataset %q: %w", name, strata.ErrNotFound)
	}
	return d, nil
}

// Upload processes a file synchronously and, on success, stages it in
// the dataset for later Process runs. Identical content already in the
// database reports Skipped without storing anything; the total chunk
// count is unchanged. A rejected file is never staged, so it does not
// re-report as an outcome in every subsequent task.
func (e *Engine) Upload(ctx context.Context, dataset, filename string, content []byte) (UploadResult, error) {
	d, err := e.Dataset(dataset)
	if err != nil {
		return UploadResult{}, err
	}
	p, err := e.resolver.Resolve(ctx, d.Strategy, d.Database)
	if err != nil {
		return UploadResult{}, err
	}

	out := p.ProcessFile(ctx, dataset, filename, content)

	res := UploadResult{Filename: filename, ContentHash: out.ContentHash}
	switch out.Status {
	case FileProcessed:
		res.Processed = true
		d.AddFile(filename, content)
	case FileSkippedDuplicate:
		res.Skipped = true
	case FileSkippedUnsupported:
		return res, fmt.Errorf("%s: %w", filename, strata.ErrUnsupportedFormat)
	default:
		return res, fmt.Errorf("upload %s: %s", filename, out.Error)
	}
	return res, nil
}

// Process submits every staged file of the dataset for asynchronous
// ingestion and returns the task handle immediately. Safe to call
// repeatedly: content already ingested is skipped by hash.
func (e *Engine) Process(ctx context.Context, dataset string) (*Task, error) {
	d, err := e.Dataset(dataset)
	if err != nil {
		return nil, err
	}
	p, err := e.resolver.Resolve(ctx, d.Strategy, d.Database)
	if err != nil {
		return nil, err
	}

	t := e.orch.Run(ctx, p, d.Name, d.snapshot())
	e.mu.Lock()
	e.tasks[t.ID()] = t
	e.mu.Unlock()
	return t, nil
}

// Task returns a task handle by id.
func (e *Engine) Task(id string) (*Task, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %q: %w", id, strata.ErrNotFound)
	}
	return t, nil
}

// DeleteDataset removes the dataset's documents and their chunks from the
// bound database. The database itself stays.
func (e *Engine) DeleteDataset(ctx context.Context, name string) error {
	d, err := e.Dataset(name)
	if err != nil {
		return err
	}
	db, err := e.resolver.Database(ctx, d.Database)
	if err != nil {
		return err
	}
	hashes, err := db.Store.DocumentsByDataset(ctx, name)
	if err != nil {
		return &strata.StoreError{Op: "documents-by-dataset", Err: err}
	}
	for _, h := range hashes {
		if err := db.Store.DeleteDocument(ctx, h); err != nil {
			return &strata.StoreError{Op: "delete-document", Err: err}
		}
	}

	e.mu.Lock()
	delete(e.datasets, name)
	e.mu.Unlock()
	e.logger.Info("dataset deleted", "dataset", name, "documents", len(hashes))
	return nil
}

// Query runs a retrieval strategy of the database against the query
// text. An empty retrieval name selects the database default. An empty
// result list is success; ErrNoBackend signals an unavailable backend.
func (e *Engine) Query(ctx context.Context, database, retrieval, query string, opts strata.QueryOptions) ([]strata.RetrievalResult, error) {
	db, err := e.resolver.Database(ctx, database)
	if err != nil {
		return nil, err
	}
	r, err := db.Retriever(retrieval)
	if err != nil {
		return nil, err
	}
	return r.Retrieve(ctx, query, opts)
}

// Close shuts down the resolver and every opened store.
func (e *Engine) Close() error {
	return e.resolver.Close()
}
