package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	strata "github.com/hexleaf/strata"
)

// TaskState is the lifecycle state of an ingestion task.
type TaskState int32

const (
	// TaskPending indicates the task is queued but no file has started.
	TaskPending TaskState = iota
	// TaskRunning indicates file processing is in progress.
	TaskRunning
	// TaskSucceeded indicates every file processed or was skipped; none failed.
	TaskSucceeded
	// TaskFailed indicates every submitted file failed.
	TaskFailed
	// TaskPartial indicates a mix: some files processed or skipped, some failed.
	TaskPartial
	// TaskCancelled indicates the task was cancelled before all files started.
	TaskCancelled
)

// String returns the state name.
func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	case TaskPartial:
		return "partial"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is final.
func (s TaskState) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskPartial || s == TaskCancelled
}

// FileStatus is the per-file outcome category of an ingestion task.
type FileStatus string

const (
	FileProcessed          FileStatus = "processed"
	FileFailed             FileStatus = "failed"
	FileSkippedDuplicate   FileStatus = "skipped_duplicate"
	FileSkippedUnsupported FileStatus = "skipped_unsupported"
	// FileCancelled marks files that never started because the task was
	// cancelled first.
	FileCancelled FileStatus = "cancelled"
)

// FileOutcome records what happened to one submitted file. A task's
// outcomes always sum to the number of files submitted.
type FileOutcome struct {
	Filename    string     `json:"filename"`
	ContentHash string     `json:"content_hash"`
	Status      FileStatus `json:"status"`
	// Parser is the parser that ultimately produced chunks, after any
	// fallbacks.
	Parser           string `json:"parser,omitempty"`
	ChunksStored     int    `json:"chunks_stored,omitempty"`
	ChunksDeduped    int    `json:"chunks_deduped,omitempty"`
	ChunksFailed     int    `json:"chunks_failed,omitempty"`
	ExtractionErrors int    `json:"extraction_errors,omitempty"`
	Error            string `json:"error,omitempty"`
}

func (o FileOutcome) fail(err error) FileOutcome {
	o.Status = FileFailed
	o.Error = err.Error()
	return o
}

// TaskFile is one file submitted to an ingestion task.
type TaskFile struct {
	Name    string
	Content []byte
}

// Task tracks one asynchronous dataset-processing run. All methods are
// safe for concurrent use.
type Task struct {
	id      string
	dataset string

	state     atomic.Int32
	cancelled atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}

	mu       sync.Mutex
	outcomes []FileOutcome
}

// ID returns the unique task identifier (UUIDv7, time-sortable).
func (t *Task) ID() string { return t.id }

// Dataset returns the dataset this task processes.
func (t *Task) Dataset() string { return t.dataset }

// State returns the current task state. For terminal states it waits for
// Done() so Outcomes() is complete whenever State().IsTerminal() holds.
func (t *Task) State() TaskState {
	s := TaskState(t.state.Load())
	if s.IsTerminal() {
		<-t.done
	}
	return s
}

// Done returns a channel closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Await blocks until the task finishes or ctx is cancelled, returning
// the terminal state and outcomes.
func (t *Task) Await(ctx context.Context) (TaskState, []FileOutcome, error) {
	select {
	case <-t.done:
		return TaskState(t.state.Load()), t.Outcomes(), nil
	case <-ctx.Done():
		return TaskState(t.state.Load()), nil, ctx.Err()
	}
}

// Cancel requests cancellation: no new file begins processing, files
// already in flight run to completion so no chunk is left embedded but
// unstored. Non-blocking.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// Outcomes returns a copy of the per-file outcomes recorded so far.
func (t *Task) Outcomes() []FileOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]FileOutcome, len(t.outcomes))
	copy(out, t.outcomes)
	return out
}

func (t *Task) record(o FileOutcome) {
	t.mu.Lock()
	t.outcomes = append(t.outcomes, o)
	t.mu.Unlock()
}

// Summary counts outcomes by status.
func (t *Task) Summary() map[FileStatus]int {
	m := make(map[FileStatus]int)
	for _, o := range t.Outcomes() {
		m[o.Status]++
	}
	return m
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithWorkers bounds how many files one task processes concurrently.
// Default 4.
func WithWorkers(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.workers = n }
}

// WithOrchestratorLogger sets the structured logger for task lifecycle
// events.
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator runs ingestion tasks on a bounded worker pool, decoupled
// from the submitting caller.
type Orchestrator struct {
	workers int
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{workers: 4, logger: strata.NopLogger}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run submits files for asynchronous processing through the pipeline and
// returns the task handle immediately. Files are processed concurrently,
// one worker per file bounded by the worker limit. Resubmitting already
// ingested content is safe: dedup marks it skipped.
func (o *Orchestrator) Run(ctx context.Context, p *Pipeline, dataset string, files []TaskFile) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		id:      strata.NewID(),
		dataset: dataset,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	t.state.Store(int32(TaskPending))
	o.logger.Info("ingestion task submitted",
		"task_id", t.id, "dataset", dataset, "files", len(files), "workers", o.workers)

	go o.execute(ctx, t, p, files)
	return t
}

func (o *Orchestrator) execute(ctx context.Context, t *Task, p *Pipeline, files []TaskFile) {
	defer t.cancel()
	start := time.Now()
	t.state.Store(int32(TaskRunning))

	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup
	for _, f := range files {
		// Cancellation gate: checked before each file starts, so in-flight
		// files finish but queued ones do not begin.
		if t.cancelled.Load() {
			t.record(FileOutcome{Filename: f.Name, Status: FileCancelled})
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(f TaskFile) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("ingestion worker panic",
						"task_id", t.id, "file", f.Name, "panic", fmt.Sprintf("%v", r))
					t.record(FileOutcome{Filename: f.Name}.fail(fmt.Errorf("panic: %v", r)))
				}
			}()
			if t.cancelled.Load() {
				t.record(FileOutcome{Filename: f.Name, Status: FileCancelled})
				return
			}
			// Processing runs on a context detached from Cancel so an
			// in-flight file is never left half stored; task cancellation
			// only stops new files from starting.
			t.record(p.ProcessFile(context.WithoutCancel(ctx), t.dataset, f.Name, f.Content))
		}(f)
	}
	wg.Wait()

	final := o.finalState(t)
	t.state.Store(int32(final))
	summary := t.Summary()
	o.logger.Info("ingestion task finished",
		"task_id", t.id,
		"dataset", t.dataset,
		"state", final.String(),
		"processed", summary[FileProcessed],
		"failed", summary[FileFailed],
		"skipped_duplicate", summary[FileSkippedDuplicate],
		"skipped_unsupported", summary[FileSkippedUnsupported],
		"cancelled", summary[FileCancelled],
		"duration_ms", time.Since(start).Milliseconds())
	close(t.done)
}

func (o *Orchestrator) finalState(t *Task) TaskState {
	if t.cancelled.Load() {
		return TaskCancelled
	}
	var failed, total int
	for _, out := range t.Outcomes() {
		total++
		if out.Status == FileFailed {
			failed++
		}
	}
	switch {
	case failed == 0:
		return TaskSucceeded
	case failed == total:
		return TaskFailed
	default:
		return TaskPartial
	}
}
