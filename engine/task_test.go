package engine

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/hexleaf/strata/parse"
)

func runTask(t *testing.T, e *Engine, dataset string) (*Task, []FileOutcome) {
	t.Helper()
	task, err := e.Process(context.Background(), dataset)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, outcomes, err := task.Await(ctx)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	return task, outcomes
}

func TestTaskSucceeds(t *testing.T) {
	e := newTestEngine(t, testConfig())
	ctx := context.Background()
	d, err := e.CreateDataset(ctx, "notes", "docs", "db")
	if err != nil {
		t.Fatal(err)
	}
	d.AddFile("a.txt", []byte("first file content"))
	d.AddFile("b.md", []byte("# Title\n\nsecond file content"))

	task, outcomes := runTask(t, e, "notes")
	if got := task.State(); got != TaskSucceeded {
		t.Fatalf("state = %s, want succeeded", got)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want one per submitted file", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Status != FileProcessed {
			t.Errorf("%s: status %s, error %s", o.Filename, o.Status, o.Error)
		}
		if o.ChunksStored == 0 {
			t.Errorf("%s stored no chunks", o.Filename)
		}
	}
	// The task is addressable by ID afterwards.
	if got, err := e.Task(task.ID()); err != nil || got != task {
		t.Errorf("Task(%s) = (%v, %v)", task.ID(), got, err)
	}
}

func TestTaskPartial(t *testing.T) {
	e := newTestEngine(t, testConfig())
	ctx := context.Background()
	d, err := e.CreateDataset(ctx, "notes", "docs", "db")
	if err != nil {
		t.Fatal(err)
	}

	// Five files: two good, one unsupported format, one duplicate of a
	// good one, one that fails parsing.
	good := []byte("a good file with plenty of prose in it")
	d.AddFile("good.txt", good)
	d.AddFile("also-good.md", []byte("# Doc\n\nmore prose"))
	d.AddFile("image.png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	d.AddFile("duplicate.txt", good)
	d.AddFile("broken.json", []byte("{definitely not json"))

	task, outcomes := runTask(t, e, "notes")
	if got := task.State(); got != TaskPartial {
		t.Fatalf("state = %s, want partial (outcomes: %+v)", got, outcomes)
	}
	if len(outcomes) != 5 {
		t.Fatalf("outcomes = %d, want 5", len(outcomes))
	}
	summary := task.Summary()
	if summary[FileProcessed] != 2 {
		t.Errorf("processed = %d, want 2", summary[FileProcessed])
	}
	if summary[FileFailed] != 1 {
		t.Errorf("failed = %d, want 1", summary[FileFailed])
	}
	if summary[FileSkippedDuplicate] != 1 {
		t.Errorf("skipped_duplicate = %d, want 1", summary[FileSkippedDuplicate])
	}
	if summary[FileSkippedUnsupported] != 1 {
		t.Errorf("skipped_unsupported = %d, want 1", summary[FileSkippedUnsupported])
	}
}

func TestTaskAllFailed(t *testing.T) {
	e := newTestEngine(t, testConfig())
	ctx := context.Background()
	d, err := e.CreateDataset(ctx, "notes", "docs", "db")
	if err != nil {
		t.Fatal(err)
	}
	d.AddFile("one.json", []byte("{broken"))
	d.AddFile("two.json", []byte("[also broken"))

	task, outcomes := runTask(t, e, "notes")
	if got := task.State(); got != TaskFailed {
		t.Fatalf("state = %s, want failed (outcomes: %+v)", got, outcomes)
	}
}

func TestTaskResubmitSkipsIngested(t *testing.T) {
	e := newTestEngine(t, testConfig())
	ctx := context.Background()
	d, err := e.CreateDataset(ctx, "notes", "docs", "db")
	if err != nil {
		t.Fatal(err)
	}
	d.AddFile("a.txt", []byte("stable content"))

	if task, _ := runTask(t, e, "notes"); task.State() != TaskSucceeded {
		t.Fatal("first run should succeed")
	}
	task, outcomes := runTask(t, e, "notes")
	if task.State() != TaskSucceeded {
		t.Fatalf("rerun state = %s", task.State())
	}
	if len(outcomes) != 1 || outcomes[0].Status != FileSkippedDuplicate {
		t.Errorf("rerun should skip by hash, got %+v", outcomes)
	}
}

// gatedParser blocks inside Parse until released, so tests can hold a
// file in flight deterministically.
type gatedParser struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedParser) Name() string { return "gated" }

func (g *gatedParser) Parse(_ context.Context, r io.Reader) ([]parse.RawChunk, error) {
	io.Copy(io.Discard, r)
	g.started <- struct{}{}
	<-g.release
	return []parse.RawChunk{{Text: "parsed after release"}}, nil
}

func TestTaskCancellation(t *testing.T) {
	gate := &gatedParser{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	RegisterParser("gated", ParserFactory{
		New:         func(parse.Config) parse.Parser { return gate },
		DefaultExts: []string{"gated"},
	})

	cfg := testConfig()
	cfg.Strategies = append(cfg.Strategies, StrategyConfig{
		Name:    "slow",
		Parsers: []ParserConfig{{Type: "gated"}},
	})
	r := newTestResolver(t, cfg)
	e := New(r, WithOrchestrator(NewOrchestrator(WithWorkers(1))))

	ctx := context.Background()
	d, err := e.CreateDataset(ctx, "notes", "slow", "db")
	if err != nil {
		t.Fatal(err)
	}
	d.AddFile("first.gated", []byte("in flight when cancelled"))
	d.AddFile("second.gated", []byte("never starts"))

	task, err := e.Process(ctx, "notes")
	if err != nil {
		t.Fatal(err)
	}
	// Wait for the first file to be mid-parse, then cancel and release.
	<-gate.started
	task.Cancel()
	close(gate.release)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	state, outcomes, err := task.Await(waitCtx)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if state != TaskCancelled {
		t.Fatalf("state = %s, want cancelled", state)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want one per submitted file", len(outcomes))
	}

	byName := make(map[string]FileOutcome, len(outcomes))
	for _, o := range outcomes {
		byName[o.Filename] = o
	}
	// The in-flight file ran to completion; the queued one never began.
	if got := byName["first.gated"].Status; got != FileProcessed {
		t.Errorf("in-flight file = %s, want processed", got)
	}
	if got := byName["second.gated"].Status; got != FileCancelled {
		t.Errorf("queued file = %s, want cancelled", got)
	}

	// The completed file's chunks are fully stored, not half-written.
	if byName["first.gated"].ChunksStored == 0 {
		t.Error("in-flight file should have stored its chunks")
	}
}

func TestTaskStateString(t *testing.T) {
	states := map[TaskState]string{
		TaskPending:   "pending",
		TaskRunning:   "running",
		TaskSucceeded: "succeeded",
		TaskFailed:    "failed",
		TaskPartial:   "partial",
		TaskCancelled: "cancelled",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("%d.String() = %s, want %s", s, s.String(), want)
		}
	}
	if TaskRunning.IsTerminal() || !TaskPartial.IsTerminal() {
		t.Error("IsTerminal misclassifies states")
	}
}
