package sweep

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/accelmap/rfqmap/internal/checkpoint"
	"github.com/accelmap/rfqmap/internal/config"
	"github.com/accelmap/rfqmap/internal/engine"
	"github.com/accelmap/rfqmap/internal/fieldmap"
	"github.com/accelmap/rfqmap/internal/geometry"
	"github.com/accelmap/rfqmap/internal/pipeline"
)

type fakeSession struct {
	restarts  int
	snapshots []string
}

func (f *fakeSession) Engine() pipeline.Engine { return nil }

func (f *fakeSession) SaveSnapshot(_ context.Context, path string) error {
	f.snapshots = append(f.snapshots, path)
	return nil
}

func (f *fakeSession) Restart(context.Context, string, bool) error {
	f.restarts++
	return nil
}

// fakeBuilder returns a small canned map per cell, or a per-cell error.
type fakeBuilder struct {
	built []int
	fail  map[int]error
}

func (f *fakeBuilder) BuildAndSolve(_ context.Context, _ pipeline.Engine, cellIndex int, _ geometry.SelectionWindow) (fieldmap.CellMap, error) {
	if err := f.fail[cellIndex]; err != nil {
		return fieldmap.CellMap{}, err
	}
	f.built = append(f.built, cellIndex)
	// On-axis samples stay single rows through quadrant mirroring, keeping
	// assembly assertions simple.
	return fieldmap.CellMap{Cell: cellIndex, Samples: []fieldmap.Sample{
		{X: 0, Y: 0, Z: float64(cellIndex), Ez: 1},
	}}, nil
}

func testController(t *testing.T, lengths []float64, cfg config.Config, b *fakeBuilder, fs *fakeSession) (*Controller, *checkpoint.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := checkpoint.Open(filepath.Join(dir, "checkpoint.db"))
	if err != nil {
		t.Fatalf("expected store to open, got %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if cfg.Output == "" {
		cfg.Output = filepath.Join(dir, "fieldmap.dat")
	}
	cfg.SnapshotDir = dir
	if cfg.RestartInterval <= 0 {
		cfg.RestartInterval = 100
	}
	cfg.ExtraCells = 1
	cfg.VerticalHeight = 0.04
	cfg.Rho = 0.003

	c := &Controller{
		cfg:     cfg,
		lengths: lengths,
		store:   store,
		session: fs,
		log:     slog.New(slog.DiscardHandler),
	}
	c.finishInit(b)
	return c, store
}

func TestRun_SweepsAllCellsAndAssembles(t *testing.T) {
	b := &fakeBuilder{}
	c, store := testController(t, []float64{0.02, 0.05, 0.05}, config.Config{}, b, &fakeSession{})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("expected run to succeed, got %v", err)
	}
	if len(b.built) != 3 {
		t.Errorf("expected 3 cells built, got %v", b.built)
	}
	last, err := store.LastCompleted()
	if err != nil || last != 3 {
		t.Errorf("expected marker 3, got %d, %v", last, err)
	}
	if got := c.Progress().Snapshot().State; got != StateDone {
		t.Errorf("expected state done, got %s", got)
	}

	data, err := os.ReadFile(c.cfg.Output)
	if err != nil {
		t.Fatalf("expected output file, got %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "x\ty\tz") {
		t.Errorf("expected tab-separated header, got %q", lines[0])
	}
}

func TestRun_ResumesAfterMarker(t *testing.T) {
	b := &fakeBuilder{}
	c, store := testController(t, []float64{0.02, 0.05, 0.05, 0.05}, config.Config{}, b, &fakeSession{})

	// Cells 1-2 were completed by a previous process.
	for _, cell := range []int{1, 2} {
		m := fieldmap.CellMap{Cell: cell, Samples: []fieldmap.Sample{{Z: float64(cell), Ez: 1}}}
		if err := store.AppendCellMap(m); err != nil {
			t.Fatalf("expected append to succeed, got %v", err)
		}
	}
	if err := store.SetLastCompleted(2); err != nil {
		t.Fatalf("expected marker write to succeed, got %v", err)
	}

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("expected run to succeed, got %v", err)
	}
	if len(b.built) != 2 || b.built[0] != 3 || b.built[1] != 4 {
		t.Errorf("expected cells 3 and 4 built, got %v", b.built)
	}
}

func TestRun_RestartsEngineOnInterval(t *testing.T) {
	b := &fakeBuilder{}
	fs := &fakeSession{}
	cfg := config.Config{RestartInterval: 2}
	c, _ := testController(t, []float64{0.02, 0.05, 0.05, 0.05, 0.05}, cfg, b, fs)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("expected run to succeed, got %v", err)
	}
	// After cells 2 and 4; never after the final cell.
	if fs.restarts != 2 {
		t.Errorf("expected 2 engine restarts, got %d", fs.restarts)
	}
}

func TestRun_SeparateCellsSkipsSolveFailures(t *testing.T) {
	b := &fakeBuilder{fail: map[int]error{2: &engine.SolveError{Message: "singular system"}}}
	cfg := config.Config{SeparateCells: true}
	c, store := testController(t, []float64{0.02, 0.05, 0.05}, cfg, b, &fakeSession{})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("expected run to succeed past skipped cell, got %v", err)
	}
	cells, err := store.Cells()
	if err != nil {
		t.Fatalf("expected cell list, got %v", err)
	}
	if len(cells) != 2 || cells[0] != 1 || cells[1] != 3 {
		t.Errorf("expected cells [1 3], got %v", cells)
	}
	last, _ := store.LastCompleted()
	if last != 3 {
		t.Errorf("expected marker 3 past the gap, got %d", last)
	}
	snap := c.Progress().Snapshot()
	if len(snap.SkippedCells) != 1 || snap.SkippedCells[0] != 2 {
		t.Errorf("expected cell 2 skipped, got %v", snap.SkippedCells)
	}
}

func TestRun_SolveFailureFatalByDefault(t *testing.T) {
	b := &fakeBuilder{fail: map[int]error{2: &engine.SolveError{Message: "singular system"}}}
	fs := &fakeSession{}
	c, store := testController(t, []float64{0.02, 0.05, 0.05}, config.Config{}, b, fs)

	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("expected run to fail, got nil")
	}
	var solveErr *engine.SolveError
	if !errors.As(err, &solveErr) {
		t.Errorf("expected SolveError in chain, got %v", err)
	}
	// Diagnostic snapshot attempted before surfacing.
	if len(fs.snapshots) != 1 || !strings.Contains(fs.snapshots[0], "diagnostic-cell2") {
		t.Errorf("expected diagnostic snapshot for cell 2, got %v", fs.snapshots)
	}
	last, _ := store.LastCompleted()
	if last != 1 {
		t.Errorf("expected marker to stay at 1, got %d", last)
	}
	if got := c.Progress().Snapshot().State; got != StateFault {
		t.Errorf("expected fault state, got %s", got)
	}
}

func TestRun_RebuildsCellInCrashWindow(t *testing.T) {
	// Crash window: cell 2's samples committed, marker still at 1. The resume
	// must rebuild cell 2 and replace the earlier rows.
	b := &fakeBuilder{}
	c, store := testController(t, []float64{0.02, 0.05, 0.05}, config.Config{}, b, &fakeSession{})

	done := fieldmap.CellMap{Cell: 1, Samples: []fieldmap.Sample{{Z: 1, Ez: 1}}}
	if err := store.AppendCellMap(done); err != nil {
		t.Fatalf("expected append to succeed, got %v", err)
	}
	if err := store.SetLastCompleted(1); err != nil {
		t.Fatalf("expected marker write to succeed, got %v", err)
	}
	partial := fieldmap.CellMap{Cell: 2, Samples: []fieldmap.Sample{{Z: 9, Ez: 9}, {Z: 9.5, Ez: 9}}}
	if err := store.AppendCellMap(partial); err != nil {
		t.Fatalf("expected append to succeed, got %v", err)
	}

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("expected run to succeed, got %v", err)
	}
	if len(b.built) != 2 || b.built[0] != 2 || b.built[1] != 3 {
		t.Errorf("expected cells 2 and 3 rebuilt, got %v", b.built)
	}
	m, err := store.CellMap(2)
	if err != nil {
		t.Fatalf("expected cell 2 to load, got %v", err)
	}
	if len(m.Samples) != 1 || m.Samples[0].Z != 2 {
		t.Errorf("expected partial rows replaced by the rebuild, got %+v", m.Samples)
	}
	last, _ := store.LastCompleted()
	if last != 3 {
		t.Errorf("expected marker 3, got %d", last)
	}
}

func TestFault_WithoutEngineConnection(t *testing.T) {
	// A failed restart leaves the session client-less; the diagnostic
	// snapshot must degrade to a logged failure, not a panic.
	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "checkpoint.db"))
	if err != nil {
		t.Fatalf("expected store to open, got %v", err)
	}
	t.Cleanup(func() { store.Close() })

	c := &Controller{
		cfg:     config.Config{SnapshotDir: t.TempDir()},
		lengths: []float64{0.02, 0.05},
		store:   store,
		session: liveSession{s: &engine.Session{}},
		log:     slog.New(slog.DiscardHandler),
	}
	c.finishInit(&fakeBuilder{})

	cause := &engine.LifecycleError{Step: "relaunch", Err: errors.New("spawn failed")}
	got := c.fault(context.Background(), 2, cause)
	var lcErr *engine.LifecycleError
	if !errors.As(got, &lcErr) {
		t.Errorf("expected LifecycleError to propagate, got %v", got)
	}
	if state := c.Progress().Snapshot().State; state != StateFault {
		t.Errorf("expected fault state, got %s", state)
	}
}

func TestRun_RunIDSurvivesResume(t *testing.T) {
	b := &fakeBuilder{}
	c, store := testController(t, []float64{0.02, 0.05}, config.Config{}, b, &fakeSession{})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("expected run to succeed, got %v", err)
	}
	first := c.Progress().Snapshot().RunID

	c2 := &Controller{
		cfg:     c.cfg,
		lengths: c.lengths,
		store:   store,
		session: &fakeSession{},
		log:     slog.New(slog.DiscardHandler),
	}
	c2.finishInit(&fakeBuilder{})
	if got := c2.Progress().Snapshot().RunID; got != first {
		t.Errorf("expected run id %s to survive resume, got %s", first, got)
	}
}
