// Package sweep drives the cell loop: it resumes from the checkpoint store,
// builds and solves each cell through the pipeline, persists the result
// before advancing the marker, and cycles the engine process on a fixed
// interval to bound its memory growth.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/accelmap/rfqmap/internal/checkpoint"
	"github.com/accelmap/rfqmap/internal/config"
	"github.com/accelmap/rfqmap/internal/engine"
	"github.com/accelmap/rfqmap/internal/fieldmap"
	"github.com/accelmap/rfqmap/internal/geometry"
	"github.com/accelmap/rfqmap/internal/pipeline"
)

// EngineSession is the slice of the session lifecycle the controller drives.
type EngineSession interface {
	Engine() pipeline.Engine
	SaveSnapshot(ctx context.Context, path string) error
	Restart(ctx context.Context, snapshotPath string, reload bool) error
}

// builder is satisfied by *pipeline.CellPipeline.
type builder interface {
	BuildAndSolve(ctx context.Context, eng pipeline.Engine, cellIndex int, win geometry.SelectionWindow) (fieldmap.CellMap, error)
}

// liveSession adapts *engine.Session to the controller's view. The client is
// re-read on every call because a restart replaces it.
type liveSession struct{ s *engine.Session }

func (l liveSession) Engine() pipeline.Engine { return l.s.Client }
func (l liveSession) SaveSnapshot(ctx context.Context, path string) error {
	// A failed restart leaves the session without a client; there is no
	// engine-resident model to snapshot then.
	if l.s.Client == nil {
		return fmt.Errorf("no engine connection")
	}
	return l.s.Client.SaveSnapshot(ctx, path)
}
func (l liveSession) Restart(ctx context.Context, snapshotPath string, reload bool) error {
	return l.s.Restart(ctx, snapshotPath, reload)
}

// Controller runs the full sweep over the cell table.
type Controller struct {
	cfg      config.Config
	lengths  []float64
	store    *checkpoint.Store
	session  EngineSession
	pipe     builder
	progress *Progress
	log      *slog.Logger
}

// New wires a controller around a live engine session. The pipeline reports
// its phase transitions into the shared progress.
func New(cfg config.Config, lengths []float64, store *checkpoint.Store, session *engine.Session, log *slog.Logger) *Controller {
	c := &Controller{
		cfg:     cfg,
		lengths: lengths,
		store:   store,
		session: liveSession{s: session},
		log:     log,
	}
	pipe := pipeline.New(pipeline.Params{
		CADOffset:     cfg.CADOffset,
		R0:            cfg.R0,
		Rho:           cfg.Rho,
		InnerBoxWidth: cfg.InnerBoxWidth,
		FourQuadrant:  cfg.FourQuadrant,
		TotalCells:    len(lengths),
		Hints: pipeline.Hints{
			InnerDivisions: cfg.InnerDivisions,
			OuterMeshStep:  cfg.OuterMeshStep,
			AirBagMeshStep: cfg.AirBagMeshStep,
			TipSurfaceStep: cfg.TipSurfaceStep,
			GridExtent:     cfg.Sampling.Extent,
			GridNX:         cfg.Sampling.NX,
			GridNY:         cfg.Sampling.NY,
			StepsPerMeter:  cfg.Sampling.StepsPerMeter,
		},
	}, log)
	c.finishInit(pipe)
	return c
}

// finishInit completes construction once the builder is known; split out so
// tests can substitute a fake pipeline.
func (c *Controller) finishInit(pipe builder) {
	runID := uuid.NewString()
	if prev, err := c.store.Meta("run_id"); err == nil && prev != "" {
		runID = prev
	}
	c.progress = NewProgress(runID, len(c.lengths))
	c.pipe = pipe
	if p, ok := pipe.(*pipeline.CellPipeline); ok {
		p.OnPhase = c.progress.SetPhase
	}
}

// Progress exposes the live progress for the status API.
func (c *Controller) Progress() *Progress { return c.progress }

// Run executes the sweep from the resume point through assembly. Progress is
// checkpointed to cell granularity, so killing the process is always safe.
func (c *Controller) Run(ctx context.Context) error {
	c.progress.SetState(StateResuming)
	last, err := c.store.LastCompleted()
	if err != nil {
		return c.fault(ctx, 0, err)
	}
	if err := c.store.SetMeta("run_id", c.progress.Snapshot().RunID); err != nil {
		return c.fault(ctx, 0, err)
	}
	start := last + 1
	n := len(c.lengths)
	if start > 1 {
		c.log.Info("resuming sweep", "last_completed", last, "start", start, "total_cells", n)
	} else {
		c.log.Info("starting sweep", "total_cells", n)
	}

	c.progress.SetState(StateRunning)
	gp := geometry.Params{
		CADOffset:      c.cfg.CADOffset,
		VerticalHeight: c.cfg.VerticalHeight,
		Rho:            c.cfg.Rho,
		ExtraCells:     c.cfg.ExtraCells,
	}

	built := 0
	for i := start; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return c.fault(ctx, i, err)
		}
		c.progress.SetCell(i)
		log := c.log.With("cell", i)

		win, warnings := geometry.ComputeWindow(c.lengths, i, gp)
		for _, w := range warnings {
			log.Warn("window calculation", "warning", w)
		}

		m, err := c.pipe.BuildAndSolve(ctx, c.session.Engine(), i, win)
		if err != nil {
			var solveErr *engine.SolveError
			if c.cfg.SeparateCells && errors.As(err, &solveErr) {
				// Troubleshooting mode: leave a gap and keep sweeping. The
				// marker still advances so a resume does not retry the cell.
				log.Warn("solve failed, skipping cell", "error", err)
				c.progress.CellSkipped(i)
				c.progress.AddError(fmt.Sprintf("cell %d skipped: %s", i, err))
				if err := c.store.SetLastCompleted(i); err != nil {
					return c.fault(ctx, i, err)
				}
				continue
			}
			return c.fault(ctx, i, err)
		}

		// Append before advancing the marker: a crash between the two repeats
		// the cell instead of losing it.
		if err := c.store.AppendCellMap(m); err != nil {
			return c.fault(ctx, i, err)
		}
		if err := c.store.SetLastCompleted(i); err != nil {
			return c.fault(ctx, i, err)
		}
		c.progress.CellCompleted()
		log.Info("cell completed", "samples", len(m.Samples))

		built++
		if built%c.cfg.RestartInterval == 0 && i < n {
			c.progress.SetState(StateRestarting)
			log.Info("restarting engine", "interval", c.cfg.RestartInterval)
			snapshot := filepath.Join(c.cfg.SnapshotDir, "restart.snapshot")
			if err := c.session.Restart(ctx, snapshot, c.cfg.ReloadSnapshot); err != nil {
				return c.fault(ctx, i, err)
			}
			c.progress.SetState(StateRunning)
		}
	}

	c.progress.SetState(StateAssembling)
	if err := c.assemble(); err != nil {
		return c.fault(ctx, n, err)
	}
	c.progress.SetState(StateDone)
	c.log.Info("sweep done", "output", c.cfg.Output)
	return nil
}

// assemble writes the final field-map table from the checkpoint store.
func (c *Controller) assemble() error {
	f, err := os.Create(c.cfg.Output)
	if err != nil {
		return fmt.Errorf("create output %s: %w", c.cfg.Output, err)
	}
	if err := fieldmap.Assemble(c.store, c.cfg.FourQuadrant, f); err != nil {
		f.Close()
		return fmt.Errorf("assemble field map: %w", err)
	}
	return f.Close()
}

// fault saves a diagnostic snapshot of the engine-resident model so the
// failure state can be inspected, then surfaces the original error. The
// snapshot is best-effort.
func (c *Controller) fault(ctx context.Context, cell int, cause error) error {
	c.progress.SetState(StateFault)
	c.progress.AddError(cause.Error())

	// A cancelled sweep is an operator stop, not a model failure; there is
	// nothing to diagnose.
	if errors.Is(cause, context.Canceled) {
		return cause
	}

	if c.session != nil {
		name := fmt.Sprintf("diagnostic-cell%d-%s.snapshot", cell, uuid.NewString())
		path := filepath.Join(c.cfg.SnapshotDir, name)
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
		defer cancel()
		if err := c.session.SaveSnapshot(saveCtx, path); err != nil {
			c.log.Warn("diagnostic snapshot failed", "path", path, "error", err)
		} else {
			c.log.Info("diagnostic snapshot saved", "path", path)
		}
	}

	return cause
}
