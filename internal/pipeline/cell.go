// Package pipeline builds and solves one cell at a time: it pushes the cell
// window into the engine, rebuilds geometry, classifies and binds the domain
// selections, meshes, solves, and samples the field on a fixed grid.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/accelmap/rfqmap/internal/classify"
	"github.com/accelmap/rfqmap/internal/engine"
	"github.com/accelmap/rfqmap/internal/fieldmap"
	"github.com/accelmap/rfqmap/internal/geometry"
)

// Phase names, in execution order.
const (
	PhaseConfigure = "configure_parameters"
	PhaseRebuild   = "rebuild_geometry"
	PhaseClassify  = "classify_selections"
	PhaseRemesh    = "remesh"
	PhaseSolve     = "solve"
	PhaseSample    = "sample_grid"
	PhaseOffset    = "offset_and_tag"
)

// Engine is the slice of the control API the per-cell pipeline needs.
// *engine.Client satisfies it.
type Engine interface {
	SetParameter(ctx context.Context, name string, value float64, unit string) error
	RebuildGeometry(ctx context.Context) error
	EnumerateDomains(ctx context.Context) ([]classify.Domain, error)
	SetNamedSelection(ctx context.Context, name string, ids []int) error
	ConfigureMesh(ctx context.Context, spec engine.MeshSpec) error
	Remesh(ctx context.Context) error
	Solve(ctx context.Context) error
	InterpolateField(ctx context.Context, points []engine.Point, quantities []string) ([][]float64, error)
}

// Hints carries the tunable mesh densities and the sampling grid shape.
type Hints struct {
	InnerDivisions int     // swept transverse divisions in the inner beam box
	OuterMeshStep  float64 // free tetrahedral target step, outer beam box [m]
	AirBagMeshStep float64 // free tetrahedral target step, air bag [m]
	TipSurfaceStep float64 // surface triangulation step on vane tips [m]

	GridExtent    float64 // transverse half-extent of the sampling grid [m]
	GridNX        int     // transverse sample points, x
	GridNY        int     // transverse sample points, y
	StepsPerMeter int     // longitudinal sample density
}

// CellPipeline builds and solves individual cells against one engine session.
type CellPipeline struct {
	cadOffset     float64
	r0            float64
	rho           float64
	innerBoxWidth float64
	fourQuadrant  bool
	totalCells    int
	hints         Hints
	log           *slog.Logger

	// OnPhase, when set, observes phase transitions. Used by the sweep to
	// expose live progress.
	OnPhase func(cell int, phase string)
}

// Params bundles the model-wide constants the pipeline needs per cell.
type Params struct {
	CADOffset     float64
	R0            float64
	Rho           float64
	InnerBoxWidth float64
	FourQuadrant  bool
	TotalCells    int
	Hints         Hints
}

func New(p Params, log *slog.Logger) *CellPipeline {
	return &CellPipeline{
		cadOffset:     p.CADOffset,
		r0:            p.R0,
		rho:           p.Rho,
		innerBoxWidth: p.InnerBoxWidth,
		fourQuadrant:  p.FourQuadrant,
		totalCells:    p.TotalCells,
		hints:         p.Hints,
		log:           log,
	}
}

func (p *CellPipeline) phase(cell int, name string) {
	if p.OnPhase != nil {
		p.OnPhase(cell, name)
	}
}

// BuildAndSolve runs the full per-cell sequence and returns the sampled field
// map, tagged with the cell index and shifted to CAD-native z. It mutates
// engine-resident state only; the window is never modified.
func (p *CellPipeline) BuildAndSolve(ctx context.Context, eng Engine, cellIndex int, win geometry.SelectionWindow) (fieldmap.CellMap, error) {
	log := p.log.With("cell", cellIndex)

	p.phase(cellIndex, PhaseConfigure)
	if err := p.configureParameters(ctx, eng, win); err != nil {
		return fieldmap.CellMap{}, err
	}

	p.phase(cellIndex, PhaseRebuild)
	if err := p.rebuildGeometry(ctx, eng, log); err != nil {
		return fieldmap.CellMap{}, err
	}

	p.phase(cellIndex, PhaseClassify)
	sel, err := p.classifyAndBind(ctx, eng, cellIndex, win, log)
	if err != nil {
		return fieldmap.CellMap{}, err
	}

	p.phase(cellIndex, PhaseRemesh)
	if err := p.remesh(ctx, eng, cellIndex, sel, log); err != nil {
		return fieldmap.CellMap{}, err
	}

	p.phase(cellIndex, PhaseSolve)
	if err := withRetry(ctx, log, "solve", func() error { return eng.Solve(ctx) }); err != nil {
		return fieldmap.CellMap{}, fmt.Errorf("cell %d: %w", cellIndex, err)
	}

	p.phase(cellIndex, PhaseSample)
	samples, err := p.sampleGrid(ctx, eng, cellIndex, win)
	if err != nil {
		return fieldmap.CellMap{}, fmt.Errorf("cell %d: %w", cellIndex, err)
	}

	p.phase(cellIndex, PhaseOffset)
	for i := range samples {
		samples[i].Z -= p.cadOffset
	}
	return fieldmap.CellMap{Cell: cellIndex, Samples: samples}, nil
}

// Fixed parameter names the engine model's geometry sequence reads.
var windowParameters = []string{"cell_start", "cell_end", "sel_start", "sel_end", "box_width", "cell_length"}

func (p *CellPipeline) configureParameters(ctx context.Context, eng Engine, win geometry.SelectionWindow) error {
	values := []float64{
		win.CellStart,
		win.CellEnd,
		win.SelectionStart,
		win.SelectionEnd,
		win.BoxWidth,
		win.CellEnd - win.CellStart,
	}
	for i, name := range windowParameters {
		err := withRetry(ctx, p.log, "set parameter", func() error {
			return eng.SetParameter(ctx, name, values[i], "m")
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// rebuildGeometry retries a failed rebuild once: parameter-driven rebuilds
// occasionally trip transient tolerance faults that a second evaluation
// clears.
func (p *CellPipeline) rebuildGeometry(ctx context.Context, eng Engine, log *slog.Logger) error {
	err := eng.RebuildGeometry(ctx)
	if err == nil {
		return nil
	}
	log.Warn("geometry rebuild failed, retrying once", "error", err)
	if err := eng.RebuildGeometry(ctx); err != nil {
		return fmt.Errorf("geometry rebuild: %w", err)
	}
	return nil
}

// classifyAndBind enumerates the rebuilt domains, classifies them by bounding
// box, and binds each role to a named selection. When enumeration is
// unavailable it falls back to the fixed legacy domain ordering.
func (p *CellPipeline) classifyAndBind(ctx context.Context, eng Engine, cellIndex int, win geometry.SelectionWindow, log *slog.Logger) (classify.SelectionSet, error) {
	var sel classify.SelectionSet

	domains, err := eng.EnumerateDomains(ctx)
	if err != nil {
		log.Warn("domain enumeration unavailable, using index fallback", "error", err)
		sel = classify.ClassifyByIndex(cellIndex, p.totalCells, win.CrossesMatchingBoundary, log)
	} else {
		g := classify.Geometry{
			R0:             p.r0,
			Rho:            p.rho,
			InnerBoxWidth:  p.innerBoxWidth,
			SelectionStart: win.SelectionStart,
			SelectionEnd:   win.SelectionEnd,
			CellStart:      win.CellStart,
			CellEnd:        win.CellEnd,
		}
		sel, err = classify.Classify(domains, g, p.fourQuadrant)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", cellIndex, err)
		}
	}

	for role, ids := range sel {
		err := withRetry(ctx, log, "bind selection", func() error {
			return eng.SetNamedSelection(ctx, string(role), ids)
		})
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", cellIndex, err)
		}
	}
	return sel, nil
}

// remesh applies the role-matched meshing strategy and runs the mesher,
// doubling the inner-box density and retrying when the outer regions fail to
// mesh. Refinement stops at a fixed inner/outer step ratio.
func (p *CellPipeline) remesh(ctx context.Context, eng Engine, cellIndex int, sel classify.SelectionSet, log *slog.Logger) error {
	divisions := p.hints.InnerDivisions
	// The two end cells mesh the matching-section taper, which needs double
	// the transverse resolution.
	if cellIndex <= 2 {
		divisions *= 2
	}

	for {
		if err := p.configureMeshes(ctx, eng, sel, divisions); err != nil {
			return fmt.Errorf("cell %d: %w", cellIndex, err)
		}
		err := withRetry(ctx, log, "remesh", func() error { return eng.Remesh(ctx) })
		if err == nil {
			return nil
		}
		var meshErr *engine.MeshError
		if !errors.As(err, &meshErr) {
			return fmt.Errorf("cell %d: remesh: %w", cellIndex, err)
		}

		next := divisions * 2
		innerStep := p.innerBoxWidth / float64(next)
		if innerStep/p.hints.OuterMeshStep < 0.1 {
			return fmt.Errorf("cell %d: meshing impossible at %d inner divisions: %w", cellIndex, divisions, meshErr)
		}
		log.Warn("remesh failed, doubling inner divisions", "divisions", next, "error", meshErr)
		divisions = next
	}
}

func (p *CellPipeline) configureMeshes(ctx context.Context, eng Engine, sel classify.SelectionSet, divisions int) error {
	var specs []engine.MeshSpec

	for _, role := range classify.VaneRoles {
		if _, ok := sel[role]; ok {
			specs = append(specs, engine.MeshSpec{
				Selection: string(role),
				Kind:      "triangular_surface",
				MaxStep:   p.hints.TipSurfaceStep,
			})
		}
	}
	for _, role := range []classify.Role{
		classify.RoleInnerBeamBoxFront,
		classify.RoleInnerBeamBoxMid,
		classify.RoleInnerBeamBoxRear,
	} {
		if _, ok := sel[role]; ok {
			specs = append(specs, engine.MeshSpec{
				Selection: string(role),
				Kind:      "swept",
				Divisions: divisions,
			})
		}
	}
	if _, ok := sel[classify.RoleOuterBeamBox]; ok {
		specs = append(specs, engine.MeshSpec{
			Selection: string(classify.RoleOuterBeamBox),
			Kind:      "free_tetrahedral",
			MaxStep:   p.hints.OuterMeshStep,
		})
	}
	if _, ok := sel[classify.RoleAirBag]; ok {
		specs = append(specs, engine.MeshSpec{
			Selection: string(classify.RoleAirBag),
			Kind:      "free_tetrahedral",
			MaxStep:   p.hints.AirBagMeshStep,
		})
	}
	if _, ok := sel[classify.RoleEndFlange]; ok {
		specs = append(specs, engine.MeshSpec{
			Selection: string(classify.RoleEndFlange),
			Kind:      "free_tetrahedral",
			MaxStep:   p.hints.AirBagMeshStep,
		})
	}

	for _, spec := range specs {
		err := withRetry(ctx, p.log, "configure mesh", func() error {
			return eng.ConfigureMesh(ctx, spec)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// sampleGrid evaluates the solved field on a transverse grid replicated along
// the cell. The first cell samples at four times the longitudinal density to
// resolve the matching-section taper; the last cell appends one trailing
// plane at the cell boundary; every other cell omits the final plane so the
// next cell owns the shared boundary.
func (p *CellPipeline) sampleGrid(ctx context.Context, eng Engine, cellIndex int, win geometry.SelectionWindow) ([]fieldmap.Sample, error) {
	length := win.CellEnd - win.CellStart
	steps := int(math.Round(length * float64(p.hints.StepsPerMeter)))
	if cellIndex == 1 {
		steps *= 4
	}
	if steps < 1 {
		steps = 1
	}
	planes := steps // final plane omitted
	if cellIndex == p.totalCells {
		planes = steps + 1
	}
	dz := length / float64(steps)

	xs := p.transverseAxis(p.hints.GridNX)
	ys := p.transverseAxis(p.hints.GridNY)

	points := make([]engine.Point, 0, planes*len(xs)*len(ys))
	for k := 0; k < planes; k++ {
		z := win.CellStart + float64(k)*dz
		for _, y := range ys {
			for _, x := range xs {
				points = append(points, engine.Point{X: x, Y: y, Z: z})
			}
		}
	}

	values, err := eng.InterpolateField(ctx, points, []string{"Ex", "Ey", "Ez"})
	if err != nil {
		return nil, err
	}

	samples := make([]fieldmap.Sample, len(points))
	for i, row := range values {
		if len(row) < 3 {
			return nil, fmt.Errorf("interpolation row %d: expected 3 components, got %d", i, len(row))
		}
		samples[i] = fieldmap.Sample{
			X: points[i].X, Y: points[i].Y, Z: points[i].Z,
			Ex: row[0], Ey: row[1], Ez: row[2],
		}
	}
	return samples, nil
}

// transverseAxis spans [0, extent] for a quadrant model and
// [-extent, extent] for a four-quadrant model.
func (p *CellPipeline) transverseAxis(n int) []float64 {
	if n < 2 {
		return []float64{0}
	}
	lo := 0.0
	if p.fourQuadrant {
		lo = -p.hints.GridExtent
	}
	step := (p.hints.GridExtent - lo) / float64(n-1)
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = lo + float64(i)*step
	}
	return axis
}
