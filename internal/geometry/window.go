// Package geometry computes per-cell build and selection windows along the
// RFQ beam axis. All lengths are in meters; z follows the CAD convention
// where z=0 sits at the end of the matching section.
package geometry

import "fmt"

// Params holds the fixed inputs for window computation.
type Params struct {
	CADOffset      float64 // z of the structure start in CAD coordinates [m]
	VerticalHeight float64 // nominal transverse box height for regular cells [m]
	Rho            float64 // vane tip transverse radius [m]
	ExtraCells     int     // neighbor cells included on each side of the selection

	// Optional model extremes. When nil they default to the cumulative-length
	// extremes shifted by CADOffset.
	ModelStart *float64
	ModelEnd   *float64
}

// SelectionWindow is the longitudinal window for one cell build.
type SelectionWindow struct {
	CellStart float64 `json:"cell_start"`
	CellEnd   float64 `json:"cell_end"`

	SelectionStart float64 `json:"selection_start"`
	SelectionEnd   float64 `json:"selection_end"`

	BoxWidth float64 `json:"box_width"`

	CrossesMatchingBoundary bool `json:"crosses_matching_boundary"`
}

// CellBounds returns the n+1 cumulative cell boundaries shifted by cadOffset.
// bounds[i-1] and bounds[i] delimit cell i.
func CellBounds(lengths []float64, cadOffset float64) []float64 {
	bounds := make([]float64, len(lengths)+1)
	bounds[0] = cadOffset
	for i, l := range lengths {
		bounds[i+1] = bounds[i] + l
	}
	return bounds
}

// ComputeWindow computes the build and selection windows for one cell.
//
// cellIndex 0 and len(lengths)+1 are the sentinel end-region cells: they clamp
// to the model extremes instead of erroring. Indices beyond the sentinels are
// clamped too but reported in the returned warnings.
func ComputeWindow(lengths []float64, cellIndex int, p Params) (SelectionWindow, []string) {
	var warns []string
	n := len(lengths)
	bounds := CellBounds(lengths, p.CADOffset)

	modelStart := bounds[0]
	if p.ModelStart != nil {
		modelStart = *p.ModelStart
	}
	modelEnd := bounds[n]
	if p.ModelEnd != nil {
		modelEnd = *p.ModelEnd
	}

	if cellIndex < 0 || cellIndex > n+1 {
		warns = append(warns, fmt.Sprintf("cell index %d outside [0, %d], clamping to model boundary", cellIndex, n+1))
	}

	var cellStart, cellEnd float64
	switch {
	case cellIndex < 1:
		// End region before the matching section.
		cellStart, cellEnd = modelStart, bounds[0]
	case cellIndex > n:
		// End region past the last cell.
		cellStart, cellEnd = bounds[n], modelEnd
	default:
		cellStart, cellEnd = bounds[cellIndex-1], bounds[cellIndex]
	}
	if cellStart >= cellEnd {
		warns = append(warns, fmt.Sprintf("degenerate window for cell %d: start %g >= end %g", cellIndex, cellStart, cellEnd))
	}

	firstSel := cellIndex - p.ExtraCells
	lastSel := cellIndex + p.ExtraCells

	// Lower selection edge: the start of the first included neighbor, or one
	// full matching-section length below when the extension leaves the table.
	var selStart float64
	if firstSel >= 1 {
		selStart = bounds[firstSel-1]
	} else {
		selStart = bounds[0] - lengths[0]
		if selStart < modelStart {
			selStart = modelStart
		}
	}

	// Upper selection edge, mirrored: extend by one last-cell length when the
	// extension runs past the table.
	var selEnd float64
	if lastSel <= n {
		selEnd = bounds[lastSel]
	} else {
		selEnd = bounds[n] + lengths[n-1]
		if selEnd > modelEnd {
			selEnd = modelEnd
		}
	}

	// Sentinel windows can sit outside the selection fallbacks; never let the
	// selection shrink below the cell itself.
	if selStart > cellStart {
		selStart = cellStart
	}
	if selEnd < cellEnd {
		selEnd = cellEnd
	}

	// The matching-section taper extends slightly beyond the nominal cell
	// boundary in the CAD model. Whenever the selection reaches back across
	// the matching boundary (but not for the matching section itself), pull
	// the lower edge down by a tenth of the matching-section length so the
	// full taper is captured.
	crosses := firstSel <= 1 && 1 <= lastSel+1 && cellIndex != 1
	if crosses {
		selStart -= lengths[0] / 10
	}

	// The matching section has a larger transverse CAD envelope than the
	// periodic cells.
	includesMatching := firstSel <= 1
	boxWidth := p.VerticalHeight
	if includesMatching {
		boxWidth = lengths[0] + p.Rho
	}

	return SelectionWindow{
		CellStart:               cellStart,
		CellEnd:                 cellEnd,
		SelectionStart:          selStart,
		SelectionEnd:            selEnd,
		BoxWidth:                boxWidth,
		CrossesMatchingBoundary: crosses,
	}, warns
}
