package classify

import "log/slog"

// Legacy two-argument selection mode. When the engine cannot enumerate
// domains the only information left is the cell index, so the selection
// falls back to the historical fixed domain numbering of the rebuilt model.
// The ids below are inherently fragile to any change in solid count; this
// path exists for troubleshooting old models and always logs a warning.

// legacySelection is the historical role→id mapping of an interior quarter
// cell rebuilt from parameters (solids numbered bottom-up by the engine).
var legacySelection = map[Role][]int{
	RoleInnerBeamBoxFront: {2},
	RoleInnerBeamBoxMid:   {3},
	RoleInnerBeamBoxRear:  {4},
	RoleOuterBeamBox:      {5},
	RoleVaneTipX:          {6},
	RoleVaneBackX:         {7},
	RoleVaneTipY:          {8},
	RoleVaneBackY:         {9},
	RoleAirBag:            {1},
}

// ClassifyByIndex is the degraded fallback classifier: a best-guess fixed
// mapping keyed on the cell's position in the sweep. Less precise than
// Classify; use only when domain enumeration is unavailable.
func ClassifyByIndex(cellIndex, totalCells int, crossesMatching bool, log *slog.Logger) SelectionSet {
	log.Warn("degraded domain classification: falling back to fixed legacy selection",
		"cell", cellIndex, "total_cells", totalCells, "crosses_matching", crossesMatching)

	// The matching-section taper adds one solid ahead of the beam boxes,
	// shifting every id up by one.
	offset := 0
	if cellIndex <= 1 || crossesMatching {
		offset = 1
	}

	sel := make(SelectionSet, len(legacySelection))
	for role, ids := range legacySelection {
		shifted := make([]int, len(ids))
		for i, id := range ids {
			if id == 1 {
				// The air bag stays the first solid in every variant.
				shifted[i] = id
				continue
			}
			shifted[i] = id + offset
		}
		sel[role] = shifted
	}

	// The last cell carries the downstream end plate as its final solid.
	if totalCells > 0 && cellIndex >= totalCells {
		last := len(legacySelection) + offset + 1
		sel[RoleEndFlange] = []int{last}
	}
	return sel
}
