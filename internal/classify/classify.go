package classify

// Geometry carries the known widths and z boundaries the predicates test
// against. All values are CAD coordinates in meters.
type Geometry struct {
	R0            float64 // mean aperture radius
	Rho           float64 // vane tip transverse radius
	InnerBoxWidth float64 // transverse extent of the inner beam box

	SelectionStart float64
	SelectionEnd   float64
	CellStart      float64
	CellEnd        float64
}

// OuterWidth is the transverse extent of the outer beam box. The vane
// tip/back split happens at this coordinate.
func (g Geometry) OuterWidth() float64 {
	return 2*g.R0 + g.Rho
}

// tol is the slack applied on top of quantized coordinates. Ten quanta
// absorbs one rounding step on either side of a comparison.
const tol = 10 * quantum

// Classify assigns every enumerated domain to a role.
//
// Predicates run in fixed priority order per domain: inner beam box
// (front/mid/rear by z range), outer beam box, the four vane quadrants
// (tip/back split at OuterWidth), end flange (only when the domain count
// exceeds the symmetry minimum), then the air bag. In quarter-model mode a
// domain matching no predicate is a classification error; in four-quadrant
// mode it falls through to the air bag.
func Classify(domains []Domain, g Geometry, fourQuadrant bool) (SelectionSet, error) {
	sel := make(SelectionSet)
	cerr := &ClassificationError{}

	// End plates only show up in models whose solid count exceeds the
	// symmetry-dependent minimum.
	flangePossible := len(domains) > MinDomains(fourQuadrant)

	for _, d := range domains {
		role, ok := classifyOne(d.Box.Quantized(), g, fourQuadrant, flangePossible)
		if !ok {
			if fourQuadrant {
				role = RoleAirBag
			} else {
				cerr.Unmatched = append(cerr.Unmatched, d.ID)
				continue
			}
		}
		sel[role] = append(sel[role], d.ID)
	}

	verify(sel, fourQuadrant, cerr)
	if !cerr.empty() {
		return nil, cerr
	}
	return sel, nil
}

func classifyOne(b BoundingBox, g Geometry, fourQuadrant, flangePossible bool) (Role, bool) {
	outerW := g.OuterWidth()

	if isBeamBox(b, g.InnerBoxWidth, fourQuadrant) {
		switch {
		case b.ZMax <= g.CellStart+tol:
			return RoleInnerBeamBoxFront, true
		case b.ZMin >= g.CellEnd-tol:
			return RoleInnerBeamBoxRear, true
		default:
			return RoleInnerBeamBoxMid, true
		}
	}

	if isBeamBox(b, outerW, fourQuadrant) {
		return RoleOuterBeamBox, true
	}

	if role, ok := classifyVane(b, outerW, fourQuadrant); ok {
		return role, true
	}

	// End flanges are thin plates spanning the transverse plane.
	if flangePossible && b.ZMax-b.ZMin <= (g.SelectionEnd-g.SelectionStart)/10 {
		return RoleEndFlange, true
	}

	// The air bag is the surrounding volume reaching past the outer beam box
	// on both transverse axes.
	if b.XMax > outerW+tol && b.YMax > outerW+tol {
		return RoleAirBag, true
	}

	return "", false
}

// isBeamBox reports whether the box is an on-axis air volume bounded by the
// given transverse width. In quarter models the box starts at the axis; in
// four-quadrant models it is symmetric about it.
func isBeamBox(b BoundingBox, width float64, fourQuadrant bool) bool {
	if b.XMax > width+tol || b.YMax > width+tol {
		return false
	}
	if fourQuadrant {
		return b.XMin >= -width-tol && b.XMin <= tol-width/2 &&
			b.YMin >= -width-tol && b.YMin <= tol-width/2
	}
	return b.XMin <= tol && b.XMin >= -tol && b.YMin <= tol && b.YMin >= -tol
}

// classifyVane matches the four electrode quadrants. A vane volume is thin on
// one transverse axis and lies off the beam axis on the other; the tip/back
// split sits at the outer beam box width. In four-quadrant mode the mirrored
// negative-axis volumes resolve to the same role.
func classifyVane(b BoundingBox, outerW float64, fourQuadrant bool) (Role, bool) {
	// Horizontal vane, positive x.
	if thinAcross(b.YMin, b.YMax, outerW) && b.XMin > tol {
		if b.XMax <= outerW+tol {
			return RoleVaneTipX, true
		}
		if b.XMin >= outerW-tol {
			return RoleVaneBackX, true
		}
	}
	// Vertical vane, positive y.
	if thinAcross(b.XMin, b.XMax, outerW) && b.YMin > tol {
		if b.YMax <= outerW+tol {
			return RoleVaneTipY, true
		}
		if b.YMin >= outerW-tol {
			return RoleVaneBackY, true
		}
	}
	if !fourQuadrant {
		return "", false
	}
	// Mirrored counterparts on the negative axes.
	if thinAcross(b.YMin, b.YMax, outerW) && b.XMax < -tol {
		if b.XMin >= -outerW-tol {
			return RoleVaneTipX, true
		}
		if b.XMax <= -outerW+tol {
			return RoleVaneBackX, true
		}
	}
	if thinAcross(b.XMin, b.XMax, outerW) && b.YMax < -tol {
		if b.YMin >= -outerW-tol {
			return RoleVaneTipY, true
		}
		if b.YMax <= -outerW+tol {
			return RoleVaneBackY, true
		}
	}
	return "", false
}

// thinAcross reports whether the [lo, hi] extent stays inside the vane
// thickness band around the axis.
func thinAcross(lo, hi, width float64) bool {
	return hi <= width+tol && lo >= -width-tol
}

// verify enforces the completeness rules: the inner beam box resolves to
// exactly front/mid/rear, every vane role holds one domain per symmetry
// variant, and the beam boxes and air bag are non-empty.
func verify(sel SelectionSet, fourQuadrant bool, cerr *ClassificationError) {
	vaneCount := 1
	if fourQuadrant {
		vaneCount = 2
	}
	for _, role := range MandatoryRoles {
		want := 1
		if role == RoleAirBag {
			// The air bag may collect several leftover volumes.
			if len(sel[role]) == 0 {
				cerr.Missing = append(cerr.Missing, role)
			}
			continue
		}
		if isVaneRole(role) {
			want = vaneCount
		}
		switch n := len(sel[role]); {
		case n == 0:
			cerr.Missing = append(cerr.Missing, role)
		case n > want:
			cerr.Duplicate = append(cerr.Duplicate, role)
		case n < want:
			// Four-quadrant vane with only one of its two mirrored volumes.
			cerr.Missing = append(cerr.Missing, role)
		}
	}
}

func isVaneRole(role Role) bool {
	for _, r := range VaneRoles {
		if r == role {
			return true
		}
	}
	return false
}
