// Package classify assigns semantic roles to the solid sub-volumes the engine
// reports after a geometry rebuild. Classification is a set of axis-aligned
// bounding-box predicates evaluated in a fixed priority order; the result is
// the named-selection set the mesher and solver bind to.
package classify

import "math"

// Domain is one meshable sub-volume as enumerated by the engine. Domain ids
// are only valid until the next geometry rebuild and must not be cached
// across cell iterations.
type Domain struct {
	ID  int         `json:"id"`
	Box BoundingBox `json:"box"`
}

// BoundingBox is an axis-aligned bounding box in CAD coordinates [m].
type BoundingBox struct {
	XMin float64 `json:"xmin"`
	XMax float64 `json:"xmax"`
	YMin float64 `json:"ymin"`
	YMax float64 `json:"ymax"`
	ZMin float64 `json:"zmin"`
	ZMax float64 `json:"zmax"`
}

// quantum is the absolute precision bounding-box coordinates are snapped to
// before comparison, absorbing floating rounding from the engine's geometry
// kernel (coordinates are meters, so 1e-9 is a nanometer).
const quantum = 1e-9

func quantize(v float64) float64 {
	return math.Round(v/quantum) * quantum
}

// Quantized returns the box with every coordinate snapped to the comparison
// precision.
func (b BoundingBox) Quantized() BoundingBox {
	return BoundingBox{
		XMin: quantize(b.XMin),
		XMax: quantize(b.XMax),
		YMin: quantize(b.YMin),
		YMax: quantize(b.YMax),
		ZMin: quantize(b.ZMin),
		ZMax: quantize(b.ZMax),
	}
}

// Role names one functional sub-volume of the cell model.
type Role string

const (
	RoleInnerBeamBoxFront Role = "inner_beam_box_front"
	RoleInnerBeamBoxMid   Role = "inner_beam_box_mid"
	RoleInnerBeamBoxRear  Role = "inner_beam_box_rear"
	RoleOuterBeamBox      Role = "outer_beam_box"
	RoleAirBag            Role = "air_bag"
	RoleVaneTipX          Role = "vane_tip_x"
	RoleVaneBackX         Role = "vane_back_x"
	RoleVaneTipY          Role = "vane_tip_y"
	RoleVaneBackY         Role = "vane_back_y"
	RoleEndFlange         Role = "end_flange"
)

// MandatoryRoles are the roles every classification must populate. EndFlange
// is the single optional role.
var MandatoryRoles = []Role{
	RoleInnerBeamBoxFront,
	RoleInnerBeamBoxMid,
	RoleInnerBeamBoxRear,
	RoleOuterBeamBox,
	RoleAirBag,
	RoleVaneTipX,
	RoleVaneBackX,
	RoleVaneTipY,
	RoleVaneBackY,
}

// VaneRoles are the four electrode roles. In four-quadrant models each one
// holds a positive-axis and a negative-axis domain.
var VaneRoles = []Role{RoleVaneTipX, RoleVaneBackX, RoleVaneTipY, RoleVaneBackY}

// SelectionSet maps each role to the engine domain ids bound to it.
type SelectionSet map[Role][]int

// IDs returns the ids bound to a role, nil when the role is absent.
func (s SelectionSet) IDs(role Role) []int {
	return s[role]
}

// MinDomains returns the minimum solid count of a model without end plates:
// three inner beam boxes, the outer beam box, the air bag, and four vane
// volumes per exploited symmetry.
func MinDomains(fourQuadrant bool) int {
	if fourQuadrant {
		return 13
	}
	return 9
}
