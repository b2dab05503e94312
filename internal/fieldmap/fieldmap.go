// Package fieldmap holds the sampled electrostatic field data and the final
// field-map assembly: per-cell concatenation, quadrant mirroring, on-axis
// cleanup, and the tab-separated table consumed by beam-dynamics tools.
package fieldmap

// Sample is one field-map grid point. Coordinates are meters, fields V/m.
// The magnetic components are always zero in an electrostatic solve but stay
// in the record because the downstream table format carries them.
type Sample struct {
	X, Y, Z    float64
	Ex, Ey, Ez float64
	Bx, By, Bz float64
}

// CellMap is the ordered sample sequence for one cell.
type CellMap struct {
	Cell    int
	Samples []Sample
}

// Source yields per-cell maps in ascending cell order. Implemented by the
// checkpoint store.
type Source interface {
	Cells() ([]int, error)
	CellMap(cell int) (CellMap, error)
}

// ZeroOnAxis clears the transverse field of every sample lying exactly on
// the beam axis. Quadrant-model interpolation can leave a small non-physical
// Ex/Ey there which must not propagate into the mirrored map.
func ZeroOnAxis(samples []Sample) {
	for i := range samples {
		if samples[i].X == 0 && samples[i].Y == 0 {
			samples[i].Ex = 0
			samples[i].Ey = 0
		}
	}
}

// MirrorQuadrant expands a single-quadrant sample set into the full
// transverse plane: x-mirrors flip x, Ex, Bx; y-mirrors flip y, Ey, By.
// Samples exactly on an axis are not mirrored across it. A set that already
// contains negative-coordinate samples is full-space and passes through
// unchanged, making the expansion a no-op on its own output.
func MirrorQuadrant(samples []Sample) []Sample {
	for _, s := range samples {
		if s.X < 0 || s.Y < 0 {
			return samples
		}
	}

	out := make([]Sample, 0, 4*len(samples))
	for _, s := range samples {
		out = append(out, s)
		if s.X != 0 {
			out = append(out, flipX(s))
		}
		if s.Y != 0 {
			out = append(out, flipY(s))
		}
		if s.X != 0 && s.Y != 0 {
			out = append(out, flipX(flipY(s)))
		}
	}
	return out
}

func flipX(s Sample) Sample {
	s.X, s.Ex, s.Bx = -s.X, -s.Ex, -s.Bx
	return s
}

func flipY(s Sample) Sample {
	s.Y, s.Ey, s.By = -s.Y, -s.Ey, -s.By
	return s
}
