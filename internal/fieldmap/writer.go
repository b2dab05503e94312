package fieldmap

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Writer emits the canonical field-map table: a tab-separated header row
// followed by one data row per sample, numbers at 10 significant digits.
type Writer struct {
	w          *bufio.Writer
	headerDone bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

var columns = []string{"x", "y", "z", "Ex", "Ey", "Ez", "Bx", "By", "Bz"}

// WriteCell appends one cell's samples, writing the header first if needed.
// With fourQuadrant false the samples are treated as a single exploited
// quadrant: the on-axis transverse field is cleared, then the set is mirrored
// into the full plane. Four-quadrant samples pass through as-is.
func (w *Writer) WriteCell(m CellMap, fourQuadrant bool) error {
	if !w.headerDone {
		for i, c := range columns {
			if i > 0 {
				if err := w.w.WriteByte('\t'); err != nil {
					return fmt.Errorf("write header: %w", err)
				}
			}
			if _, err := w.w.WriteString(c); err != nil {
				return fmt.Errorf("write header: %w", err)
			}
		}
		if err := w.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		w.headerDone = true
	}

	samples := m.Samples
	if !fourQuadrant {
		ZeroOnAxis(samples)
		samples = MirrorQuadrant(samples)
	}

	for _, s := range samples {
		if err := w.writeRow(s); err != nil {
			return fmt.Errorf("cell %d: %w", m.Cell, err)
		}
	}
	return nil
}

func (w *Writer) writeRow(s Sample) error {
	vals := [9]float64{s.X, s.Y, s.Z, s.Ex, s.Ey, s.Ez, s.Bx, s.By, s.Bz}
	for i, v := range vals {
		if i > 0 {
			if err := w.w.WriteByte('\t'); err != nil {
				return err
			}
		}
		if _, err := w.w.WriteString(strconv.FormatFloat(v, 'g', 10, 64)); err != nil {
			return err
		}
	}
	return w.w.WriteByte('\n')
}

// Flush drains the buffer to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Assemble concatenates every per-cell map from src in ascending cell order
// into w. Boundary samples are not deduplicated: the pipeline already omits
// the shared boundary point from the earlier cell.
func Assemble(src Source, fourQuadrant bool, w io.Writer) error {
	cells, err := src.Cells()
	if err != nil {
		return fmt.Errorf("list cells: %w", err)
	}
	fw := NewWriter(w)
	for _, cell := range cells {
		m, err := src.CellMap(cell)
		if err != nil {
			return fmt.Errorf("load cell %d: %w", cell, err)
		}
		if err := fw.WriteCell(m, fourQuadrant); err != nil {
			return err
		}
	}
	return fw.Flush()
}
