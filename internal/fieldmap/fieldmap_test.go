package fieldmap

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestMirrorQuadrant_FourWayExpansion(t *testing.T) {
	in := []Sample{{X: 0.002, Y: 0.003, Z: 0.01, Ex: 100, Ey: 50, Ez: 10}}
	out := MirrorQuadrant(in)

	if len(out) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(out))
	}

	want := map[string]Sample{
		"+ +": {X: 0.002, Y: 0.003, Z: 0.01, Ex: 100, Ey: 50, Ez: 10},
		"- +": {X: -0.002, Y: 0.003, Z: 0.01, Ex: -100, Ey: 50, Ez: 10},
		"+ -": {X: 0.002, Y: -0.003, Z: 0.01, Ex: 100, Ey: -50, Ez: 10},
		"- -": {X: -0.002, Y: -0.003, Z: 0.01, Ex: -100, Ey: -50, Ez: 10},
	}
	for _, s := range out {
		key := fmt.Sprintf("%s %s", signOf(s.X), signOf(s.Y))
		exp, ok := want[key]
		if !ok {
			t.Errorf("unexpected quadrant for sample %+v", s)
			continue
		}
		if s != exp {
			t.Errorf("quadrant %s: expected %+v, got %+v", key, exp, s)
		}
		delete(want, key)
	}
	if len(want) != 0 {
		t.Errorf("missing mirrored quadrants: %v", want)
	}
}

func signOf(v float64) string {
	if v < 0 {
		return "-"
	}
	return "+"
}

func TestMirrorQuadrant_OnAxisSamplesNotDuplicated(t *testing.T) {
	in := []Sample{
		{X: 0, Y: 0, Z: 0.01, Ez: 5},
		{X: 0.001, Y: 0, Z: 0.01, Ex: 7, Ez: 5},
		{X: 0, Y: 0.001, Z: 0.01, Ey: 7, Ez: 5},
	}
	out := MirrorQuadrant(in)

	// origin: 1, x-axis sample: 2, y-axis sample: 2.
	if len(out) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(out))
	}
}

func TestMirrorQuadrant_FullSpaceIsNoOp(t *testing.T) {
	full := MirrorQuadrant([]Sample{{X: 0.002, Y: 0.003, Ex: 1, Ey: 2}})
	again := MirrorQuadrant(full)
	if len(again) != len(full) {
		t.Fatalf("expected mirroring a full map to be a no-op, got %d samples from %d", len(again), len(full))
	}
	for i := range full {
		if again[i] != full[i] {
			t.Errorf("sample %d changed: expected %+v, got %+v", i, full[i], again[i])
		}
	}
}

func TestZeroOnAxis(t *testing.T) {
	samples := []Sample{
		{X: 0, Y: 0, Ex: 0.03, Ey: -0.02, Ez: 100},
		{X: 0.001, Y: 0, Ex: 5, Ey: 1, Ez: 100},
	}
	ZeroOnAxis(samples)

	if samples[0].Ex != 0 || samples[0].Ey != 0 {
		t.Errorf("expected on-axis Ex/Ey zeroed, got %g/%g", samples[0].Ex, samples[0].Ey)
	}
	if samples[0].Ez != 100 {
		t.Errorf("expected Ez untouched, got %g", samples[0].Ez)
	}
	if samples[1].Ex != 5 || samples[1].Ey != 1 {
		t.Errorf("expected off-axis sample untouched, got %+v", samples[1])
	}
}

type sliceSource []CellMap

func (s sliceSource) Cells() ([]int, error) {
	cells := make([]int, len(s))
	for i, m := range s {
		cells[i] = m.Cell
	}
	return cells, nil
}

func (s sliceSource) CellMap(cell int) (CellMap, error) {
	for _, m := range s {
		if m.Cell == cell {
			return m, nil
		}
	}
	return CellMap{}, fmt.Errorf("no cell %d", cell)
}

func TestAssemble_HeaderAndOrder(t *testing.T) {
	src := sliceSource{
		{Cell: 1, Samples: []Sample{{X: 0, Y: 0, Z: 0, Ez: 1}}},
		{Cell: 2, Samples: []Sample{{X: 0, Y: 0, Z: 0.05, Ez: 2}}},
	}

	var buf bytes.Buffer
	if err := Assemble(src, true, &buf); err != nil {
		t.Fatalf("expected assemble to succeed, got %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "x\ty\tz\tEx\tEy\tEz\tBx\tBy\tBz" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "\t0\t") {
		t.Errorf("expected first data row for z=0, got %q", lines[1])
	}
	fields := strings.Split(lines[1], "\t")
	if len(fields) != 9 {
		t.Errorf("expected 9 columns, got %d in %q", len(fields), lines[1])
	}
}

func TestAssemble_QuadrantCleansAxisBeforeMirroring(t *testing.T) {
	src := sliceSource{
		{Cell: 1, Samples: []Sample{
			{X: 0, Y: 0, Z: 0, Ex: 0.5, Ey: -0.5, Ez: 10},
			{X: 0.001, Y: 0.001, Z: 0, Ex: 3, Ey: 4, Ez: 10},
		}},
	}

	var buf bytes.Buffer
	if err := Assemble(src, false, &buf); err != nil {
		t.Fatalf("expected assemble to succeed, got %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	// Header + on-axis sample + 4 mirrored off-axis samples.
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d", len(lines))
	}
	axisRow := strings.Split(lines[1], "\t")
	if axisRow[3] != "0" || axisRow[4] != "0" {
		t.Errorf("expected on-axis Ex/Ey zeroed in output, got %q %q", axisRow[3], axisRow[4])
	}
}

func TestWriter_TenSignificantDigits(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	err := w.WriteCell(CellMap{Cell: 1, Samples: []Sample{
		{X: 0.123456789012345, Z: 1.0 / 3.0, Ez: 12345.6789012345},
	}}, true)
	if err != nil {
		t.Fatalf("expected write to succeed, got %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("expected flush to succeed, got %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	fields := strings.Split(lines[1], "\t")
	if fields[0] != "0.123456789" {
		t.Errorf("expected x printed with 10 significant digits, got %q", fields[0])
	}
	if fields[2] != "0.3333333333" {
		t.Errorf("expected z printed with 10 significant digits, got %q", fields[2])
	}
	// FormatFloat 'g' trims trailing zeros.
	if fields[5] != "12345.6789" {
		t.Errorf("expected Ez printed with 10 significant digits, got %q", fields[5])
	}
}
