package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadCellLengths reads the cell-length table: one row per cell, the length
// in meters in the first column. A header row is skipped when the first
// field does not parse as a number. Blank lines and '#' comments are ignored.
func LoadCellLengths(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cell table %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse cell table %s: %w", path, err)
	}

	var lengths []float64
	for i, row := range records {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
		if err != nil {
			if i == 0 && len(lengths) == 0 {
				// Header row.
				continue
			}
			return nil, fmt.Errorf("cell table %s row %d: %w", path, i+1, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("cell table %s row %d: length %g must be positive", path, i+1, v)
		}
		lengths = append(lengths, v)
	}

	if len(lengths) == 0 {
		return nil, fmt.Errorf("cell table %s: no cells", path)
	}
	return lengths, nil
}
