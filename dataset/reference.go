// Package dataset holds the read-only reference geometry datasets and the CSV
// tables served by the pass-through endpoints.
package dataset

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ReferenceRow is one known propeller geometry.
type ReferenceRow struct {
	Brand          string  `json:"propeller_brand"`
	Diameter       float64 `json:"propeller_diameter"`
	Pitch          float64 `json:"propeller_pitch"`
	Blades         int     `json:"number_of_blades"`
	BladeArea      float64 `json:"blade_area"`
	DiscArea       float64 `json:"disc_area"`
	TotalBladeArea float64 `json:"total_blade_area"`
	Solidity       float64 `json:"solidity"`
}

// Dataset is an ordered, immutable collection of reference rows.
// Row order is significant: the matcher breaks ties by first occurrence.
type Dataset struct {
	name string
	rows []ReferenceRow
}

// New copies rows into a Dataset.
func New(name string, rows []ReferenceRow) *Dataset {
	copied := make([]ReferenceRow, len(rows))
	copy(copied, rows)
	return &Dataset{name: name, rows: copied}
}

func (d *Dataset) Name() string { return d.name }

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// Row returns the i-th row by value.
func (d *Dataset) Row(i int) ReferenceRow { return d.rows[i] }

// BladeCounts returns the number of rows per blade count.
func (d *Dataset) BladeCounts() map[int]int {
	counts := make(map[int]int)
	for _, row := range d.rows {
		counts[row.Blades]++
	}
	return counts
}

var referenceColumns = []string{
	"propeller_brand",
	"propeller_diameter",
	"propeller_pitch",
	"number_of_blades",
	"blade_area",
	"disc_area",
	"total_blade_area",
	"solidity",
}

const bladesColumn = 3

// LoadCSV reads a reference dataset. Column order is free; extra columns are ignored.
func LoadCSV(name, path string) (*Dataset, error) {
	src, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	index := src.columnIndex()
	cols := make([]int, len(referenceColumns))
	for i, col := range referenceColumns {
		pos, ok := index[col]
		if !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, col)
		}
		cols[i] = pos
	}

	rows := make([]ReferenceRow, 0, 1024)
	line := 1
	for {
		record, err := src.reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		row, err := parseReferenceRow(record, cols)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		rows = append(rows, row)
	}

	return &Dataset{name: name, rows: rows}, nil
}

func parseReferenceRow(record []string, cols []int) (ReferenceRow, error) {
	field := func(i int) string {
		if cols[i] >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[cols[i]])
	}
	// Missing geometry and area cells load as NaN; the matcher never selects
	// a row whose diameter or pitch is NaN. The blade count is required.
	floats := make([]float64, len(cols))
	for i := 1; i < len(cols); i++ {
		cell := field(i)
		if i != bladesColumn && nullCells[strings.ToLower(cell)] {
			floats[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return ReferenceRow{}, fmt.Errorf("column %s: %w", referenceColumns[i], err)
		}
		floats[i] = v
	}

	blades := floats[bladesColumn]
	if blades != math.Trunc(blades) || math.IsInf(blades, 0) || math.IsNaN(blades) {
		return ReferenceRow{}, fmt.Errorf("column number_of_blades: %v is not an integer", blades)
	}

	return ReferenceRow{
		Brand:          field(0),
		Diameter:       floats[1],
		Pitch:          floats[2],
		Blades:         int(blades),
		BladeArea:      floats[4],
		DiscArea:       floats[5],
		TotalBladeArea: floats[6],
		Solidity:       floats[7],
	}, nil
}
