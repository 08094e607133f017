package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Field is one named cell of a Record.
type Field struct {
	Name  string
	Value interface{}
}

// Record is a table row that marshals as a JSON object in column order.
type Record []Field

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value of the named field.
func (r Record) Get(name string) (interface{}, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Table is the head of a CSV file with typed cells.
type Table struct {
	Columns []string
	Records []Record
}

// ReadTable reads at most limit data rows from path. Missing and NaN cells become nil.
func ReadTable(path string, limit int) (*Table, error) {
	src, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	table := &Table{Columns: src.header, Records: make([]Record, 0, limit)}
	for len(table.Records) < limit {
		raw, err := src.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		record := make(Record, len(src.header))
		for i, name := range src.header {
			var cell string
			if i < len(raw) {
				cell = raw[i]
			}
			record[i] = Field{Name: name, Value: parseCell(cell)}
		}
		table.Records = append(table.Records, record)
	}
	return table, nil
}

var nullCells = map[string]bool{
	"":     true,
	"nan":  true,
	"na":   true,
	"n/a":  true,
	"null": true,
	"none": true,
}

func parseCell(cell string) interface{} {
	cell = strings.TrimSpace(cell)
	if nullCells[strings.ToLower(cell)] {
		return nil
	}
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	}
	switch cell {
	case "True", "true", "TRUE":
		return true
	case "False", "false", "FALSE":
		return false
	}
	return cell
}
