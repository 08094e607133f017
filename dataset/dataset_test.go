package dataset

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	body := "\ufeffsolidity,propeller_brand,propeller_diameter,propeller_pitch,number_of_blades,blade_area,disc_area,total_blade_area,rpm\n" +
		"0.08,APC,10.0,6.0,2.0,3.1,78.5,6.2,5000\n" +
		"0.11,GWS,9.0,5.0,3,2.8,63.6,8.4,6000\n"
	path := writeFile(t, "ref.csv", body)

	ds, err := LoadCSV("A", path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", ds.Len())
	}

	first := ds.Row(0)
	if first.Brand != "APC" || first.Diameter != 10 || first.Pitch != 6 || first.Blades != 2 {
		t.Errorf("unexpected first row: %+v", first)
	}
	if first.Solidity != 0.08 || first.TotalBladeArea != 6.2 {
		t.Errorf("unexpected derived metrics: %+v", first)
	}
	if counts := ds.BladeCounts(); counts[2] != 1 || counts[3] != 1 {
		t.Errorf("unexpected blade counts: %v", counts)
	}
}

func TestLoadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing column", "propeller_brand,propeller_diameter\nAPC,10\n"},
		{"bad number", "propeller_brand,propeller_diameter,propeller_pitch,number_of_blades,blade_area,disc_area,total_blade_area,solidity\nAPC,ten,6,2,1,1,1,1\n"},
		{"missing blades", "propeller_brand,propeller_diameter,propeller_pitch,number_of_blades,blade_area,disc_area,total_blade_area,solidity\nAPC,10,6,,1,1,1,1\n"},
		{"fractional blades", "propeller_brand,propeller_diameter,propeller_pitch,number_of_blades,blade_area,disc_area,total_blade_area,solidity\nAPC,10,6,2.5,1,1,1,1\n"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "ref.csv", tt.body)
			if _, err := LoadCSV("A", path); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestLoadCSVMissingCells(t *testing.T) {
	body := "propeller_brand,propeller_diameter,propeller_pitch,number_of_blades,blade_area,disc_area,total_blade_area,solidity\n" +
		"APC,,6,2,1.2,,2.4,NaN\n" +
		"GWS,9,NA,3,,63.6,8.4,0.11\n" +
		"HQ,5,4,3,0.5,19.6,1.5,0.077\n"
	path := writeFile(t, "ref.csv", body)

	ds, err := LoadCSV("A", path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if ds.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", ds.Len())
	}

	first := ds.Row(0)
	if !math.IsNaN(first.Diameter) || !math.IsNaN(first.DiscArea) || !math.IsNaN(first.Solidity) {
		t.Errorf("expected NaN for missing cells: %+v", first)
	}
	if first.Pitch != 6 || first.BladeArea != 1.2 || first.Blades != 2 {
		t.Errorf("present cells changed: %+v", first)
	}
	second := ds.Row(1)
	if !math.IsNaN(second.Pitch) || !math.IsNaN(second.BladeArea) || second.Diameter != 9 {
		t.Errorf("unexpected second row: %+v", second)
	}
	if last := ds.Row(2); last.Diameter != 5 || last.Solidity != 0.077 {
		t.Errorf("unexpected last row: %+v", last)
	}
}

func TestLoadCSVHeaderOnly(t *testing.T) {
	path := writeFile(t, "ref.csv", "propeller_brand,propeller_diameter,propeller_pitch,number_of_blades,blade_area,disc_area,total_blade_area,solidity\n")
	ds, err := LoadCSV("B", path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if ds.Len() != 0 {
		t.Errorf("expected empty dataset, got %d rows", ds.Len())
	}
}

func TestNewCopiesRows(t *testing.T) {
	rows := []ReferenceRow{{Brand: "APC", Diameter: 10}}
	ds := New("A", rows)
	rows[0].Brand = "changed"
	if ds.Row(0).Brand != "APC" {
		t.Errorf("dataset shares backing array with caller")
	}
}

func TestReadTable(t *testing.T) {
	body := "brand,diameter,blades,ct,note,tested\n" +
		"APC,10.5,2,NaN,,True\n" +
		"GWS,9,3,0.09,slow flyer,False\n" +
		"T-Motor,12,2,0.1,x,True\n"
	path := writeFile(t, "experiment.csv", body)

	table, err := ReadTable(path, 2)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(table.Records) != 2 {
		t.Fatalf("expected limit of 2 records, got %d", len(table.Records))
	}

	first := table.Records[0]
	if v, _ := first.Get("ct"); v != nil {
		t.Errorf("NaN should be nil, got %v", v)
	}
	if v, _ := first.Get("note"); v != nil {
		t.Errorf("empty cell should be nil, got %v", v)
	}
	if v, _ := first.Get("blades"); v != int64(2) {
		t.Errorf("blades should be int64 2, got %#v", v)
	}
	if v, _ := first.Get("tested"); v != true {
		t.Errorf("tested should be true, got %#v", v)
	}

	data, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"brand":"APC","diameter":10.5,"blades":2,"ct":null,"note":null,"tested":true}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestReadTableMissingFile(t *testing.T) {
	if _, err := ReadTable(filepath.Join(t.TempDir(), "nope.csv"), 10); err == nil {
		t.Fatal("expected error for missing file")
	}
}
