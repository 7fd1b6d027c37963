package workbook

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.xlsx")

	f := excelize.NewFile()
	_ = f.SetSheetName(f.GetSheetName(0), "Summary")
	_ = f.SetCellValue("Summary", "A1", "Property Name")
	_ = f.SetCellValue("Summary", "B1", "Sunset Ridge")
	_ = f.SetCellValue("Summary", "A2", "Units")
	_ = f.SetCellValue("Summary", "B2", 240)
	_ = f.SetCellValue("Summary", "B4", "#REF!")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	return path
}

func TestReadCategories(t *testing.T) {
	r, err := Open(writeFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	tests := []struct {
		name    string
		sheet   string
		address string
		value   string
		failure FailureKind
	}{
		{"value", "Summary", "B1", "Sunset Ridge", ""},
		{"number", "Summary", "B2", "240", ""},
		{"missing sheet", "Returns", "B1", "", FailMissingSheet},
		{"invalid address", "Summary", "nope", "", FailInvalidAddress},
		{"out of bounds", "Summary", "ZZ900", "", FailOutOfBounds},
		{"formula error", "Summary", "B4", "", FailFormulaError},
		{"empty cell", "Summary", "A3", "", FailEmptyCell},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := r.Read(tc.sheet, tc.address)
			if res.Failure != tc.failure {
				t.Fatalf("failure=%q detail=%q, want %q", res.Failure, res.Detail, tc.failure)
			}
			if res.Value != tc.value {
				t.Fatalf("value=%q, want %q", res.Value, tc.value)
			}
			if res.OK() != (tc.failure == "") {
				t.Fatalf("OK()=%v with failure %q", res.OK(), res.Failure)
			}
		})
	}
}

func TestOpenUnreadable(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.xlsx")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
