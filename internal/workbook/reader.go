package workbook

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// FailureKind categorizes why a cell read produced no usable value.
type FailureKind string

const (
	FailMissingSheet   FailureKind = "missing_sheet"
	FailInvalidAddress FailureKind = "invalid_address"
	FailOutOfBounds    FailureKind = "out_of_bounds"
	FailFormulaError   FailureKind = "formula_error"
	FailEmptyCell      FailureKind = "empty_cell"
	FailRead           FailureKind = "read_error"
)

// CellResult is the outcome of one read: either a value or a categorized
// failure. Reads never abort a batch.
type CellResult struct {
	Sheet   string      `json:"sheet"`
	Address string      `json:"address"`
	Value   string      `json:"value,omitempty"`
	Failure FailureKind `json:"failure,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}

func (r CellResult) OK() bool { return r.Failure == "" }

// Reader reads individual cells from one workbook. Not safe for
// concurrent use; each worker opens its own Reader.
type Reader struct {
	path string
	file *excelize.File
}

func Open(path string) (*Reader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return &Reader{path: path, file: f}, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}

func (r *Reader) Path() string { return r.path }

// Read returns the value at sheet!address or a categorized failure.
func (r *Reader) Read(sheet, address string) CellResult {
	res := CellResult{Sheet: sheet, Address: address}

	col, row, err := excelize.CellNameToCoordinates(address)
	if err != nil {
		res.Failure = FailInvalidAddress
		res.Detail = err.Error()
		return res
	}

	idx, err := r.file.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		res.Failure = FailMissingSheet
		res.Detail = fmt.Sprintf("no sheet named %q", sheet)
		return res
	}

	maxCol, maxRow := sheetExtents(r.file, sheet)
	if row > maxRow || col > maxCol {
		res.Failure = FailOutOfBounds
		res.Detail = fmt.Sprintf("%s beyond %dx%d used range", address, maxRow, maxCol)
		return res
	}

	value, err := r.file.GetCellValue(sheet, address)
	if err != nil {
		res.Failure = FailRead
		res.Detail = err.Error()
		return res
	}

	value = strings.TrimSpace(value)
	if value == "" {
		res.Failure = FailEmptyCell
		return res
	}
	if isFormulaError(value) {
		res.Failure = FailFormulaError
		res.Detail = value
		return res
	}

	res.Value = value
	return res
}

func sheetExtents(f *excelize.File, sheet string) (maxCol, maxRow int) {
	dim, err := f.GetSheetDimension(sheet)
	if err != nil || dim == "" {
		return 0, 0
	}
	parts := strings.Split(dim, ":")
	end := parts[len(parts)-1]
	col, row, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return 0, 0
	}
	return col, row
}

var formulaErrors = map[string]struct{}{
	"#DIV/0!": {}, "#N/A": {}, "#NAME?": {}, "#NULL!": {},
	"#NUM!": {}, "#REF!": {}, "#VALUE!": {}, "#SPILL!": {},
}

func isFormulaError(value string) bool {
	if !strings.HasPrefix(value, "#") {
		return false
	}
	_, known := formulaErrors[strings.ToUpper(value)]
	return known
}
