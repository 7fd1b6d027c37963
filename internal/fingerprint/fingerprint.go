package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/config"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/util"
)

// Scanner turns workbook files into structural fingerprints. Scanning is
// bounded: at most MaxScanRows rows per sheet, capped label lists.
type Scanner struct {
	MaxScanRows     int
	HeaderLabelCap  int
	ColumnLabelCap  int
	SparseThreshold int
}

func NewScanner(cfg config.Config) *Scanner {
	return &Scanner{
		MaxScanRows:     cfg.MaxScanRows,
		HeaderLabelCap:  cfg.HeaderLabelCap,
		ColumnLabelCap:  cfg.ColumnLabelCap,
		SparseThreshold: cfg.SparseCellThreshold,
	}
}

// Fingerprint summarizes one file. Unreadable files degrade to an
// error-classified fingerprint instead of failing the batch.
func (s *Scanner) Fingerprint(path string) internal.FileFingerprint {
	fp := internal.FileFingerprint{Path: path, Name: filepath.Base(path)}

	info, err := os.Stat(path)
	if err != nil {
		return degraded(fp, err)
	}
	fp.Size = info.Size()
	fp.ModifiedAt = info.ModTime().UTC().Format(time.RFC3339)

	hash, err := hashFile(path)
	if err != nil {
		return degraded(fp, err)
	}
	fp.ContentHash = hash

	f, err := excelize.OpenFile(path)
	if err != nil {
		return degraded(fp, err)
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		sheet := s.scanSheet(f, name)
		fp.Sheets = append(fp.Sheets, sheet)
		fp.TotalPopulated += sheet.PopulatedCells
	}

	fp.SheetNameKey = SheetNameKey(fp.Sheets)
	fp.CombinedSignature = CombinedSignature(fp.Sheets)
	fp.Classification = s.classify(fp.TotalPopulated)
	return fp
}

func (s *Scanner) scanSheet(f *excelize.File, name string) internal.SheetFingerprint {
	sheet := internal.SheetFingerprint{Name: name}

	rows, err := f.Rows(name)
	if err != nil {
		sheet.Signature = sheetSignature(sheet)
		return sheet
	}
	defer rows.Close()

	rowNo := 0
	for rows.Next() {
		if rowNo == s.MaxScanRows {
			break
		}
		rowNo++

		cols, err := rows.Columns()
		if err != nil {
			continue
		}
		if len(cols) > sheet.ColCount {
			sheet.ColCount = len(cols)
		}
		for i, cell := range cols {
			value := strings.TrimSpace(cell)
			if value == "" {
				continue
			}
			sheet.PopulatedCells++
			if rowNo == 1 && len(sheet.HeaderLabels) < s.HeaderLabelCap {
				sheet.HeaderLabels = append(sheet.HeaderLabels, value)
			}
			if i == 0 && len(sheet.ColumnLabels) < s.ColumnLabelCap {
				sheet.ColumnLabels = append(sheet.ColumnLabels, value)
			}
		}
	}
	sheet.RowCount = rowNo
	sheet.Signature = sheetSignature(sheet)
	return sheet
}

func (s *Scanner) classify(totalPopulated int) internal.Classification {
	switch {
	case totalPopulated == 0:
		return internal.ClassEmpty
	case totalPopulated < s.SparseThreshold:
		return internal.ClassSparse
	default:
		return internal.ClassPopulated
	}
}

func degraded(fp internal.FileFingerprint, err error) internal.FileFingerprint {
	fp.Classification = internal.ClassError
	fp.Error = err.Error()
	return fp
}

// SheetNameKey joins the sorted tab names. Equal keys are the primary
// grouping signal: same tabs, likely the same template.
func SheetNameKey(sheets []internal.SheetFingerprint) string {
	names := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		names = append(names, sheet.Name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

// CombinedSignature hashes the sorted sheet signatures; equal values mean
// structurally identical workbooks.
func CombinedSignature(sheets []internal.SheetFingerprint) string {
	sigs := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		sigs = append(sigs, sheet.Signature)
	}
	sort.Strings(sigs)
	return hashStrings(sigs...)
}

func sheetSignature(sheet internal.SheetFingerprint) string {
	return hashStrings(
		sheet.Name,
		strconv.Itoa(sheet.RowCount),
		strconv.Itoa(sheet.ColCount),
		strings.Join(normalizeSorted(sheet.HeaderLabels), "\x1f"),
		strings.Join(normalizeSorted(sheet.ColumnLabels), "\x1f"),
	)
}

func normalizeSorted(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		norm := util.NormalizeLabel(label)
		if norm != "" {
			out = append(out, norm)
		}
	}
	sort.Strings(out)
	return out
}

func hashStrings(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
