package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
)

func testVocab() Vocabulary {
	return Vocabulary{
		Fields: []internal.CanonicalField{
			{Name: "Net Operating Income", Sheet: "Cash Flow", Cell: "C12", Label: "Net Operating Income"},
			{Name: "Purchase Price", Sheet: "Assumptions", Cell: "B5", Label: "Purchase Price"},
		},
		Synonyms: map[string][]string{
			"Net Operating Income": {"NOI"},
		},
	}
}

func repWith(sheets map[string]internal.SheetFingerprint) internal.FileFingerprint {
	fp := internal.FileFingerprint{Path: "/deals/rep.xlsx", Name: "rep.xlsx", Classification: internal.ClassPopulated}
	for name, sheet := range sheets {
		sheet.Name = name
		fp.Sheets = append(fp.Sheets, sheet)
	}
	return fp
}

func findMatch(t *testing.T, res internal.MappingResult, field string) internal.MappingMatch {
	t.Helper()
	for _, m := range res.Matches {
		if m.Field == field {
			return m
		}
	}
	t.Fatalf("field %q not matched; unmapped=%v", field, res.Unmapped)
	return internal.MappingMatch{}
}

func TestMapTier1WithLabel(t *testing.T) {
	rep := repWith(map[string]internal.SheetFingerprint{
		"Cash Flow": {ColumnLabels: []string{"GPR", "Net Operating Income:"}},
	})

	res := NewMapper(testVocab()).Map("g", rep)
	m := findMatch(t, res, "Net Operating Income")
	if m.Tier != 1 || m.Confidence != 0.95 {
		t.Fatalf("tier=%d confidence=%v", m.Tier, m.Confidence)
	}
	if m.Sheet != "Cash Flow" || m.Cell != "C12" {
		t.Fatalf("resolved %s!%s", m.Sheet, m.Cell)
	}
}

func TestMapTier1SheetOnly(t *testing.T) {
	rep := repWith(map[string]internal.SheetFingerprint{
		"Cash Flow": {ColumnLabels: []string{"totally different rows"}},
	})

	res := NewMapper(testVocab()).Map("g", rep)
	m := findMatch(t, res, "Net Operating Income")
	if m.Tier != 1 || m.Confidence != 0.85 {
		t.Fatalf("tier=%d confidence=%v", m.Tier, m.Confidence)
	}
}

func TestMapTier2LabelOnAnotherSheet(t *testing.T) {
	rep := repWith(map[string]internal.SheetFingerprint{
		"Pro Forma": {ColumnLabels: []string{"Net Operating Income"}},
	})

	res := NewMapper(testVocab()).Map("g", rep)
	m := findMatch(t, res, "Net Operating Income")
	if m.Tier != 2 || m.Confidence != 0.70 {
		t.Fatalf("tier=%d confidence=%v", m.Tier, m.Confidence)
	}
	// Resolution sticks to the canonical address; the sighting is audit only.
	if m.Sheet != "Cash Flow" || m.Cell != "C12" {
		t.Fatalf("resolved %s!%s", m.Sheet, m.Cell)
	}
	if m.MatchedSheet != "Pro Forma" {
		t.Fatalf("matchedSheet=%q", m.MatchedSheet)
	}
}

func TestMapTier2PrefersHeaders(t *testing.T) {
	rep := repWith(map[string]internal.SheetFingerprint{
		"Annual":  {ColumnLabels: []string{"Net Operating Income"}},
		"Monthly": {HeaderLabels: []string{"Net Operating Income"}},
	})

	res := NewMapper(testVocab()).Map("g", rep)
	m := findMatch(t, res, "Net Operating Income")
	if m.Tier != 2 || m.MatchedSheet != "Monthly" {
		t.Fatalf("tier=%d matchedSheet=%q", m.Tier, m.MatchedSheet)
	}
}

func TestMapTier3Prefix(t *testing.T) {
	rep := repWith(map[string]internal.SheetFingerprint{
		"Pro Forma": {ColumnLabels: []string{"Net Operating Income before Reserves"}},
	})

	res := NewMapper(testVocab()).Map("g", rep)
	m := findMatch(t, res, "Net Operating Income")
	if m.Tier != 3 || m.Confidence != 0.50 {
		t.Fatalf("tier=%d confidence=%v", m.Tier, m.Confidence)
	}
}

func TestMapTier4Synonym(t *testing.T) {
	rep := repWith(map[string]internal.SheetFingerprint{
		"Pro Forma": {ColumnLabels: []string{"NOI"}},
	})

	res := NewMapper(testVocab()).Map("g", rep)
	m := findMatch(t, res, "Net Operating Income")
	if m.Tier != 4 || m.Confidence != 0.40 {
		t.Fatalf("tier=%d confidence=%v", m.Tier, m.Confidence)
	}
}

func TestMapUnmapped(t *testing.T) {
	rep := repWith(map[string]internal.SheetFingerprint{
		"Rent Roll": {ColumnLabels: []string{"Unit", "Tenant", "Rent"}},
	})

	res := NewMapper(testVocab()).Map("g", rep)
	if len(res.Matches) != 0 {
		t.Fatalf("matches=%v", res.Matches)
	}
	if len(res.Unmapped) != 2 {
		t.Fatalf("unmapped=%v", res.Unmapped)
	}
	if res.OverallConfidence != 0 {
		t.Fatalf("confidence=%v", res.OverallConfidence)
	}
}

func TestMapTiersAreStrictlyOrdered(t *testing.T) {
	// Eligible for tier 1 (sheet present) and tier 2 (label elsewhere):
	// tier 1 must win.
	rep := repWith(map[string]internal.SheetFingerprint{
		"Cash Flow": {ColumnLabels: []string{"something else"}},
		"Pro Forma": {ColumnLabels: []string{"Net Operating Income", "NOI"}},
	})

	res := NewMapper(testVocab()).Map("g", rep)
	m := findMatch(t, res, "Net Operating Income")
	if m.Tier != 1 {
		t.Fatalf("tier=%d", m.Tier)
	}
}

func TestMapOverallConfidence(t *testing.T) {
	rep := repWith(map[string]internal.SheetFingerprint{
		"Cash Flow": {ColumnLabels: []string{"Net Operating Income"}},
	})

	res := NewMapper(testVocab()).Map("g", rep)
	// One field at 0.95, one unmapped counted as zero.
	if res.OverallConfidence != 0.95/2 {
		t.Fatalf("confidence=%v", res.OverallConfidence)
	}
	if res.TierCounts[1] != 1 {
		t.Fatalf("tierCounts=%v", res.TierCounts)
	}
}

func TestVocabularyValidation(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "fields.json")
	if err := os.WriteFile(path, []byte(`{"fields":[{"name":"X","sheet":"S","cell":"not-a-cell","label":"X"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("bad cell accepted")
	}

	if err := os.WriteFile(path, []byte(`{"fields":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("empty vocabulary accepted")
	}

	if err := os.WriteFile(path, []byte(`{"fields":[{"name":"X","sheet":"S","cell":"B2","label":"X"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	vocab, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(vocab.Fields) != 1 {
		t.Fatalf("fields=%d", len(vocab.Fields))
	}
}

func TestDefaultVocabularyIsValid(t *testing.T) {
	if err := Default().validate(); err != nil {
		t.Fatal(err)
	}
}
