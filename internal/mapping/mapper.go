package mapping

import (
	"strings"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/util"
)

// Tier confidences. The ladder reflects how templates actually drift: a
// renamed sheet keeps its labels, a relabeled field keeps its sheet,
// wording drift needs prefix or synonym tolerance.
const (
	confSheetAndLabel = 0.95
	confSheetOnly     = 0.85
	confLabelAnywhere = 0.70
	confPrefix        = 0.50
	confSynonym       = 0.40
)

type Mapper struct {
	vocab Vocabulary
}

func NewMapper(vocab Vocabulary) *Mapper {
	return &Mapper{vocab: vocab}
}

// labelSite records where a label was seen in the representative.
type labelSite struct {
	sheet  string
	header bool
}

// repIndex is the representative fingerprint flattened for lookup.
type repIndex struct {
	sheets     map[string]struct{}
	sheetLabel map[string]map[string]struct{}
	sites      map[string][]labelSite
	ordered    []string
}

// Map locates every canonical field in the representative fingerprint,
// trying tiers strictly in order and stopping at the first success. The
// resolved address is always the canonical one; where a label actually
// turned up is recorded for audit, and operators fix genuinely moved
// cells through the per-group remap file.
func (m *Mapper) Map(group string, rep internal.FileFingerprint) internal.MappingResult {
	idx := indexRepresentative(rep)
	res := internal.MappingResult{
		Group:          group,
		Representative: rep.Path,
		TierCounts:     map[int]int{},
	}

	total := 0.0
	for _, field := range m.vocab.Fields {
		match, ok := m.matchField(field, idx)
		if !ok {
			res.Unmapped = append(res.Unmapped, field.Name)
			continue
		}
		res.Matches = append(res.Matches, match)
		res.TierCounts[match.Tier]++
		total += match.Confidence
	}

	if n := len(m.vocab.Fields); n > 0 {
		res.OverallConfidence = total / float64(n)
	}
	return res
}

func (m *Mapper) matchField(field internal.CanonicalField, idx *repIndex) (internal.MappingMatch, bool) {
	match := internal.MappingMatch{
		Field:          field.Name,
		Sheet:          field.Sheet,
		Cell:           field.Cell,
		CanonicalSheet: field.Sheet,
		CanonicalCell:  field.Cell,
	}
	label := util.NormalizeLabel(field.Label)

	// Tier 1: the canonical sheet exists verbatim.
	if _, ok := idx.sheets[field.Sheet]; ok {
		match.Tier = 1
		match.MatchedSheet = field.Sheet
		if _, onSheet := idx.sheetLabel[field.Sheet][label]; onSheet {
			match.Confidence = confSheetAndLabel
			match.MatchedLabel = field.Label
		} else {
			match.Confidence = confSheetOnly
		}
		return match, true
	}

	// Tier 2: the label shows up on some other sheet, headers preferred.
	if site, ok := findSite(idx, label); ok {
		match.Tier = 2
		match.Confidence = confLabelAnywhere
		match.MatchedSheet = site.sheet
		match.MatchedLabel = field.Label
		return match, true
	}

	// Tier 3: the first three words of the label prefix some observed label.
	prefix := util.FirstWords(field.Label, 3)
	if prefix != "" {
		for _, observed := range idx.ordered {
			if strings.HasPrefix(observed, prefix) {
				match.Tier = 3
				match.Confidence = confPrefix
				match.MatchedLabel = observed
				match.MatchedSheet = idx.sites[observed][0].sheet
				return match, true
			}
		}
	}

	// Tier 4: a registered synonym is present.
	for _, synonym := range m.vocab.Synonyms[field.Label] {
		if site, ok := findSite(idx, util.NormalizeLabel(synonym)); ok {
			match.Tier = 4
			match.Confidence = confSynonym
			match.MatchedLabel = synonym
			match.MatchedSheet = site.sheet
			return match, true
		}
	}

	return internal.MappingMatch{}, false
}

// findSite returns the first location of a label, preferring header hits
// over column-A hits.
func findSite(idx *repIndex, label string) (labelSite, bool) {
	sites, ok := idx.sites[label]
	if !ok {
		return labelSite{}, false
	}
	for _, site := range sites {
		if site.header {
			return site, true
		}
	}
	return sites[0], true
}

func indexRepresentative(rep internal.FileFingerprint) *repIndex {
	idx := &repIndex{
		sheets:     map[string]struct{}{},
		sheetLabel: map[string]map[string]struct{}{},
		sites:      map[string][]labelSite{},
	}

	add := func(sheet internal.SheetFingerprint, raw string, header bool) {
		label := util.NormalizeLabel(raw)
		if label == "" {
			return
		}
		if idx.sheetLabel[sheet.Name] == nil {
			idx.sheetLabel[sheet.Name] = map[string]struct{}{}
		}
		idx.sheetLabel[sheet.Name][label] = struct{}{}
		if _, seen := idx.sites[label]; !seen {
			idx.ordered = append(idx.ordered, label)
		}
		idx.sites[label] = append(idx.sites[label], labelSite{sheet: sheet.Name, header: header})
	}

	for _, sheet := range rep.Sheets {
		idx.sheets[sheet.Name] = struct{}{}
		for _, header := range sheet.HeaderLabels {
			add(sheet, header, true)
		}
		for _, label := range sheet.ColumnLabels {
			add(sheet, label, false)
		}
	}
	return idx
}
