package cluster

import (
	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/util"
)

// Overlap is the structural similarity of two fingerprints: Jaccard over
// the combined header/column-label signal sets. When neither file carries
// labels it falls back to the sheet-name sets; two fully empty files
// count as identical. Symmetric and order-independent.
func Overlap(a, b internal.FileFingerprint) float64 {
	sa, sb := signalSet(a), signalSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		na, nb := sheetNameSet(a), sheetNameSet(b)
		if len(na) == 0 && len(nb) == 0 {
			return 1.0
		}
		return jaccard(na, nb)
	}
	return jaccard(sa, sb)
}

// signalSet flattens a fingerprint into "{sheet}:H:{header}" and
// "{sheet}:A:{column label}" entries, normalized for case and whitespace.
func signalSet(fp internal.FileFingerprint) map[string]struct{} {
	set := map[string]struct{}{}
	for _, sheet := range fp.Sheets {
		sheetKey := util.NormalizeLabel(sheet.Name)
		for _, header := range sheet.HeaderLabels {
			norm := util.NormalizeLabel(header)
			if norm != "" {
				set[sheetKey+":H:"+norm] = struct{}{}
			}
		}
		for _, label := range sheet.ColumnLabels {
			norm := util.NormalizeLabel(label)
			if norm != "" {
				set[sheetKey+":A:"+norm] = struct{}{}
			}
		}
	}
	return set
}

func sheetNameSet(fp internal.FileFingerprint) map[string]struct{} {
	set := map[string]struct{}{}
	for _, sheet := range fp.Sheets {
		norm := util.NormalizeLabel(sheet.Name)
		if norm != "" {
			set[norm] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := 0
	for item := range a {
		if _, ok := b[item]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1.0
	}
	return float64(inter) / float64(union)
}
