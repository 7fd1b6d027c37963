package reconcile

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/util"
)

const tokenOverlapFloor = 0.9

// Reconcile matches each source deal name against the known canonical
// property names. Tier 1 exact (case-insensitive), tier 2 after suffix
// and city-qualifier stripping, tier 3 fuzzy (edit distance or token
// overlap), tier 4 unmatched.
func Reconcile(sourceNames, knownNames []string, maxEditDistance int) []internal.PropertyMatch {
	normalized := make([]string, len(knownNames))
	for i, known := range knownNames {
		normalized[i] = normalizeProperty(known)
	}

	out := make([]internal.PropertyMatch, 0, len(sourceNames))
	for _, source := range sourceNames {
		out = append(out, matchOne(source, knownNames, normalized, maxEditDistance))
	}
	return out
}

func matchOne(source string, knownNames, normalizedKnown []string, maxEditDistance int) internal.PropertyMatch {
	match := internal.PropertyMatch{Source: source}

	for _, known := range knownNames {
		if strings.EqualFold(strings.TrimSpace(source), strings.TrimSpace(known)) {
			match.Canonical = known
			match.Tier = 1
			return match
		}
	}

	normSource := normalizeProperty(source)
	for i, known := range knownNames {
		if normSource != "" && normSource == normalizedKnown[i] {
			match.Canonical = known
			match.Tier = 2
			return match
		}
	}

	bestScore := 0.0
	bestIdx := -1
	var bestDistance *int
	var bestOverlap *float64
	for i := range knownNames {
		distance := Levenshtein(normSource, normalizedKnown[i])
		overlap := tokenOverlap(normSource, normalizedKnown[i])

		score := 0.0
		eligible := false
		if distance <= maxEditDistance {
			eligible = true
			longer := max(len(normSource), len(normalizedKnown[i]))
			if longer > 0 {
				score = 1 - float64(distance)/float64(longer)
			} else {
				score = 1
			}
		}
		if overlap >= tokenOverlapFloor {
			eligible = true
			if overlap > score {
				score = overlap
			}
		}
		if eligible && score > bestScore {
			bestScore = score
			bestIdx = i
			bestDistance, bestOverlap = nil, nil
			if distance <= maxEditDistance {
				bestDistance = util.IntPtr(distance)
			}
			if overlap >= tokenOverlapFloor {
				bestOverlap = util.FloatPtr(overlap)
			}
		}
	}
	if bestIdx >= 0 {
		match.Canonical = knownNames[bestIdx]
		match.Tier = 3
		match.EditDistance = bestDistance
		match.TokenOverlap = bestOverlap
		return match
	}

	match.Tier = 4
	return match
}

var (
	reQualifier = regexp.MustCompile(`\s+[-–]\s+[^-–]+$`)
	rePhase     = regexp.MustCompile(`(?i)\bphase\s+(\d+|[ivx]+)\b`)

	suffixWords = map[string]struct{}{
		"llc": {}, "lp": {}, "llp": {}, "inc": {}, "ltd": {},
		"apartments": {}, "apts": {}, "apartment": {}, "homes": {},
		"residences": {}, "townhomes": {}, "portfolio": {},
	}
)

// normalizeProperty lowercases and strips the decorations deal names pick
// up: a trailing "– City" qualifier, corporate suffixes, phase numbers.
func normalizeProperty(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = reQualifier.ReplaceAllString(s, "")
	s = rePhase.ReplaceAllString(s, " ")
	s = strings.NewReplacer(",", " ", ".", " ").Replace(s)

	tokens := strings.Fields(s)
	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		if _, drop := suffixWords[last]; !drop {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// Levenshtein is the standard dynamic-programming edit distance with
// unit insert/delete/substitute costs.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// tokenOverlap is |intersection| over the larger unique-token set.
func tokenOverlap(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	return float64(inter) / float64(max(len(ta), len(tb)))
}

func tokenSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range util.Tokenize(s) {
		set[tok] = struct{}{}
	}
	return set
}

var reNoise = regexp.MustCompile(`(?i)\b(uw|underwriting|model|proforma|pro forma|final|draft|copy|v\d+|rev\d*)\b`)

// DealNameFromFilename derives the deal name a file was saved under:
// extension off, version/underwriting noise words off, separators to
// spaces.
func DealNameFromFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.NewReplacer("_", " ", ".", " ").Replace(base)
	base = reNoise.ReplaceAllString(base, " ")
	base = regexp.MustCompile(`\s*\(\d+\)\s*$`).ReplaceAllString(base, "")
	base = regexp.MustCompile(`\s+`).ReplaceAllString(base, " ")
	return strings.Trim(strings.TrimSpace(base), "-– ")
}
