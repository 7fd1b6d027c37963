package cluster

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/util"
)

// Result partitions one clustering run: template-family groups, files no
// family would take, and empty workbooks set aside untouched.
type Result struct {
	Groups    []internal.FileGroup `json:"groups"`
	Ungrouped []string             `json:"ungrouped,omitempty"`
	Empty     []string             `json:"empty,omitempty"`
}

type builder struct {
	key     string
	members []internal.FileFingerprint
}

// Group clusters fingerprints into template families. Two greedy signals:
// exact sheet-name-key buckets first, then label overlap against a
// group's first member. Single-threaded and deterministic — same input
// order, same output.
func Group(fps []internal.FileFingerprint, identityThreshold, variantThreshold float64) Result {
	var res Result

	usable := make([]internal.FileFingerprint, 0, len(fps))
	for _, fp := range fps {
		switch fp.Classification {
		case internal.ClassEmpty:
			res.Empty = append(res.Empty, fp.Path)
		case internal.ClassError:
			// excluded from clustering; the orchestrator reports them
		default:
			usable = append(usable, fp)
		}
	}

	order := make([]string, 0, len(usable))
	buckets := map[string][]internal.FileFingerprint{}
	for _, fp := range usable {
		if _, ok := buckets[fp.SheetNameKey]; !ok {
			order = append(order, fp.SheetNameKey)
		}
		buckets[fp.SheetNameKey] = append(buckets[fp.SheetNameKey], fp)
	}

	var groups []*builder
	var pending []internal.FileFingerprint
	for _, key := range order {
		bucket := buckets[key]
		if len(bucket) > 1 {
			groups = append(groups, &builder{key: key, members: bucket})
			continue
		}
		if !mergeInto(groups, bucket[0], variantThreshold) {
			pending = append(pending, bucket[0])
		}
	}

	// Second pass: groups formed later in the bucket order get a chance
	// at the still-ungrouped files.
	var ungrouped []internal.FileFingerprint
	for _, fp := range pending {
		if !mergeInto(groups, fp, variantThreshold) {
			ungrouped = append(ungrouped, fp)
		}
	}

	final, loose := enforceMinOverlap(groups, variantThreshold)
	ungrouped = append(ungrouped, loose...)

	for _, fp := range ungrouped {
		res.Ungrouped = append(res.Ungrouped, fp.Path)
	}
	res.Groups = finalize(final, identityThreshold)
	return res
}

func mergeInto(groups []*builder, fp internal.FileFingerprint, variantThreshold float64) bool {
	for _, g := range groups {
		if Overlap(fp, g.members[0]) >= variantThreshold {
			g.members = append(g.members, fp)
			return true
		}
	}
	return false
}

// enforceMinOverlap splits any group whose minimum pairwise overlap fell
// below the variant threshold, using greedy single-linkage against each
// sub-cluster's first member. Splitting repeats until every surviving
// group honors the threshold; a group the split cannot separate sheds its
// weakest member instead. Size-1 sub-clusters become ungrouped.
func enforceMinOverlap(groups []*builder, variantThreshold float64) ([]*builder, []internal.FileFingerprint) {
	var final []*builder
	var loose []internal.FileFingerprint

	work := make([]*builder, len(groups))
	copy(work, groups)

	for len(work) > 0 {
		g := work[0]
		work = work[1:]

		if len(g.members) == 1 {
			loose = append(loose, g.members[0])
			continue
		}
		if minPairwiseOverlap(g.members) >= variantThreshold {
			final = append(final, g)
			continue
		}

		clusters := splitGreedy(g.members, variantThreshold)
		if len(clusters) == 1 {
			// Every member clears the bar against the representative but
			// some pair does not; drop the weakest member and retry.
			kept, weakest := dropWeakest(g.members)
			loose = append(loose, weakest)
			work = append(work, &builder{key: g.key, members: kept})
			continue
		}
		for _, members := range clusters {
			if len(members) == 1 {
				loose = append(loose, members[0])
				continue
			}
			work = append(work, &builder{key: g.key, members: members})
		}
	}

	return final, loose
}

func splitGreedy(members []internal.FileFingerprint, variantThreshold float64) [][]internal.FileFingerprint {
	var clusters [][]internal.FileFingerprint
	for _, fp := range members {
		placed := false
		for i := range clusters {
			if Overlap(fp, clusters[i][0]) >= variantThreshold {
				clusters[i] = append(clusters[i], fp)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []internal.FileFingerprint{fp})
		}
	}
	return clusters
}

func dropWeakest(members []internal.FileFingerprint) ([]internal.FileFingerprint, internal.FileFingerprint) {
	weakest := 0
	weakestMin := 2.0
	for i := range members {
		minOv := 2.0
		for j := range members {
			if i == j {
				continue
			}
			if ov := Overlap(members[i], members[j]); ov < minOv {
				minOv = ov
			}
		}
		if minOv < weakestMin {
			weakestMin = minOv
			weakest = i
		}
	}

	kept := make([]internal.FileFingerprint, 0, len(members)-1)
	for i, fp := range members {
		if i != weakest {
			kept = append(kept, fp)
		}
	}
	return kept, members[weakest]
}

func minPairwiseOverlap(members []internal.FileFingerprint) float64 {
	if len(members) < 2 {
		return 1.0
	}
	min := 1.0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if ov := Overlap(members[i], members[j]); ov < min {
				min = ov
			}
		}
	}
	return min
}

func finalize(groups []*builder, identityThreshold float64) []internal.FileGroup {
	out := make([]internal.FileGroup, 0, len(groups))
	used := map[string]struct{}{}

	for i, g := range groups {
		group := internal.FileGroup{
			SheetNameKey: g.members[0].SheetNameKey,
			MinOverlap:   minPairwiseOverlap(g.members),
			Era:          inferEra(g.members),
		}
		for _, fp := range g.members {
			group.Members = append(group.Members, fp.Path)
		}
		for _, fp := range g.members[1:] {
			if Overlap(fp, g.members[0]) < identityThreshold {
				group.SubVariants = append(group.SubVariants, fp.Path)
			}
		}
		group.Name = uniqueName(groupName(g.members, i+1), used)
		group.Variance = variance(group.Name, g.members)
		out = append(out, group)
	}
	return out
}

func groupName(members []internal.FileFingerprint, counter int) string {
	names := make([]string, 0, len(members))
	for _, fp := range members {
		names = append(names, strings.TrimSuffix(fp.Name, filepath.Ext(fp.Name)))
	}
	prefix := strings.TrimRight(util.LongestCommonPrefix(names), " -_.")
	if len(prefix) > 5 {
		return sanitizeName(prefix)
	}
	return fmt.Sprintf("group-%02d", counter)
}

func sanitizeName(name string) string {
	repl := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_")
	return strings.TrimSpace(repl.Replace(name))
}

func uniqueName(name string, used map[string]struct{}) string {
	candidate := name
	for n := 2; ; n++ {
		if _, taken := used[candidate]; !taken {
			used[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", name, n)
	}
}

var reYear = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// inferEra guesses the vintage span from year tokens in the filenames,
// falling back to modification dates.
func inferEra(members []internal.FileFingerprint) string {
	var years []int
	for _, fp := range members {
		for _, tok := range reYear.FindAllString(fp.Name, -1) {
			if y, err := strconv.Atoi(tok); err == nil {
				years = append(years, y)
			}
		}
	}
	if len(years) == 0 {
		for _, fp := range members {
			if fp.ModifiedAt == "" {
				continue
			}
			if t, err := time.Parse(time.RFC3339, fp.ModifiedAt); err == nil {
				years = append(years, t.Year())
			}
		}
	}
	if len(years) == 0 {
		return ""
	}
	sort.Ints(years)
	lo, hi := years[0], years[len(years)-1]
	if lo == hi {
		return strconv.Itoa(lo)
	}
	return fmt.Sprintf("%d-%d", lo, hi)
}

func variance(groupName string, members []internal.FileFingerprint) *internal.GroupVariance {
	if len(members) < 2 {
		return nil
	}

	sheetSeen := map[string]int{}
	labelSeen := map[string]map[string]int{}
	for _, fp := range members {
		for _, sheet := range fp.Sheets {
			sheetSeen[sheet.Name]++
			if labelSeen[sheet.Name] == nil {
				labelSeen[sheet.Name] = map[string]int{}
			}
			for _, label := range dedupLabels(sheet) {
				labelSeen[sheet.Name][label]++
			}
		}
	}

	v := &internal.GroupVariance{Group: groupName}
	for name, count := range sheetSeen {
		if count < len(members) {
			v.UncommonSheets = append(v.UncommonSheets, name)
		}
	}
	sort.Strings(v.UncommonSheets)

	for sheet, labels := range labelSeen {
		if sheetSeen[sheet] < len(members) {
			continue
		}
		var uncommon []string
		for label, count := range labels {
			if count < len(members) {
				uncommon = append(uncommon, label)
			}
		}
		if len(uncommon) > 0 {
			sort.Strings(uncommon)
			if v.UncommonLabels == nil {
				v.UncommonLabels = map[string][]string{}
			}
			v.UncommonLabels[sheet] = uncommon
		}
	}

	if len(v.UncommonSheets) == 0 && len(v.UncommonLabels) == 0 {
		return nil
	}
	return v
}

func dedupLabels(sheet internal.SheetFingerprint) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(sheet.HeaderLabels)+len(sheet.ColumnLabels))
	for _, label := range append(append([]string{}, sheet.HeaderLabels...), sheet.ColumnLabels...) {
		norm := util.NormalizeLabel(label)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}
