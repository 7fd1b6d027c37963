package cluster

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/fingerprint"
)

func mkFingerprint(filename string, sheets map[string][]string) internal.FileFingerprint {
	fp := internal.FileFingerprint{
		Path:           "/deals/" + filename,
		Name:           filename,
		Classification: internal.ClassPopulated,
	}
	for name, labels := range sheets {
		sheet := internal.SheetFingerprint{Name: name, ColumnLabels: labels, PopulatedCells: len(labels) * 2}
		fp.Sheets = append(fp.Sheets, sheet)
		fp.TotalPopulated += sheet.PopulatedCells
	}
	fp.SheetNameKey = fingerprint.SheetNameKey(fp.Sheets)
	return fp
}

func labelRange(prefix string, n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("%s %d", prefix, i))
	}
	return out
}

func TestOverlapSymmetryAndIdentity(t *testing.T) {
	a := mkFingerprint("a.xlsx", map[string][]string{"Summary": labelRange("field", 12)})
	b := mkFingerprint("b.xlsx", map[string][]string{"Summary": labelRange("field", 8), "Returns": {"IRR"}})

	if got, want := Overlap(a, b), Overlap(b, a); got != want {
		t.Fatalf("asymmetric: %v vs %v", got, want)
	}
	if got := Overlap(a, a); got != 1.0 {
		t.Fatalf("self overlap=%v", got)
	}
}

func TestOverlapFallbacks(t *testing.T) {
	bare1 := mkFingerprint("x.xlsx", map[string][]string{"Summary": nil, "Rent Roll": nil})
	bare2 := mkFingerprint("y.xlsx", map[string][]string{"Summary": nil, "Returns": nil})
	if got := Overlap(bare1, bare2); got != 1.0/3.0 {
		t.Fatalf("sheet-name fallback=%v", got)
	}

	empty1 := mkFingerprint("e1.xlsx", nil)
	empty2 := mkFingerprint("e2.xlsx", nil)
	if got := Overlap(empty1, empty2); got != 1.0 {
		t.Fatalf("fully empty pair=%v", got)
	}
}

func TestGroupIdenticalPair(t *testing.T) {
	sheets := map[string][]string{
		"Summary":   {"Property Name", "Purchase Price", "Cap Rate"},
		"Cash Flow": {"GPR", "Vacancy", "NOI"},
	}
	a := mkFingerprint("Oakwood 2021.xlsx", sheets)
	b := mkFingerprint("Oakwood 2022.xlsx", sheets)

	res := Group([]internal.FileFingerprint{a, b}, 0.95, 0.80)
	if len(res.Groups) != 1 {
		t.Fatalf("groups=%d", len(res.Groups))
	}
	g := res.Groups[0]
	if g.MinOverlap != 1.0 {
		t.Fatalf("minOverlap=%v", g.MinOverlap)
	}
	if len(g.SubVariants) != 0 {
		t.Fatalf("subVariants=%v", g.SubVariants)
	}
	if len(res.Ungrouped) != 0 || len(res.Empty) != 0 {
		t.Fatalf("ungrouped=%v empty=%v", res.Ungrouped, res.Empty)
	}
	if g.Era != "2021-2022" {
		t.Fatalf("era=%q", g.Era)
	}
}

func TestGroupLabelDrift(t *testing.T) {
	base := labelRange("field", 20)
	drifted := append([]string{}, base[:18]...)
	drifted = append(drifted, "renamed one", "renamed two")

	a := mkFingerprint("Model v1.xlsx", map[string][]string{"Summary": base})
	b := mkFingerprint("Model v2.xlsx", map[string][]string{"Summary": drifted})

	// 18 shared of 22 distinct labels: inside the variant band, below identity.
	res := Group([]internal.FileFingerprint{a, b}, 0.95, 0.80)
	if len(res.Groups) != 1 {
		t.Fatalf("groups=%d ungrouped=%v", len(res.Groups), res.Ungrouped)
	}
	g := res.Groups[0]
	if g.MinOverlap < 0.80 || g.MinOverlap >= 0.95 {
		t.Fatalf("minOverlap=%v", g.MinOverlap)
	}
	if len(g.SubVariants) != 1 || g.SubVariants[0] != b.Path {
		t.Fatalf("subVariants=%v", g.SubVariants)
	}
	if g.Variance == nil || len(g.Variance.UncommonLabels["Summary"]) == 0 {
		t.Fatalf("variance=%+v", g.Variance)
	}
}

func TestGroupSplitsLowOverlapBucket(t *testing.T) {
	a := mkFingerprint("close-a.xlsx", map[string][]string{"Summary": labelRange("field", 20)})
	b := mkFingerprint("close-b.xlsx", map[string][]string{"Summary": labelRange("field", 20)})
	c := mkFingerprint("stranger.xlsx", map[string][]string{"Summary": labelRange("other", 20)})

	res := Group([]internal.FileFingerprint{a, b, c}, 0.95, 0.80)
	if len(res.Groups) != 1 {
		t.Fatalf("groups=%d", len(res.Groups))
	}
	if len(res.Groups[0].Members) != 2 {
		t.Fatalf("members=%v", res.Groups[0].Members)
	}
	if len(res.Ungrouped) != 1 || res.Ungrouped[0] != c.Path {
		t.Fatalf("ungrouped=%v", res.Ungrouped)
	}
}

func TestGroupMinOverlapInvariant(t *testing.T) {
	var fps []internal.FileFingerprint
	for i := 0; i < 8; i++ {
		labels := labelRange("field", 15)
		for j := 0; j < i; j++ {
			labels[j] = fmt.Sprintf("swapped %d-%d", i, j)
		}
		fps = append(fps, mkFingerprint(fmt.Sprintf("deal-%d.xlsx", i), map[string][]string{"Summary": labels}))
	}

	res := Group(fps, 0.95, 0.80)
	for _, g := range res.Groups {
		if g.MinOverlap < 0.80 {
			t.Fatalf("group %s minOverlap=%v", g.Name, g.MinOverlap)
		}
	}
}

func TestGroupSetsAsideEmptyAndError(t *testing.T) {
	blank := mkFingerprint("blank.xlsx", nil)
	blank.Classification = internal.ClassEmpty
	broken := mkFingerprint("broken.xlsx", nil)
	broken.Classification = internal.ClassError
	good1 := mkFingerprint("good one.xlsx", map[string][]string{"Summary": labelRange("field", 10)})
	good2 := mkFingerprint("good two.xlsx", map[string][]string{"Summary": labelRange("field", 10)})

	res := Group([]internal.FileFingerprint{blank, broken, good1, good2}, 0.95, 0.80)
	if len(res.Empty) != 1 || res.Empty[0] != blank.Path {
		t.Fatalf("empty=%v", res.Empty)
	}
	for _, path := range res.Ungrouped {
		if path == broken.Path {
			t.Fatalf("error file leaked into ungrouped")
		}
	}
	if len(res.Groups) != 1 {
		t.Fatalf("groups=%d", len(res.Groups))
	}
}

func TestGroupNaming(t *testing.T) {
	sheets := map[string][]string{"Summary": labelRange("field", 10)}
	a := mkFingerprint("Sunset Ridge v1.xlsx", sheets)
	b := mkFingerprint("Sunset Ridge v2.xlsx", sheets)

	res := Group([]internal.FileFingerprint{a, b}, 0.95, 0.80)
	if res.Groups[0].Name != "Sunset Ridge v" {
		t.Fatalf("name=%q", res.Groups[0].Name)
	}

	c := mkFingerprint("ax.xlsx", sheets)
	d := mkFingerprint("bx.xlsx", sheets)
	res = Group([]internal.FileFingerprint{c, d}, 0.95, 0.80)
	if !strings.HasPrefix(res.Groups[0].Name, "group-") {
		t.Fatalf("fallback name=%q", res.Groups[0].Name)
	}
}

func TestAssignKeepsExistingGroups(t *testing.T) {
	sheets := map[string][]string{
		"Summary":   {"Property Name", "Purchase Price", "Cap Rate", "Units"},
		"Cash Flow": {"GPR", "Vacancy", "NOI", "OpEx"},
	}
	a := mkFingerprint("Canyon Vista 2021.xlsx", sheets)
	b := mkFingerprint("Canyon Vista 2022.xlsx", sheets)

	prior := Group([]internal.FileFingerprint{a, b}, 0.95, 0.80)
	index := map[string]internal.FileFingerprint{a.Path: a, b.Path: b}

	joiner := mkFingerprint("Canyon Vista 2023.xlsx", sheets)
	outsider := mkFingerprint("Lone Deal.xlsx", map[string][]string{"Workbook": labelRange("x", 9)})

	updated, res := Assign(prior.Groups, index, []internal.FileFingerprint{joiner, outsider}, 0.95, 0.80)
	if len(updated) != 1 {
		t.Fatalf("groups=%d", len(updated))
	}
	g := updated[0]
	if g.Name != prior.Groups[0].Name {
		t.Fatalf("group renamed: %q -> %q", prior.Groups[0].Name, g.Name)
	}
	if len(g.Members) != 3 || g.Members[0] != a.Path || g.Members[1] != b.Path {
		t.Fatalf("members reshuffled: %v", g.Members)
	}
	if g.Members[2] != joiner.Path {
		t.Fatalf("joiner missing: %v", g.Members)
	}
	if len(res.Groups) != 0 {
		t.Fatalf("unexpected new groups: %v", res.Groups)
	}
	if len(res.Ungrouped) != 1 || res.Ungrouped[0] != outsider.Path {
		t.Fatalf("ungrouped=%v", res.Ungrouped)
	}
}

func TestAssignChangedFileReadmittedOnce(t *testing.T) {
	sheets := map[string][]string{"Summary": labelRange("field", 20)}
	a := mkFingerprint("Deal A.xlsx", sheets)
	b := mkFingerprint("Deal B.xlsx", sheets)
	prior := Group([]internal.FileFingerprint{a, b}, 0.95, 0.80)
	index := map[string]internal.FileFingerprint{a.Path: a, b.Path: b}

	// Deal A was edited between runs: same path, two labels renamed.
	drifted := append([]string{}, labelRange("field", 20)[:18]...)
	drifted = append(drifted, "renamed one", "renamed two")
	aChanged := mkFingerprint("Deal A.xlsx", map[string][]string{"Summary": drifted})

	updated, res := Assign(prior.Groups, index, []internal.FileFingerprint{aChanged}, 0.95, 0.80)
	if len(updated) != 1 {
		t.Fatalf("groups=%d", len(updated))
	}
	seen := map[string]int{}
	for _, g := range append(updated, res.Groups...) {
		for _, member := range g.Members {
			seen[member]++
		}
	}
	if seen[a.Path] != 1 {
		t.Fatalf("path %s appears %d times across groups", a.Path, seen[a.Path])
	}
	if len(updated[0].Members) != 2 {
		t.Fatalf("members=%v", updated[0].Members)
	}
	if got := index[a.Path]; got.Sheets[0].ColumnLabels[19] != "renamed two" {
		t.Fatalf("index not refreshed: %v", got.Sheets[0].ColumnLabels)
	}
	if len(res.Ungrouped) != 0 {
		t.Fatalf("ungrouped=%v", res.Ungrouped)
	}
}

func TestAssignChangedFileLeavesGroupOnHeavyDrift(t *testing.T) {
	sheets := map[string][]string{"Summary": labelRange("field", 20)}
	a := mkFingerprint("Deal A.xlsx", sheets)
	b := mkFingerprint("Deal B.xlsx", sheets)
	prior := Group([]internal.FileFingerprint{a, b}, 0.95, 0.80)
	index := map[string]internal.FileFingerprint{a.Path: a, b.Path: b}

	// Rewritten from scratch: nothing shared with its old family.
	aChanged := mkFingerprint("Deal A.xlsx", map[string][]string{"Rebuilt": labelRange("other", 20)})

	updated, res := Assign(prior.Groups, index, []internal.FileFingerprint{aChanged}, 0.95, 0.80)
	if len(updated) != 1 {
		t.Fatalf("groups=%d", len(updated))
	}
	if len(updated[0].Members) != 1 || updated[0].Members[0] != b.Path {
		t.Fatalf("members=%v", updated[0].Members)
	}
	if updated[0].MinOverlap != 1.0 {
		t.Fatalf("minOverlap=%v", updated[0].MinOverlap)
	}
	if len(res.Ungrouped) != 1 || res.Ungrouped[0] != aChanged.Path {
		t.Fatalf("ungrouped=%v", res.Ungrouped)
	}
}

func TestAssignFormsNewGroupAmongNewcomers(t *testing.T) {
	sheets := map[string][]string{"Pro Forma": labelRange("line", 12)}
	n1 := mkFingerprint("Northgate 2024 v1.xlsx", sheets)
	n2 := mkFingerprint("Northgate 2024 v2.xlsx", sheets)

	existingSheets := map[string][]string{"Summary": labelRange("field", 12)}
	a := mkFingerprint("Old Deal A.xlsx", existingSheets)
	b := mkFingerprint("Old Deal B.xlsx", existingSheets)
	prior := Group([]internal.FileFingerprint{a, b}, 0.95, 0.80)
	index := map[string]internal.FileFingerprint{a.Path: a, b.Path: b}

	updated, res := Assign(prior.Groups, index, []internal.FileFingerprint{n1, n2}, 0.95, 0.80)
	if len(updated) != 1 || len(updated[0].Members) != 2 {
		t.Fatalf("existing group disturbed: %+v", updated)
	}
	if len(res.Groups) != 1 || len(res.Groups[0].Members) != 2 {
		t.Fatalf("newcomer group missing: %+v", res.Groups)
	}
	if res.Groups[0].Name == updated[0].Name {
		t.Fatalf("name collision: %q", res.Groups[0].Name)
	}
}
