package cluster

import (
	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
)

// Assign places freshly fingerprinted files into an existing grouping
// without disturbing prior membership: existing groups keep every member
// and their names, new files either join a group, form new groups among
// themselves, or stay ungrouped. index maps path to fingerprint for all
// previously known files.
func Assign(existing []internal.FileGroup, index map[string]internal.FileFingerprint, incoming []internal.FileFingerprint, identityThreshold, variantThreshold float64) ([]internal.FileGroup, Result) {
	updated := make([]internal.FileGroup, len(existing))
	copy(updated, existing)

	// A file whose bytes changed since the prior run arrives through
	// incoming under a path some group may already hold. Stale membership
	// is dropped up front so re-admission lists the path exactly once.
	for _, fp := range incoming {
		dropMember(updated, index, fp.Path)
		index[fp.Path] = fp
	}
	kept := updated[:0]
	for _, g := range updated {
		if len(g.Members) > 0 {
			kept = append(kept, g)
		}
	}
	updated = kept

	var res Result
	var leftovers []internal.FileFingerprint

	for _, fp := range incoming {
		switch fp.Classification {
		case internal.ClassEmpty:
			res.Empty = append(res.Empty, fp.Path)
			continue
		case internal.ClassError:
			continue
		}

		if joinGroup(updated, index, fp, identityThreshold, variantThreshold) {
			continue
		}
		leftovers = append(leftovers, fp)
	}

	if len(leftovers) > 0 {
		sub := Group(leftovers, identityThreshold, variantThreshold)
		used := map[string]struct{}{}
		for _, g := range updated {
			used[g.Name] = struct{}{}
		}
		for _, g := range sub.Groups {
			g.Name = uniqueName(g.Name, used)
			res.Groups = append(res.Groups, g)
		}
		res.Ungrouped = append(res.Ungrouped, sub.Ungrouped...)
		res.Empty = append(res.Empty, sub.Empty...)
	}

	return updated, res
}

// joinGroup admits fp into the first group it fits: sheet-name key match
// or variant-level overlap with the group's first member, provided the
// group's minimum pairwise overlap stays at or above the variant
// threshold afterwards.
func joinGroup(groups []internal.FileGroup, index map[string]internal.FileFingerprint, fp internal.FileFingerprint, identityThreshold, variantThreshold float64) bool {
	for i := range groups {
		g := &groups[i]
		first, ok := index[g.Members[0]]
		if !ok {
			continue
		}

		firstOverlap := Overlap(fp, first)
		if g.SheetNameKey != fp.SheetNameKey && firstOverlap < variantThreshold {
			continue
		}

		newMin := firstOverlap
		for _, path := range g.Members[1:] {
			member, ok := index[path]
			if !ok {
				continue
			}
			if ov := Overlap(fp, member); ov < newMin {
				newMin = ov
			}
		}
		if newMin < variantThreshold {
			continue
		}

		g.Members = append(g.Members, fp.Path)
		if newMin < g.MinOverlap {
			g.MinOverlap = newMin
		}
		if firstOverlap < identityThreshold {
			g.SubVariants = append(g.SubVariants, fp.Path)
		}
		g.Variance = variance(g.Name, memberFingerprints(*g, index, fp))
		return true
	}
	return false
}

// dropMember removes path from whichever group holds it and recomputes
// that group's derived fields from the remaining members.
func dropMember(groups []internal.FileGroup, index map[string]internal.FileFingerprint, path string) {
	for i := range groups {
		g := &groups[i]
		found := false
		members := make([]string, 0, len(g.Members))
		for _, member := range g.Members {
			if member == path {
				found = true
				continue
			}
			members = append(members, member)
		}
		if !found {
			continue
		}
		g.Members = members
		g.SubVariants = withoutPath(g.SubVariants, path)

		fps := make([]internal.FileFingerprint, 0, len(g.Members))
		for _, member := range g.Members {
			if fp, ok := index[member]; ok {
				fps = append(fps, fp)
			}
		}
		g.MinOverlap = minPairwiseOverlap(fps)
		g.Variance = variance(g.Name, fps)
		return
	}
}

func withoutPath(paths []string, drop string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != drop {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func memberFingerprints(g internal.FileGroup, index map[string]internal.FileFingerprint, extra internal.FileFingerprint) []internal.FileFingerprint {
	out := make([]internal.FileFingerprint, 0, len(g.Members)+1)
	for _, path := range g.Members {
		if path == extra.Path {
			continue
		}
		if fp, ok := index[path]; ok {
			out = append(out, fp)
		}
	}
	return append(out, extra)
}
