package pipeline

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/cluster"
)

// FingerprintAndGroup scans every accepted file and clusters the results
// into template families. Prior fingerprints are reused when path and
// content hash still match; prior groups are never reshuffled — new
// files only join or form new groups.
func (p *Pipeline) FingerprintAndGroup(ctx context.Context) (*Report, error) {
	if err := p.state.beginPhase(PhaseGrouping); err != nil {
		return nil, err
	}

	report, err := p.fingerprintAndGroup(ctx)
	if err != nil {
		p.state.failPhase(PhaseGrouping, err)
		return report, err
	}
	if err := p.state.completePhase(PhaseGrouping); err != nil {
		return report, err
	}
	return report, nil
}

func (p *Pipeline) fingerprintAndGroup(ctx context.Context) (*Report, error) {
	report := newReport(PhaseGrouping)

	manifest, err := p.loadManifest()
	if err != nil {
		return report, err
	}

	prior := map[string]internal.FileFingerprint{}
	if artifactExists(filepath.Join(p.dataDir, fpFile)) {
		var existing []internal.FileFingerprint
		if err := readJSON(filepath.Join(p.dataDir, fpFile), &existing); err != nil {
			return report, err
		}
		for _, fp := range existing {
			prior[fp.Path] = fp
		}
	}

	// Only files the prior run has not seen (or whose bytes changed) get
	// fingerprinted again.
	var fresh []string
	var all []internal.FileFingerprint
	var incoming []internal.FileFingerprint
	for _, c := range manifest.Accepted {
		if fp, ok := prior[c.Path]; ok && fp.ContentHash == c.ContentHash && c.ContentHash != "" {
			all = append(all, fp)
			report.Counts["reused"]++
			continue
		}
		fresh = append(fresh, c.Path)
	}

	if len(fresh) > 0 {
		scanned, err := p.scanner.FingerprintAll(ctx, fresh, p.cfg.FingerprintWorkers)
		if err != nil {
			return report, err
		}
		incoming = scanned
		all = append(all, scanned...)
	}
	report.Counts["fingerprinted"] = len(fresh)

	for _, fp := range all {
		if fp.Classification == internal.ClassError {
			report.fail(fp.Path, fp.Error)
		}
	}

	var groups []internal.FileGroup
	priorGroupsPath := filepath.Join(p.dataDir, groupsFile)
	if artifactExists(priorGroupsPath) && len(prior) > 0 {
		var existingGroups []internal.FileGroup
		if err := readJSON(priorGroupsPath, &existingGroups); err != nil {
			return report, err
		}
		updated, res := cluster.Assign(existingGroups, prior, incoming, p.cfg.IdentityThreshold, p.cfg.VariantThreshold)
		groups = append(updated, res.Groups...)
	} else {
		groups = cluster.Group(all, p.cfg.IdentityThreshold, p.cfg.VariantThreshold).Groups
	}

	// Empty and ungrouped are derived from the full fingerprint set so an
	// incremental re-run never loses items recorded by earlier runs.
	grouped := map[string]struct{}{}
	for _, g := range groups {
		for _, member := range g.Members {
			grouped[member] = struct{}{}
		}
	}
	var empty, ungrouped []string
	for _, fp := range all {
		switch {
		case fp.Classification == internal.ClassEmpty:
			empty = append(empty, fp.Path)
			report.skip(fp.Path, "empty workbook")
		case fp.Classification == internal.ClassError:
			// already in the failed list
		default:
			if _, ok := grouped[fp.Path]; !ok {
				ungrouped = append(ungrouped, fp.Path)
				report.skip(fp.Path, "no family accepted it")
			}
		}
	}

	if err := writeJSONAtomic(filepath.Join(p.dataDir, fpFile), all); err != nil {
		return report, err
	}
	if err := writeJSONAtomic(filepath.Join(p.dataDir, emptyFile), empty); err != nil {
		return report, err
	}
	if err := writeJSONAtomic(priorGroupsPath, groups); err != nil {
		return report, err
	}
	for _, g := range groups {
		if g.Variance == nil {
			continue
		}
		if err := writeJSONAtomic(filepath.Join(groupDir(p.dataDir, g.Name), variancesFile), g.Variance); err != nil {
			return report, err
		}
	}
	if err := p.writeMethodology(groups, ungrouped, empty); err != nil {
		return report, err
	}

	report.Counts["groups"] = len(groups)
	report.Counts["ungrouped"] = len(ungrouped)
	report.Counts["empty"] = len(empty)
	p.state.Counters["groups"] = len(groups)
	p.state.Counters["fingerprints"] = len(all)

	p.log.Info("grouping complete",
		zap.Int("fingerprinted", len(fresh)),
		zap.Int("reused", report.Counts["reused"]),
		zap.Int("groups", len(groups)),
		zap.Int("ungrouped", len(ungrouped)))
	return report, nil
}

func (p *Pipeline) loadGroups() ([]internal.FileGroup, error) {
	var groups []internal.FileGroup
	if err := readJSON(filepath.Join(p.dataDir, groupsFile), &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (p *Pipeline) loadFingerprints() (map[string]internal.FileFingerprint, error) {
	var all []internal.FileFingerprint
	if err := readJSON(filepath.Join(p.dataDir, fpFile), &all); err != nil {
		return nil, err
	}
	out := make(map[string]internal.FileFingerprint, len(all))
	for _, fp := range all {
		out[fp.Path] = fp
	}
	return out, nil
}
