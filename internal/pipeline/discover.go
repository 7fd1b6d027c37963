package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/discovery"
)

// Manifest is the discovery artifact: the accepted candidate list plus
// everything that was filtered out and why.
type Manifest struct {
	GeneratedAt      string                   `json:"generatedAt"`
	Accepted         []internal.FileCandidate `json:"accepted"`
	Skipped          []ReportItem             `json:"skipped,omitempty"`
	RequiresBatching bool                     `json:"requiresBatching"`
}

// Discover filters and deduplicates candidates from every source, then
// persists the manifest. Re-running on an unchanged candidate list is
// idempotent.
func (p *Pipeline) Discover(ctx context.Context, sources []discovery.Source) (*Report, error) {
	if err := p.state.beginPhase(PhaseDiscovery); err != nil {
		return nil, err
	}

	report, err := p.discover(ctx, sources)
	if err != nil {
		p.state.failPhase(PhaseDiscovery, err)
		return report, err
	}
	if err := p.state.completePhase(PhaseDiscovery); err != nil {
		return report, err
	}
	return report, nil
}

func (p *Pipeline) discover(ctx context.Context, sources []discovery.Source) (*Report, error) {
	report := newReport(PhaseDiscovery)

	var candidates []internal.FileCandidate
	for _, src := range sources {
		found, err := src.Discover(ctx)
		if err != nil {
			// A dead source degrades; the remaining sources still run.
			report.fail(src.Name(), err.Error())
			continue
		}
		candidates = append(candidates, found...)
		report.Counts["from_"+src.Name()] += len(found)
	}

	filtered := p.filterCandidates(candidates, report)
	accepted := dedupeCandidates(filtered, report)

	// Deterministic manifest order regardless of source interleaving.
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Path < accepted[j].Path })

	manifest := Manifest{
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
		Accepted:         accepted,
		Skipped:          report.Skipped,
		RequiresBatching: len(accepted) > p.cfg.DiscoveryBatchCap,
	}
	if err := writeJSONAtomic(filepath.Join(p.dataDir, manifestFile), manifest); err != nil {
		return report, err
	}

	report.Counts["candidates"] = len(candidates)
	report.Counts["accepted"] = len(accepted)
	if manifest.RequiresBatching {
		report.Counts["batch_cap"] = p.cfg.DiscoveryBatchCap
	}
	p.state.Counters["discovered"] = len(accepted)

	p.log.Info("discovery complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("accepted", len(accepted)),
		zap.Bool("requiresBatching", manifest.RequiresBatching))
	return report, nil
}

func (p *Pipeline) filterCandidates(candidates []internal.FileCandidate, report *Report) []internal.FileCandidate {
	var cutoff time.Time
	if p.cfg.ModifiedAfter != "" {
		if t, err := time.Parse("2006-01-02", p.cfg.ModifiedAfter); err == nil {
			cutoff = t
		}
	}
	minSize := int64(p.cfg.MinFileSizeKB) * 1024

	out := make([]internal.FileCandidate, 0, len(candidates))
	for _, c := range candidates {
		switch {
		case !discovery.IsSpreadsheet(c.Name):
			report.skip(c.Path, "not a spreadsheet")
		case strings.HasPrefix(c.Name, "~$"):
			report.skip(c.Path, "temp lock file")
		case c.Size < minSize:
			report.skip(c.Path, fmt.Sprintf("below %d KB", p.cfg.MinFileSizeKB))
		case !cutoff.IsZero() && c.ModifiedAt.Before(cutoff):
			report.skip(c.Path, "modified before cutoff "+p.cfg.ModifiedAfter)
		default:
			out = append(out, c)
		}
	}
	return out
}

// dedupeCandidates runs the two-pass duplicate check: bucket by size and
// modified date, then confirm by content hash. Files without a hash are
// never treated as duplicates.
func dedupeCandidates(candidates []internal.FileCandidate, report *Report) []internal.FileCandidate {
	type bucketKey struct {
		size  int64
		mtime string
	}

	var out []internal.FileCandidate
	seenPaths := map[string]struct{}{}
	firstByHash := map[bucketKey]map[string]string{}
	for _, c := range candidates {
		if _, ok := seenPaths[c.Path]; ok {
			continue
		}
		seenPaths[c.Path] = struct{}{}

		key := bucketKey{size: c.Size, mtime: c.ModifiedAt.Format("2006-01-02")}
		if firstByHash[key] == nil {
			firstByHash[key] = map[string]string{}
		}
		if c.ContentHash != "" {
			if original, dup := firstByHash[key][c.ContentHash]; dup {
				report.skip(c.Path, "duplicate of "+original)
				continue
			}
			firstByHash[key][c.ContentHash] = c.Path
		}
		out = append(out, c)
	}
	return out
}

func (p *Pipeline) loadManifest() (Manifest, error) {
	var manifest Manifest
	if err := readJSON(filepath.Join(p.dataDir, manifestFile), &manifest); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}
