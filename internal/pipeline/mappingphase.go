package pipeline

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/mapping"
)

// MapGroups derives one reference mapping per family, using the family's
// first member as representative.
func (p *Pipeline) MapGroups() (*Report, error) {
	if err := p.state.beginPhase(PhaseMapping); err != nil {
		return nil, err
	}

	report, err := p.mapGroups()
	if err != nil {
		p.state.failPhase(PhaseMapping, err)
		return report, err
	}
	if err := p.state.completePhase(PhaseMapping); err != nil {
		return report, err
	}
	return report, nil
}

func (p *Pipeline) mapGroups() (*Report, error) {
	report := newReport(PhaseMapping)

	groups, err := p.loadGroups()
	if err != nil {
		return report, err
	}
	fps, err := p.loadFingerprints()
	if err != nil {
		return report, err
	}
	vocab, err := p.vocabulary()
	if err != nil {
		return report, err
	}

	mapper := mapping.NewMapper(vocab)
	for _, g := range groups {
		rep, ok := fps[g.Members[0]]
		if !ok {
			report.fail(g.Name, fmt.Sprintf("representative %s has no fingerprint", g.Members[0]))
			continue
		}

		result := mapper.Map(g.Name, rep)
		if err := writeJSONAtomic(filepath.Join(groupDir(p.dataDir, g.Name), mappingFile), result); err != nil {
			return report, err
		}

		report.Counts["mapped"] += len(result.Matches)
		report.Counts["unmapped"] += len(result.Unmapped)
		report.Counts["groups"]++

		p.log.Info("group mapped",
			zap.String("group", g.Name),
			zap.Int("matches", len(result.Matches)),
			zap.Int("unmapped", len(result.Unmapped)),
			zap.Float64("confidence", result.OverallConfidence))
	}

	p.state.Counters["mapped_fields"] = report.Counts["mapped"]
	return report, nil
}

func (p *Pipeline) loadMapping(group string) (internal.MappingResult, error) {
	var result internal.MappingResult
	if err := readJSON(filepath.Join(groupDir(p.dataDir, group), mappingFile), &result); err != nil {
		return internal.MappingResult{}, err
	}
	if result.Group == "" || (len(result.Matches) == 0 && len(result.Unmapped) == 0) {
		return internal.MappingResult{}, fmt.Errorf("malformed mapping artifact for group %s", group)
	}
	return result, nil
}
