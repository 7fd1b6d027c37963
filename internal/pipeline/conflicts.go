package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/reconcile"
)

// ConflictReport is the per-group conflict artifact: reconciled deal
// names plus any prior non-pipeline extractions of the same properties.
// Informational only; nothing here blocks approval.
type ConflictReport struct {
	Group       string                     `json:"group"`
	GeneratedAt string                     `json:"generatedAt"`
	Properties  []internal.PropertyMatch   `json:"properties"`
	Prior       []internal.PriorExtraction `json:"prior,omitempty"`
}

// CheckConflicts reconciles each group's deal names against the known
// property registry and surfaces earlier non-pipeline writes.
func (p *Pipeline) CheckConflicts() (*Report, error) {
	if err := p.state.beginPhase(PhaseConflicts); err != nil {
		return nil, err
	}

	report, err := p.checkConflicts()
	if err != nil {
		p.state.failPhase(PhaseConflicts, err)
		return report, err
	}
	if err := p.state.completePhase(PhaseConflicts); err != nil {
		return report, err
	}
	return report, nil
}

func (p *Pipeline) checkConflicts() (*Report, error) {
	report := newReport(PhaseConflicts)

	groups, err := p.loadGroups()
	if err != nil {
		return report, err
	}
	manifest, err := p.loadManifest()
	if err != nil {
		return report, err
	}
	known, err := p.db.ListPropertyNames()
	if err != nil {
		return report, err
	}

	hints := map[string]string{}
	for _, c := range manifest.Accepted {
		if c.DealName != "" {
			hints[c.Path] = c.DealName
		}
	}

	for _, g := range groups {
		sourceNames := make([]string, 0, len(g.Members))
		for _, member := range g.Members {
			sourceNames = append(sourceNames, dealName(member, hints))
		}

		matches := reconcile.Reconcile(sourceNames, known, p.cfg.MaxEditDistance)

		var canonical []string
		for _, m := range matches {
			if m.Canonical != "" {
				canonical = append(canonical, m.Canonical)
			} else {
				report.skip(m.Source, "no canonical property matched")
			}
		}

		prior, err := p.db.PriorExtractions(canonical)
		if err != nil {
			return report, err
		}

		conflicts := ConflictReport{
			Group:       g.Name,
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			Properties:  matches,
			Prior:       prior,
		}
		if err := writeJSONAtomic(filepath.Join(groupDir(p.dataDir, g.Name), conflictsFile), conflicts); err != nil {
			return report, err
		}

		report.Counts["groups"]++
		report.Counts["matched"] += len(canonical)
		report.Counts["prior_extractions"] += len(prior)

		p.log.Info("conflict check done",
			zap.String("group", g.Name),
			zap.Int("matched", len(canonical)),
			zap.Int("prior", len(prior)))
	}

	p.state.Counters["prior_extractions"] = report.Counts["prior_extractions"]
	return report, nil
}

func dealName(path string, hints map[string]string) string {
	if hint, ok := hints[path]; ok {
		return hint
	}
	return reconcile.DealNameFromFilename(path)
}

// Approve toggles a group's approval. Live extraction requires both the
// approval and an existing mapping artifact, so approval refuses groups
// that were never mapped.
func (p *Pipeline) Approve(group string, approved bool) error {
	groups, err := p.loadGroups()
	if err != nil {
		return err
	}
	found := false
	for _, g := range groups {
		if g.Name == group {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown group: %s", group)
	}

	if approved && !artifactExists(filepath.Join(groupDir(p.dataDir, group), mappingFile)) {
		return fmt.Errorf("group %s has no reference mapping; run the mapping phase first", group)
	}

	status := p.state.Group(group)
	status.Approved = approved
	if approved {
		status.ApprovedAt = time.Now().UTC().Format(time.RFC3339)
	} else {
		status.ApprovedAt = ""
	}
	return p.state.Save()
}

func (p *Pipeline) loadConflicts(group string) (ConflictReport, error) {
	var conflicts ConflictReport
	if err := readJSON(filepath.Join(groupDir(p.dataDir, group), conflictsFile), &conflicts); err != nil {
		return ConflictReport{}, err
	}
	return conflicts, nil
}
