package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/reconcile"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/workbook"
)

// ExtractOptions control the extraction phase. Live mode writes to the
// value store and requires per-group approval; dry-run only reports.
type ExtractOptions struct {
	Live        bool
	Group       string
	StopOnError bool
}

// CellOverride is one operator correction from field_remaps.json,
// pointing a mapped field at the cell it actually moved to.
type CellOverride struct {
	Sheet string `json:"sheet"`
	Cell  string `json:"cell"`
}

// FileExtraction is one file's outcome inside a group report.
type FileExtraction struct {
	File     string                `json:"file"`
	Property string                `json:"property"`
	Values   map[string]string     `json:"values,omitempty"`
	Failures []workbook.CellResult `json:"failures,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// GroupExtraction is the per-group extraction artifact: the dry-run
// report, or the mutation log of a live run.
type GroupExtraction struct {
	Group       string           `json:"group"`
	RunID       string           `json:"runId,omitempty"`
	Mode        string           `json:"mode"`
	GeneratedAt string           `json:"generatedAt"`
	Files       []FileExtraction `json:"files"`
	ValueCount  int              `json:"valueCount"`
	FailCount   int              `json:"failCount"`
}

// Extract runs phase five. One file's failure never aborts its group;
// one group's failure aborts the batch only under StopOnError.
func (p *Pipeline) Extract(ctx context.Context, opts ExtractOptions) (*Report, error) {
	if err := p.state.beginPhase(PhaseExtraction); err != nil {
		return nil, err
	}

	report, err := p.extract(ctx, opts)
	if err != nil {
		p.state.failPhase(PhaseExtraction, err)
		return report, err
	}
	if err := p.state.completePhase(PhaseExtraction); err != nil {
		return report, err
	}
	return report, nil
}

func (p *Pipeline) extract(ctx context.Context, opts ExtractOptions) (*Report, error) {
	report := newReport(PhaseExtraction)

	groups, err := p.loadGroups()
	if err != nil {
		return report, err
	}

	if opts.Group != "" {
		known := false
		for _, g := range groups {
			if g.Name == opts.Group {
				known = true
				break
			}
		}
		if !known {
			return report, fmt.Errorf("unknown group %q", opts.Group)
		}
	}

	runID := ""
	if opts.Live {
		runID = uuid.NewString()
		if err := p.db.BeginRun(runID, internal.TriggerPipeline); err != nil {
			return report, err
		}
		p.state.LastExtractionRun = runID
		if err := p.state.Save(); err != nil {
			return report, err
		}
	}

	totalValues, totalFailures := 0, 0
	for _, g := range groups {
		if opts.Group != "" && g.Name != opts.Group {
			continue
		}

		status := p.state.Group(g.Name)
		if opts.Live && !status.Approved {
			report.skip(g.Name, "not approved for live extraction")
			continue
		}
		if !artifactExists(filepath.Join(groupDir(p.dataDir, g.Name), mappingFile)) {
			report.skip(g.Name, "no reference mapping")
			continue
		}

		status.Extraction = string(StatusRunning)
		_ = p.state.Save()

		result, err := p.extractGroup(ctx, g, runID, opts.Live)
		if err != nil {
			status.Extraction = string(StatusFailed)
			_ = p.state.Save()
			report.fail(g.Name, err.Error())
			if opts.StopOnError {
				if opts.Live {
					_ = p.db.FinishRun(runID, "failed", report.Counts)
				}
				return report, fmt.Errorf("group %s: %w", g.Name, err)
			}
			continue
		}

		status.Extraction = string(StatusCompleted)
		if err := p.state.Save(); err != nil {
			return report, err
		}

		totalValues += result.ValueCount
		totalFailures += result.FailCount
		report.Counts["groups"]++
		p.log.Info("group extracted",
			zap.String("group", g.Name),
			zap.Bool("live", opts.Live),
			zap.Int("values", result.ValueCount),
			zap.Int("failures", result.FailCount))
	}

	report.Counts["values"] = totalValues
	report.Counts["failures"] = totalFailures
	if opts.Live {
		p.state.Counters["extracted_values"] = totalValues
	}

	if opts.Live {
		if err := p.db.FinishRun(runID, "completed", report.Counts); err != nil {
			return report, err
		}
	}
	if err := p.state.Save(); err != nil {
		return report, err
	}
	return report, nil
}

func (p *Pipeline) extractGroup(ctx context.Context, g internal.FileGroup, runID string, live bool) (GroupExtraction, error) {
	mappingResult, err := p.loadMapping(g.Name)
	if err != nil {
		return GroupExtraction{}, err
	}
	matches := p.applyOverrides(g.Name, mappingResult.Matches)
	properties := p.propertyNames(g)

	out := GroupExtraction{
		Group:       g.Name,
		Mode:        "dry-run",
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Files:       make([]FileExtraction, len(g.Members)),
	}
	if live {
		out.Mode = "live"
		out.RunID = runID
	}

	workers := p.cfg.ExtractWorkers
	if workers < 1 {
		workers = 1
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for i, member := range g.Members {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			out.Files[i] = extractFile(member, properties[member], matches)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return GroupExtraction{}, err
	}

	for _, f := range out.Files {
		out.ValueCount += len(f.Values)
		out.FailCount += len(f.Failures)
		if f.Error != "" {
			out.FailCount++
		}
	}

	artifact := dryRunFile
	if live {
		artifact = mutationLogFile
		var values []internal.ExtractedValue
		for _, f := range out.Files {
			fields := make([]string, 0, len(f.Values))
			for field := range f.Values {
				fields = append(fields, field)
			}
			sort.Strings(fields)
			for _, field := range fields {
				values = append(values, internal.ExtractedValue{
					RunID:      runID,
					Property:   f.Property,
					SourceFile: f.File,
					GroupName:  g.Name,
					Trigger:    internal.TriggerPipeline,
					Field:      field,
					Value:      f.Values[field],
				})
			}
		}
		if err := p.db.InsertValues(values); err != nil {
			return GroupExtraction{}, err
		}
	}

	if err := writeJSONAtomic(filepath.Join(groupDir(p.dataDir, g.Name), artifact), out); err != nil {
		return GroupExtraction{}, err
	}
	return out, nil
}

// extractFile reads every mapped field from one workbook. The worker
// owns its reader; an unopenable file degrades to a per-file error.
func extractFile(path, property string, matches []internal.MappingMatch) FileExtraction {
	out := FileExtraction{File: path, Property: property}

	reader, err := workbook.Open(path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	defer reader.Close()

	out.Values = map[string]string{}
	for _, m := range matches {
		res := reader.Read(m.Sheet, m.Cell)
		if !res.OK() {
			out.Failures = append(out.Failures, res)
			continue
		}
		out.Values[m.Field] = res.Value
	}
	return out
}

// applyOverrides rewrites resolved addresses with any operator-edited
// field_remaps.json for the group.
func (p *Pipeline) applyOverrides(group string, matches []internal.MappingMatch) []internal.MappingMatch {
	path := filepath.Join(groupDir(p.dataDir, group), remapsFile)
	if !artifactExists(path) {
		return matches
	}

	overrides := map[string]CellOverride{}
	if err := readJSON(path, &overrides); err != nil {
		p.log.Warn("ignoring malformed field remaps", zap.String("group", group), zap.Error(err))
		return matches
	}

	out := make([]internal.MappingMatch, len(matches))
	copy(out, matches)
	for i := range out {
		if o, ok := overrides[out[i].Field]; ok {
			if o.Sheet != "" {
				out[i].Sheet = o.Sheet
			}
			if o.Cell != "" {
				out[i].Cell = o.Cell
			}
		}
	}
	return out
}

// propertyNames resolves each member to its canonical property from the
// conflict artifact, falling back to the filename-derived deal name.
func (p *Pipeline) propertyNames(g internal.FileGroup) map[string]string {
	out := map[string]string{}
	for _, member := range g.Members {
		out[member] = reconcile.DealNameFromFilename(member)
	}

	conflicts, err := p.loadConflicts(g.Name)
	if err != nil {
		return out
	}
	bySource := map[string]string{}
	for _, m := range conflicts.Properties {
		if m.Canonical != "" {
			bySource[m.Source] = m.Canonical
		}
	}
	for member, source := range out {
		if canonical, ok := bySource[source]; ok {
			out[member] = canonical
		}
	}
	return out
}

// Validate recounts stored values per group against the extraction
// artifacts. A mismatch marks the group's validation failed; the phase
// itself still returns a full report.
func (p *Pipeline) Validate() (*Report, error) {
	report := newReport(PhaseExtraction)

	if p.state.Phase(PhaseExtraction).Status != StatusCompleted {
		return nil, fmt.Errorf("%w: validation requires completed extraction", ErrPreconditionNotMet)
	}
	if p.state.LastExtractionRun == "" {
		return nil, fmt.Errorf("%w: no live extraction has run", ErrPreconditionNotMet)
	}

	stored, err := p.db.CountValuesByGroup(p.state.LastExtractionRun)
	if err != nil {
		return report, err
	}

	groups, err := p.loadGroups()
	if err != nil {
		return report, err
	}

	total := 0
	for _, g := range groups {
		logPath := filepath.Join(groupDir(p.dataDir, g.Name), mutationLogFile)
		status := p.state.Group(g.Name)
		if !artifactExists(logPath) {
			if status.Approved {
				report.skip(g.Name, "no mutation log")
			}
			continue
		}

		var logged GroupExtraction
		if err := readJSON(logPath, &logged); err != nil {
			return report, err
		}
		if logged.RunID != p.state.LastExtractionRun {
			report.skip(g.Name, "mutation log from an earlier run")
			continue
		}

		if stored[g.Name] == logged.ValueCount {
			status.Validation = string(StatusCompleted)
			report.Counts["validated"]++
		} else {
			status.Validation = string(StatusFailed)
			report.fail(g.Name, fmt.Sprintf("stored %d values, expected %d", stored[g.Name], logged.ValueCount))
		}
		total += stored[g.Name]
	}

	report.Counts["stored_values"] = total
	if expected := p.state.Counters["extracted_values"]; expected != total {
		report.fail("totals", fmt.Sprintf("stored %d values, state counted %d", total, expected))
	}
	if err := p.state.Save(); err != nil {
		return report, err
	}

	p.log.Info("validation complete",
		zap.Int("storedValues", total),
		zap.Int("validatedGroups", report.Counts["validated"]),
		zap.Int("mismatches", len(report.Failed)))
	return report, nil
}
