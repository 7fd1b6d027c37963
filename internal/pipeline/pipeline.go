package pipeline

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal/config"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/discovery"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/fingerprint"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/mapping"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/storage"
)

// Pipeline owns the five phases and the persisted state of one data
// directory.
type Pipeline struct {
	cfg     config.Config
	db      *storage.DB
	log     *zap.Logger
	state   *State
	scanner *fingerprint.Scanner
	dataDir string
}

func New(cfg config.Config, db *storage.DB, log *zap.Logger) (*Pipeline, error) {
	state, err := LoadState(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:     cfg,
		db:      db,
		log:     log.Named("pipeline"),
		state:   state,
		scanner: fingerprint.NewScanner(cfg),
		dataDir: cfg.DataDir,
	}, nil
}

func (p *Pipeline) State() *State { return p.state }

// RunAll executes the five phases back to back with a dry-run
// extraction. Live writes always go through explicit approval first.
func (p *Pipeline) RunAll(ctx context.Context, sources []discovery.Source) ([]*Report, error) {
	var reports []*Report

	run := func(f func() (*Report, error)) error {
		report, err := f()
		if report != nil {
			reports = append(reports, report)
		}
		return err
	}

	if err := run(func() (*Report, error) { return p.Discover(ctx, sources) }); err != nil {
		return reports, err
	}
	if err := run(func() (*Report, error) { return p.FingerprintAndGroup(ctx) }); err != nil {
		return reports, err
	}
	if err := run(p.MapGroups); err != nil {
		return reports, err
	}
	if err := run(p.CheckConflicts); err != nil {
		return reports, err
	}
	if err := run(func() (*Report, error) { return p.Extract(ctx, ExtractOptions{}) }); err != nil {
		return reports, err
	}
	return reports, nil
}

// vocabulary returns the operator-supplied field set when one exists in
// the data directory, else the built-in default.
func (p *Pipeline) vocabulary() (mapping.Vocabulary, error) {
	path := filepath.Join(p.dataDir, "canonical_fields.json")
	if artifactExists(path) {
		return mapping.LoadFile(path)
	}
	return mapping.Default(), nil
}
