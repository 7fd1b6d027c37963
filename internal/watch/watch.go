// Package watch polls discovery sources on an interval and, when new
// files land, advances the pipeline through its unattended phases.
package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal/config"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/discovery"
	gmailconnector "github.com/mborgeson/dashboard-interface-project-sub000/internal/discovery/gmail"
	imapconnector "github.com/mborgeson/dashboard-interface-project-sub000/internal/discovery/imap"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/pipeline"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/storage"
)

type Service struct {
	db  *storage.DB
	cfg config.Config
	log *zap.Logger
}

func NewService(db *storage.DB, cfg config.Config, log *zap.Logger) *Service {
	return &Service{db: db, cfg: cfg, log: log}
}

func (s *Service) Run(ctx context.Context) error {
	sources, err := s.makeSources()
	if err != nil {
		return err
	}

	for {
		if err := s.runCycle(ctx, sources); err != nil {
			s.log.Warn("watch cycle error", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.WatchIntervalSec) * time.Second):
		}
	}
}

func (s *Service) runCycle(ctx context.Context, sources []discovery.Source) error {
	lock, err := pipeline.AcquireLock(s.cfg.DataDir)
	if err != nil {
		// Another invocation owns the data directory; try again next tick.
		s.log.Info("data directory locked, skipping cycle")
		return nil
	}
	defer func() { _ = lock.Release() }()

	pipe, err := pipeline.New(s.cfg, s.db, s.log)
	if err != nil {
		return err
	}

	report, err := pipe.Discover(ctx, sources)
	if err != nil {
		return err
	}
	accepted := report.Counts["accepted"]
	s.log.Info("watch cycle discovered",
		zap.Int("accepted", accepted),
		zap.Int("skipped", len(report.Skipped)))

	if accepted == 0 || !s.cfg.WatchAutoPhases {
		return nil
	}
	return s.advance(ctx, pipe)
}

// advance runs the phases that need no human in the loop: grouping,
// mapping, conflict checks, and a dry-run extraction. Live extraction
// stays behind explicit per-group approval.
func (s *Service) advance(ctx context.Context, pipe *pipeline.Pipeline) error {
	if _, err := pipe.FingerprintAndGroup(ctx); err != nil {
		return err
	}
	if _, err := pipe.MapGroups(); err != nil {
		return err
	}
	if _, err := pipe.CheckConflicts(); err != nil {
		return err
	}
	report, err := pipe.Extract(ctx, pipeline.ExtractOptions{Live: false})
	if err != nil && !errors.Is(err, pipeline.ErrPreconditionNotMet) {
		return err
	}
	if report != nil {
		s.log.Info("dry-run extraction complete",
			zap.Int("groups", report.Counts["groups"]),
			zap.Int("values", report.Counts["values"]))
	}
	return nil
}

func (s *Service) makeSources() ([]discovery.Source, error) {
	var out []discovery.Source
	for _, name := range strings.Split(s.cfg.WatchSources, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "dir":
			out = append(out, discovery.DirSource{Dir: s.cfg.InboxDir})
		case "web":
			out = append(out, discovery.WebIndexSource{IndexURL: s.cfg.WebIndexURL, InboxDir: s.cfg.InboxDir})
		case "mail":
			conn, err := s.makeConnector(s.cfg.WatchProvider)
			if err != nil {
				return nil, err
			}
			out = append(out, discovery.MailboxSource{
				Connector: conn,
				Label:     s.cfg.WatchLabel,
				FetchMax:  s.cfg.WatchFetchMax,
				InboxDir:  s.cfg.InboxDir,
			})
		case "":
		default:
			return nil, fmt.Errorf("unsupported watch source: %s", name)
		}
	}
	if len(out) == 0 {
		out = append(out, discovery.DirSource{Dir: s.cfg.InboxDir})
	}
	return out, nil
}

func (s *Service) makeConnector(provider string) (discovery.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported watch provider: %s", provider)
	}
}
