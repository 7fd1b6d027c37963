package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal/config"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/discovery"
	gmailconnector "github.com/mborgeson/dashboard-interface-project-sub000/internal/discovery/gmail"
	imapconnector "github.com/mborgeson/dashboard-interface-project-sub000/internal/discovery/imap"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/logging"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/pipeline"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/registry"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = log.Sync() }()

	db, err := storage.Open(cfg.StorePath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "registry:sync":
		svc := registry.NewSyncService(db, cfg)
		count, err := svc.Sync(context.Background())
		must(err)
		fmt.Printf("registry sync complete: %d properties\n", count)
	case "status":
		pipe, err := pipeline.New(cfg, db, log)
		must(err)
		printStatus(pipe.State())
	case "discover":
		withPipeline(cfg, db, log, func(pipe *pipeline.Pipeline) error {
			report, err := pipe.Discover(context.Background(), makeSources(cfg))
			printReport(report)
			return err
		})
	case "fingerprint":
		withPipeline(cfg, db, log, func(pipe *pipeline.Pipeline) error {
			report, err := pipe.FingerprintAndGroup(context.Background())
			printReport(report)
			return err
		})
	case "map":
		withPipeline(cfg, db, log, func(pipe *pipeline.Pipeline) error {
			report, err := pipe.MapGroups()
			printReport(report)
			return err
		})
	case "conflicts":
		withPipeline(cfg, db, log, func(pipe *pipeline.Pipeline) error {
			report, err := pipe.CheckConflicts()
			printReport(report)
			return err
		})
	case "approve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		group := fs.String("group", "", "group name")
		revoke := fs.Bool("revoke", false, "revoke a prior approval")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*group) == "" {
			must(fmt.Errorf("--group is required"))
		}
		withPipeline(cfg, db, log, func(pipe *pipeline.Pipeline) error {
			if err := pipe.Approve(*group, !*revoke); err != nil {
				return err
			}
			if *revoke {
				fmt.Printf("approval revoked for group %s\n", *group)
			} else {
				fmt.Printf("group %s approved for live extraction\n", *group)
			}
			return nil
		})
	case "extract":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		live := fs.Bool("live", false, "write to the value store (default dry-run)")
		group := fs.String("group", "", "restrict to one group")
		stopOnError := fs.Bool("stop-on-error", false, "abort the batch on the first group failure")
		_ = fs.Parse(os.Args[2:])
		withPipeline(cfg, db, log, func(pipe *pipeline.Pipeline) error {
			report, err := pipe.Extract(context.Background(), pipeline.ExtractOptions{
				Live:        *live,
				Group:       *group,
				StopOnError: *stopOnError,
			})
			printReport(report)
			return err
		})
	case "validate":
		withPipeline(cfg, db, log, func(pipe *pipeline.Pipeline) error {
			report, err := pipe.Validate()
			printReport(report)
			return err
		})
	case "run":
		withPipeline(cfg, db, log, func(pipe *pipeline.Pipeline) error {
			reports, err := pipe.RunAll(context.Background(), makeSources(cfg))
			for _, report := range reports {
				printReport(report)
			}
			return err
		})
	default:
		usage()
		os.Exit(1)
	}
}

func withPipeline(cfg config.Config, db *storage.DB, log *zap.Logger, fn func(*pipeline.Pipeline) error) {
	lock, err := pipeline.AcquireLock(cfg.DataDir)
	must(err)
	defer func() { _ = lock.Release() }()

	pipe, err := pipeline.New(cfg, db, log)
	must(err)
	must(fn(pipe))
}

func makeSources(cfg config.Config) []discovery.Source {
	var out []discovery.Source
	for _, name := range strings.Split(cfg.WatchSources, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "dir":
			out = append(out, discovery.DirSource{Dir: cfg.InboxDir})
		case "web":
			out = append(out, discovery.WebIndexSource{IndexURL: cfg.WebIndexURL, InboxDir: cfg.InboxDir})
		case "mail":
			conn, err := makeConnector(cfg, cfg.WatchProvider)
			must(err)
			out = append(out, discovery.MailboxSource{
				Connector: conn,
				Label:     cfg.WatchLabel,
				FetchMax:  cfg.WatchFetchMax,
				InboxDir:  cfg.InboxDir,
			})
		case "":
		default:
			must(fmt.Errorf("unsupported source: %s", name))
		}
	}
	if len(out) == 0 {
		out = append(out, discovery.DirSource{Dir: cfg.InboxDir})
	}
	return out
}

func makeConnector(cfg config.Config, provider string) (discovery.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func printReport(report *pipeline.Report) {
	if report == nil {
		return
	}
	fmt.Printf("phase %s:", report.Phase)
	for key, value := range report.Counts {
		fmt.Printf(" %s=%d", key, value)
	}
	fmt.Println()
	for _, item := range report.Skipped {
		fmt.Printf("  skipped %s: %s\n", item.Name, item.Reason)
	}
	for _, item := range report.Failed {
		fmt.Printf("  failed %s: %s\n", item.Name, item.Reason)
	}
}

func printStatus(state *pipeline.State) {
	fmt.Printf("run %s\n", state.RunID)
	for _, phase := range []pipeline.Phase{
		pipeline.PhaseDiscovery, pipeline.PhaseGrouping, pipeline.PhaseMapping,
		pipeline.PhaseConflicts, pipeline.PhaseExtraction,
	} {
		rec := state.Phase(phase)
		line := fmt.Sprintf("  %-12s %s", phase, rec.Status)
		if rec.CompletedAt != "" {
			line += " at " + rec.CompletedAt
		}
		if rec.Error != "" {
			line += " (" + rec.Error + ")"
		}
		fmt.Println(line)
	}
	for name, counter := range state.Counters {
		fmt.Printf("  counter %s=%d\n", name, counter)
	}
	for name, group := range state.Groups {
		fmt.Printf("  group %s approved=%v extraction=%s validation=%s\n",
			name, group.Approved, group.Extraction, group.Validation)
	}
}

func usage() {
	fmt.Println("usage: uwpipe <command>")
	fmt.Println("commands:")
	fmt.Println("  registry:sync")
	fmt.Println("  discover")
	fmt.Println("  fingerprint")
	fmt.Println("  map")
	fmt.Println("  conflicts")
	fmt.Println("  approve --group=NAME [--revoke]")
	fmt.Println("  extract [--live] [--group=NAME] [--stop-on-error]")
	fmt.Println("  validate")
	fmt.Println("  run")
	fmt.Println("  status")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
