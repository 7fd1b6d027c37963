package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal/config"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/logging"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/storage"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/watch"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = log.Sync() }()

	db, err := storage.Open(cfg.StorePath)
	must(err)
	defer db.Close()

	svc := watch.NewService(db, cfg, log)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
