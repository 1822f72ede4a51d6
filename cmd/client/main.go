package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/client/cli"
	"github.com/dmitrijs2005/teamsync/internal/client/client"
	"github.com/dmitrijs2005/teamsync/internal/client/config"
	"github.com/dmitrijs2005/teamsync/internal/client/services"
	"github.com/dmitrijs2005/teamsync/internal/logging"
)

func main() {
	cfg := config.LoadConfig()
	logger := logging.New(cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := client.OpenDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("error initializing database: %v", err)
	}
	defer db.Close()

	api, err := client.NewHTTPClient(cfg.ServerURL, cfg.RequestTimeout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	probe, err := client.NewHealthProbe(cfg.HealthAddr)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer probe.Close()

	ws := services.NewWorkspace(api, client.NewRepositories(db), probe, cfg.OnlineCheckInterval, logger)
	app := cli.NewApp(ws, logger)

	// The REPL blocks on stdin, so a signal releases held locks and exits
	// from here.
	done := make(chan struct{})
	go func() {
		select {
		case <-done:
		case <-ctx.Done():
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ws.Close(closeCtx)
			cancel()
			db.Close()
			os.Exit(130)
		}
	}()

	app.Run(ctx)
	close(done)
}
