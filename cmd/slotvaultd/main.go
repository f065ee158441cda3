package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"slotvault/config"
	"slotvault/core"
	"slotvault/observability/logging"
	"slotvault/storage"
)

const configPath = "./config.toml"

func main() {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("slotvaultd", cfg.Environment)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open store", "dataDir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ledger, err := core.Open(cfg, db, logger)
	if err != nil {
		logger.Error("failed to open ledger", "err", err)
		os.Exit(1)
	}

	logger.Info("slotvaultd ready",
		"root", ledger.Root().Hex(),
		"height", ledger.Height(),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")
}
