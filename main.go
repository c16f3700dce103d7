package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/whonion/scavenger-miner/config"
	"github.com/whonion/scavenger-miner/logging"
	"github.com/whonion/scavenger-miner/supervisor"
	"github.com/whonion/scavenger-miner/worker"
)

// Miner binary version.
// It should be passed during the build with '-ldflags "-X main.version="'.
var version = "unknown"

// minerMain is the true entry point. This function is required since defers
// created in the top-level scope of a main method aren't executed if
// os.Exit() is called.
func minerMain() error {
	var err error
	// Start with a default Config with sane settings
	cfg := config.DefaultConfig()
	// Pre-parse the command line to check for an alternative Config file
	cfg, err = config.ParseFlags(cfg)
	if err != nil {
		return err
	}
	// Load configuration file overwriting defaults with any specified options
	cfg, err = config.ReadConfigFile(cfg)
	if err != nil {
		return err
	}
	cfg, err = config.SetupConfig(cfg)
	if err != nil {
		return err
	}
	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	cfg, err = config.ParseFlags(cfg)
	if err != nil {
		return err
	}

	logLevel := zap.InfoLevel
	if cfg.DebugLog {
		logLevel = zap.DebugLevel
	}
	logName := "supervisor.log"
	if cfg.WorkerMode() {
		logName = fmt.Sprintf("worker-%d.log", cfg.Worker.Slot)
	}
	logger := logging.New(logLevel, filepath.Join(cfg.LogDir, logName), cfg.MaxLogFileSize, cfg.MaxLogFiles, cfg.JSONLog)
	ctx := logging.NewContext(context.Background(), logger)

	defer func() {
		logger.Info("shutdown complete")
	}()

	logger.Sugar().Infof("version: %s, dir: %v, datadir: %v, workers: %d",
		version, cfg.MinerDir, cfg.DataDir, cfg.NumWorkers)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.WorkerMode() {
		return runWorker(ctx, cfg)
	}
	return runSupervisor(ctx, cfg)
}

func main() {
	if err := minerMain(); err != nil {
		switch {
		case errors.Is(err, worker.ErrExhausted):
			// A clean exit: the wallet has no work left. The supervisor
			// recognizes the code and retires the wallet.
			os.Exit(supervisor.ExhaustedExitCode)
		case isFlagsHelp(err):
			// Already printed by the flags package.
			os.Exit(0)
		default:
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func isFlagsHelp(err error) bool {
	var fe *flags.Error
	return errors.As(err, &fe) && fe.Type == flags.ErrHelp
}
