package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/whonion/scavenger-miner/ashmaize"
	"github.com/whonion/scavenger-miner/client"
	"github.com/whonion/scavenger-miner/config"
	"github.com/whonion/scavenger-miner/ledger"
	"github.com/whonion/scavenger-miner/logging"
	"github.com/whonion/scavenger-miner/outbox"
	"github.com/whonion/scavenger-miner/signing"
	"github.com/whonion/scavenger-miner/supervisor"
	"github.com/whonion/scavenger-miner/wallet"
	"github.com/whonion/scavenger-miner/worker"
)

// runSupervisor bootstraps the wallet set and keeps the worker pool full
// until interrupted.
func runSupervisor(ctx context.Context, cfg *config.Config) error {
	store, err := wallet.OpenStore(cfg.WalletsFile())
	if err != nil {
		return err
	}
	svc := client.New(cfg.ServiceURL)
	alloc := wallet.NewAllocator(store, signing.CIP8Signer{}, svc)

	if err := alloc.LoadOrCreate(ctx, cfg.NumWorkers); err != nil {
		return fmt.Errorf("bootstrapping wallets: %w", err)
	}

	opts := []supervisor.Opt{supervisor.WithStatusDir(cfg.StatusDir())}
	if !cfg.Donation.Disabled && cfg.Donation.PoolURL != "" {
		opts = append(opts, supervisor.WithDevPool(
			client.NewDevPool(cfg.Donation.PoolURL, cfg.Donation.PoolPassword, cfg.DevCacheFile()),
		))
	}

	sup, err := supervisor.New(
		supervisor.Config{NumWorkers: cfg.NumWorkers},
		alloc,
		ledger.Open(cfg.LedgerFile()),
		svc,
		supervisor.ExecSpawner(cfg.WorkerFlags()),
		opts...,
	)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsPort != nil {
		eg.Go(func() error {
			return serveMetrics(ctx, fmt.Sprintf(":%d", *cfg.MetricsPort))
		})
	}
	eg.Go(func() error {
		return sup.Run(ctx)
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runWorker runs a single mining loop for the wallet address handed over by
// the supervisor.
func runWorker(ctx context.Context, cfg *config.Config) error {
	store, err := wallet.OpenStore(cfg.WalletsFile())
	if err != nil {
		return err
	}
	if _, ok := store.ByAddress(cfg.Worker.Address); !ok {
		return fmt.Errorf("address %s is not in %s", cfg.Worker.Address, cfg.WalletsFile())
	}

	svc := client.New(cfg.ServiceURL)
	engine := func(ctx context.Context, key string) (worker.Digester, error) {
		return ashmaize.Build(ctx, key, cfg.Engine.ROMSize, cfg.Engine.PreSize, cfg.Engine.MixingRounds)
	}

	donationEnabled := !cfg.Donation.Disabled && cfg.Worker.DevAddress != ""
	var opts []worker.Opt
	if donationEnabled && cfg.Donation.PoolURL != "" {
		opts = append(opts, worker.WithDonationReporter(
			client.NewDevPool(cfg.Donation.PoolURL, cfg.Donation.PoolPassword, cfg.DevCacheFile()),
		))
	}

	wk, err := worker.New(
		worker.Config{
			Slot:            cfg.Worker.Slot,
			Address:         cfg.Worker.Address,
			DevAddress:      cfg.Worker.DevAddress,
			DonationRate:    cfg.Donation.Rate,
			DonationEnabled: donationEnabled,
			StatusFile:      worker.StatusFilePath(cfg.StatusDir(), cfg.Worker.Slot),
		},
		ledger.Open(cfg.LedgerFile()),
		svc,
		engine,
		outbox.Open(cfg.OutboxFile()),
		opts...,
	)
	if err != nil {
		return err
	}

	err = wk.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveMetrics(ctx context.Context, addr string) error {
	logger := logging.FromContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	logger.Sugar().Infof("metrics listening on %s", addr)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errc:
		return err
	}
}
