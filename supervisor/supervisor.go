// Package supervisor owns the worker pool: it keeps a fixed number of worker
// processes alive, assigns each a wallet with remaining work and replaces
// workers that exit. Workers are separate OS processes so a crash in one
// mining loop never takes down the pool.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/whonion/scavenger-miner/logging"
	"github.com/whonion/scavenger-miner/wallet"
)

const (
	// DefaultTick is how often empty slots are refilled.
	DefaultTick = 10 * time.Second
	// DefaultGrace is how long a worker gets to exit after SIGTERM.
	DefaultGrace = 5 * time.Second

	summaryPeriod = 30 * time.Second
)

// ExhaustedExitCode is the exit code a worker uses when its wallet has
// completed every known challenge. It is a clean exit, not a crash.
const ExhaustedExitCode = 7

// Process is a started worker process.
type Process interface {
	// Wait blocks until the process exits and returns its exit error.
	Wait() error
	Signal(sig os.Signal) error
	Kill() error
}

// Spawner launches the worker process for a slot.
type Spawner func(ctx context.Context, slot int, address, devAddress string) (Process, error)

// Service is the liveness slice of the remote service.
type Service interface {
	Probe(ctx context.Context) error
}

// DevPool hands out donation target addresses.
type DevPool interface {
	Addresses(ctx context.Context, n int) []string
}

// Allocator assigns wallets to slots.
type Allocator interface {
	CreateOne(ctx context.Context) (wallet.Wallet, error)
	AssignFree(inUse map[string]bool, hasWork func(address string) (bool, error)) (wallet.Wallet, bool, error)
}

// Ledger is the read-only slice used for assignment and summaries.
type Ledger interface {
	HasWork(address string) (bool, error)
	CountCompletions(addresses []string) (int, error)
}

type Config struct {
	NumWorkers int
	Tick       time.Duration
	Grace      time.Duration
}

type slot struct {
	index      int
	address    string
	devAddress string
	proc       Process
	done       chan error
}

type Supervisor struct {
	cfg       Config
	allocator Allocator
	ledger    Ledger
	svc       Service
	spawn     Spawner

	devPool DevPool
	clk     clock.Clock
	summary *summaryReader

	slots []*slot
}

type Opt func(*Supervisor)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Opt {
	return func(s *Supervisor) { s.clk = c }
}

// WithDevPool wires the donation address source. Without it workers run with
// donation disabled.
func WithDevPool(p DevPool) Opt {
	return func(s *Supervisor) { s.devPool = p }
}

// WithStatusDir enables the periodic telemetry summary from worker snapshot
// files in dir.
func WithStatusDir(dir string) Opt {
	return func(s *Supervisor) { s.summary = &summaryReader{dir: dir} }
}

func New(cfg Config, alloc Allocator, l Ledger, svc Service, spawn Spawner, opts ...Opt) (*Supervisor, error) {
	if cfg.NumWorkers <= 0 {
		return nil, errors.New("pool needs at least one worker")
	}
	if cfg.Tick == 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Grace == 0 {
		cfg.Grace = DefaultGrace
	}

	s := &Supervisor{
		cfg:       cfg,
		allocator: alloc,
		ledger:    l,
		svc:       svc,
		spawn:     spawn,
		clk:       clock.New(),
		slots:     make([]*slot, cfg.NumWorkers),
	}
	for i := range s.slots {
		s.slots[i] = &slot{index: i}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run fills the pool and keeps it full until ctx is canceled, then shuts
// every worker down.
func (s *Supervisor) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("supervisor")
	ctx = logging.NewContext(ctx, logger)

	devAddrs := s.devAddresses(ctx)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.loop(egCtx, devAddrs)
	})
	if s.summary != nil {
		eg.Go(func() error {
			s.summaryLoop(egCtx)
			return nil
		})
	}
	err := eg.Wait()

	if shutdownErr := s.shutdown(logger); shutdownErr != nil {
		err = multierror.Append(err, shutdownErr).ErrorOrNil()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Supervisor) loop(ctx context.Context, devAddrs []string) error {
	logger := logging.FromContext(ctx)

	ticker := s.clk.Ticker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		s.reap(logger)
		if err := s.fill(ctx, devAddrs); err != nil {
			logger.Warn("filling worker slots failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// reap frees the slots of workers that have exited.
func (s *Supervisor) reap(logger *zap.Logger) {
	for _, sl := range s.slots {
		if sl.proc == nil {
			continue
		}
		select {
		case err := <-sl.done:
			switch {
			case err == nil:
				logger.Info("worker exited cleanly", zap.Int("slot", sl.index))
			case exitCode(err) == ExhaustedExitCode:
				logger.Info("worker finished all challenges",
					zap.Int("slot", sl.index), zap.String("address", sl.address))
			default:
				workerRespawns.Inc()
				logger.Warn("worker died",
					zap.Int("slot", sl.index), zap.String("address", sl.address), zap.Error(err))
			}
			sl.proc = nil
			sl.address = ""
		default:
		}
	}
}

// fill assigns a wallet to every empty slot and spawns its worker. When no
// free wallet has work left, a new wallet is created, but only if the
// service answers a liveness probe first: with the service down every
// existing wallet looks exhausted and the pool would mint wallets forever.
func (s *Supervisor) fill(ctx context.Context, devAddrs []string) error {
	logger := logging.FromContext(ctx)

	for _, sl := range s.slots {
		if sl.proc != nil {
			continue
		}

		w, ok, err := s.allocator.AssignFree(s.inUse(), s.ledger.HasWork)
		if err != nil {
			return err
		}
		if !ok {
			if err := s.svc.Probe(ctx); err != nil {
				logger.Warn("service unreachable, deferring wallet creation", zap.Error(err))
				return nil
			}
			w, err = s.allocator.CreateOne(ctx)
			if err != nil {
				return fmt.Errorf("creating wallet for slot %d: %w", sl.index, err)
			}
			walletsCreated.Inc()
			logger.Info("created new wallet", zap.Int("slot", sl.index), zap.String("address", w.Address))
		}

		sl.devAddress = ""
		if len(devAddrs) > 0 {
			sl.devAddress = devAddrs[sl.index%len(devAddrs)]
		}
		if err := s.start(ctx, sl, w.Address); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) start(ctx context.Context, sl *slot, address string) error {
	proc, err := s.spawn(ctx, sl.index, address, sl.devAddress)
	if err != nil {
		return fmt.Errorf("spawning worker for slot %d: %w", sl.index, err)
	}
	sl.proc = proc
	sl.address = address
	sl.done = make(chan error, 1)
	go func() { sl.done <- proc.Wait() }()

	workersStarted.Inc()
	logging.FromContext(ctx).Info("worker started",
		zap.Int("slot", sl.index), zap.String("address", address))
	return nil
}

// inUse reports the wallet addresses currently owned by live slots.
func (s *Supervisor) inUse() map[string]bool {
	used := make(map[string]bool)
	for _, sl := range s.slots {
		if sl.proc != nil {
			used[sl.address] = true
		}
	}
	return used
}

// shutdown terminates every live worker: SIGTERM, a grace period, then
// SIGKILL for stragglers.
func (s *Supervisor) shutdown(logger *zap.Logger) error {
	var result *multierror.Error
	for _, sl := range s.slots {
		if sl.proc == nil {
			continue
		}
		if err := sl.proc.Signal(syscall.SIGTERM); err != nil {
			result = multierror.Append(result, fmt.Errorf("terminating slot %d: %w", sl.index, err))
		}
	}
	for _, sl := range s.slots {
		if sl.proc == nil {
			continue
		}
		select {
		case <-sl.done:
		case <-time.After(s.cfg.Grace):
			logger.Warn("worker ignored SIGTERM, killing", zap.Int("slot", sl.index))
			if err := sl.proc.Kill(); err != nil {
				result = multierror.Append(result, fmt.Errorf("killing slot %d: %w", sl.index, err))
			}
			<-sl.done
		}
		sl.proc = nil
	}
	return result.ErrorOrNil()
}

func (s *Supervisor) devAddresses(ctx context.Context) []string {
	if s.devPool == nil {
		return nil
	}
	return s.devPool.Addresses(ctx, s.cfg.NumWorkers)
}

func exitCode(err error) int {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}
