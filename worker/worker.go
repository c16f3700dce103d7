// Package worker runs the per-wallet mining loop: discover a challenge,
// build or reuse its ROM, search for an acceptable nonce and settle the
// submission. One worker owns exactly one wallet address for its lifetime.
package worker

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/whonion/scavenger-miner/client"
	"github.com/whonion/scavenger-miner/ledger"
	"github.com/whonion/scavenger-miner/logging"
	"github.com/whonion/scavenger-miner/outbox"
)

// ErrExhausted is returned by Run when the wallet has completed every known
// challenge. The process exits with a distinct code so the supervisor can
// tell completion from a crash.
var ErrExhausted = errors.New("all challenges completed for wallet")

// DefaultDonationRate is the probability that a mining pass is donated.
const DefaultDonationRate = 0.05

const (
	defaultBatchSize   = 10000
	defaultROMCache    = 2
	maxMineTime        = time.Hour
	mineTimeFraction   = 0.8
	submitRetryLimit   = 2
	submitRetryPause   = 15 * time.Second
	settlePause        = 5 * time.Second
	recoverPause       = time.Minute
	donationPollPeriod = 30 * time.Second
)

//go:generate mockgen -package mocks -destination mocks/worker.go . Service,Digester,DonationReporter

// Service is the slice of the remote service a worker needs.
type Service interface {
	CurrentChallenge(ctx context.Context) (*ledger.Challenge, error)
	SubmitSolution(ctx context.Context, address, challengeID, nonce string) (client.Outcome, error)
}

// Ledger is the challenge ledger surface the worker mutates.
type Ledger interface {
	Register(ch ledger.Challenge) (bool, error)
	Select(address string) (*ledger.Record, error)
	MarkSolved(challengeID, address string) (bool, error)
	MarkDevSolved(challengeID, devAddress string) (bool, error)
	IsDevSolved(challengeID, devAddress string) (bool, error)
}

// Digester evaluates preimage batches against a built ROM.
type Digester interface {
	DigestBatch(preimages []string) []string
}

// Engine builds the per-challenge digester. Building is expensive, so the
// worker caches results by ROM key.
type Engine func(ctx context.Context, key string) (Digester, error)

// DonationReporter notifies the donation pool of a credited solution.
type DonationReporter interface {
	ReportDonation(ctx context.Context, address string) error
}

// Config is the static identity of one worker.
type Config struct {
	Slot            int
	Address         string
	DevAddress      string
	DonationRate    float64
	DonationEnabled bool
	StatusFile      string
}

// attempt carries a found solution across submission retries. The mining
// address is fixed when the nonce is found; a retried submission must go to
// the same address.
type attempt struct {
	rec     ledger.Record
	nonce   string
	address string
	forDev  bool
	retries int
}

type Worker struct {
	cfg    Config
	ledger Ledger
	svc    Service
	engine Engine
	box    *outbox.Outbox

	donations DonationReporter
	clk       clock.Clock
	rng       *rand.Rand
	roms      *lru.Cache
	batchSize int
	status    *StatusWriter

	// pause lengths, shortened under test
	settlePause  time.Duration
	retryPause   time.Duration
	recoverPause time.Duration
	pollPause    time.Duration

	pending *attempt
}

type Opt func(*Worker)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Opt {
	return func(w *Worker) { w.clk = c }
}

// WithRand replaces the nonce/donation randomness source, for tests.
func WithRand(r *rand.Rand) Opt {
	return func(w *Worker) { w.rng = r }
}

// WithBatchSize overrides the mining batch size.
func WithBatchSize(n int) Opt {
	return func(w *Worker) { w.batchSize = n }
}

// WithDonationReporter wires the donation pool callback.
func WithDonationReporter(r DonationReporter) Opt {
	return func(w *Worker) { w.donations = r }
}

func New(cfg Config, l Ledger, svc Service, engine Engine, box *outbox.Outbox, opts ...Opt) (*Worker, error) {
	if cfg.Address == "" {
		return nil, errors.New("worker needs a wallet address")
	}

	roms, err := lru.New(defaultROMCache)
	if err != nil {
		return nil, err
	}
	w := &Worker{
		cfg:          cfg,
		ledger:       l,
		svc:          svc,
		engine:       engine,
		box:          box,
		clk:          clock.New(),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		roms:         roms,
		batchSize:    defaultBatchSize,
		status:       NewStatusWriter(cfg.StatusFile, cfg.Address),
		settlePause:  settlePause,
		retryPause:   submitRetryPause,
		recoverPause: recoverPause,
		pollPause:    donationPollPeriod,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run drives the mining loop until the context is canceled or the wallet has
// no work left. Any error other than ErrExhausted is logged, the worker
// pauses and the loop starts over from discovery.
func (w *Worker) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("worker").With(
		zap.Int("slot", w.cfg.Slot),
		zap.String("address", shortAddr(w.cfg.Address)),
	)
	ctx = logging.NewContext(ctx, logger)

	logger.Info("starting mining worker")
	w.status.Set(func(s *Status) { s.Current = "ready" })

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.step(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrExhausted):
			logger.Info("all challenges completed, exiting")
			w.status.Set(func(s *Status) { s.Current = "all completed"; s.Attempts = 0; s.HashRate = 0 })
			return err
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return ctx.Err()
		default:
			logger.Error("worker iteration failed", zap.Error(err))
			w.status.Set(func(s *Status) { s.Current = "error: " + truncate(err.Error(), 40) })
			w.sleep(ctx, w.recoverPause)
		}
	}
}

// step executes one pass of the state machine.
func (w *Worker) step(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	var att *attempt
	if w.pending != nil {
		att = w.pending
		logger.Info("retrying submission",
			zap.String("challenge", att.rec.ChallengeID),
			zap.Int("attempt", att.retries+1),
		)
	} else {
		rec, err := w.discover(ctx)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrExhausted
		}
		att = &attempt{rec: *rec, address: w.cfg.Address}
	}

	// Deadline check. An expired challenge is marked solved for this wallet
	// so the scheduler stops offering it.
	deadline, err := att.rec.Deadline()
	if err != nil {
		return fmt.Errorf("challenge %s has malformed deadline: %w", att.rec.ChallengeID, err)
	}
	timeLeft := deadline.Sub(w.clk.Now())
	if timeLeft <= 0 {
		logger.Info("challenge expired", zap.String("challenge", att.rec.ChallengeID))
		w.status.Set(func(s *Status) { s.Current = "expired" })
		w.pending = nil
		if _, err := w.ledger.MarkSolved(att.rec.ChallengeID, w.cfg.Address); err != nil {
			return err
		}
		w.sleep(ctx, w.settlePause)
		return nil
	}

	dig, err := w.romFor(ctx, att.rec.NoPreMine, att.rec.ChallengeID)
	if err != nil {
		return err
	}

	if att.nonce == "" {
		w.decideDonation(ctx, att)

		bound := time.Duration(float64(timeLeft) * mineTimeFraction)
		if bound > maxMineTime {
			bound = maxMineTime
		}
		logger.Info("starting mining pass",
			zap.String("challenge", att.rec.ChallengeID),
			zap.String("pass_id", uuid.New().String()),
			zap.Bool("donation", att.forDev),
			zap.Duration("bound", bound),
		)
		nonce, err := w.mine(ctx, dig, att, bound)
		if err != nil {
			return err
		}
		if nonce == "" {
			logger.Info("no solution within time bound", zap.String("challenge", att.rec.ChallengeID))
			w.status.Set(func(s *Status) { s.Current = "no solution found" })
			w.pending = nil
			if _, err := w.ledger.MarkSolved(att.rec.ChallengeID, w.cfg.Address); err != nil {
				return err
			}
			w.sleep(ctx, w.settlePause)
			return nil
		}
		att.nonce = nonce
		w.pending = att
	}

	return w.settle(ctx, att)
}

// discover polls the service for the active challenge, records it and picks
// the next challenge for this wallet. nil means the wallet is exhausted.
func (w *Worker) discover(ctx context.Context) (*ledger.Record, error) {
	logger := logging.FromContext(ctx)

	if ch, err := w.svc.CurrentChallenge(ctx); err != nil {
		// Discovery is best effort; already-known challenges remain minable.
		logger.Warn("challenge discovery failed", zap.Error(err))
	} else if ch != nil {
		fresh, err := w.ledger.Register(*ch)
		if err != nil {
			return nil, err
		}
		if fresh {
			challengesDiscovered.Inc()
			logger.Info("discovered new challenge", zap.String("challenge", ch.ChallengeID))
		}
	}
	return w.ledger.Select(w.cfg.Address)
}

func (w *Worker) romFor(ctx context.Context, key, challengeID string) (Digester, error) {
	if dig, ok := w.roms.Get(key); ok {
		return dig.(Digester), nil
	}
	logging.FromContext(ctx).Info("building rom", zap.String("challenge", challengeID))
	w.status.Set(func(s *Status) { s.Current = "building rom" })
	dig, err := w.engine(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("building rom: %w", err)
	}
	w.roms.Add(key, dig)
	return dig, nil
}

// decideDonation flips the donation coin for a fresh attempt. The donation
// is skipped when the slot's dev address was already credited for this
// challenge, so donated work is never wasted on a duplicate.
func (w *Worker) decideDonation(ctx context.Context, att *attempt) {
	if !w.cfg.DonationEnabled || w.cfg.DevAddress == "" {
		return
	}
	if w.rng.Float64() >= w.cfg.DonationRate {
		return
	}
	solved, err := w.ledger.IsDevSolved(att.rec.ChallengeID, w.cfg.DevAddress)
	if err != nil || solved {
		return
	}
	att.forDev = true
	att.address = w.cfg.DevAddress
	w.status.Set(func(s *Status) { s.Address = "developer (thank you!)" })
	logging.FromContext(ctx).Info("mining this pass as a donation",
		zap.String("challenge", att.rec.ChallengeID),
		zap.String("dev_address", shortAddr(w.cfg.DevAddress)),
	)
}

// mine searches nonces in batches until one satisfies the difficulty mask or
// the time bound expires. Returns "" when the bound expires first.
func (w *Worker) mine(ctx context.Context, dig Digester, att *attempt, bound time.Duration) (string, error) {
	difficulty, err := ledger.ParseDifficulty(att.rec.Difficulty)
	if err != nil {
		return "", fmt.Errorf("challenge %s: %w", att.rec.ChallengeID, err)
	}
	static := att.address + att.rec.ChallengeID + att.rec.Difficulty +
		att.rec.NoPreMine + att.rec.LatestSubmission + att.rec.NoPreMineHour

	w.status.Set(func(s *Status) { s.Current = att.rec.ChallengeID; s.Attempts = 0 })

	start := w.clk.Now()
	lastStatus := start
	var attempts int64

	nonces := make([]string, w.batchSize)
	preimages := make([]string, w.batchSize)
	for w.clk.Since(start) < bound {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		for i := range nonces {
			nonces[i] = w.nextNonce()
			preimages[i] = nonces[i] + static
		}
		digests := dig.DigestBatch(preimages)
		attempts += int64(len(digests))

		for i, d := range digests {
			prefix, err := ledger.DigestPrefix(d)
			if err != nil {
				continue
			}
			if difficulty.Accepts(prefix) {
				w.recordRate(attempts, w.clk.Since(start))
				return nonces[i], nil
			}
		}

		if now := w.clk.Now(); now.Sub(lastStatus) >= 5*time.Second {
			w.recordRate(attempts, now.Sub(start))
			lastStatus = now
		}
	}
	w.recordRate(attempts, bound)
	return "", nil
}

// settle submits the pending solution and applies the outcome.
func (w *Worker) settle(ctx context.Context, att *attempt) error {
	logger := logging.FromContext(ctx)
	id := att.rec.ChallengeID

	w.status.Set(func(s *Status) { s.Current = "submitting solution" })
	outcome, err := w.svc.SubmitSolution(ctx, att.address, id, att.nonce)

	switch outcome {
	case client.Accepted:
		solutionsAccepted.Inc()
		logger.Info("solution accepted", zap.String("challenge", id), zap.Bool("donation", att.forDev))
		if _, err := w.ledger.MarkSolved(id, w.cfg.Address); err != nil {
			return err
		}
		if att.forDev {
			if _, err := w.ledger.MarkDevSolved(id, w.cfg.DevAddress); err != nil {
				return err
			}
			w.reportDonation(ctx, att.address)
		}
		w.finish(att, "solution accepted")
		w.sleep(ctx, w.settlePause)
		return nil

	case client.Duplicate:
		if att.forDev {
			return w.settleDevDuplicate(ctx, att)
		}
		logger.Info("solution already exists", zap.String("challenge", id))
		if _, err := w.ledger.MarkSolved(id, w.cfg.Address); err != nil {
			return err
		}
		w.finish(att, "already solved")
		w.sleep(ctx, w.settlePause)
		return nil

	case client.Rejected:
		solutionsRejected.Inc()
		logger.Warn("solution rejected", zap.String("challenge", id), zap.Error(err))
		// A definitive rejection still goes to the outbox: the resubmission
		// pass can retry it against a fixed service.
		if err := w.toOutbox(ctx, att); err != nil {
			return err
		}
		if _, err := w.ledger.MarkSolved(id, w.cfg.Address); err != nil {
			return err
		}
		w.finish(att, "solution rejected")
		w.sleep(ctx, w.settlePause)
		return nil

	default: // Transient
		att.retries++
		if att.retries < submitRetryLimit {
			logger.Info("submission failed, will retry",
				zap.String("challenge", id),
				zap.Int("attempt", att.retries),
				zap.Error(err),
			)
			w.status.Set(func(s *Status) { s.Current = "submission error, retrying" })
			w.sleep(ctx, w.retryPause)
			return nil
		}
		logger.Warn("submission retries exhausted, saving to outbox",
			zap.String("challenge", id), zap.Error(err))
		if err := w.toOutbox(ctx, att); err != nil {
			return err
		}
		if _, err := w.ledger.MarkSolved(id, w.cfg.Address); err != nil {
			return err
		}
		w.finish(att, "saved to outbox")
		w.sleep(ctx, w.settlePause)
		return nil
	}
}

// settleDevDuplicate handles a duplicate while donating: the dev address is
// already credited, so record that, retire the challenge for this wallet and
// wait for a different active challenge before resuming.
func (w *Worker) settleDevDuplicate(ctx context.Context, att *attempt) error {
	logger := logging.FromContext(ctx)
	id := att.rec.ChallengeID

	logger.Info("dev address already credited, waiting for next challenge",
		zap.String("challenge", id))
	if _, err := w.ledger.MarkDevSolved(id, w.cfg.DevAddress); err != nil {
		return err
	}
	if _, err := w.ledger.MarkSolved(id, w.cfg.Address); err != nil {
		return err
	}
	w.finish(att, "waiting for next challenge")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clk.After(w.pollPause):
		}
		ch, err := w.svc.CurrentChallenge(ctx)
		if err != nil || ch == nil || ch.ChallengeID == id {
			continue
		}
		logger.Info("new challenge detected, resuming", zap.String("challenge", ch.ChallengeID))
		if _, err := w.ledger.Register(*ch); err != nil {
			return err
		}
		return nil
	}
}

func (w *Worker) toOutbox(ctx context.Context, att *attempt) error {
	err := w.box.Append(outbox.Entry{
		Address:     att.address,
		ChallengeID: att.rec.ChallengeID,
		Nonce:       att.nonce,
	})
	if err != nil {
		return fmt.Errorf("saving solution to outbox: %w", err)
	}
	outboxAppends.Inc()
	return nil
}

func (w *Worker) reportDonation(ctx context.Context, devAddress string) {
	if w.donations == nil {
		return
	}
	donationsReported.Inc()
	if err := w.donations.ReportDonation(ctx, devAddress); err != nil {
		logging.FromContext(ctx).Warn("donation report failed", zap.Error(err))
	}
}

// finish clears the pending attempt and restores the status line.
func (w *Worker) finish(att *attempt, status string) {
	w.pending = nil
	w.status.Set(func(s *Status) {
		s.Current = status
		s.Address = w.cfg.Address
	})
}

func (w *Worker) nextNonce() string {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], w.rng.Uint64())
	return hex.EncodeToString(buf[:])
}

func (w *Worker) recordRate(attempts int64, elapsed time.Duration) {
	rate := float64(0)
	if elapsed > 0 {
		rate = float64(attempts) / elapsed.Seconds()
	}
	w.status.Set(func(s *Status) { s.Attempts = attempts; s.HashRate = rate })
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-w.clk.After(d):
	}
}

func shortAddr(addr string) string {
	if len(addr) <= 20 {
		return addr
	}
	return addr[:20] + "..."
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
