package outbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/whonion/scavenger-miner/client"
	"github.com/whonion/scavenger-miner/logging"
)

// Submitter is the slice of the remote service a resubmission pass needs.
type Submitter interface {
	SubmitSolution(ctx context.Context, address, challengeID, nonce string) (client.Outcome, error)
	Register(ctx context.Context, address, signature, pubkey string) error
}

// Credentials resolves registration material for an address from the wallet
// store. ok is false when the address is unknown.
type Credentials func(address string) (signature, pubkey string, ok bool)

// Summary tallies the outcome of one resubmission pass.
type Summary struct {
	Accepted     int
	Duplicate    int
	Rejected     int
	Errors       int
	WindowClosed int
	Registered   int
}

// Resubmit drains the outbox: every entry is submitted once, entries that
// succeed (or already exist, or whose window has closed) are dropped and the
// rest are written back. An address the service no longer recognizes is
// re-registered from the wallet store and its entry retried once. The file is
// backed up before the pass so a bad run loses nothing.
func (o *Outbox) Resubmit(ctx context.Context, svc Submitter, creds Credentials) (Summary, error) {
	logger := logging.FromContext(ctx)
	var sum Summary

	entries, malformed, err := o.Entries()
	if err != nil {
		return sum, err
	}
	if len(entries) == 0 && len(malformed) == 0 {
		return sum, nil
	}
	if err := o.backup(); err != nil {
		return sum, err
	}

	var kept []Entry
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			kept = append(kept, e)
			continue
		}

		outcome, err := svc.SubmitSolution(ctx, e.Address, e.ChallengeID, e.Nonce)
		if outcome == client.Rejected && errors.Is(err, client.ErrNotRegistered) {
			if regErr := o.register(ctx, svc, creds, e.Address); regErr != nil {
				logger.Warn("re-registration failed", zap.String("address", e.Address), zap.Error(regErr))
				sum.Errors++
				kept = append(kept, e)
				continue
			}
			sum.Registered++
			outcome, err = svc.SubmitSolution(ctx, e.Address, e.ChallengeID, e.Nonce)
		}

		switch {
		case outcome == client.Accepted:
			sum.Accepted++
		case outcome == client.Duplicate:
			sum.Duplicate++
		case windowClosed(err):
			sum.WindowClosed++
		case outcome == client.Rejected:
			logger.Warn("solution rejected", zap.String("challenge", e.ChallengeID), zap.Error(err))
			sum.Rejected++
			kept = append(kept, e)
		default:
			logger.Warn("submission failed", zap.String("challenge", e.ChallengeID), zap.Error(err))
			sum.Errors++
			kept = append(kept, e)
		}
	}

	if err := o.Rewrite(kept, malformed); err != nil {
		return sum, err
	}
	logger.Info("resubmission pass finished",
		zap.Int("accepted", sum.Accepted),
		zap.Int("duplicate", sum.Duplicate),
		zap.Int("rejected", sum.Rejected),
		zap.Int("errors", sum.Errors),
		zap.Int("window_closed", sum.WindowClosed),
		zap.Int("kept", len(kept)),
	)
	return sum, nil
}

func (o *Outbox) register(ctx context.Context, svc Submitter, creds Credentials, address string) error {
	if creds == nil {
		return fmt.Errorf("no wallet store available")
	}
	signature, pubkey, ok := creds(address)
	if !ok {
		return fmt.Errorf("no wallet data for %s", address)
	}
	return svc.Register(ctx, address, signature, pubkey)
}

// A closed submission window is definitive and cannot succeed later.
func windowClosed(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "window") && strings.Contains(msg, "closed")
}

func (o *Outbox) backup() error {
	src, err := os.Open(o.path)
	if err != nil {
		return fmt.Errorf("opening outbox: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("%s.%s.bak", o.path, time.Now().UTC().Format("20060102-150405"))
	dst, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}
	return dst.Sync()
}
