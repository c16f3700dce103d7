package wallet

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/whonion/scavenger-miner/logging"
	"github.com/whonion/scavenger-miner/retry"
	"github.com/whonion/scavenger-miner/signing"
)

// Signer produces wallet identities and terms signatures.
type Signer interface {
	GenerateIdentity() (signing.Identity, error)
	SignTerms(id signing.Identity, message string) (string, error)
}

// Registrar is the slice of the remote service the allocator needs.
type Registrar interface {
	Register(ctx context.Context, address, signature, pubkey string) error
	TermsMessage(ctx context.Context) string
}

// Allocator creates, registers and assigns wallets. Bootstrap creation is
// fail-fast so a misconfigured service is caught before any key material is
// persisted; steady-state creation retries until the service comes back.
type Allocator struct {
	store     *Store
	signer    Signer
	registrar Registrar

	bootstrap retry.Policy
	steady    retry.Policy
}

type AllocatorOpt func(*Allocator)

// WithRetryPolicies overrides the registration retry policies, for tests.
func WithRetryPolicies(bootstrap, steady retry.Policy) AllocatorOpt {
	return func(a *Allocator) {
		a.bootstrap = bootstrap
		a.steady = steady
	}
}

func NewAllocator(store *Store, signer Signer, registrar Registrar, opts ...AllocatorOpt) *Allocator {
	a := &Allocator{
		store:     store,
		signer:    signer,
		registrar: registrar,
		bootstrap: retry.Bounded(3, time.Minute),
		steady:    retry.Unbounded(time.Minute),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LoadOrCreate tops the wallet set up to target wallets. New wallets are
// registered with the bootstrap policy, and nothing is persisted unless every
// registration succeeds: a partially-built set would leave orphaned keys that
// the next start could not tell from registered ones.
func (a *Allocator) LoadOrCreate(ctx context.Context, target int) error {
	logger := logging.FromContext(ctx)

	have := a.store.Len()
	if have >= target {
		return nil
	}
	logger.Info("creating wallets", zap.Int("have", have), zap.Int("target", target))

	terms := a.registrar.TermsMessage(ctx)
	fresh := make([]Wallet, 0, target-have)
	for i := have; i < target; i++ {
		w, err := a.newWallet(terms)
		if err != nil {
			return err
		}
		if err := a.register(ctx, a.bootstrap, w); err != nil {
			return fmt.Errorf("bootstrap registration of %s: %w", w.Address, err)
		}
		fresh = append(fresh, w)
	}
	return a.store.Append(fresh...)
}

// CreateOne creates and registers a single additional wallet, retrying
// registration indefinitely. Used mid-run when every existing wallet has
// completed all open challenges.
func (a *Allocator) CreateOne(ctx context.Context) (Wallet, error) {
	w, err := a.newWallet(a.registrar.TermsMessage(ctx))
	if err != nil {
		return Wallet{}, err
	}
	if err := a.register(ctx, a.steady, w); err != nil {
		return Wallet{}, err
	}
	if err := a.store.Append(w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// AssignFree returns a wallet that is not in use and still has work,
// preferring earlier-created wallets. ok is false when every idle wallet is
// exhausted.
func (a *Allocator) AssignFree(inUse map[string]bool, hasWork func(address string) (bool, error)) (Wallet, bool, error) {
	for _, w := range a.store.All() {
		if inUse[w.Address] {
			continue
		}
		work, err := hasWork(w.Address)
		if err != nil {
			return Wallet{}, false, err
		}
		if work {
			return w, true, nil
		}
	}
	return Wallet{}, false, nil
}

func (a *Allocator) newWallet(terms string) (Wallet, error) {
	id, err := a.signer.GenerateIdentity()
	if err != nil {
		return Wallet{}, fmt.Errorf("generating identity: %w", err)
	}
	sig, err := a.signer.SignTerms(id, terms)
	if err != nil {
		return Wallet{}, fmt.Errorf("signing terms: %w", err)
	}
	return Wallet{
		Address:    id.Address,
		Pubkey:     id.Pubkey,
		SigningKey: id.SigningKey,
		Signature:  sig,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (a *Allocator) register(ctx context.Context, policy retry.Policy, w Wallet) error {
	return policy.Do(ctx, "wallet registration", func(ctx context.Context) error {
		return a.registrar.Register(ctx, w.Address, w.Signature, w.Pubkey)
	})
}
