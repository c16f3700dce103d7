package wallet_test

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whonion/scavenger-miner/retry"
	"github.com/whonion/scavenger-miner/signing"
	"github.com/whonion/scavenger-miner/wallet"
)

// fakeSigner produces predictable identities without real key generation.
type fakeSigner struct {
	n int
}

func (f *fakeSigner) GenerateIdentity() (signing.Identity, error) {
	f.n++
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return signing.Identity{}, err
	}
	return signing.Identity{
		Address:    fmt.Sprintf("addr1fake%d-%s", f.n, hex.EncodeToString(seed[:])),
		Pubkey:     "pub" + fmt.Sprint(f.n),
		SigningKey: "key" + fmt.Sprint(f.n),
	}, nil
}

func (f *fakeSigner) SignTerms(id signing.Identity, message string) (string, error) {
	return "signed:" + id.Address, nil
}

// fakeRegistrar scripts registration outcomes.
type fakeRegistrar struct {
	failures  int
	alwaysErr bool
	calls     int
}

func (f *fakeRegistrar) Register(context.Context, string, string, string) error {
	f.calls++
	if f.alwaysErr || f.calls <= f.failures {
		return errors.New("registration refused")
	}
	return nil
}

func (f *fakeRegistrar) TermsMessage(context.Context) string { return "terms" }

func fastPolicies() wallet.AllocatorOpt {
	return wallet.WithRetryPolicies(
		retry.Bounded(3, time.Millisecond),
		retry.Unbounded(time.Millisecond),
	)
}

func TestLoadOrCreateBootstrapsWallets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	store, err := wallet.OpenStore(path)
	require.NoError(t, err)

	alloc := wallet.NewAllocator(store, &fakeSigner{}, &fakeRegistrar{}, fastPolicies())
	require.NoError(t, alloc.LoadOrCreate(context.Background(), 3))
	require.Equal(t, 3, store.Len())

	// Restarting with an existing store creates nothing new.
	store2, err := wallet.OpenStore(path)
	require.NoError(t, err)
	require.Equal(t, 3, store2.Len())

	alloc2 := wallet.NewAllocator(store2, &fakeSigner{}, &fakeRegistrar{}, fastPolicies())
	require.NoError(t, alloc2.LoadOrCreate(context.Background(), 3))
	require.Equal(t, 3, store2.Len())

	for _, w := range store2.All() {
		require.NotEmpty(t, w.Address)
		require.Equal(t, "signed:"+w.Address, w.Signature)
		require.NotEmpty(t, w.CreatedAt)
	}
}

func TestLoadOrCreatePersistsNothingOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	store, err := wallet.OpenStore(path)
	require.NoError(t, err)

	// First wallet registers fine, the second exhausts its retries.
	registrar := &scriptedRegistrar{results: []error{nil, errors.New("down"), errors.New("down"), errors.New("down")}}

	alloc := wallet.NewAllocator(store, &fakeSigner{}, registrar, fastPolicies())
	err = alloc.LoadOrCreate(context.Background(), 2)
	require.ErrorIs(t, err, retry.ErrAttemptsExhausted)

	require.Equal(t, 0, store.Len())
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "no wallet file should have been written")
}

type scriptedRegistrar struct {
	results []error
	calls   int
}

func (s *scriptedRegistrar) Register(context.Context, string, string, string) error {
	var err error
	if s.calls < len(s.results) {
		err = s.results[s.calls]
	}
	s.calls++
	return err
}

func (s *scriptedRegistrar) TermsMessage(context.Context) string { return "terms" }

func TestCreateOnePersistsImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	store, err := wallet.OpenStore(path)
	require.NoError(t, err)

	// Two refusals, then success: the unbounded policy must ride them out.
	alloc := wallet.NewAllocator(store, &fakeSigner{}, &fakeRegistrar{failures: 2}, fastPolicies())
	w, err := alloc.CreateOne(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	reloaded, err := wallet.OpenStore(path)
	require.NoError(t, err)
	got, ok := reloaded.ByAddress(w.Address)
	require.True(t, ok)
	require.Equal(t, w.Signature, got.Signature)
}

func TestAssignFree(t *testing.T) {
	store, err := wallet.OpenStore(filepath.Join(t.TempDir(), "wallets.json"))
	require.NoError(t, err)
	alloc := wallet.NewAllocator(store, &fakeSigner{}, &fakeRegistrar{}, fastPolicies())
	require.NoError(t, alloc.LoadOrCreate(context.Background(), 3))

	wallets := store.All()
	work := map[string]bool{
		wallets[0].Address: true,
		wallets[1].Address: true,
		wallets[2].Address: false,
	}
	hasWork := func(addr string) (bool, error) { return work[addr], nil }

	// First wallet is busy, second has work, third is exhausted.
	w, ok, err := alloc.AssignFree(map[string]bool{wallets[0].Address: true}, hasWork)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, wallets[1].Address, w.Address)

	// Everything busy or exhausted.
	_, ok, err = alloc.AssignFree(map[string]bool{
		wallets[0].Address: true,
		wallets[1].Address: true,
	}, hasWork)
	require.NoError(t, err)
	require.False(t, ok)
}
