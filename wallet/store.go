// Package wallet persists mining wallet identities and allocates them to
// worker slots. The wallet file is the only copy of the signing keys, so
// every write replaces the whole file atomically.
package wallet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/natefinch/atomic"
)

// Wallet is one persisted mining identity. Key material is hex encoded;
// Signature is the terms-of-participation proof presented at registration.
type Wallet struct {
	Address    string `json:"address"`
	Pubkey     string `json:"pubkey"`
	SigningKey string `json:"signing_key"`
	Signature  string `json:"signature"`
	CreatedAt  string `json:"created_at"`
}

// Store holds the wallet set backed by a single JSON file. Reads are served
// from memory; every mutation rewrites the file via rename so a crash cannot
// leave a truncated key file behind.
type Store struct {
	path string

	mu      sync.Mutex
	wallets []Wallet
}

func OpenStore(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.wallets); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.wallets)
}

// All returns a copy of the wallet set in creation order.
func (s *Store) All() []Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Wallet, len(s.wallets))
	copy(out, s.wallets)
	return out
}

func (s *Store) ByAddress(address string) (Wallet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.Address == address {
			return w, true
		}
	}
	return Wallet{}, false
}

// Append adds wallets to the set and persists the whole file.
func (s *Store) Append(wallets ...Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = append(s.wallets, wallets...)
	return s.save()
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.wallets, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(data))
}
