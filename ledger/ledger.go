// Package ledger implements the shared challenge ledger: the single source of
// truth for challenge metadata and per-wallet completion state. The backing
// JSON file is shared by every worker process on the machine, so every
// operation runs a full load-mutate-store cycle inside an exclusive file lock.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/whonion/scavenger-miner/lockedfs"
)

// DefaultMinLead is the minimum time that must remain before a challenge
// deadline for the scheduler to still hand it out. Mining a challenge that
// expires in under two minutes is wasted work.
const DefaultMinLead = 120 * time.Second

// Challenge is the immutable challenge metadata as announced by the service.
type Challenge struct {
	ChallengeID      string `json:"challenge_id"`
	Day              int    `json:"day"`
	ChallengeNumber  int    `json:"challenge_number"`
	Difficulty       string `json:"difficulty"`
	NoPreMine        string `json:"no_pre_mine"`
	NoPreMineHour    string `json:"no_pre_mine_hour"`
	LatestSubmission string `json:"latest_submission"`
}

// Deadline parses the challenge's absolute submission deadline.
func (c *Challenge) Deadline() (time.Time, error) {
	return time.Parse(time.RFC3339, c.LatestSubmission)
}

// Record wraps a Challenge with the mutable completion state owned by the
// ledger.
type Record struct {
	Challenge
	DiscoveredAt string   `json:"discovered_at"`
	SolvedBy     []string `json:"solved_by"`
	DevSolvedBy  []string `json:"dev_solved_by"`
}

// Ledger is a handle on the shared challenge file. It holds no in-memory
// state; all state lives in the file so that concurrent processes observe a
// single linearized history.
type Ledger struct {
	path    string
	clock   clock.Clock
	minLead time.Duration
}

type Opt func(*Ledger)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Opt {
	return func(l *Ledger) { l.clock = c }
}

// WithMinLead overrides the scheduler's minimum remaining time.
func WithMinLead(d time.Duration) Opt {
	return func(l *Ledger) { l.minLead = d }
}

func Open(path string, opts ...Opt) *Ledger {
	l := &Ledger{
		path:    path,
		clock:   clock.New(),
		minLead: DefaultMinLead,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register inserts a new record for the challenge if its id is unseen and
// reports whether it was newly inserted. Existing records are never
// overwritten: re-announced metadata must not clobber accumulated completion
// state.
func (l *Ledger) Register(ch Challenge) (bool, error) {
	return l.update(func(recs map[string]*Record) bool {
		if _, ok := recs[ch.ChallengeID]; ok {
			return false
		}
		recs[ch.ChallengeID] = &Record{
			Challenge:    ch,
			DiscoveredAt: l.clock.Now().UTC().Format(time.RFC3339),
			SolvedBy:     []string{},
			DevSolvedBy:  []string{},
		}
		return true
	})
}

// MarkSolved adds the wallet address to the challenge's solved set. It
// reports false without error when the challenge is unknown or the wallet is
// already present.
func (l *Ledger) MarkSolved(challengeID, address string) (bool, error) {
	return l.update(func(recs map[string]*Record) bool {
		rec, ok := recs[challengeID]
		if !ok || contains(rec.SolvedBy, address) {
			return false
		}
		rec.SolvedBy = append(rec.SolvedBy, address)
		return true
	})
}

// MarkDevSolved records that the donation target address has been credited
// for the challenge.
func (l *Ledger) MarkDevSolved(challengeID, devAddress string) (bool, error) {
	return l.update(func(recs map[string]*Record) bool {
		rec, ok := recs[challengeID]
		if !ok || contains(rec.DevSolvedBy, devAddress) {
			return false
		}
		rec.DevSolvedBy = append(rec.DevSolvedBy, devAddress)
		return true
	})
}

func (l *Ledger) IsDevSolved(challengeID, devAddress string) (bool, error) {
	var solved bool
	err := l.read(func(recs map[string]*Record) {
		if rec, ok := recs[challengeID]; ok {
			solved = contains(rec.DevSolvedBy, devAddress)
		}
	})
	return solved, err
}

// Select picks the challenge the wallet should mine next, or nil when no
// candidate remains. Candidates must be unsolved by this wallet, have more
// than minLead remaining until their deadline, and carry a parseable
// difficulty. Among candidates the numerically lowest difficulty value wins;
// ties go to the earliest deadline. Records with malformed deadlines or
// difficulties are skipped, never fatal.
func (l *Ledger) Select(address string) (*Record, error) {
	var best *Record
	err := l.read(func(recs map[string]*Record) {
		now := l.clock.Now()

		var bestDiff Difficulty
		var bestDeadline time.Time
		for _, rec := range recs {
			if contains(rec.SolvedBy, address) {
				continue
			}
			deadline, err := rec.Deadline()
			if err != nil || deadline.Sub(now) <= l.minLead {
				continue
			}
			diff, err := ParseDifficulty(rec.Difficulty)
			if err != nil {
				continue
			}
			if best == nil || diff < bestDiff ||
				(diff == bestDiff && deadline.Before(bestDeadline)) {
				cp := *rec
				best = &cp
				bestDiff = diff
				bestDeadline = deadline
			}
		}
	})
	return best, err
}

// HasWork reports whether Select would return a challenge for the address.
func (l *Ledger) HasWork(address string) (bool, error) {
	rec, err := l.Select(address)
	return rec != nil, err
}

// CountCompletions sums, over all records, how many of the given addresses
// appear in the solved set.
func (l *Ledger) CountCompletions(addresses []string) (int, error) {
	set := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		set[addr] = struct{}{}
	}

	var total int
	err := l.read(func(recs map[string]*Record) {
		for _, rec := range recs {
			for _, addr := range rec.SolvedBy {
				if _, ok := set[addr]; ok {
					total++
				}
			}
		}
	})
	return total, err
}

func (l *Ledger) update(fn func(recs map[string]*Record) bool) (bool, error) {
	var changed bool
	err := lockedfs.Update(l.path, func(data []byte) ([]byte, error) {
		recs, err := decode(data)
		if err != nil {
			return nil, err
		}
		changed = fn(recs)
		return json.MarshalIndent(recs, "", "  ")
	})
	return changed, err
}

func (l *Ledger) read(fn func(recs map[string]*Record)) error {
	return lockedfs.Read(l.path, func(data []byte) error {
		recs, err := decode(data)
		if err != nil {
			return err
		}
		fn(recs)
		return nil
	})
}

func decode(data []byte) (map[string]*Record, error) {
	recs := make(map[string]*Record)
	if len(data) == 0 {
		return recs, nil
	}
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decoding challenge ledger: %w", err)
	}
	return recs, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
