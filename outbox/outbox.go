// Package outbox is the dead-letter store for solutions that could not be
// submitted. Workers append entries after submission retries are exhausted;
// a separate resubmission pass drains the file once the service recovers.
package outbox

import (
	"fmt"
	"strings"

	"github.com/whonion/scavenger-miner/lockedfs"
)

// Entry is one stranded solution.
type Entry struct {
	Address     string
	ChallengeID string
	Nonce       string
}

func (e Entry) String() string {
	return fmt.Sprintf("%s,%s,%s", e.Address, e.ChallengeID, e.Nonce)
}

// Outbox is a CSV file of stranded solutions, one entry per line, shared
// between worker processes under an exclusive file lock.
type Outbox struct {
	path string
}

func Open(path string) *Outbox {
	return &Outbox{path: path}
}

func (o *Outbox) Path() string { return o.path }

// Append adds one entry to the end of the file.
func (o *Outbox) Append(e Entry) error {
	if strings.ContainsAny(e.Address+e.ChallengeID+e.Nonce, ",\n") {
		return fmt.Errorf("entry contains a delimiter: %q", e)
	}
	return lockedfs.Append(o.path, []byte(e.String()+"\n"))
}

// Entries reads every well-formed entry. Malformed lines are returned
// separately so a rewrite can preserve them instead of silently dropping.
func (o *Outbox) Entries() (entries []Entry, malformed []string, err error) {
	err = lockedfs.Read(o.path, func(data []byte) error {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			parts := strings.Split(line, ",")
			if len(parts) != 3 {
				malformed = append(malformed, line)
				continue
			}
			entries = append(entries, Entry{Address: parts[0], ChallengeID: parts[1], Nonce: parts[2]})
		}
		return nil
	})
	return entries, malformed, err
}

// Rewrite replaces the file contents with the given entries plus any raw
// lines that should survive verbatim.
func (o *Outbox) Rewrite(entries []Entry, raw []string) error {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	for _, line := range raw {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	out := []byte(sb.String())
	if out == nil {
		// A nil result would leave the file untouched; an empty rewrite
		// must truncate it.
		out = []byte{}
	}
	return lockedfs.Update(o.path, func([]byte) ([]byte, error) {
		return out, nil
	})
}
