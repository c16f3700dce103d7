package ledger_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/whonion/scavenger-miner/ledger"
)

func testLedger(t *testing.T) (*ledger.Ledger, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "challenges.json")
	return ledger.Open(path, ledger.WithClock(clk)), clk
}

func challenge(id, difficulty string, deadline time.Time) ledger.Challenge {
	return ledger.Challenge{
		ChallengeID:      id,
		Day:              1,
		ChallengeNumber:  1,
		Difficulty:       difficulty,
		NoPreMine:        "nopremine-" + id,
		NoPreMineHour:    "nopremine-hour-" + id,
		LatestSubmission: deadline.UTC().Format(time.RFC3339),
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	l, clk := testLedger(t)
	ch := challenge("c1", "00ffffff", clk.Now().Add(time.Hour))

	fresh, err := l.Register(ch)
	require.NoError(t, err)
	require.True(t, fresh)

	// Re-announcing must not reset completion state.
	marked, err := l.MarkSolved("c1", "addr-a")
	require.NoError(t, err)
	require.True(t, marked)

	fresh, err = l.Register(ch)
	require.NoError(t, err)
	require.False(t, fresh)

	rec, err := l.Select("addr-a")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestMarkSolvedIsIdempotent(t *testing.T) {
	l, clk := testLedger(t)
	_, err := l.Register(challenge("c1", "00ffffff", clk.Now().Add(time.Hour)))
	require.NoError(t, err)

	marked, err := l.MarkSolved("c1", "addr-a")
	require.NoError(t, err)
	require.True(t, marked)

	marked, err = l.MarkSolved("c1", "addr-a")
	require.NoError(t, err)
	require.False(t, marked)

	// Unknown challenge is not an error.
	marked, err = l.MarkSolved("nope", "addr-a")
	require.NoError(t, err)
	require.False(t, marked)

	n, err := l.CountCompletions([]string{"addr-a"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSelectPicksLowestDifficulty(t *testing.T) {
	l, clk := testLedger(t)
	deadline := clk.Now().Add(2 * time.Hour)

	for id, diff := range map[string]string{
		"lowest":  "000000ff",
		"highest": "00ffffff",
		"middle":  "0000ffff",
	} {
		_, err := l.Register(challenge(id, diff, deadline))
		require.NoError(t, err)
	}

	rec, err := l.Select("addr-a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "lowest", rec.ChallengeID)

	// Solving it moves the wallet on to the next lowest value.
	_, err = l.MarkSolved("lowest", "addr-a")
	require.NoError(t, err)

	rec, err = l.Select("addr-a")
	require.NoError(t, err)
	require.Equal(t, "middle", rec.ChallengeID)
}

func TestSelectBreaksTiesByEarliestDeadline(t *testing.T) {
	l, clk := testLedger(t)

	_, err := l.Register(challenge("later", "00ffffff", clk.Now().Add(3*time.Hour)))
	require.NoError(t, err)
	_, err = l.Register(challenge("sooner", "00ffffff", clk.Now().Add(1*time.Hour)))
	require.NoError(t, err)

	rec, err := l.Select("addr-a")
	require.NoError(t, err)
	require.Equal(t, "sooner", rec.ChallengeID)
}

func TestSelectSkipsNearDeadline(t *testing.T) {
	l, clk := testLedger(t)

	// 90s of lead is under the 120s minimum.
	_, err := l.Register(challenge("closing", "00ffffff", clk.Now().Add(90*time.Second)))
	require.NoError(t, err)
	_, err = l.Register(challenge("open", "ffffffff", clk.Now().Add(time.Hour)))
	require.NoError(t, err)

	rec, err := l.Select("addr-a")
	require.NoError(t, err)
	require.Equal(t, "open", rec.ChallengeID)

	clk.Add(time.Hour)
	rec, err = l.Select("addr-a")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestSelectSkipsMalformedRecords(t *testing.T) {
	l, clk := testLedger(t)

	badDeadline := challenge("bad-deadline", "00ffffff", clk.Now())
	badDeadline.LatestSubmission = "not-a-timestamp"
	_, err := l.Register(badDeadline)
	require.NoError(t, err)

	badDifficulty := challenge("bad-difficulty", "zzzz", clk.Now().Add(time.Hour))
	_, err = l.Register(badDifficulty)
	require.NoError(t, err)

	_, err = l.Register(challenge("good", "0fffffff", clk.Now().Add(time.Hour)))
	require.NoError(t, err)

	rec, err := l.Select("addr-a")
	require.NoError(t, err)
	require.Equal(t, "good", rec.ChallengeID)
}

func TestConcurrentMarksAreNotLost(t *testing.T) {
	l, clk := testLedger(t)
	_, err := l.Register(challenge("c1", "00ffffff", clk.Now().Add(time.Hour)))
	require.NoError(t, err)

	addrs := make([]string, 16)
	var eg errgroup.Group
	for i := range addrs {
		addrs[i] = string(rune('a'+i)) + "-addr"
		addr := addrs[i]
		eg.Go(func() error {
			_, err := l.MarkSolved("c1", addr)
			return err
		})
	}
	require.NoError(t, eg.Wait())

	n, err := l.CountCompletions(addrs)
	require.NoError(t, err)
	require.Equal(t, len(addrs), n)
}

func TestDevSolvedTracking(t *testing.T) {
	l, clk := testLedger(t)
	_, err := l.Register(challenge("c1", "00ffffff", clk.Now().Add(time.Hour)))
	require.NoError(t, err)

	solved, err := l.IsDevSolved("c1", "dev-a")
	require.NoError(t, err)
	require.False(t, solved)

	marked, err := l.MarkDevSolved("c1", "dev-a")
	require.NoError(t, err)
	require.True(t, marked)

	solved, err = l.IsDevSolved("c1", "dev-a")
	require.NoError(t, err)
	require.True(t, solved)

	// A different dev address is unaffected.
	solved, err = l.IsDevSolved("c1", "dev-b")
	require.NoError(t, err)
	require.False(t, solved)
}

func TestHasWork(t *testing.T) {
	l, clk := testLedger(t)

	ok, err := l.HasWork("addr-a")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = l.Register(challenge("c1", "00ffffff", clk.Now().Add(time.Hour)))
	require.NoError(t, err)

	ok, err = l.HasWork("addr-a")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = l.MarkSolved("c1", "addr-a")
	require.NoError(t, err)

	ok, err = l.HasWork("addr-a")
	require.NoError(t, err)
	require.False(t, ok)
}
