package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whonion/scavenger-miner/ledger"
)

func TestParseDifficultyUsesLeading32Bits(t *testing.T) {
	d, err := ledger.ParseDifficulty("00ffffff")
	require.NoError(t, err)
	require.Equal(t, ledger.Difficulty(0x00ffffff), d)

	// Only the first eight hex characters are significant.
	long, err := ledger.ParseDifficulty("00ffffffdeadbeef")
	require.NoError(t, err)
	require.Equal(t, d, long)

	_, err = ledger.ParseDifficulty("zzzz")
	require.Error(t, err)

	_, err = ledger.ParseDifficulty("")
	require.Error(t, err)
}

func TestDifficultyAccepts(t *testing.T) {
	d, err := ledger.ParseDifficulty("00ffffff")
	require.NoError(t, err)

	// Any digest whose bits are a subset of the difficulty mask passes.
	require.True(t, d.Accepts(0x00000000))
	require.True(t, d.Accepts(0x00ffffff))
	require.True(t, d.Accepts(0x00abcdef))

	// A set bit outside the mask fails.
	require.False(t, d.Accepts(0x01000000))
	require.False(t, d.Accepts(0xff000000))

	all, err := ledger.ParseDifficulty("ffffffff")
	require.NoError(t, err)
	require.True(t, all.Accepts(0xdeadbeef))
}

func TestDigestPrefix(t *testing.T) {
	p, err := ledger.DigestPrefix("00abcdef0123456789")
	require.NoError(t, err)
	require.Equal(t, uint32(0x00abcdef), p)

	_, err = ledger.DigestPrefix("short")
	require.Error(t, err)
}
