package lockedfs_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/whonion/scavenger-miner/lockedfs"
)

func TestUpdateCreatesAndRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")

	err := lockedfs.Update(path, func(data []byte) ([]byte, error) {
		require.Empty(t, data)
		return []byte("one"), nil
	})
	require.NoError(t, err)

	err = lockedfs.Update(path, func(data []byte) ([]byte, error) {
		require.Equal(t, "one", string(data))
		return []byte("2"), nil
	})
	require.NoError(t, err)

	// The shorter write must truncate the previous content.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "2", string(data))
}

func TestUpdateNilLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))

	err := lockedfs.Update(path, func([]byte) ([]byte, error) {
		return nil, nil
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "keep", string(data))
}

func TestUpdateMutateErrorAborts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))

	boom := fmt.Errorf("boom")
	err := lockedfs.Update(path, func([]byte) ([]byte, error) {
		return []byte("clobbered"), boom
	})
	require.ErrorIs(t, err, boom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "keep", string(data))
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")
	require.NoError(t, os.WriteFile(path, []byte("0"), 0o644))

	const writers = 20
	var eg errgroup.Group
	for i := 0; i < writers; i++ {
		eg.Go(func() error {
			return lockedfs.Update(path, func(data []byte) ([]byte, error) {
				n, err := strconv.Atoi(string(data))
				if err != nil {
					return nil, err
				}
				return []byte(strconv.Itoa(n + 1)), nil
			})
		})
	}
	require.NoError(t, eg.Wait())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(writers), string(data))
}

func TestAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")

	const writers = 10
	var eg errgroup.Group
	for i := 0; i < writers; i++ {
		line := fmt.Sprintf("record-%d\n", i)
		eg.Go(func() error {
			return lockedfs.Append(path, []byte(line))
		})
	}
	require.NoError(t, eg.Wait())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, writers)
	for _, line := range lines {
		require.Regexp(t, `^record-\d+$`, line)
	}
}
