package worker

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusWriterRoundTrip(t *testing.T) {
	path := StatusFilePath(t.TempDir(), 3)

	sw := NewStatusWriter(path, "addr1worker")
	sw.Set(func(s *Status) {
		s.Current = "c1"
		s.Attempts = 42
		s.HashRate = 1000.5
	})

	got, err := ReadStatus(path)
	require.NoError(t, err)
	require.Equal(t, "addr1worker", got.Address)
	require.Equal(t, "c1", got.Current)
	require.Equal(t, int64(42), got.Attempts)
	require.NotEmpty(t, got.UpdatedAt)
}

func TestStatusWriterDisabledWithoutPath(t *testing.T) {
	sw := NewStatusWriter("", "addr1worker")
	sw.Set(func(s *Status) { s.Current = "c1" })
}

func TestReadStatusMissingFile(t *testing.T) {
	_, err := ReadStatus(StatusFilePath(t.TempDir(), 0))
	require.True(t, os.IsNotExist(err))
}
