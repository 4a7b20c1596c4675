package sink

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path) // nolint:gosec
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCreateCSV_WritesHeaderImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "hr_S1_20240101_120000.csv")

	s, err := CreateCSV(path, []string{"timestamp", "heart_rate"})
	require.NoError(t, err)
	defer s.Close()

	// Header is on disk before any row or Close.
	assert.Equal(t, [][]string{{"timestamp", "heart_rate"}}, readCSV(t, path))
	assert.Equal(t, path, s.Path())
}

func TestCreateCSV_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gsr.csv")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0600))

	_, err := CreateCSV(path, []string{"timestamp"})

	var perr *PersistError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "create", perr.Op)
	assert.True(t, errors.Is(err, os.ErrExist))
}

func TestCSV_PreservesAppendOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.csv")
	s, err := CreateCSV(path, []string{"n"})
	require.NoError(t, err)

	for i := 1; i <= 100; i++ {
		require.NoError(t, s.Append([]string{strconv.Itoa(i)}))
	}
	require.NoError(t, s.Close())

	records := readCSV(t, path)
	require.Len(t, records, 101)
	for i := 1; i <= 100; i++ {
		assert.Equal(t, strconv.Itoa(i), records[i][0])
	}
	assert.Equal(t, int64(100), s.Rows())
}

func TestCSV_CloseIsIdempotentAndFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "close.csv")
	s, err := CreateCSV(path, []string{"a", "b"})
	require.NoError(t, err)

	require.NoError(t, s.Append([]string{"1", "2"}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, readCSV(t, path))
}

func TestCSV_WriteAfterClose(t *testing.T) {
	s, err := CreateCSV(filepath.Join(t.TempDir(), "x.csv"), []string{"a"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Write([]string{"1"})

	var perr *PersistError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Flush(), ErrClosed)
}
