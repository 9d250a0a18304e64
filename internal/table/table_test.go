package table

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoclim/internal/models"
)

const chunkCSV = `time,station,tl
2020-06-01T00:00+00:00,105,12.1
2020-06-01T00:00+00:00,11035,14.0
2020-06-01T01:00+00:00,105,11.8
2020-06-01T01:00+00:00,11035,
`

func TestRead(t *testing.T) {
	tbl, err := Read(strings.NewReader(chunkCSV), "chunk")
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "station", "tl"}, tbl.Header)
	assert.Equal(t, 4, tbl.Len())

	tl, err := tbl.Column("tl")
	require.NoError(t, err)
	assert.Equal(t, []string{"12.1", "14.0", "11.8", ""}, tl)

	_, err = tbl.Column("rf")
	var pe *models.ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestRead_HeaderOnlyIsEmptyNotError(t *testing.T) {
	tbl, err := Read(strings.NewReader("time,station,tl\n"), "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty body", ""},
		{"ragged row", "a,b\n1,2\n3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input), "x")
			var pe *models.ParseError
			assert.True(t, errors.As(err, &pe), "want ParseError, got %v", err)
		})
	}
}

func TestRead_StripsBOM(t *testing.T) {
	tbl, err := Read(strings.NewReader("\ufefftime,tl\n2020,1\n"), "bom")
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Index("time"))
}

func TestSplitBy(t *testing.T) {
	tbl, err := Read(strings.NewReader(chunkCSV), "chunk")
	require.NoError(t, err)

	parts, err := tbl.SplitBy("station")
	require.NoError(t, err)
	assert.Equal(t, []string{"105", "11035"}, parts.Keys())
	assert.Equal(t, 2, parts["105"].Len())
	assert.Equal(t, "11.8", parts["105"].Rows[1][2], "row order is kept")
	assert.Equal(t, tbl.Header, parts["11035"].Header)
}

func TestSortIDs(t *testing.T) {
	ids := []string{"20", "105", "3", "abc", "11"}
	SortIDs(ids)
	assert.Equal(t, []string{"3", "11", "20", "105", "abc"}, ids)
}

func TestWriteFileAtomic_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	tbl := New("station_id", "value")
	require.NoError(t, tbl.Append("105", "1.5"))
	assert.Error(t, tbl.Append("too", "many", "fields"))

	require.NoError(t, tbl.WriteFileAtomic(path))
	assert.True(t, Complete(path))
	assert.False(t, HasStalePart(path))

	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Rows, back.Rows)
}

func TestWriteAtomic_FailureLeavesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	err := WriteAtomic(path, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return errors.New("connection reset")
	})
	require.Error(t, err)
	assert.False(t, Complete(path), "failed write must not leave a cache entry")
	assert.False(t, HasStalePart(path), "part file must be removed")
}

func TestWriteAtomic_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, WriteAtomic(path, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewBufferString("new"))
		return err
	}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
}
