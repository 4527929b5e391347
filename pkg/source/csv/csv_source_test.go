package csv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gramforge/gramforge/pkg/columnar"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "messages.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const sampleCSV = `author,text
alice,hello world
bob,hello
alice,goodbye world
carol,one two three
`

func TestSource_ReadRange(t *testing.T) {
	source := NewSource(writeCSV(t, sampleCSV), "author", "text")
	defer source.Close()

	batch, err := source.ReadRange(context.Background(), 0, 2)
	require.NoError(t, err)
	require.Equal(t, 2, batch.RowCount())

	authors := batch.Column("author").(*columnar.StringColumn)
	texts := batch.Column("text").(*columnar.StringColumn)
	assert.Equal(t, "alice", authors.GetString(0))
	assert.Equal(t, "hello world", texts.GetString(0))
	assert.Equal(t, "bob", authors.GetString(1))

	// Sequential continuation.
	batch, err = source.ReadRange(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Equal(t, 2, batch.RowCount())
	authors = batch.Column("author").(*columnar.StringColumn)
	assert.Equal(t, "alice", authors.GetString(0))
	assert.Equal(t, "carol", authors.GetString(1))

	// Past the end: empty batch, no error.
	batch, err = source.ReadRange(context.Background(), 4, 10)
	require.NoError(t, err)
	assert.Zero(t, batch.RowCount())
}

func TestSource_BackwardSeekReopens(t *testing.T) {
	source := NewSource(writeCSV(t, sampleCSV), "author", "text")
	defer source.Close()

	_, err := source.ReadRange(context.Background(), 0, 3)
	require.NoError(t, err)

	batch, err := source.ReadRange(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Equal(t, 1, batch.RowCount())
	assert.Equal(t, "bob", batch.Column("author").(*columnar.StringColumn).GetString(0))
}

func TestSource_ColumnOrderIndependent(t *testing.T) {
	content := "text,author\nhello world,alice\n"
	source := NewSource(writeCSV(t, content), "author", "text")
	defer source.Close()

	batch, err := source.ReadRange(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Equal(t, 1, batch.RowCount())
	assert.Equal(t, "alice", batch.Column("author").(*columnar.StringColumn).GetString(0))
	assert.Equal(t, "hello world", batch.Column("text").(*columnar.StringColumn).GetString(0))
}

func TestSource_Estimate(t *testing.T) {
	source := NewSource(writeCSV(t, sampleCSV), "author", "text")
	defer source.Close()

	estimate, err := source.Estimate(context.Background())
	require.NoError(t, err)

	assert.Positive(t, estimate.RowCount)
	assert.Positive(t, estimate.AvgRowBytes)
}

func TestSource_EstimateEmptyFile(t *testing.T) {
	source := NewSource(writeCSV(t, "author,text\n"), "author", "text")
	defer source.Close()

	estimate, err := source.Estimate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, estimate.RowCount)
}

func TestSource_MissingColumns(t *testing.T) {
	source := NewSource(writeCSV(t, "id,body\n1,hello\n"), "author", "text")
	defer source.Close()

	_, err := source.ReadRange(context.Background(), 0, 10)
	assert.Error(t, err)
}

func TestSource_MissingFile(t *testing.T) {
	source := NewSource(filepath.Join(t.TempDir(), "absent.csv"), "author", "text")

	_, err := source.Estimate(context.Background())
	assert.Error(t, err)

	_, err = source.ReadRange(context.Background(), 0, 10)
	assert.Error(t, err)
}
