package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github/itish2003/tenantrag/common"
	"github/itish2003/tenantrag/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestExtractor(p Parser) *ChunkExtractor {
	return NewChunkExtractor(p, common.ChunkingConfig{ChunkSize: 200, ChunkOverlap: 0}, nil, arbor.NewLogger())
}

func TestExtractWalksRecursivelyInOrder(t *testing.T) {
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(in, "a.txt"), "Alpha document.")
	writeFile(t, filepath.Join(in, "nested", "b.md"), "Beta document.")
	writeFile(t, filepath.Join(in, "ignored.csv"), "x,y")

	chunks, err := newTestExtractor(NewLocalParser("", arbor.NewLogger())).Extract(context.Background(), in, out)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "a.txt", chunks[0].Filename)
	assert.Contains(t, chunks[0].Text, "Alpha document.")
	assert.Equal(t, "nested/b.md", chunks[1].Filename)
	require.NotNil(t, chunks[0].SourcePosition)
	assert.Equal(t, 0, *chunks[0].SourcePosition)

	records, err := filepath.Glob(filepath.Join(out, recordPrefix+"*.json"))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestExtractSplitsLongDocuments(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	paragraphs := make([]string, 12)
	for i := range paragraphs {
		paragraphs[i] = strings.Repeat("word ", 15) + "end."
	}
	writeFile(t, filepath.Join(in, "long.md"), strings.Join(paragraphs, "\n\n"))

	chunks, err := newTestExtractor(NewLocalParser("", arbor.NewLogger())).Extract(context.Background(), in, out)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, "long.md", c.Filename)
		assert.Equal(t, i, c.Position())
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
	}
}

func TestExtractSkipsFailingDocuments(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(in, "good.txt"), "fine")
	writeFile(t, filepath.Join(in, "bad.pdf"), "not really a pdf")

	parser := &fakeParser{parse: func(path string) (*ParsedDocument, error) {
		if strings.HasSuffix(path, ".pdf") {
			return nil, errors.New("corrupt pdf")
		}
		return &ParsedDocument{Markdown: "fine"}, nil
	}}

	chunks, err := newTestExtractor(parser).Extract(context.Background(), in, out)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "good.txt", chunks[0].Filename)
}

func TestExtractFailsWhenEveryDocumentFails(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(in, "bad.pdf"), "x")

	parser := &fakeParser{parse: func(string) (*ParsedDocument, error) { return nil, errors.New("parse service down") }}

	_, err := newTestExtractor(parser).Extract(context.Background(), in, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrParseFailure)
}

func TestExtractEmptyInput(t *testing.T) {
	chunks, err := newTestExtractor(NewLocalParser("", arbor.NewLogger())).Extract(context.Background(), t.TempDir(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestExtractMissingInput(t *testing.T) {
	_, err := newTestExtractor(NewLocalParser("", arbor.NewLogger())).
		Extract(context.Background(), filepath.Join(t.TempDir(), "missing"), t.TempDir())
	assert.ErrorIs(t, err, models.ErrParseFailure)
}

func TestLoadRecordsSkipsCorruptRecords(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeRecord(dir, 0, &intermediateRecord{
		ID:     "1",
		Source: "a.txt",
		Chunks: []models.Chunk{{Text: "one", Filename: "a.txt"}, {Text: "two"}},
	}))
	writeFile(t, filepath.Join(dir, recordPrefix+"00001-broken.json"), "{not json")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	chunks, err := LoadRecords(dir, arbor.NewLogger())
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a.txt", chunks[1].Filename)
}
