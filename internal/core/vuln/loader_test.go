package vuln

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader() *Loader {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLoader(WithLoaderLogger(logger))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile_DropsInvalidRecords(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "vulns.json", `[
		{"id": "V1", "description": "SQL injection in login"},
		{"id": "V2", "description": "   "},
		{"id": "V3"},
		{"id": "V4", "synopsis": "XSS", "description": "stored XSS in comments", "vector": {"AV": "N"}}
	]`)

	records, err := newTestLoader().LoadFile(path)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "V1", records[0].ID)
	assert.Equal(t, "V4", records[1].ID)
	assert.Equal(t, "N", records[1].Metrics["AV"])
}

func TestLoadFile_NonArrayRootIsError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `{"description": "not an array"}`)

	_, err := newTestLoader().LoadFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotArray)
}

func TestLoadDir_SkipsBrokenFilesAndContinues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `[{"id": "A1", "description": "buffer overflow"}]`)
	writeFile(t, dir, "b.json", `{"not": "an array"}`)
	writeFile(t, dir, "c.json", `[{"id": "C1", "description": "path traversal"}]`)

	records, err := newTestLoader().LoadDir(dir)
	require.NoError(t, err)

	require.Len(t, records, 2)
	ids := []string{records[0].ID, records[1].ID}
	assert.ElementsMatch(t, []string{"A1", "C1"}, ids)
}

func TestRecord_EmbeddingText(t *testing.T) {
	r := Record{Synopsis: "XSS", Description: "stored XSS"}
	assert.Equal(t, "XSS stored XSS", r.EmbeddingText())

	r = Record{Description: "no synopsis"}
	assert.Equal(t, "no synopsis", r.EmbeddingText())
}
