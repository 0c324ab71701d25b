package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github/itish2003/tenantrag/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// conversionRequest is what the fake conversion service saw.
type conversionRequest struct {
	path          string
	authorization string
	filename      string
	content       string
	formats       string
}

func newConversionServer(t *testing.T, status int, reply any) (*httptest.Server, *conversionRequest) {
	t.Helper()
	seen := &conversionRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.path = r.URL.Path
		seen.authorization = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			seen.formats = r.FormValue("to_formats")
			if file, header, err := r.FormFile("files"); err == nil {
				seen.filename = header.Filename
				data, _ := io.ReadAll(file)
				seen.content = string(data)
				file.Close()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func doclingReply(markdown string, errs ...string) map[string]any {
	if errs == nil {
		errs = []string{}
	}
	return map[string]any{
		"document": map[string]any{"filename": "report.pdf", "md_content": markdown},
		"status":   "success",
		"errors":   errs,
	}
}

func TestRemoteParserConvertsFile(t *testing.T) {
	srv, seen := newConversionServer(t, http.StatusOK, doclingReply("# Report\n\nRevenue rose 5%."))
	path := filepath.Join(t.TempDir(), "report.pdf")
	writeFile(t, path, "%PDF-1.4 fake")

	p := NewRemoteParser(srv.URL+"/", "secret", 5*time.Second)
	doc, err := p.Parse(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "report.pdf", doc.Filename)
	assert.Equal(t, "pdf", doc.Format)
	assert.Equal(t, "# Report\n\nRevenue rose 5%.", doc.Markdown)

	assert.Equal(t, "/v1/convert/file", seen.path)
	assert.Equal(t, "Bearer secret", seen.authorization)
	assert.Equal(t, "report.pdf", seen.filename)
	assert.Equal(t, "%PDF-1.4 fake", seen.content)
	assert.Equal(t, "md", seen.formats)
}

func TestRemoteParserWithoutKeySendsNoAuthorization(t *testing.T) {
	srv, seen := newConversionServer(t, http.StatusOK, doclingReply("text"))
	path := filepath.Join(t.TempDir(), "notes.md")
	writeFile(t, path, "text")

	_, err := NewRemoteParser(srv.URL, "", 5*time.Second).Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, seen.authorization)
}

func TestRemoteParserNon200(t *testing.T) {
	srv, _ := newConversionServer(t, http.StatusInternalServerError, map[string]string{"detail": "converter crashed"})
	path := filepath.Join(t.TempDir(), "report.pdf")
	writeFile(t, path, "x")

	_, err := NewRemoteParser(srv.URL, "", 5*time.Second).Parse(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "converter crashed")
}

func TestRemoteParserReportedErrors(t *testing.T) {
	srv, _ := newConversionServer(t, http.StatusOK, doclingReply("", "unsupported encryption"))
	path := filepath.Join(t.TempDir(), "locked.pdf")
	writeFile(t, path, "x")

	_, err := NewRemoteParser(srv.URL, "", 5*time.Second).Parse(context.Background(), path)
	assert.ErrorContains(t, err, "unsupported encryption")
}

func TestRemoteParserKeepsContentDespiteWarnings(t *testing.T) {
	srv, _ := newConversionServer(t, http.StatusOK, doclingReply("partial text", "page 3 skipped"))
	path := filepath.Join(t.TempDir(), "report.pdf")
	writeFile(t, path, "x")

	doc, err := NewRemoteParser(srv.URL, "", 5*time.Second).Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "partial text", doc.Markdown)
}

func TestRemoteParserMissingFile(t *testing.T) {
	_, err := NewRemoteParser("http://localhost:1", "", time.Second).Parse(context.Background(), filepath.Join(t.TempDir(), "gone.pdf"))
	assert.Error(t, err)
}

func TestNewParserSelectsBackend(t *testing.T) {
	p, err := NewParser(common.ParserConfig{Type: "remote", URL: "http://docling:5001", TimeoutSec: 5}, arbor.NewLogger())
	require.NoError(t, err)
	assert.IsType(t, &RemoteParser{}, p)

	_, err = NewParser(common.ParserConfig{Type: "mystery"}, arbor.NewLogger())
	assert.Error(t, err)
}
