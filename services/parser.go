package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github/itish2003/tenantrag/common"

	"github.com/ternarybob/arbor"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// ParsedDocument is the markdown rendition of one source file.
type ParsedDocument struct {
	Filename string `json:"filename"`
	Format   string `json:"format"`
	Markdown string `json:"markdown"`
}

// Parser converts a single file into markdown. Errors are per file.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParsedDocument, error)
	SupportedExtensions() []string
}

// NewParser builds the parser selected in the configuration.
func NewParser(cfg common.ParserConfig, logger arbor.ILogger) (Parser, error) {
	switch cfg.Type {
	case "remote":
		return NewRemoteParser(cfg.URL, cfg.APIKey, time.Duration(cfg.TimeoutSec)*time.Second), nil
	case "local":
		return NewLocalParser(cfg.LicenseKey, logger), nil
	default:
		return nil, fmt.Errorf("unknown parser type %q", cfg.Type)
	}
}

func supports(p Parser, path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range p.SupportedExtensions() {
		if e == ext {
			return true
		}
	}
	return false
}

// RemoteParser posts files to a Docling-compatible conversion service and
// reads back the markdown rendition.
type RemoteParser struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type doclingResponse struct {
	Document struct {
		Filename  string `json:"filename"`
		MdContent string `json:"md_content"`
	} `json:"document"`
	Status string   `json:"status"`
	Errors []string `json:"errors"`
}

func NewRemoteParser(baseURL, apiKey string, timeout time.Duration) *RemoteParser {
	return &RemoteParser{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *RemoteParser) SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".pptx", ".md", ".txt"}
}

func (p *RemoteParser) Parse(ctx context.Context, path string) (*ParsedDocument, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	_ = writer.WriteField("to_formats", "md")
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/convert/file", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("parse service call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read parse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("parse service returned status %d: %s", resp.StatusCode, string(body))
	}

	var d doclingResponse
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("failed to decode parse response: %w", err)
	}
	if len(d.Errors) > 0 && d.Document.MdContent == "" {
		return nil, fmt.Errorf("parse service reported: %s", strings.Join(d.Errors, "; "))
	}
	return &ParsedDocument{
		Filename: filepath.Base(path),
		Format:   strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Markdown: d.Document.MdContent,
	}, nil
}

// LocalParser parses PDFs in process with UniPDF and reads text and
// markdown files verbatim.
type LocalParser struct {
	logger arbor.ILogger
}

// NewLocalParser registers the UniPDF metered key when one is given. Without
// a key, PDF extraction fails per file and the other formats still work.
func NewLocalParser(licenseKey string, logger arbor.ILogger) *LocalParser {
	if licenseKey != "" {
		if err := license.SetMeteredKey(licenseKey); err != nil {
			logger.Error().Err(err).Msg("Failed to set Unidoc license key; PDF processing will fail")
		}
	}
	return &LocalParser{logger: logger}
}

func (p *LocalParser) SupportedExtensions() []string {
	return []string{".pdf", ".md", ".txt"}
}

func (p *LocalParser) Parse(ctx context.Context, path string) (*ParsedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	doc := &ParsedDocument{
		Filename: filepath.Base(path),
		Format:   strings.TrimPrefix(ext, "."),
	}

	switch ext {
	case ".txt", ".md":
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		doc.Markdown = string(content)
	case ".pdf":
		text, err := extractTextFromPDF(path)
		if err != nil {
			return nil, fmt.Errorf("pdf extraction failed: %w", err)
		}
		doc.Markdown = text
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}
	return doc, nil
}

// extractTextFromPDF renders each page as its own markdown section.
func extractTextFromPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return "", err
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return "", err
		}
		ex, err := extractor.New(page)
		if err != nil {
			return "", err
		}
		text, err := ex.ExtractText()
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&sb, "## Page %d\n\n%s\n\n", i, text)
	}
	return sb.String(), nil
}
