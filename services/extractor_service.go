package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github/itish2003/tenantrag/common"
	"github/itish2003/tenantrag/models"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"github.com/ternarybob/arbor"
	"github.com/tmc/langchaingo/textsplitter"
)

const recordPrefix = "docs-"

// intermediateRecord is the durable form of one parsed document, written to
// the output workspace before the batch is flattened.
type intermediateRecord struct {
	ID       string         `json:"id"`
	Source   string         `json:"source"`
	Document ParsedDocument `json:"document"`
	Chunks   []models.Chunk `json:"chunks"`
}

// ChunkExtractor turns the files of an input workspace into an ordered chunk
// sequence, going through the parser and the intermediate records.
type ChunkExtractor struct {
	parser   Parser
	splitter textsplitter.TextSplitter
	logger   arbor.ILogger
}

// NewChunkExtractor builds an extractor that splits markdown into chunks of
// at most cfg.ChunkSize units as measured by lenFunc.
func NewChunkExtractor(parser Parser, cfg common.ChunkingConfig, lenFunc func(string) int, logger arbor.ILogger) *ChunkExtractor {
	if lenFunc == nil {
		lenFunc = utf8.RuneCountInString
	}
	splitter := textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithLenFunc(lenFunc),
	)
	return &ChunkExtractor{parser: parser, splitter: splitter, logger: logger}
}

// NewTokenCounter measures text in cl100k_base tokens, falling back to rune
// counts when the encoding cannot be loaded.
func NewTokenCounter(logger arbor.ILogger) func(string) int {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn().Err(err).Msg("Token encoding unavailable, measuring chunks in runes")
		return utf8.RuneCountInString
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}
}

// Extract parses every supported file under inputDir, writes one record per
// document into outputDir and returns the flattened chunks. Per-document
// failures are logged and skipped; the call only fails when nothing could be
// extracted from a non-empty input or a workspace is unusable.
func (e *ChunkExtractor) Extract(ctx context.Context, inputDir, outputDir string) ([]models.Chunk, error) {
	files, err := e.enumerate(inputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrParseFailure, err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: cannot create output workspace: %w", models.ErrParseFailure, err)
	}
	e.logger.Info().Str("input", inputDir).Int("files", len(files)).Msg("Extracting documents")

	var written, failed int
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrParseFailure, err)
		}
		rel, relErr := filepath.Rel(inputDir, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		name := filepath.ToSlash(rel)

		record, err := e.parseToRecord(ctx, path, name)
		if err != nil {
			failed++
			e.logger.Warn().Str("file", name).Err(err).Msg("Skipping document that failed to parse")
			continue
		}
		if err := writeRecord(outputDir, i, record); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrParseFailure, err)
		}
		written++
	}

	if len(files) > 0 && written == 0 {
		return nil, fmt.Errorf("%w: all %d documents failed to parse", models.ErrParseFailure, failed)
	}

	chunks, err := LoadRecords(outputDir, e.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrParseFailure, err)
	}
	e.logger.Info().Int("documents", written).Int("failed", failed).Int("chunks", len(chunks)).Msg("Extraction finished")
	return chunks, nil
}

func (e *ChunkExtractor) enumerate(inputDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !supports(e.parser, path) {
			e.logger.Debug().Str("file", path).Msg("Ignoring unsupported file")
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot enumerate input workspace: %w", err)
	}
	return files, nil
}

func (e *ChunkExtractor) parseToRecord(ctx context.Context, path, name string) (*intermediateRecord, error) {
	doc, err := e.parser.Parse(ctx, path)
	if err != nil {
		return nil, err
	}
	doc.Filename = name

	parts, err := e.splitter.SplitText(doc.Markdown)
	if err != nil {
		return nil, fmt.Errorf("split failed: %w", err)
	}
	chunks := make([]models.Chunk, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			Text:           part,
			Filename:       name,
			SourcePosition: models.IntPtr(len(chunks)),
		})
	}
	return &intermediateRecord{
		ID:       uuid.NewString(),
		Source:   name,
		Document: *doc,
		Chunks:   chunks,
	}, nil
}

func writeRecord(outputDir string, seq int, record *intermediateRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record for %s: %w", record.Source, err)
	}
	name := fmt.Sprintf("%s%05d-%s.json", recordPrefix, seq, record.ID)
	if err := os.WriteFile(filepath.Join(outputDir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write record for %s: %w", record.Source, err)
	}
	return nil
}

// LoadRecords flattens every intermediate record in dir into one chunk
// sequence, in record order. Records that cannot be decoded are skipped.
func LoadRecords(dir string, logger arbor.ILogger) ([]models.Chunk, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot read output workspace: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var chunks []models.Chunk
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, recordPrefix) || filepath.Ext(name) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn().Str("record", name).Err(err).Msg("Skipping unreadable record")
			continue
		}
		var record intermediateRecord
		if err := json.Unmarshal(data, &record); err != nil {
			logger.Warn().Str("record", name).Err(err).Msg("Skipping undecodable record")
			continue
		}
		for _, c := range record.Chunks {
			if c.Filename == "" {
				c.Filename = record.Source
			}
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}
