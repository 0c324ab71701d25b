package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github/itish2003/tenantrag/models"

	"github.com/ternarybob/arbor"
)

// writeFunc writes one batch atomically: either every chunk is stored or an
// error is returned.
type writeFunc func(ctx context.Context, chunks []models.Chunk) error

type indexedChunk struct {
	index int
	chunk models.Chunk
}

// writeBatches validates the chunks, writes the valid ones in batches of at
// most size, and bisects any batch the backend rejects until the offending
// objects are isolated. Failed objects are reported, never retried.
// Connection failures and embedding failures abort the whole upload.
func writeBatches(ctx context.Context, chunks []models.Chunk, size int, write writeFunc, logger arbor.ILogger) (models.UploadReport, error) {
	var report models.UploadReport
	if size <= 0 {
		size = 100
	}

	valid := make([]indexedChunk, 0, len(chunks))
	for i, c := range chunks {
		if err := validateChunk(c); err != nil {
			report.Failed++
			report.FailedObjects = append(report.FailedObjects, models.FailedObject{Index: i, Filename: c.Filename, Reason: err.Error()})
			continue
		}
		valid = append(valid, indexedChunk{index: i, chunk: c})
	}

	for start := 0; start < len(valid); start += size {
		end := min(start+size, len(valid))
		sub, err := writeBisecting(ctx, valid[start:end], write, logger)
		report.Merge(sub)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func writeBisecting(ctx context.Context, batch []indexedChunk, write writeFunc, logger arbor.ILogger) (models.UploadReport, error) {
	chunks := make([]models.Chunk, len(batch))
	for i, ic := range batch {
		chunks[i] = ic.chunk
	}

	err := write(ctx, chunks)
	if err == nil {
		return models.UploadReport{Succeeded: len(batch)}, nil
	}
	if errors.Is(err, models.ErrEmbeddingFailure) {
		return models.UploadReport{}, err
	}
	if IsConnectionError(err) {
		return models.UploadReport{}, fmt.Errorf("%w: %w", models.ErrStoreFailure, err)
	}
	if len(batch) == 1 {
		return models.UploadReport{
			Failed: 1,
			FailedObjects: []models.FailedObject{{
				Index:    batch[0].index,
				Filename: batch[0].chunk.Filename,
				Reason:   err.Error(),
			}},
		}, nil
	}

	logger.Debug().Int("batch", len(batch)).Err(err).Msg("Batch rejected, splitting to isolate failing objects")
	mid := len(batch) / 2
	report, err := writeBisecting(ctx, batch[:mid], write, logger)
	if err != nil {
		return report, err
	}
	right, err := writeBisecting(ctx, batch[mid:], write, logger)
	report.Merge(right)
	return report, err
}

func validateChunk(c models.Chunk) error {
	switch {
	case strings.TrimSpace(c.Text) == "":
		return errors.New("chunk text is empty")
	case strings.TrimSpace(c.Filename) == "":
		return errors.New("chunk filename is empty")
	}
	return nil
}

// IsConnectionError reports whether err means the store could not be reached,
// as opposed to the store rejecting a request.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, models.ErrStoreFailure) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	// The chroma client flattens transport errors and HTTP statuses into
	// one error type without a cause chain.
	if code, ok := chromaStatus(err); ok {
		return code == 0 || code >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return transportMessage(err.Error())
}

var transportMarkers = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"broken pipe",
	"network is unreachable",
	"no route to host",
	"timeout",
	"deadline exceeded",
	"unexpected eof",
	"tls:",
	"x509:",
}

// transportMessage matches transport failures that only survive as text.
func transportMessage(msg string) bool {
	msg = strings.ToLower(msg)
	if msg == "eof" || strings.HasSuffix(msg, ": eof") {
		return true
	}
	for _, marker := range transportMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
