package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github/itish2003/tenantrag/models"

	"github.com/fsnotify/fsnotify"
	"github.com/ternarybob/arbor"
)

// IngestionStarter starts a background ingestion for a tenant.
type IngestionStarter interface {
	BeginIngestion(tenant models.TenantID) (string, error)
}

// UploadWatcher watches the input root and starts an ingestion for a tenant
// once its workspace has been quiet for the debounce interval.
type UploadWatcher struct {
	root     string
	starter  IngestionStarter
	debounce time.Duration
	logger   arbor.ILogger

	mu     sync.Mutex
	timers map[models.TenantID]*time.Timer
}

func NewUploadWatcher(root string, starter IngestionStarter, debounce time.Duration, logger arbor.ILogger) *UploadWatcher {
	return &UploadWatcher{
		root:     filepath.Clean(root),
		starter:  starter,
		debounce: debounce,
		logger:   logger,
		timers:   make(map[models.TenantID]*time.Timer),
	}
}

// Watch blocks until ctx is cancelled.
func (w *UploadWatcher) Watch(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("cannot create input root: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", w.root, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addTenantDir(watcher, filepath.Join(w.root, e.Name()))
		}
	}
	w.logger.Info().Str("dir", w.root).Msg("Watching upload directory")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		case <-ctx.Done():
			w.stopTimers()
			w.logger.Info().Msg("Upload watcher shutting down")
			return nil
		}
	}
}

func (w *UploadWatcher) handle(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return
	}
	tenant, ok := w.tenantFor(event.Name)
	if !ok {
		return
	}
	if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == w.root {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addTenantDir(watcher, event.Name)
		}
	}
	w.schedule(tenant)
}

func (w *UploadWatcher) addTenantDir(watcher *fsnotify.Watcher, dir string) {
	if err := watcher.Add(dir); err != nil {
		w.logger.Warn().Str("dir", dir).Err(err).Msg("Failed to watch tenant directory")
	}
}

// tenantFor maps a path under the root to the tenant owning it.
func (w *UploadWatcher) tenantFor(path string) (models.TenantID, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	first := strings.Split(filepath.ToSlash(rel), "/")[0]
	tenant, err := models.ParseTenantID(first)
	if err != nil || first == "" {
		return "", false
	}
	return tenant, true
}

func (w *UploadWatcher) schedule(tenant models.TenantID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[tenant]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[tenant] = time.AfterFunc(w.debounce, func() { w.fire(tenant) })
}

func (w *UploadWatcher) fire(tenant models.TenantID) {
	w.mu.Lock()
	delete(w.timers, tenant)
	w.mu.Unlock()

	handle, err := w.starter.BeginIngestion(tenant)
	switch {
	case errors.Is(err, models.ErrIngestionInProgress):
		w.logger.Debug().Str("tenant", tenant.String()).Msg("Ingestion busy, retrying after debounce")
		w.schedule(tenant)
	case err != nil:
		w.logger.Error().Str("tenant", tenant.String()).Err(err).Msg("Failed to start ingestion")
	default:
		w.logger.Info().Str("tenant", tenant.String()).Str("handle", handle).Msg("Ingestion triggered by upload")
	}
}

func (w *UploadWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for tenant, t := range w.timers {
		t.Stop()
		delete(w.timers, tenant)
	}
}
