package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github/itish2003/tenantrag/models"

	"github.com/google/uuid"
)

// FileActions stores uploaded files in the tenants' input workspaces.
type FileActions struct {
	layout     WorkspaceLayout
	extensions []string
}

func NewFileActions(layout WorkspaceLayout, parser Parser) *FileActions {
	return &FileActions{layout: layout, extensions: parser.SupportedExtensions()}
}

// sanitizeFilename reduces an uploaded name to a safe base name with a
// supported extension.
func (fa *FileActions) sanitizeFilename(filename string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(filename, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range fa.extensions {
		if ext == allowed {
			return name, nil
		}
	}
	return "", fmt.Errorf("unsupported file type %q, expected one of %s", ext, strings.Join(fa.extensions, ", "))
}

// SaveUpload writes src into the tenant's input workspace under a unique
// "<uuid>_<name>" filename and returns that filename.
func (fa *FileActions) SaveUpload(tenant models.TenantID, filename string, src io.Reader) (string, error) {
	name, err := fa.sanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	dir := fa.layout.For(tenant).InputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create input workspace: %w", err)
	}

	stored := uuid.NewString() + "_" + name
	f, err := os.OpenFile(filepath.Join(dir, stored), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file '%s': %w", stored, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, src); err != nil {
		return "", fmt.Errorf("failed to write file '%s': %w", stored, err)
	}
	return stored, nil
}

// PendingUploads lists the files waiting in the tenant's input workspace.
func (fa *FileActions) PendingUploads(tenant models.TenantID) ([]string, error) {
	entries, err := os.ReadDir(fa.layout.For(tenant).InputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
