package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ShareDir returns the scratch directory for shared files.
func (s *Store) ShareDir() string {
	return filepath.Join(s.root, shareDir)
}

// ExportImage writes an image into the share directory and returns its path.
// The file extension follows the detected content type.
func (s *Store) ExportImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no image data")
	}

	mtype := mimetype.Detect(data)
	if !mtype.Is("image/png") && !mtype.Is("image/jpeg") && !mtype.Is("image/gif") && !mtype.Is("image/webp") {
		return "", fmt.Errorf("unsupported image type %s", mtype.String())
	}

	dir := s.ShareDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create share directory: %w", err)
	}

	path := filepath.Join(dir, uuid.NewString()+mtype.Extension())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write shared image: %w", err)
	}

	s.logger.Debug("Exported image", zap.String("path", path), zap.String("mime", mtype.String()))
	return path, nil
}

// ClearShare deletes the share directory and everything in it.
func (s *Store) ClearShare() error {
	if err := os.RemoveAll(s.ShareDir()); err != nil {
		return fmt.Errorf("failed to clear share directory: %w", err)
	}
	return nil
}
