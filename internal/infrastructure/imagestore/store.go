package imagestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/totoufu/archi-input/internal/ports"
)

// ErrUnsupportedMime reports an upload outside the image allow-list.
var ErrUnsupportedMime = errors.New("unsupported image mime type")

// extByMime is the upload allow-list.
var extByMime = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// DiskStore keeps uploaded work images in a flat directory with
// uuid-based file names.
type DiskStore struct {
	dir string
}

var _ ports.ImageStore = (*DiskStore)(nil)

// New creates the storage directory if needed.
func New(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Save writes the image and returns its storage path.
func (s *DiskStore) Save(data []byte, mime string) (string, error) {
	ext, ok := extByMime[normalizeMime(mime)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMime, mime)
	}

	path := filepath.Join(s.dir, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	return path, nil
}

// Read returns the stored bytes and the mime type derived from the file
// extension.
func (s *DiskStore) Read(path string) ([]byte, string, error) {
	// Stored paths are produced by Save; reject anything escaping the
	// storage directory.
	cleaned := filepath.Clean(path)
	if !strings.HasPrefix(cleaned, filepath.Clean(s.dir)+string(filepath.Separator)) {
		return nil, "", fmt.Errorf("image path %s outside store", path)
	}

	data, err := os.ReadFile(cleaned)
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}

	return data, mimeByExt(filepath.Ext(cleaned)), nil
}

func normalizeMime(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

func mimeByExt(ext string) string {
	for mime, e := range extByMime {
		if e == strings.ToLower(ext) {
			return mime
		}
	}
	return "image/jpeg"
}
