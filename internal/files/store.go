package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"saferental-service/internal/config"
	"saferental-service/internal/util"
)

var (
	ErrFileTooLarge    = errors.New("file exceeds upload size limit")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrPathEscape      = errors.New("file path escapes storage root")
	ErrFileNotFound    = errors.New("file not found")
)

// Identity documents only: images and PDFs.
var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".pdf":  true,
}

// Store writes uploaded identity documents to local disk, spread across
// murmur3-hashed bucket directories so a single directory never accumulates
// every upload.
type Store struct {
	root     string
	buckets  uint32
	maxBytes int64
}

func NewStore(cfg *config.Config) (*Store, error) {
	root, err := filepath.Abs(cfg.Files.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	util.Info("Upload store initialized",
		zap.String("root", root),
		zap.Int("buckets", cfg.Files.Buckets))

	return &Store{
		root:     root,
		buckets:  uint32(cfg.Files.Buckets),
		maxBytes: cfg.Files.MaxUploadBytes,
	}, nil
}

// Save persists one uploaded document and returns its opaque reference of
// the form /uploads/<bucket>/<name>.
func (s *Store) Save(role, originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExtensions[ext] {
		return "", ErrUnsupportedType
	}

	name := fmt.Sprintf("%s-%s%s", role, uuid.New().String(), ext)
	bucket := fmt.Sprintf("%02d", murmur3.Sum32([]byte(name))%s.buckets)

	dir := filepath.Join(s.root, bucket)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create bucket dir: %w", err)
	}

	dst, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if written > s.maxBytes {
		os.Remove(dst.Name())
		return "", ErrFileTooLarge
	}

	util.Debug("Upload stored",
		zap.String("name", name),
		zap.String("bucket", bucket),
		zap.Int("bytes", int(written)))

	return "/uploads/" + bucket + "/" + name, nil
}

// Resolve converts a stored reference into an absolute path, refusing
// anything that would land outside the storage root.
func (s *Store) Resolve(reference string) (string, error) {
	rel := strings.TrimPrefix(reference, "/uploads/")
	path := filepath.Join(s.root, filepath.FromSlash(rel))

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) {
		return "", ErrPathEscape
	}
	if abs == s.root {
		return "", ErrPathEscape
	}

	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	return abs, nil
}
