// Package storage holds uploaded media. Keys look like
// uploads/{userId}/{uuid}.{ext}; Put returns the URL clients should embed in posts.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MaxUploadBytes is the per-file upload ceiling (100 MiB).
const MaxUploadBytes = int64(100 << 20)

type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

var reSafeExt = regexp.MustCompile(`[^a-z0-9]+`)

// ExtFromName returns the lower-cased file extension, or "bin".
func ExtFromName(fileName string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(strings.TrimSpace(fileName))), ".")
	ext = reSafeExt.ReplaceAllString(ext, "")
	if ext == "" || len(ext) > 10 {
		return "bin"
	}
	return ext
}

func NewUploadKey(userID int64, fileName string) string {
	return fmt.Sprintf("uploads/%d/%s.%s", userID, uuid.NewString(), ExtFromName(fileName))
}

// OwnsKey reports whether key is inside the user's upload prefix.
func OwnsKey(userID int64, key string) bool {
	prefix := fmt.Sprintf("uploads/%d/", userID)
	clean := path.Clean(key)
	return strings.HasPrefix(clean, prefix) && clean == key && !strings.Contains(key, "..")
}

// LocalStore writes blobs under a directory and serves them from baseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	p := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return "", fmt.Errorf("create object: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close object: %w", err)
	}
	return s.baseURL + "/" + key, nil
}
