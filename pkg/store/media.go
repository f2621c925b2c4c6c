package store

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidPath is returned for media paths that escape the media root.
var ErrInvalidPath = errors.New("invalid media path")

var contentTypeExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// Media stores uploaded images on the local filesystem under a root directory.
// Stored paths are slash separated and relative to the root.
type Media struct {
	root string
	now  func() time.Time
}

// NewMedia returns a media store rooted at root. The directory is created on first save.
func NewMedia(root string) *Media {
	if root == "" {
		root = "uploads"
	}
	return &Media{root: root, now: time.Now}
}

// Root is the directory files are written under.
func (m *Media) Root() string { return m.root }

// Save writes data under shots/YYYY/MM/ with a generated name and returns the
// stored path. The extension follows filename, falling back to the sniffed
// content type.
func (m *Media) Save(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("save media: empty file")
	}
	t := m.now()
	rel := path.Join("shots", t.Format("2006"), t.Format("01"), uuid.NewString()+extension(filename, data))
	full := filepath.Join(m.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("save media: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("save media: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save media: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save media: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save media: %w", err)
	}
	return rel, nil
}

// Read returns the content stored at rel.
func (m *Media) Read(rel string) ([]byte, error) {
	full, err := m.resolve(rel)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("media %s: %w", rel, ErrNotFound)
	}
	return b, err
}

// Remove deletes rel. A missing file is not an error.
func (m *Media) Remove(rel string) error {
	full, err := m.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media %s: %w", rel, err)
	}
	return nil
}

// ModTime returns the last modification time of rel.
func (m *Media) ModTime(rel string) (time.Time, error) {
	full, err := m.resolve(rel)
	if err != nil {
		return time.Time{}, err
	}
	fi, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, fmt.Errorf("media %s: %w", rel, ErrNotFound)
	}
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// List returns every stored file path, sorted. Temporary upload files are skipped.
func (m *Media) List() ([]string, error) {
	var out []string
	err := filepath.WalkDir(m.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && p == m.root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(m.root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Media) resolve(rel string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(rel, "\\", "/"))
	if rel == "" || clean == "/" || clean != "/"+strings.TrimPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return filepath.Join(m.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func extension(filename string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".heic":
		if ext == ".jpeg" {
			return ".jpg"
		}
		return ext
	}
	ct := http.DetectContentType(data)
	if e, ok := contentTypeExt[ct]; ok {
		return e
	}
	return ".bin"
}
