package subtitles

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("subtitle artifact not found")

// Store persists subtitle artifacts under a durable output root, one folder per
// original base filename. Handles are slash-separated paths relative to the root.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Save writes text to <root>/<baseName>/<baseName>.srt and returns the handle.
// A colliding base name overwrites the previous artifact. A failed write never
// leaves a partial artifact behind.
func (s *Store) Save(baseName, text string) (string, error) {
	folder := filepath.Join(s.root, baseName)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", err
	}
	srtPath := filepath.Join(folder, baseName+".srt")
	if err := os.WriteFile(srtPath, []byte(text), 0o644); err != nil {
		_ = os.Remove(srtPath)
		s.removeDirIfEmpty(folder)
		return "", err
	}
	return filepath.ToSlash(filepath.Join(baseName, baseName+".srt")), nil
}

// Open returns a reader over the artifact and its size in bytes. Handles that
// escape the root or name a missing file report ErrNotFound.
func (s *Store) Open(handle string) (io.ReadCloser, int64, error) {
	srtPath, err := s.resolve(handle)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(srtPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// Remove deletes the artifact and its containing folder if the folder is then
// empty, so no orphan directories accumulate under the root.
func (s *Store) Remove(handle string) error {
	srtPath, err := s.resolve(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(srtPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	s.removeDirIfEmpty(filepath.Dir(srtPath))
	return nil
}

func (s *Store) resolve(handle string) (string, error) {
	handle = filepath.FromSlash(handle)
	if handle == "" || !filepath.IsLocal(handle) {
		return "", ErrNotFound
	}
	return filepath.Join(s.root, handle), nil
}

func (s *Store) removeDirIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	_ = os.Remove(dir)
}
