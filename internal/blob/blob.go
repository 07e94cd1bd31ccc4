// Package blob stores item content bodies out-of-row, one file per short id,
// keeping the large HTML payloads away from the relational cache.
package blob

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned when no content has been stored for an id.
var ErrNotFound = errors.New("content not found")

type Store struct {
	dir   string
	cache *lru.Cache[int64, string]
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating content directory: %s", err)
	}

	cache, _ := lru.New[int64, string](256)
	return &Store{dir: dir, cache: cache}, nil
}

func (s *Store) path(id int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(id, 10))
}

func (s *Store) Write(id int64, content string) error {
	if err := os.WriteFile(s.path(id), []byte(content), 0o644); err != nil {
		return fmt.Errorf("error writing content: %s", err)
	}
	s.cache.Add(id, content)

	return nil
}

func (s *Store) Read(id int64) (string, error) {
	if content, ok := s.cache.Get(id); ok {
		return content, nil
	}

	byts, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("error reading content: %s", err)
	}

	content := string(byts)
	s.cache.Add(id, content)
	return content, nil
}

// Remove drops the content for id. Removing content that was never written
// is not an error; garbage collection calls this for bare id-only rows too.
func (s *Store) Remove(id int64) error {
	s.cache.Remove(id)
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error removing content: %s", err)
	}

	return nil
}
