package outlinecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"ContentPipeline/internal/ports"
)

// File keeps outlines in memory and persists them as one JSON object keyed
// "title||category".
type File struct {
	path string

	mu      sync.Mutex
	entries map[string]string
	dirty   bool
}

var _ ports.OutlineCache = (*File)(nil)

// OpenFile loads path if it exists. A corrupt file starts an empty cache.
func OpenFile(path string) (*File, error) {
	c := &File{path: path, entries: make(map[string]string)}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read outline cache: %w", err)
	}
	if err := json.Unmarshal(raw, &c.entries); err != nil {
		c.entries = make(map[string]string)
	}
	return c, nil
}

func key(title, category string) string {
	return title + "||" + category
}

func (c *File) Get(_ context.Context, title, category string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key(title, category)]
	return v, ok
}

func (c *File) Put(_ context.Context, title, category, outline string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key(title, category)] = outline
	c.dirty = true
	return nil
}

// Flush writes the cache through a temp file and rename.
func (c *File) Flush(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	raw, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outline cache: %w", err)
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write outline cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace outline cache: %w", err)
	}
	c.dirty = false
	return nil
}
