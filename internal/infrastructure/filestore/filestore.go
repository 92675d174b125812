package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/ports"
)

// Store owns the batch marker, the debug payload directory and the image
// directory.
type Store struct {
	batchIDFile string
	debugDir    string
	imageDir    string
}

var _ ports.FileStore = (*Store)(nil)

// New creates the directories it writes to.
func New(cfg config.PathsConfig) (*Store, error) {
	s := &Store{
		batchIDFile: cfg.BatchIDFile,
		debugDir:    cfg.DebugDir,
		imageDir:    cfg.ImageDir,
	}
	for _, dir := range []string{s.debugDir, s.imageDir, filepath.Dir(s.batchIDFile)} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

// WriteBatchID records the most recently submitted batch.
func (s *Store) WriteBatchID(batchID string) error {
	if err := os.WriteFile(s.batchIDFile, []byte(batchID+"\n"), 0o644); err != nil {
		return fmt.Errorf("write batch id: %w", err)
	}
	return nil
}

// ReadBatchID returns "" when no marker exists.
func (s *Store) ReadBatchID() (string, error) {
	raw, err := os.ReadFile(s.batchIDFile)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read batch id: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// WriteDebugPayload stores the request built for one record.
func (s *Store) WriteDebugPayload(recordID string, payload any) error {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode debug payload: %w", err)
	}
	path := filepath.Join(s.debugDir, safeName(recordID)+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write debug payload: %w", err)
	}
	return nil
}

// ImageExists reports whether filename is present in the image directory.
func (s *Store) ImageExists(filename string) bool {
	if filename == "" {
		return false
	}
	info, err := os.Stat(s.imagePath(filename))
	return err == nil && !info.IsDir()
}

// UniqueImageName returns filename, or filename with a -2, -3... suffix when
// an image with the same base name exists under any extension.
func (s *Store) UniqueImageName(filename string) (string, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		return "", errors.New("empty image filename")
	}
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	entries, err := os.ReadDir(s.imageDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("list images: %w", err)
	}
	taken := make(map[string]bool, len(entries))
	for _, e := range entries {
		name := e.Name()
		taken[strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))] = true
	}

	candidate := base
	for i := 2; taken[strings.ToLower(candidate)]; i++ {
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return candidate + ext, nil
}

// WriteImage stores image bytes under filename.
func (s *Store) WriteImage(filename string, data []byte) error {
	if err := os.WriteFile(s.imagePath(filename), data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// ReadImage loads image bytes by filename.
func (s *Store) ReadImage(filename string) ([]byte, error) {
	data, err := os.ReadFile(s.imagePath(filename))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

func (s *Store) imagePath(filename string) string {
	return filepath.Join(s.imageDir, filepath.Base(filename))
}

func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, id)
}
