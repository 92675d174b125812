package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/infrastructure/storage"
	"ContentPipeline/internal/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	ctx := context.Background()
	s, err := storage.Open(ctx, storage.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func mustInsert(t *testing.T, s *storage.Store, recs ...domain.ContentRecord) {
	t.Helper()
	for _, r := range recs {
		if err := s.Insert(context.Background(), r); err != nil {
			t.Fatalf("insert %s: %v", r.ID, err)
		}
	}
}

func mustGet(t *testing.T, s *storage.Store, id string) domain.ContentRecord {
	t.Helper()
	rec, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return rec
}

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeBatchClient struct {
	mu        sync.Mutex
	submitted []ports.BatchRequest
	submitErr error
	batchID   string
	states    []ports.BatchState
	results   []ports.BatchResult
	statusN   int
}

func (f *fakeBatchClient) Submit(_ context.Context, reqs []ports.BatchRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, reqs...)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.batchID, nil
}

func (f *fakeBatchClient) Status(context.Context, string) (ports.BatchState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return ports.BatchState{}, errors.New("no state")
	}
	i := f.statusN
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	f.statusN++
	return f.states[i], nil
}

func (f *fakeBatchClient) Results(context.Context, string) ([]ports.BatchResult, error) {
	return f.results, nil
}

type memFiles struct {
	mu      sync.Mutex
	batchID string
	debug   map[string]any
	images  map[string][]byte
}

func newMemFiles() *memFiles {
	return &memFiles{debug: map[string]any{}, images: map[string][]byte{}}
}

func (m *memFiles) WriteBatchID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchID = id
	return nil
}

func (m *memFiles) ReadBatchID() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchID, nil
}

func (m *memFiles) WriteDebugPayload(id string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debug[id] = payload
	return nil
}

func (m *memFiles) ImageExists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.images[name]
	return ok
}

func (m *memFiles) UniqueImageName(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	taken := map[string]bool{}
	for existing := range m.images {
		taken[strings.TrimSuffix(existing, filepath.Ext(existing))] = true
	}
	candidate := base
	for i := 2; taken[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return candidate + ext, nil
}

func (m *memFiles) WriteImage(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[name] = data
	return nil
}

func (m *memFiles) ReadImage(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.images[name]
	if !ok {
		return nil, errors.New("missing image")
	}
	return data, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (n *recordingNotifier) Notify(_ context.Context, subject, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	return nil
}

func article(words int, tier string) string {
	return "==TIER==\n" + tier + "\n" +
		"==FOCUS_KEYPHRASE==\ndesert lawn\n" +
		"==SEO_TITLE==\nDesert Lawn Guide\n" +
		"==SEO_DESCRIPTION==\nA guide.\n" +
		"==TAGS==\nlawn, desert\n" +
		"==ARTICLE_HTML==\n<p>" + strings.TrimSpace(strings.Repeat("word ", words)) + "</p><h2>A</h2><p>x</p>\n" +
		"==IMAGE_FILENAME==\ndesert-lawn.png\n" +
		"==IMAGE_ALT_TEXT==\nA desert lawn\n" +
		"==IMAGE_PROMPT==\nA desert lawn at dusk\n"
}
