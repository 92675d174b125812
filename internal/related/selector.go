package related

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

const (
	// MaxItems caps the number of related articles handed to a prompt.
	MaxItems = 4
	// WindowMonths is the publish-date radius around the target date.
	WindowMonths = 2
)

// Target identifies the record related content is selected for.
type Target struct {
	Category    string
	PublishDate time.Time
	Title       string
}

// Selector picks previously published articles from the ledger.
type Selector struct {
	ledger ports.LedgerRepository
	logger *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSelector(ledger ports.LedgerRepository, rnd *rand.Rand, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{
		ledger: ledger,
		rnd:    rnd,
		logger: logger.With("component", "related"),
	}
}

// Select returns up to MaxItems ledger entries in the same category published
// within WindowMonths of the target date, excluding the target's own title.
// Failures degrade to an empty list.
func (s *Selector) Select(ctx context.Context, t Target) []domain.RelatedArticle {
	if t.PublishDate.IsZero() || strings.TrimSpace(t.Category) == "" {
		s.logger.Warn("related selection skipped", "title", t.Title, "reason", "missing date or category")
		return nil
	}

	from := t.PublishDate.AddDate(0, -WindowMonths, 0)
	to := t.PublishDate.AddDate(0, WindowMonths, 0)

	entries, err := s.ledger.InCategory(ctx, t.Category, from, to)
	if err != nil {
		s.logger.Warn("related selection failed", "title", t.Title, "error", err)
		return nil
	}

	own := strings.ToLower(strings.TrimSpace(t.Title))
	pool := make([]domain.RelatedArticle, 0, len(entries))
	for _, e := range entries {
		if strings.ToLower(strings.TrimSpace(e.Title)) == own {
			continue
		}
		pool = append(pool, domain.RelatedArticle{Title: e.Title, URL: e.URL})
	}

	s.mu.Lock()
	s.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	s.mu.Unlock()

	if len(pool) > MaxItems {
		pool = pool[:MaxItems]
	}
	return pool
}
