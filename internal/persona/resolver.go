package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// DirectiveHeading opens the persona block inside the system prompt.
const DirectiveHeading = "Persona and Flair Instructions"

// FlairStore persists a record's flair assignment.
type FlairStore interface {
	SaveFlair(ctx context.Context, id string, flair []string) error
}

// Deps collects the resolver's collaborators.
type Deps struct {
	Authors  ports.AuthorRepository
	Records  FlairStore
	Default  domain.AuthorPersona
	Glossary map[string]string
	Rand     *rand.Rand
	Logger   *slog.Logger
}

// Resolver resolves author personas and draws per-record flair. Personas are
// cached for the resolver's lifetime; reference data does not change during
// a run.
type Resolver struct {
	authors  ports.AuthorRepository
	records  FlairStore
	def      domain.AuthorPersona
	glossary map[string]string
	logger   *slog.Logger

	mu    sync.Mutex
	rnd   *rand.Rand
	cache map[string]domain.AuthorPersona
}

func New(deps Deps) *Resolver {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rnd := deps.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Resolver{
		authors:  deps.Authors,
		records:  deps.Records,
		def:      deps.Default,
		glossary: deps.Glossary,
		logger:   logger.With("component", "persona"),
		rnd:      rnd,
		cache:    make(map[string]domain.AuthorPersona),
	}
}

// Persona resolves an author by name or slug, then by the display name derived
// from the slug. Unknown authors get the default persona under their own name.
func (r *Resolver) Persona(ctx context.Context, author string) domain.AuthorPersona {
	key := strings.ToLower(strings.TrimSpace(author))

	r.mu.Lock()
	p, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return p
	}

	p = r.lookup(ctx, author)

	r.mu.Lock()
	r.cache[key] = p
	r.mu.Unlock()
	return p
}

func (r *Resolver) lookup(ctx context.Context, author string) domain.AuthorPersona {
	candidates := []string{strings.TrimSpace(author)}
	if display := domain.Unslugify(author); display != candidates[0] {
		candidates = append(candidates, display)
	}

	if r.authors != nil {
		for _, c := range candidates {
			if c == "" {
				continue
			}
			p, err := r.authors.FindAuthor(ctx, c)
			if err == nil {
				return p
			}
			if !errors.Is(err, domain.ErrNotFound) {
				r.logger.Warn("author lookup failed", "author", c, "error", err)
				break
			}
		}
	}

	p := r.def
	p.Name = domain.Unslugify(author)
	if p.Name == "" {
		p.Name = r.def.Name
	}
	p.Slug = domain.Slugify(p.Name)
	return p
}

// Flair returns the record's persisted flair or draws and persists a new
// assignment. An empty draw is persisted too, so it is never re-rolled.
func (r *Resolver) Flair(ctx context.Context, rec *domain.ContentRecord, p domain.AuthorPersona) ([]string, error) {
	if rec.FlairAssigned {
		return rec.Flair, nil
	}

	flair := r.draw(p.Flairs)
	if r.records != nil {
		if err := r.records.SaveFlair(ctx, rec.ID, flair); err != nil {
			return nil, fmt.Errorf("save flair: %w", err)
		}
	}
	rec.Flair = flair
	rec.FlairAssigned = true
	return flair, nil
}

func (r *Resolver) draw(allowed []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	roll := r.rnd.Float64()
	n := 1
	switch {
	case roll < 0.10:
		return []string{}
	case roll > 0.80:
		n = 2
	}
	if n > len(allowed) {
		n = len(allowed)
	}

	out := make([]string, 0, n)
	for _, i := range r.rnd.Perm(len(allowed))[:n] {
		out = append(out, allowed[i])
	}
	return out
}

// Directive renders the persona and flair instruction block.
func (r *Resolver) Directive(p domain.AuthorPersona, flair []string) string {
	var b strings.Builder
	b.WriteString(DirectiveHeading)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Write in the voice of %s, a %s-based expert in %s.\n", p.Name, p.City, strings.ToLower(p.Specialty))
	fmt.Fprintf(&b, "Use a tone that is %s. Reflect their background, communication style, and local knowledge.", strings.ToLower(p.Tone))

	if len(flair) == 0 {
		b.WriteString("\n\nNo flair styles are included. Write cleanly and clearly without embellishments.")
		return b.String()
	}

	b.WriteString("\n\nApply the following flair styles naturally and consistently throughout the article:\n")
	for _, f := range flair {
		fmt.Fprintf(&b, "- %s: %s\n", f, r.glossary[f])
	}
	b.WriteString("\nOnly use the flair types listed above. Do not invent or add others.")
	return b.String()
}

// SystemPrompt places the directive into base, replacing an existing
// directive block if base already carries one.
func (r *Resolver) SystemPrompt(base string, p domain.AuthorPersona, flair []string) string {
	directive := r.Directive(p, flair)
	if i := strings.Index(base, DirectiveHeading); i >= 0 {
		return base[:i] + directive
	}
	if base == "" {
		return directive
	}
	return directive + "\n\n" + base
}
