package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DateLayout is the calendar-day format used for publish dates.
const DateLayout = "2006-01-02"

// ContentRecord is the unit of work moved through the pipeline.
type ContentRecord struct {
	ID             string
	Status         Status
	Tier           Tier
	City           string
	CategorySlug   string
	AuthorSlug     string
	PublishDate    time.Time
	Title          string
	Slug           string
	Outline        string
	BodyHTML       string
	FocusKeyphrase string
	SEOTitle       string
	SEODescription string
	Tags           []string
	ImageFilename  string
	ImageCaption   string
	ImageAltText   string
	ImagePrompt    string
	Flair          []string
	FlairAssigned  bool
	Rewrite        bool
	Notes          string
	PublishedURL   string
	BatchID        string
}

// HasBody reports whether generated markup is already attached.
func (r ContentRecord) HasBody() bool {
	return strings.TrimSpace(r.BodyHTML) != ""
}

// Transition moves the record to the target status when the table allows it.
func (r *ContentRecord) Transition(to Status) error {
	if err := CheckTransition(r.Status, to, r.HasBody()); err != nil {
		return fmt.Errorf("record %s: %w", r.ID, err)
	}
	r.Status = to
	return nil
}

// RelatedArticle is a previously published item suggested as a link target.
type RelatedArticle struct {
	Title string `json:"post_title"`
	URL   string `json:"published_url"`
}

// LedgerEntry is the append-only snapshot of a published record.
type LedgerEntry struct {
	RecordID       string
	Title          string
	URL            string
	Author         string
	Category       string
	City           string
	Tier           Tier
	PublishDate    time.Time
	Slug           string
	SEOTitle       string
	SEODescription string
	FocusKeyphrase string
	Tags           []string
}

// LedgerEntryFor snapshots a record that just got published.
func LedgerEntryFor(r ContentRecord) LedgerEntry {
	return LedgerEntry{
		RecordID:       r.ID,
		Title:          r.Title,
		URL:            r.PublishedURL,
		Author:         r.AuthorSlug,
		Category:       r.CategorySlug,
		City:           r.City,
		Tier:           r.Tier,
		PublishDate:    r.PublishDate,
		Slug:           r.Slug,
		SEOTitle:       r.SEOTitle,
		SEODescription: r.SEODescription,
		FocusKeyphrase: r.FocusKeyphrase,
		Tags:           r.Tags,
	}
}

// AuthorPersona is static reference data describing an author voice.
type AuthorPersona struct {
	Slug      string   `yaml:"slug"`
	Name      string   `yaml:"name"`
	City      string   `yaml:"city"`
	Specialty string   `yaml:"specialty"`
	Tone      string   `yaml:"tone"`
	Bio       string   `yaml:"bio"`
	Flairs    []string `yaml:"flairs"`
}

// Unslugify turns "marcus-wynn" into "Marcus Wynn".
func Unslugify(slug string) string {
	parts := strings.Fields(strings.ReplaceAll(strings.TrimSpace(slug), "-", " "))
	for i, p := range parts {
		r := []rune(strings.ToLower(p))
		r[0] = unicode.ToUpper(r[0])
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}

// Slugify lowercases and hyphenates a display name.
func Slugify(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "-"))
}
