package content

import (
	"errors"
	"fmt"
	"strings"

	"ContentPipeline/internal/domain"
)

// ErrEmptyBody is returned when a response carries no article markup.
var ErrEmptyBody = errors.New("response has no article body")

// Input is everything the assembler needs besides the raw response.
type Input struct {
	Raw        string
	RecordTier domain.Tier
	Related    []domain.RelatedArticle
	AuthorBio  string
	Flair      []string
	Placement  string
}

// Result is an assembled article plus its acceptance verdict.
type Result struct {
	Sections  Sections
	BodyHTML  string
	Tier      domain.Tier
	WordCount int
	MinWords  int
	FlairUsed int
	Placement string
	Accepted  bool
	Notes     string
}

// Assemble parses a delimited response, links related titles, injects the
// image block, appends the footer once and checks the tier word minimum.
// Word count is taken before the image and footer are added.
func Assemble(in Input) (Result, error) {
	sections := ParseSections(in.Raw)
	if strings.TrimSpace(sections.ArticleHTML) == "" {
		return Result{Sections: sections}, ErrEmptyBody
	}

	body := LinkRelatedTitles(sections.ArticleHTML, in.Related)
	words := WordCount(body)

	tier := domain.ParseTier(sections.Tier)
	if !tier.Known() {
		tier = in.RecordTier
	}
	minWords := tier.MinWords()

	if sections.ImageFilename != "" {
		block := ImageBlock(sections.ImageFilename, sections.ImageAltText, sections.ImageCaption)
		body = InjectImage(body, block, in.Placement)
	}
	body = AppendFooter(body, in.Related, in.AuthorBio)

	used := 0
	for _, f := range in.Flair {
		if strings.Contains(body, f) {
			used++
		}
	}

	res := Result{
		Sections:  sections,
		BodyHTML:  body,
		Tier:      tier,
		WordCount: words,
		MinWords:  minWords,
		FlairUsed: used,
		Placement: in.Placement,
		Accepted:  words >= minWords,
	}
	res.Notes = fmt.Sprintf("word_count:%d/%d; flair_used:%d/%d; image_placement:%s",
		words, minWords, used, len(in.Flair), in.Placement)
	return res, nil
}
