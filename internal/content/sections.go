package content

import (
	"bufio"
	"regexp"
	"strings"
)

// Section names understood by the parser.
const (
	SectionTier           = "TIER"
	SectionFocusKeyphrase = "FOCUS_KEYPHRASE"
	SectionSEOTitle       = "SEO_TITLE"
	SectionSEODescription = "SEO_DESCRIPTION"
	SectionTags           = "TAGS"
	SectionArticleHTML    = "ARTICLE_HTML"
	SectionImageFilename  = "IMAGE_FILENAME"
	SectionImageAltText   = "IMAGE_ALT_TEXT"
	SectionImageCaption   = "IMAGE_CAPTION"
	SectionImagePrompt    = "IMAGE_PROMPT"
)

var knownSections = map[string]bool{
	SectionTier:           true,
	SectionFocusKeyphrase: true,
	SectionSEOTitle:       true,
	SectionSEODescription: true,
	SectionTags:           true,
	SectionArticleHTML:    true,
	SectionImageFilename:  true,
	SectionImageAltText:   true,
	SectionImageCaption:   true,
	SectionImagePrompt:    true,
}

var markerExpr = regexp.MustCompile(`^==([A-Za-z0-9_]+)==$`)

// Sections holds the named fields of a delimited model response.
type Sections struct {
	Tier           string
	FocusKeyphrase string
	SEOTitle       string
	SEODescription string
	Tags           []string
	ArticleHTML    string
	ImageFilename  string
	ImageAltText   string
	ImageCaption   string
	ImagePrompt    string
	// Unknown lists marker names that were skipped.
	Unknown []string
}

// ParseSections reads a response made of `==NAME==` marker lines, each
// followed by content up to the next marker line or the end of input.
// Text before the first marker and content under unknown markers is
// dropped; a repeated marker keeps its first occurrence.
func ParseSections(raw string) Sections {
	values := map[string]*strings.Builder{}
	var (
		current string
		out     Sections
	)

	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if m := markerExpr.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			name := strings.ToUpper(m[1])
			switch {
			case !knownSections[name]:
				out.Unknown = append(out.Unknown, name)
				current = ""
			case values[name] != nil:
				current = ""
			default:
				values[name] = &strings.Builder{}
				current = name
			}
			continue
		}
		if current == "" {
			continue
		}
		b := values[current]
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}

	get := func(name string) string {
		if b, ok := values[name]; ok {
			return strings.TrimSpace(b.String())
		}
		return ""
	}

	out.Tier = get(SectionTier)
	out.FocusKeyphrase = get(SectionFocusKeyphrase)
	out.SEOTitle = get(SectionSEOTitle)
	out.SEODescription = get(SectionSEODescription)
	out.Tags = splitTags(get(SectionTags))
	out.ArticleHTML = get(SectionArticleHTML)
	out.ImageFilename = get(SectionImageFilename)
	out.ImageAltText = get(SectionImageAltText)
	out.ImageCaption = get(SectionImageCaption)
	out.ImagePrompt = get(SectionImagePrompt)
	return out
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
