package content

import (
	"fmt"
	"html"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	nethtml "golang.org/x/net/html"

	"ContentPipeline/internal/domain"
)

// Placement directives for the injected image block.
const (
	PlacementAfterIntro    = "after_intro"
	PlacementSectionPrefix = "after_section_"
	ImageBlockClass        = "article-image"
	RelatedBlockClass      = "related-articles"
	AuthorBylineBlockClass = "author-byline"
)

var (
	textPolicy = func() *bluemonday.Policy {
		p := bluemonday.StrictPolicy()
		p.AddSpaceWhenStrippingTag(true)
		return p
	}()
	bioPolicy = bluemonday.UGCPolicy()

	introHeadingExpr = regexp.MustCompile(`(?i)^<h2>\s*introduction\s*</h2>\s*`)

	mojibake = strings.NewReplacer(
		"â€”", "—",
		"â€“", "–",
		"â€˜", "‘",
		"â€™", "’",
		"â€œ", "“",
		"â€\u009d", "”",
		"â€¦", "…",
		"‚Äî", "—",
		"‚Äôs", "’s",
		"‚Äù", "”",
		"‚Äì", "–",
		"Ã©", "é",
	)
)

// WordCount strips markup and counts whitespace-delimited tokens.
func WordCount(markup string) int {
	return len(strings.Fields(html.UnescapeString(textPolicy.Sanitize(markup))))
}

// RandomPlacement picks after_intro half of the time, otherwise a section 2-4.
func RandomPlacement(r *rand.Rand) string {
	if r.Float64() < 0.5 {
		return PlacementAfterIntro
	}
	return fmt.Sprintf("%s%d", PlacementSectionPrefix, 2+r.IntN(3))
}

// ImageBlock renders the figure inserted into the body.
func ImageBlock(filename, alt, caption string) string {
	return fmt.Sprintf("<figure class=%q>\n<img src=\"%s\" alt=\"%s\">\n<figcaption>%s</figcaption>\n</figure>",
		ImageBlockClass,
		html.EscapeString(filename),
		html.EscapeString(alt),
		html.EscapeString(caption))
}

// InjectImage places block according to the directive. A missing anchor or an
// unknown directive appends the block at the end. Bodies that already carry
// an image block are returned unchanged.
func InjectImage(body, block, placement string) string {
	body = strings.TrimSpace(body)
	if hasBlock(body, "figure", ImageBlockClass) {
		return body
	}

	pos := -1
	switch {
	case placement == PlacementAfterIntro:
		pos = endOfNth(body, "p", 1)
	case strings.HasPrefix(placement, PlacementSectionPrefix):
		if n, err := strconv.Atoi(strings.TrimPrefix(placement, PlacementSectionPrefix)); err == nil && n > 0 {
			pos = endOfNth(body, "h2", n)
		}
	}

	if pos < 0 {
		return body + "\n" + block
	}
	return body[:pos] + "\n" + block + body[pos:]
}

// BuildFooter renders the related-links and author-bio blocks. Either block
// is omitted when its input is empty.
func BuildFooter(related []domain.RelatedArticle, bio string) (relatedHTML, bioHTML string) {
	if len(related) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "<div class=%q>\n<p><strong>Related</strong></p>\n<ul>", RelatedBlockClass)
		for _, item := range related {
			fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>", html.EscapeString(item.URL), html.EscapeString(item.Title))
		}
		b.WriteString("</ul>\n</div>")
		relatedHTML = b.String()
	}

	if bio = strings.TrimSpace(bio); bio != "" {
		bioHTML = fmt.Sprintf("<div class=%q>\n  <p><strong>About the Author</strong></p>\n  <div>%s</div>\n</div>",
			AuthorBylineBlockClass, bioPolicy.Sanitize(bio))
	}
	return relatedHTML, bioHTML
}

// AppendFooter appends each footer block unless the body already has one.
func AppendFooter(body string, related []domain.RelatedArticle, bio string) string {
	relatedHTML, bioHTML := BuildFooter(related, bio)

	var blocks []string
	if relatedHTML != "" && !hasBlock(body, "div", RelatedBlockClass) {
		blocks = append(blocks, relatedHTML)
	}
	if bioHTML != "" && !hasBlock(body, "div", AuthorBylineBlockClass) {
		blocks = append(blocks, bioHTML)
	}
	if len(blocks) == 0 {
		return body
	}
	return strings.TrimSpace(body) + "\n\n" + strings.Join(blocks, "\n\n")
}

// HasByline reports whether body already carries an author-bio block.
func HasByline(body string) bool {
	return hasBlock(body, "div", AuthorBylineBlockClass)
}

// StripFooter removes the related-links and author-bio blocks so a body can
// be footed again. Everything else is kept byte-for-byte.
func StripFooter(body string) string {
	z := nethtml.NewTokenizer(strings.NewReader(body))
	var b strings.Builder
	depth := 0
	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			break
		}
		raw := string(z.Raw())
		if tt != nethtml.StartTagToken && tt != nethtml.EndTagToken {
			if depth == 0 {
				b.WriteString(raw)
			}
			continue
		}
		tok := z.Token()
		switch {
		case tok.Data != "div":
		case tt == nethtml.EndTagToken && depth > 0:
			depth--
			continue
		case depth > 0:
			depth++
		case isFooterClass(attr(tok, "class")):
			depth = 1
			continue
		}
		if depth == 0 {
			b.WriteString(raw)
		}
	}
	return strings.TrimSpace(b.String())
}

func isFooterClass(class string) bool {
	for _, c := range strings.Fields(class) {
		if c == RelatedBlockClass || c == AuthorBylineBlockClass {
			return true
		}
	}
	return false
}

// LinkRelatedTitles wraps the first plain-text mention of each related title
// in a link to its URL. Mentions inside existing links are left alone and a
// URL already linked from the body is skipped.
func LinkRelatedTitles(body string, related []domain.RelatedArticle) string {
	for _, item := range related {
		title := strings.TrimSpace(item.Title)
		url := strings.TrimSpace(item.URL)
		if title == "" || url == "" || url == "None" {
			continue
		}
		if strings.Contains(body, `href="`+url+`"`) || strings.Contains(body, `href="`+html.EscapeString(url)+`"`) {
			continue
		}
		body = linkFirstMention(body, titleExpr(title), url)
	}
	return body
}

// RewriteFirstImage points the first <img> referencing filename at url. When
// no image references filename the first image in the body is used. Only one
// tag is touched.
func RewriteFirstImage(body, filename, url string) (string, bool) {
	type span struct {
		start, end int
		tok        nethtml.Token
	}

	var (
		images []span
		offset int
	)
	z := nethtml.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			break
		}
		raw := len(z.Raw())
		if tt == nethtml.StartTagToken || tt == nethtml.SelfClosingTagToken {
			tok := z.Token()
			if tok.Data == "img" {
				images = append(images, span{start: offset, end: offset + raw, tok: tok})
			}
		}
		offset += raw
	}
	if len(images) == 0 {
		return body, false
	}

	chosen := images[0]
	if filename != "" {
		for _, img := range images {
			if strings.Contains(attr(img.tok, "src"), filename) {
				chosen = img
				break
			}
		}
	}

	replaced := false
	for i := range chosen.tok.Attr {
		if chosen.tok.Attr[i].Key == "src" {
			chosen.tok.Attr[i].Val = url
			replaced = true
		}
	}
	if !replaced {
		chosen.tok.Attr = append(chosen.tok.Attr, nethtml.Attribute{Key: "src", Val: url})
	}
	return body[:chosen.start] + chosen.tok.String() + body[chosen.end:], true
}

// Normalize drops a leading "Introduction" heading and repairs common
// mis-decoded punctuation sequences.
func Normalize(body string) string {
	body = introHeadingExpr.ReplaceAllString(strings.TrimSpace(body), "")
	return mojibake.Replace(body)
}

func hasBlock(body, tag, class string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return strings.Contains(body, `class="`+class+`"`)
	}
	return doc.Find(tag + "." + class).Length() > 0
}

// endOfNth returns the byte offset right after the n-th closing tag, or -1.
func endOfNth(body, tag string, n int) int {
	z := nethtml.NewTokenizer(strings.NewReader(body))
	offset, seen := 0, 0
	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			return -1
		}
		offset += len(z.Raw())
		if tt != nethtml.EndTagToken {
			continue
		}
		name, _ := z.TagName()
		if string(name) == tag {
			seen++
			if seen == n {
				return offset
			}
		}
	}
}

func linkFirstMention(body string, expr *regexp.Regexp, url string) string {
	z := nethtml.NewTokenizer(strings.NewReader(body))
	offset, anchorDepth := 0, 0
	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			return body
		}
		raw := string(z.Raw())
		switch tt {
		case nethtml.StartTagToken:
			if name, _ := z.TagName(); string(name) == "a" {
				anchorDepth++
			}
		case nethtml.EndTagToken:
			if name, _ := z.TagName(); string(name) == "a" && anchorDepth > 0 {
				anchorDepth--
			}
		case nethtml.TextToken:
			if anchorDepth == 0 {
				if loc := expr.FindStringIndex(raw); loc != nil {
					start, end := offset+loc[0], offset+loc[1]
					return body[:start] + `<a href="` + html.EscapeString(url) + `">` + body[start:end] + "</a>" + body[end:]
				}
			}
		}
		offset += len(raw)
	}
}

func titleExpr(title string) *regexp.Regexp {
	alts := []string{regexp.QuoteMeta(title)}
	if escaped := html.EscapeString(title); escaped != title {
		alts = append(alts, regexp.QuoteMeta(escaped))
	}

	runes := []rune(title)
	prefix, suffix := "", ""
	if isWord(runes[0]) {
		prefix = `\b`
	}
	if isWord(runes[len(runes)-1]) {
		suffix = `\b`
	}
	return regexp.MustCompile(`(?i)` + prefix + `(?:` + strings.Join(alts, "|") + `)` + suffix)
}

// isWord mirrors the ASCII definition regexp uses for \b.
func isWord(r rune) bool {
	return r < unicode.MaxASCII && (r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r))
}

func attr(tok nethtml.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
