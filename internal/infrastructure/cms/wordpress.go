package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/ports"
)

// WordPress implements ports.CMSClient over the WordPress REST API with
// application-password basic auth.
type WordPress struct {
	baseURL  string
	user     string
	password string
	seoPath  string
	client   *http.Client
	validate *validator.Validate

	mu   sync.Mutex
	tags map[string]int64
}

var _ ports.CMSClient = (*WordPress)(nil)

// NewWordPress builds a client from configuration.
func NewWordPress(cfg config.WordPressConfig) *WordPress {
	seoPath := cfg.SEOPath
	if seoPath == "" {
		seoPath = "/wp-json/yardbonita/v1/yoast-meta"
	}
	return &WordPress{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		user:     cfg.User,
		password: cfg.AppPassword,
		seoPath:  strings.TrimRight(seoPath, "/"),
		client:   &http.Client{Timeout: 60 * time.Second},
		validate: validator.New(),
	}
}

type apiError struct {
	Code string `json:"code"`
	Data struct {
		TermID int64 `json:"term_id"`
	} `json:"data"`
}

type statusError struct {
	status int
	body   []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("wordpress error %d: %s", e.status, strings.TrimSpace(string(e.body)))
}

type mediaResponse struct {
	ID        int64  `json:"id"`
	SourceURL string `json:"source_url"`
}

// FindMedia looks up an attachment by slug.
func (w *WordPress) FindMedia(ctx context.Context, slug string) (ports.Media, bool, error) {
	var found []mediaResponse
	q := url.Values{"slug": {slug}}
	if err := w.getJSON(ctx, "/wp-json/wp/v2/media?"+q.Encode(), &found); err != nil {
		return ports.Media{}, false, fmt.Errorf("find media: %w", err)
	}
	if len(found) == 0 {
		return ports.Media{}, false, nil
	}
	return ports.Media{ID: found[0].ID, URL: found[0].SourceURL}, true, nil
}

// UploadMedia posts the image as multipart form data with its alt text.
func (w *WordPress) UploadMedia(ctx context.Context, data []byte, filename, altText string) (ports.Media, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mimeType(filename))
	part, err := form.CreatePart(header)
	if err != nil {
		return ports.Media{}, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return ports.Media{}, fmt.Errorf("write file part: %w", err)
	}
	if err := form.WriteField("alt_text", altText); err != nil {
		return ports.Media{}, fmt.Errorf("write alt text: %w", err)
	}
	if err := form.Close(); err != nil {
		return ports.Media{}, fmt.Errorf("close form: %w", err)
	}

	req, err := w.newRequest(ctx, http.MethodPost, "/wp-json/wp/v2/media", &body)
	if err != nil {
		return ports.Media{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Content-Disposition", "attachment; filename="+filename)

	var media mediaResponse
	if err := w.do(req, &media); err != nil {
		return ports.Media{}, fmt.Errorf("upload media: %w", err)
	}
	return ports.Media{ID: media.ID, URL: media.SourceURL}, nil
}

type tagResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// GetOrCreateTag resolves a tag case-insensitively, creating it when
// missing. Existing tags are loaded once per client.
func (w *WordPress) GetOrCreateTag(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("empty tag name")
	}
	key := strings.ToLower(name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.tags == nil {
		if err := w.loadTags(ctx); err != nil {
			return 0, err
		}
	}
	if id, ok := w.tags[key]; ok {
		return id, nil
	}

	var created tagResponse
	err := w.postJSON(ctx, "/wp-json/wp/v2/tags", map[string]string{"name": name}, &created)
	var se *statusError
	switch {
	case err == nil:
	case errors.As(err, &se) && se.status == http.StatusBadRequest:
		var apiErr apiError
		if jsonErr := json.Unmarshal(se.body, &apiErr); jsonErr != nil || apiErr.Code != "term_exists" || apiErr.Data.TermID == 0 {
			return 0, fmt.Errorf("create tag %q: %w", name, err)
		}
		created.ID = apiErr.Data.TermID
	default:
		return 0, fmt.Errorf("create tag %q: %w", name, err)
	}

	w.tags[key] = created.ID
	return created.ID, nil
}

func (w *WordPress) loadTags(ctx context.Context) error {
	tags := make(map[string]int64)
	for page := 1; ; page++ {
		req, err := w.newRequest(ctx, http.MethodGet, "/wp-json/wp/v2/tags?per_page=100&page="+strconv.Itoa(page), nil)
		if err != nil {
			return err
		}
		resp, err := w.client.Do(req)
		if err != nil {
			return fmt.Errorf("list tags: %w", err)
		}
		var batch []tagResponse
		err = decode(resp, &batch)
		if err != nil {
			return fmt.Errorf("list tags: %w", err)
		}
		for _, t := range batch {
			tags[strings.ToLower(t.Name)] = t.ID
		}
		total, _ := strconv.Atoi(resp.Header.Get("X-WP-TotalPages"))
		if page >= total || len(batch) == 0 {
			break
		}
	}
	w.tags = tags
	return nil
}

type postResponse struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

// FindPost looks up a post of any status by slug.
func (w *WordPress) FindPost(ctx context.Context, slug string) (ports.PublishedPost, bool, error) {
	var found []postResponse
	q := url.Values{"slug": {slug}, "status": {"publish,future,draft,pending,private"}}
	if err := w.getJSON(ctx, "/wp-json/wp/v2/posts?"+q.Encode(), &found); err != nil {
		return ports.PublishedPost{}, false, fmt.Errorf("find post: %w", err)
	}
	if len(found) == 0 {
		return ports.PublishedPost{}, false, nil
	}
	return ports.PublishedPost{ID: found[0].ID, URL: found[0].Link}, true, nil
}

type postPayload struct {
	Title         string            `json:"title"`
	Slug          string            `json:"slug"`
	Content       string            `json:"content"`
	Status        string            `json:"status"`
	Categories    []int64           `json:"categories"`
	Tags          []int64           `json:"tags"`
	FeaturedMedia int64             `json:"featured_media,omitempty"`
	Meta          map[string]string `json:"meta"`
	MetaInput     map[string]string `json:"meta_input"`
}

// CreatePost validates and creates the post.
func (w *WordPress) CreatePost(ctx context.Context, post ports.Post) (ports.PublishedPost, error) {
	if err := w.validate.Struct(post); err != nil {
		return ports.PublishedPost{}, fmt.Errorf("invalid post: %w", err)
	}

	tags := post.TagIDs
	if tags == nil {
		tags = []int64{}
	}
	payload := postPayload{
		Title:         post.Title,
		Slug:          post.Slug,
		Content:       post.Content,
		Status:        post.Status,
		Categories:    post.CategoryIDs,
		Tags:          tags,
		FeaturedMedia: post.FeaturedMedia,
		Meta: map[string]string{
			"custom_author": post.Author,
			"tier":          post.Tier,
		},
		MetaInput: map[string]string{
			"_yoast_wpseo_title":    post.SEOTitle,
			"_yoast_wpseo_metadesc": post.SEODescription,
			"_yoast_wpseo_focuskw":  post.FocusKeyphrase,
		},
	}

	var created postResponse
	if err := w.postJSON(ctx, "/wp-json/wp/v2/posts", payload, &created); err != nil {
		return ports.PublishedPost{}, fmt.Errorf("create post: %w", err)
	}
	return ports.PublishedPost{ID: created.ID, URL: created.Link}, nil
}

// UpdateSEOMeta writes the SEO plugin fields through the site's custom
// endpoint.
func (w *WordPress) UpdateSEOMeta(ctx context.Context, postID int64, title, description, focus string) error {
	path := fmt.Sprintf("%s/%d", w.seoPath, postID)
	body := map[string]string{"title": title, "metadesc": description, "focuskw": focus}
	if err := w.postJSON(ctx, path, body, nil); err != nil {
		return fmt.Errorf("update seo meta: %w", err)
	}
	return nil
}

func (w *WordPress) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if w.baseURL == "" {
		return nil, errors.New("wordpress client misconfigured")
	}
	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth(w.user, w.password)
	return req, nil
}

func (w *WordPress) getJSON(ctx context.Context, path string, v any) error {
	req, err := w.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return w.do(req, v)
}

func (w *WordPress) postJSON(ctx context.Context, path string, payload, v any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := w.newRequest(ctx, http.MethodPost, path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return w.do(req, v)
}

func (w *WordPress) do(req *http.Request, v any) error {
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	return decode(resp, v)
}

func decode(resp *http.Response, v any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{status: resp.StatusCode, body: payload}
	}
	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
