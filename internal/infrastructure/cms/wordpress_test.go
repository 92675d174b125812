package cms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/ports"
)

type fakeSite struct {
	mu        sync.Mutex
	tagPosts  []string
	tagLists  int
	lastPost  postPayload
	seo       map[string]string
	seoPath   string
	uploadAlt string
	uploadFn  string
}

func (f *fakeSite) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/wp-json/wp/v2/tags", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method == http.MethodGet {
			f.tagLists++
			w.Header().Set("X-WP-TotalPages", "2")
			if r.URL.Query().Get("page") == "1" {
				_, _ = io.WriteString(w, `[{"id":3,"name":"Lawn"}]`)
				return
			}
			_, _ = io.WriteString(w, `[{"id":4,"name":"Irrigation"}]`)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.tagPosts = append(f.tagPosts, body["name"])
		if body["name"] == "Mulch" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"code":"term_exists","message":"exists","data":{"status":400,"term_id":77}}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":50,"name":"`+body["name"]+`"}`)
	})
	mux.HandleFunc("/wp-json/wp/v2/media", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if r.URL.Query().Get("slug") == "desert-lawn" {
				_, _ = io.WriteString(w, `[{"id":9,"source_url":"https://cdn/desert-lawn.png"}]`)
				return
			}
			_, _ = io.WriteString(w, `[]`)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		_ = file.Close()
		f.mu.Lock()
		f.uploadAlt = r.FormValue("alt_text")
		f.uploadFn = header.Filename
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":12,"source_url":"https://cdn/new.png"}`)
	})
	mux.HandleFunc("/wp-json/wp/v2/posts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if r.URL.Query().Get("slug") == "existing" {
				_, _ = io.WriteString(w, `[{"id":5,"link":"https://site/existing/"}]`)
				return
			}
			_, _ = io.WriteString(w, `[]`)
			return
		}
		f.mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&f.lastPost)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":21,"link":"https://site/new-post/"}`)
	})
	mux.HandleFunc("/wp-json/yardbonita/v1/yoast-meta/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.seoPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&f.seo)
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true}`)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, p, ok := r.BasicAuth(); !ok || u != "editor" || p != "app pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func newTestWordPress(t *testing.T) (*WordPress, *fakeSite) {
	t.Helper()
	site := &fakeSite{}
	srv := httptest.NewServer(site.handler(t))
	t.Cleanup(srv.Close)
	return NewWordPress(config.WordPressConfig{BaseURL: srv.URL + "/", User: "editor", AppPassword: "app pass"}), site
}

func TestGetOrCreateTag(t *testing.T) {
	t.Parallel()

	wp, site := newTestWordPress(t)
	ctx := context.Background()

	cases := []struct {
		name string
		want int64
	}{
		{"lawn", 3},
		{"IRRIGATION", 4},
		{"Mulch", 77},
		{"Xeriscape", 50},
		{"xeriscape", 50},
	}
	for _, tc := range cases {
		got, err := wp.GetOrCreateTag(ctx, tc.name)
		if err != nil || got != tc.want {
			t.Fatalf("GetOrCreateTag(%q) = %d, %v; want %d", tc.name, got, err, tc.want)
		}
	}
	if site.tagLists != 2 {
		t.Fatalf("tag list fetched %d times", site.tagLists)
	}
	if diff := cmp.Diff([]string{"Mulch", "Xeriscape"}, site.tagPosts); diff != "" {
		t.Fatalf("created tags (-want +got):\n%s", diff)
	}
}

func TestMedia(t *testing.T) {
	t.Parallel()

	wp, site := newTestWordPress(t)
	ctx := context.Background()

	m, found, err := wp.FindMedia(ctx, "desert-lawn")
	if err != nil || !found || m.ID != 9 {
		t.Fatalf("FindMedia = %+v, %v, %v", m, found, err)
	}
	if _, found, err := wp.FindMedia(ctx, "missing"); err != nil || found {
		t.Fatalf("FindMedia(missing) = %v, %v", found, err)
	}

	m, err = wp.UploadMedia(ctx, []byte("PNG"), "photo-2.png", "A lawn at dusk")
	if err != nil || m.ID != 12 || m.URL != "https://cdn/new.png" {
		t.Fatalf("UploadMedia = %+v, %v", m, err)
	}
	if site.uploadAlt != "A lawn at dusk" || site.uploadFn != "photo-2.png" {
		t.Fatalf("upload alt=%q filename=%q", site.uploadAlt, site.uploadFn)
	}
}

func TestPosts(t *testing.T) {
	t.Parallel()

	wp, site := newTestWordPress(t)
	ctx := context.Background()

	p, found, err := wp.FindPost(ctx, "existing")
	if err != nil || !found || p.URL != "https://site/existing/" {
		t.Fatalf("FindPost = %+v, %v, %v", p, found, err)
	}

	created, err := wp.CreatePost(ctx, ports.Post{
		Title:          "New Post",
		Slug:           "new-post",
		Content:        "<p>hi</p>",
		Status:         "publish",
		CategoryIDs:    []int64{7},
		FeaturedMedia:  12,
		Author:         "Tina Delgado",
		Tier:           "Tier 1",
		SEOTitle:       "SEO",
		SEODescription: "Desc",
		FocusKeyphrase: "new post",
	})
	if err != nil || created.ID != 21 {
		t.Fatalf("CreatePost = %+v, %v", created, err)
	}
	want := postPayload{
		Title:         "New Post",
		Slug:          "new-post",
		Content:       "<p>hi</p>",
		Status:        "publish",
		Categories:    []int64{7},
		Tags:          []int64{},
		FeaturedMedia: 12,
		Meta:          map[string]string{"custom_author": "Tina Delgado", "tier": "Tier 1"},
		MetaInput: map[string]string{
			"_yoast_wpseo_title":    "SEO",
			"_yoast_wpseo_metadesc": "Desc",
			"_yoast_wpseo_focuskw":  "new post",
		},
	}
	if diff := cmp.Diff(want, site.lastPost); diff != "" {
		t.Fatalf("post payload (-want +got):\n%s", diff)
	}

	if err := wp.UpdateSEOMeta(ctx, 21, "SEO", "Desc", "new post"); err != nil {
		t.Fatalf("UpdateSEOMeta: %v", err)
	}
	if site.seoPath != "/wp-json/yardbonita/v1/yoast-meta/21" || site.seo["focuskw"] != "new post" {
		t.Fatalf("seo call %s %v", site.seoPath, site.seo)
	}
}

func TestCreatePostValidation(t *testing.T) {
	t.Parallel()

	wp, _ := newTestWordPress(t)
	_, err := wp.CreatePost(context.Background(), ports.Post{Title: "x", Slug: "x", Content: "c", Status: "publish"})
	if err == nil || !strings.Contains(err.Error(), "invalid post") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUnauthorized(t *testing.T) {
	t.Parallel()

	_, site := newTestWordPress(t)
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	wp := NewWordPress(config.WordPressConfig{BaseURL: srv.URL, User: "editor", AppPassword: "wrong"})
	if _, _, err := wp.FindPost(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401, got %v", err)
	}
}
