package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNotify(t *testing.T) {
	t.Parallel()

	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseForm()
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
	}))
	defer srv.Close()

	n := NewNotifier("tok", "42")
	n.apiBase = srv.URL
	if err := n.Notify(context.Background(), "Batch submitted", "Batch ID: b1"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotPath != "/bottok/sendMessage" || gotChat != "42" || gotText != "Batch submitted\n\nBatch ID: b1" {
		t.Fatalf("path=%s chat=%s text=%q", gotPath, gotChat, gotText)
	}
}

func TestNotifyTruncatesAndReportsErrors(t *testing.T) {
	t.Parallel()

	var gotLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotLen = len(r.PostForm.Get("text"))
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier("tok", "42")
	n.apiBase = srv.URL
	err := n.Notify(context.Background(), "Posts published", strings.Repeat("x", 5000))
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected 400 error, got %v", err)
	}
	if gotLen != maxMessageLen {
		t.Fatalf("text length = %d", gotLen)
	}

	if err := NewNotifier("", "").Notify(context.Background(), "s", "b"); err == nil {
		t.Fatal("expected misconfigured error")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("é", 3000)
	got := truncate(text, maxMessageLen)
	if len(got) > maxMessageLen || !utf8.ValidString(got) || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate gave %d bytes, valid=%v", len(got), utf8.ValidString(got))
	}
	if short := truncate("hello", maxMessageLen); short != "hello" {
		t.Fatalf("short text changed: %q", short)
	}
}
