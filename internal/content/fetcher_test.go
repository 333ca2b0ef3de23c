package content

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"autopost/internal/config"
	logx "autopost/pkg/logx"
)

func TestExtractPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		path string
		want string
	}{
		{name: "top level", body: `{"content":"stay curious"}`, path: "content", want: "stay curious"},
		{name: "nested object", body: `{"slip":{"id":1,"advice":"drink water"}}`, path: "slip.advice", want: "drink water"},
		{name: "array in object", body: `{"facts":["dogs dream","extra"]}`, path: "facts.0", want: "dogs dream"},
		{name: "bare array root", body: `["serendipity"]`, path: "0", want: "serendipity"},
		{name: "number scalar", body: `{"slip":{"id":42}}`, path: "slip.id", want: "42"},
		{name: "missing key", body: `{"a":"b"}`, path: "content", want: ""},
		{name: "index out of range", body: `["one"]`, path: "3", want: ""},
		{name: "non-scalar leaf", body: `{"a":{"b":"c"}}`, path: "a", want: ""},
		{name: "trims whitespace", body: `{"text":"  padded  "}`, path: "text", want: "padded"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var data any
			if err := json.Unmarshal([]byte(tt.body), &data); err != nil {
				t.Fatalf("bad fixture: %v", err)
			}
			if got := extractPath(data, tt.path); got != tt.want {
				t.Fatalf("extractPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestFetchComposesPost(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"setup":"Why do programmers prefer dark mode?","punchline":"Because light attracts bugs."}`))
	}))
	defer srv.Close()

	f := NewFetcher(config.ContentConfig{
		Sources: []config.SourceConfig{{
			Name:         "Joke API",
			URL:          srv.URL,
			ContentKey:   "setup",
			PunchlineKey: "punchline",
		}},
	}, logx.Nop())

	post := f.Fetch(context.Background())
	if post.Source != "Joke API" {
		t.Fatalf("source = %q, want Joke API", post.Source)
	}
	want := "Why do programmers prefer dark mode?\nBecause light attracts bugs."
	if post.Content != want {
		t.Fatalf("content = %q, want %q", post.Content, want)
	}
}

func TestFetchAddsAuthorAndTitle(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":"Simple things should be simple.","author":"Alan Kay","type":"wisdom"}`))
	}))
	defer srv.Close()

	f := NewFetcher(config.ContentConfig{
		Sources: []config.SourceConfig{{
			Name:       "Quotes API",
			URL:        srv.URL,
			ContentKey: "content",
			AuthorKey:  "author",
			TitleKey:   "type",
		}},
	}, logx.Nop())

	post := f.Fetch(context.Background())
	if want := "Simple things should be simple. - Alan Kay"; post.Content != want {
		t.Fatalf("content = %q, want %q", post.Content, want)
	}
	if post.Title != "wisdom" {
		t.Fatalf("title = %q, want wisdom", post.Title)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"text":"second try"}`))
	}))
	defer srv.Close()

	f := NewFetcher(config.ContentConfig{
		Sources: []config.SourceConfig{{Name: "Facts", URL: srv.URL, ContentKey: "text"}},
	}, logx.Nop())

	post := f.Fetch(context.Background())
	if post.Content != "second try" {
		t.Fatalf("content = %q, want the retried response", post.Content)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("server called %d times, want 2", got)
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(config.ContentConfig{
		Sources: []config.SourceConfig{{Name: "Gone", URL: srv.URL, ContentKey: "text"}},
	}, logx.Nop())

	post := f.Fetch(context.Background())
	if post.Source != FallbackSource {
		t.Fatalf("source = %q, want fallback after a 404", post.Source)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("server called %d times, want 1 (4xx must not retry)", got)
	}
	found := false
	for _, m := range fallbackMessages {
		if m == post.Content {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("fallback content %q is not from the pool", post.Content)
	}
}

func TestFetchSkipsUnusableResponse(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"unexpected":"shape"}`))
	}))
	defer srv.Close()

	f := NewFetcher(config.ContentConfig{
		Sources: []config.SourceConfig{{Name: "Odd", URL: srv.URL, ContentKey: "text"}},
	}, logx.Nop())

	post := f.Fetch(context.Background())
	if post.Source != FallbackSource {
		t.Fatalf("source = %q, want fallback for an unusable response", post.Source)
	}
	// Extraction misses are content problems, not transport problems.
	if got := calls.Load(); got != 1 {
		t.Fatalf("server called %d times, want 1", got)
	}
}

func TestFallbackOnlySkipsNetwork(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"text":"never served"}`))
	}))
	defer srv.Close()

	f := NewFetcher(config.ContentConfig{
		Sources:      []config.SourceConfig{{Name: "Unused", URL: srv.URL, ContentKey: "text"}},
		FallbackOnly: true,
	}, logx.Nop())

	post := f.Fetch(context.Background())
	if post.Source != FallbackSource {
		t.Fatalf("source = %q, want fallback", post.Source)
	}
	if got := calls.Load(); got != 0 {
		t.Fatalf("server called %d times, want 0", got)
	}
}

func TestDefaultSourcesAreComplete(t *testing.T) {
	t.Parallel()
	sources := DefaultSources()
	if len(sources) != 7 {
		t.Fatalf("%d default sources, want 7", len(sources))
	}
	for _, src := range sources {
		if src.Name == "" || src.URL == "" || src.ContentKey == "" {
			t.Fatalf("incomplete source %+v", src)
		}
	}
}
