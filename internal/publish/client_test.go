package publish

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"autopost/internal/config"
	logx "autopost/pkg/logx"
)

func TestPublishEncodesForm(t *testing.T) {
	t.Parallel()
	var (
		values      map[string][]string
		userAgent   string
		apiKey      string
		contentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		values = r.PostForm
		userAgent = r.Header.Get("User-Agent")
		apiKey = r.Header.Get("x-api-key")
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(config.PublishConfig{
		Endpoint:     srv.URL + "/posts",
		APIKey:       "sekrit",
		UserID:       "42",
		CategoryID:   "7",
		State:        "published",
		City:         "Berlin",
		Device:       "bot",
		CountriesISO: []string{"de", "us"},
	}, logx.Nop())

	err := c.Publish(context.Background(), Request{
		Title:     "hello",
		Content:   "body text",
		Hashtags:  []string{"go", "testing"},
		MediaURLs: []string{"https://cdn.example/img.png"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	single := map[string]string{
		"title":       "hello",
		"category_id": "7",
		"state":       "published",
		"device":      "bot",
		"city":        "Berlin",
		"user_id":     "42",
		"content":     "body text",
	}
	for name, want := range single {
		if got := values[name]; len(got) != 1 || got[0] != want {
			t.Fatalf("field %s = %v, want [%s]", name, got, want)
		}
	}
	if want := []string{"de", "us"}; !reflect.DeepEqual(values["countries_iso[]"], want) {
		t.Fatalf("countries_iso[] = %v, want %v", values["countries_iso[]"], want)
	}
	if want := []string{"go", "testing"}; !reflect.DeepEqual(values["hashtags[]"], want) {
		t.Fatalf("hashtags[] = %v, want %v", values["hashtags[]"], want)
	}
	if want := []string{"https://cdn.example/img.png"}; !reflect.DeepEqual(values["media_files_urls[]"], want) {
		t.Fatalf("media_files_urls[] = %v, want %v", values["media_files_urls[]"], want)
	}
	if userAgent != "autopost/1.0" {
		t.Fatalf("User-Agent = %q", userAgent)
	}
	if apiKey != "sekrit" {
		t.Fatalf("x-api-key = %q", apiKey)
	}
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		t.Fatalf("Content-Type = %q, want multipart/form-data", contentType)
	}
}

func TestPublishEmptyHashtagsKeepsArrayKey(t *testing.T) {
	t.Parallel()
	var values map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		values = r.PostForm
	}))
	defer srv.Close()

	c := NewClient(config.PublishConfig{Endpoint: srv.URL}, logx.Nop())
	if err := c.Publish(context.Background(), Request{Content: "bare"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if want := []string{""}; !reflect.DeepEqual(values["hashtags[]"], want) {
		t.Fatalf("hashtags[] = %v, want one empty entry", values["hashtags[]"])
	}
	if _, present := values["media_files_urls[]"]; present {
		t.Fatal("media_files_urls[] sent despite no media")
	}
}

func TestPublishRejectsErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "validation failed: missing title", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(config.PublishConfig{Endpoint: srv.URL}, logx.Nop())
	err := c.Publish(context.Background(), Request{Content: "x"})
	if err == nil {
		t.Fatal("Publish accepted a 422")
	}
	if !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("error %q lacks status and body snippet", err)
	}
}

func TestPublishDryRun(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(config.PublishConfig{Endpoint: srv.URL, DryRun: true}, logx.Nop())
	if err := c.Publish(context.Background(), Request{Content: "kept local"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := calls.Load(); got != 0 {
		t.Fatalf("server called %d times in dry run", got)
	}
	if !c.Ping(context.Background()) {
		t.Fatal("Ping must succeed in dry run")
	}
}

func TestPublishNoEndpoint(t *testing.T) {
	t.Parallel()
	c := NewClient(config.PublishConfig{}, logx.Nop())
	err := c.Publish(context.Background(), Request{Content: "x"})
	if !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("err = %v, want ErrNoEndpoint", err)
	}
}

func TestPingTargets(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		endpoint string
		want     []string
	}{
		{
			name:     "endpoint with path",
			endpoint: "https://api.example.com/v1/posts",
			want: []string{
				"https://api.example.com/v1/ping",
				"https://api.example.com/v1/health",
				"https://api.example.com/v1/status",
				"https://api.example.com/v1",
			},
		},
		{
			name:     "bare host",
			endpoint: "https://api.example.com",
			want: []string{
				"https://api.example.com/ping",
				"https://api.example.com/health",
				"https://api.example.com/status",
				"https://api.example.com",
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(config.PublishConfig{Endpoint: tt.endpoint}, logx.Nop())
			if got := c.pingTargets(); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("pingTargets() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPingFindsHealthPath(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(config.PublishConfig{Endpoint: srv.URL + "/posts"}, logx.Nop())
	if !c.Ping(context.Background()) {
		t.Fatal("Ping = false with a live /health")
	}
}

func TestPingAuthRejectionCountsAsReachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(config.PublishConfig{Endpoint: srv.URL + "/posts"}, logx.Nop())
	if !c.Ping(context.Background()) {
		t.Fatal("Ping = false though the API answers with 401")
	}
}

func TestPingFallsBackToProbe(t *testing.T) {
	t.Parallel()
	var probed atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/posts" {
			probed.Store(true)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(config.PublishConfig{Endpoint: srv.URL + "/posts"}, logx.Nop())
	if !c.Ping(context.Background()) {
		t.Fatal("Ping = false though the probe POST got an auth answer")
	}
	if !probed.Load() {
		t.Fatal("probe POST never reached the endpoint")
	}
}

func TestPingUnreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(config.PublishConfig{Endpoint: srv.URL + "/posts"}, logx.Nop())
	if c.Ping(context.Background()) {
		t.Fatal("Ping = true though every path 404s")
	}
	if NewClient(config.PublishConfig{}, logx.Nop()).Ping(context.Background()) {
		t.Fatal("Ping = true with no endpoint")
	}
}
