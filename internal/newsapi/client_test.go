package newsapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/hewalbot/internal/model"
)

// newTestClient はテスト用のクライアントを生成する。
// レートリミッタは無制限にしてテストの実行時間を短縮する。
func newTestClient(t *testing.T, serverURL string, keys []string) *Client {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	c := NewClient(&http.Client{Timeout: 5 * time.Second}, logger, keys)
	c.baseURL = serverURL
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func mustFindCategory(t *testing.T, code model.Category) model.CategoryDescriptor {
	t.Helper()

	desc, ok := model.FindCategory(code)
	if !ok {
		t.Fatalf("カテゴリ %s が未定義です", code)
	}
	return desc
}

func TestSearch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"totalResults": 2,
			"articles": [
				{
					"source": {"id": null, "name": "Example News"},
					"title": "First headline",
					"description": "First description",
					"content": "First content",
					"url": "https://example.com/a",
					"urlToImage": "https://example.com/a.jpg",
					"publishedAt": "2026-08-28T10:00:00Z"
				},
				{
					"source": {"id": null, "name": ""},
					"title": "Second headline",
					"description": "",
					"content": "",
					"url": "https://example.com/b",
					"urlToImage": "",
					"publishedAt": "2026-08-28T11:00:00Z"
				}
			]
		}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, []string{"key-1"})
	desc := mustFindCategory(t, model.CategoryGeneral)

	articles, err := c.Search(context.Background(), desc, "us")
	if err != nil {
		t.Fatalf("Search() error = %v, want nil", err)
	}
	if len(articles) != 2 {
		t.Fatalf("len(articles) = %d, want 2", len(articles))
	}
	if articles[0].URL != "https://example.com/a" {
		t.Errorf("articles[0].URL = %s, want https://example.com/a", articles[0].URL)
	}
	if articles[0].Source.Name != "Example News" {
		t.Errorf("articles[0].Source.Name = %s, want Example News", articles[0].Source.Name)
	}
	want := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	if !articles[0].PublishedAt.Equal(want) {
		t.Errorf("articles[0].PublishedAt = %v, want %v", articles[0].PublishedAt, want)
	}
}

func TestSearch_TopHeadlinesParams(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"apiKey":   r.URL.Query().Get("apiKey"),
			"country":  r.URL.Query().Get("country"),
			"category": r.URL.Query().Get("category"),
			"pageSize": r.URL.Query().Get("pageSize"),
		}
		_, _ = w.Write([]byte(`{"status": "ok", "articles": []}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, []string{"key-1"})
	desc := mustFindCategory(t, model.CategoryBusiness)

	if _, err := c.Search(context.Background(), desc, "us"); err != nil {
		t.Fatalf("Search() error = %v, want nil", err)
	}
	if gotQuery["apiKey"] != "key-1" {
		t.Errorf("apiKey = %s, want key-1", gotQuery["apiKey"])
	}
	if gotQuery["country"] != "us" {
		t.Errorf("country = %s, want us", gotQuery["country"])
	}
	if gotQuery["category"] != "business" {
		t.Errorf("category = %s, want business", gotQuery["category"])
	}
	if gotQuery["pageSize"] != "100" {
		t.Errorf("pageSize = %s, want 100", gotQuery["pageSize"])
	}
}

func TestSearch_EverythingParams(t *testing.T) {
	var gotPath string
	var gotQ, gotSearchIn string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQ = r.URL.Query().Get("q")
		gotSearchIn = r.URL.Query().Get("searchIn")
		_, _ = w.Write([]byte(`{"status": "ok", "articles": []}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, []string{"key-1"})
	desc := mustFindCategory(t, model.CategoryKurdistan)

	if _, err := c.Search(context.Background(), desc, "us"); err != nil {
		t.Fatalf("Search() error = %v, want nil", err)
	}
	if gotPath != "/everything" {
		t.Errorf("path = %s, want /everything", gotPath)
	}
	if gotQ != desc.Query {
		t.Errorf("q = %s, want %s", gotQ, desc.Query)
	}
	if gotSearchIn != "title,description" {
		t.Errorf("searchIn = %s, want title,description", gotSearchIn)
	}
}

func TestSearch_RotatesKeyOnRejection(t *testing.T) {
	rejectStatuses := []int{
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusUpgradeRequired,
		http.StatusTooManyRequests,
	}

	for _, status := range rejectStatuses {
		var usedKeys []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.URL.Query().Get("apiKey")
			usedKeys = append(usedKeys, key)
			if key == "dead-key" {
				w.WriteHeader(status)
				return
			}
			_, _ = w.Write([]byte(`{"status": "ok", "articles": [{"url": "https://example.com/a", "publishedAt": "2026-08-28T10:00:00Z"}]}`))
		}))

		c := newTestClient(t, server.URL, []string{"dead-key", "live-key"})
		desc := mustFindCategory(t, model.CategoryGeneral)

		articles, err := c.Search(context.Background(), desc, "us")
		if err != nil {
			t.Errorf("status %d: Search() error = %v, want nil", status, err)
		}
		if len(articles) != 1 {
			t.Errorf("status %d: len(articles) = %d, want 1", status, len(articles))
		}
		if len(usedKeys) != 2 || usedKeys[0] != "dead-key" || usedKeys[1] != "live-key" {
			t.Errorf("status %d: 試行されたキーの順序 = %v, want [dead-key live-key]", status, usedKeys)
		}
		server.Close()
	}
}

func TestSearch_AllKeysExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, []string{"key-1", "key-2", "key-3"})
	desc := mustFindCategory(t, model.CategoryGeneral)

	_, err := c.Search(context.Background(), desc, "us")
	if err == nil {
		t.Fatal("Search() error = nil, want exhaustion error")
	}

	var pErr *model.PipelineError
	if !errors.As(err, &pErr) {
		t.Fatalf("error型 = %T, want *model.PipelineError", err)
	}
	if pErr.Code != model.ErrCodeKeysExhausted {
		t.Errorf("Code = %s, want %s", pErr.Code, model.ErrCodeKeysExhausted)
	}
}

func TestSearch_ServerErrorDoesNotRotate(t *testing.T) {
	var requestCount int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, []string{"key-1", "key-2"})
	desc := mustFindCategory(t, model.CategoryGeneral)

	_, err := c.Search(context.Background(), desc, "us")
	if err == nil {
		t.Fatal("Search() error = nil, want error")
	}
	if requestCount != 1 {
		t.Errorf("リクエスト回数 = %d, want 1（サーバエラーではキーを回転しない）", requestCount)
	}

	var pErr *model.PipelineError
	if !errors.As(err, &pErr) {
		t.Fatalf("error型 = %T, want *model.PipelineError", err)
	}
	if pErr.Code != model.ErrCodeSearchAPIFailed {
		t.Errorf("Code = %s, want %s", pErr.Code, model.ErrCodeSearchAPIFailed)
	}
}

func TestSearch_NonOKStatusBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "error", "code": "parameterInvalid", "message": "invalid parameter"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, []string{"key-1"})
	desc := mustFindCategory(t, model.CategoryGeneral)

	_, err := c.Search(context.Background(), desc, "us")
	if err == nil {
		t.Fatal("Search() error = nil, want error")
	}
}

func TestSearch_NoKeysConfigured(t *testing.T) {
	c := newTestClient(t, "http://unused", nil)
	desc := mustFindCategory(t, model.CategoryGeneral)

	_, err := c.Search(context.Background(), desc, "us")
	var pErr *model.PipelineError
	if !errors.As(err, &pErr) {
		t.Fatalf("error型 = %T, want *model.PipelineError", err)
	}
	if pErr.Code != model.ErrCodeKeysExhausted {
		t.Errorf("Code = %s, want %s", pErr.Code, model.ErrCodeKeysExhausted)
	}
}
