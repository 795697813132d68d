package publish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/hewalbot/internal/model"
)

func newTestTumblr(t *testing.T, serverURL string) *TumblrPlatform {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	p := NewTumblrPlatform(logger, "ck", "cs", "tok", "ts", "testblog", 0)
	p.baseURL = serverURL
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func translatedArticle(url, imageURL string) *model.Article {
	return &model.Article{
		URL:        url,
		Title:      "Original headline",
		TitleKu:    "ناونیشانی وەرگێڕدراو",
		SummaryKu:  "پوختەی وەرگێڕدراو",
		CategoryKu: "گشتی",
		Source:     "Example News",
		ImageURL:   imageURL,
		Status:     model.StatusTranslated,
		Tags:       []string{"هەواڵ", "جیهان", "گشتی"},
	}
}

func TestTumblrPublish_PhotoPostVerified(t *testing.T) {
	var createForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/blog/testblog/post":
			_ = r.ParseForm()
			createForm = map[string]string{
				"type":   r.PostFormValue("type"),
				"source": r.PostFormValue("source"),
				"tags":   r.PostFormValue("tags"),
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"meta": {"status": 201, "msg": "Created"}, "response": {"id_string": "12345"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/blog/testblog/posts":
			if r.URL.Query().Get("id") != "12345" {
				t.Errorf("検証のid = %s, want 12345", r.URL.Query().Get("id"))
			}
			_, _ = w.Write([]byte(`{"meta": {"status": 200}, "response": {"posts": [{"id_string": "12345", "post_url": "https://testblog.tumblr.com/post/12345"}]}}`))
		default:
			t.Errorf("想定外のリクエスト: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	p := newTestTumblr(t, server.URL)
	article := translatedArticle("https://example.com/a", "https://example.com/a.jpg")

	result, err := p.Publish(context.Background(), article, "")
	if err != nil {
		t.Fatalf("Publish() error = %v, want nil", err)
	}
	if result.PostID != "12345" {
		t.Errorf("PostID = %s, want 12345", result.PostID)
	}
	if result.Permalink != "https://testblog.tumblr.com/post/12345" {
		t.Errorf("Permalink = %s, want https://testblog.tumblr.com/post/12345", result.Permalink)
	}
	if createForm["type"] != "photo" {
		t.Errorf("type = %s, want photo", createForm["type"])
	}
	if createForm["source"] != "https://example.com/a.jpg" {
		t.Errorf("source = %s, want 画像URL", createForm["source"])
	}
	if createForm["tags"] != "گشتی,Example News,هەواڵ,جیهان,گشتی" {
		t.Errorf("tags = %s, want カテゴリラベル・配信元・生成タグのカンマ区切り", createForm["tags"])
	}
}

func TestBuildTags_SkipsEmptyElements(t *testing.T) {
	article := translatedArticle("https://example.com/a", "")
	article.Source = ""
	article.Tags = []string{"هەواڵ", "", "جیهان"}

	got := buildTags(article)
	want := []string{"گشتی", "هەواڵ", "جیهان"}
	if len(got) != len(want) {
		t.Fatalf("len(tags) = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tags[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestTumblrPublish_TextPostWithoutImage(t *testing.T) {
	var gotType, gotTitle string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = r.ParseForm()
			gotType = r.PostFormValue("type")
			gotTitle = r.PostFormValue("title")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"meta": {"status": 201}, "response": {"id_string": "1"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"meta": {"status": 200}, "response": {"posts": [{"id_string": "1", "post_url": "https://testblog.tumblr.com/post/1"}]}}`))
	}))
	defer server.Close()

	p := newTestTumblr(t, server.URL)
	article := translatedArticle("https://example.com/a", "")

	if _, err := p.Publish(context.Background(), article, ""); err != nil {
		t.Fatalf("Publish() error = %v, want nil", err)
	}
	if gotType != "text" {
		t.Errorf("type = %s, want text", gotType)
	}
	if gotTitle != article.TitleKu {
		t.Errorf("title = %s, want %s", gotTitle, article.TitleKu)
	}
}

func TestTumblrPublish_DroppedWhenNoID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"meta": {"status": 201}, "response": {}}`))
	}))
	defer server.Close()

	p := newTestTumblr(t, server.URL)
	_, err := p.Publish(context.Background(), translatedArticle("https://example.com/a", ""), "")

	var pErr *model.PipelineError
	if !errors.As(err, &pErr) {
		t.Fatalf("error型 = %T, want *model.PipelineError", err)
	}
	if pErr.Code != model.ErrCodePostDropped {
		t.Errorf("Code = %s, want %s", pErr.Code, model.ErrCodePostDropped)
	}
}

func TestTumblrPublish_VerifyFailedWhenMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"meta": {"status": 201}, "response": {"id_string": "12345"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"meta": {"status": 200}, "response": {"posts": []}}`))
	}))
	defer server.Close()

	p := newTestTumblr(t, server.URL)
	_, err := p.Publish(context.Background(), translatedArticle("https://example.com/a", ""), "")

	var pErr *model.PipelineError
	if !errors.As(err, &pErr) {
		t.Fatalf("error型 = %T, want *model.PipelineError", err)
	}
	if pErr.Code != model.ErrCodeVerifyFailed {
		t.Errorf("Code = %s, want %s", pErr.Code, model.ErrCodeVerifyFailed)
	}
}

func TestTumblrPublish_CreateErrorIsPlainFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := newTestTumblr(t, server.URL)
	_, err := p.Publish(context.Background(), translatedArticle("https://example.com/a", ""), "")
	if err == nil {
		t.Fatal("Publish() error = nil, want error")
	}

	var pErr *model.PipelineError
	if errors.As(err, &pErr) {
		t.Errorf("作成失敗はPipelineErrorではなく通常エラーであるべき: %v", err)
	}
}

func TestBuildCaption_EscapesHTML(t *testing.T) {
	p := newTestTumblr(t, "http://unused")
	article := translatedArticle("https://example.com/a?x=1&y=2", "")
	article.TitleKu = "<script>ناونیشان</script>"

	caption := p.buildCaption(article)
	if strings.Contains(caption, "<script>") {
		t.Error("キャプションにエスケープされていないHTMLが含まれています")
	}
	if !strings.Contains(caption, "&lt;script&gt;") {
		t.Error("タイトルがHTMLエスケープされていません")
	}
}
