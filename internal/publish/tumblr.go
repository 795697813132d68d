package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/hitoshi/hewalbot/internal/model"
)

// defaultTumblrBaseURL はTumblr API v2のベースURL。
const defaultTumblrBaseURL = "https://api.tumblr.com/v2"

// tumblrTimeout はTumblr APIリクエストのタイムアウト。
const tumblrTimeout = 30 * time.Second

// TumblrPlatform はTumblrへの投稿実装。
// 画像付き記事はphotoポスト、画像なしはtextポストとして投稿する。
// 投稿受理後、検証待機を挟んでIDで再照会し、実在を確認した場合のみ成功とする。
type TumblrPlatform struct {
	httpClient  *http.Client // OAuth1署名付きクライアント
	logger      *slog.Logger
	consumerKey string
	blogName    string
	verifyDelay time.Duration

	// テスト用に差し替え可能
	baseURL string
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewTumblrPlatform はTumblrPlatformの新しいインスタンスを生成する。
// リクエスト署名にはOAuth 1.0aを使用する。
func NewTumblrPlatform(logger *slog.Logger, consumerKey, consumerSecret, oauthToken, oauthSecret, blogName string, verifyDelay time.Duration) *TumblrPlatform {
	config := oauth1.NewConfig(consumerKey, consumerSecret)
	token := oauth1.NewToken(oauthToken, oauthSecret)
	client := config.Client(oauth1.NoContext, token)
	client.Timeout = tumblrTimeout

	return &TumblrPlatform{
		httpClient:  client,
		logger:      logger,
		consumerKey: consumerKey,
		blogName:    blogName,
		verifyDelay: verifyDelay,
		baseURL:     defaultTumblrBaseURL,
		sleep:       sleepWithContext,
	}
}

// Name はプラットフォーム識別子を返す。
func (p *TumblrPlatform) Name() string { return "tumblr" }

// createResponse はポスト作成APIのレスポンス。
type tumblrCreateResponse struct {
	Meta struct {
		Status int    `json:"status"`
		Msg    string `json:"msg"`
	} `json:"meta"`
	Response struct {
		IDString string `json:"id_string"`
	} `json:"response"`
}

// postsResponse はポスト照会APIのレスポンス。
type tumblrPostsResponse struct {
	Meta struct {
		Status int `json:"status"`
	} `json:"meta"`
	Response struct {
		Posts []struct {
			IDString string `json:"id_string"`
			PostURL  string `json:"post_url"`
		} `json:"posts"`
	} `json:"response"`
}

// Publish は記事をTumblrへ投稿し、再照会で実在を確認する。
// IDなしで受理された場合はドロップとして、再照会で見つからない場合は
// 検証失敗として、それぞれPipelineErrorを返す。
func (p *TumblrPlatform) Publish(ctx context.Context, article *model.Article, _ string) (*PostResult, error) {
	postID, err := p.createPost(ctx, article)
	if err != nil {
		return nil, err
	}
	if postID == "" {
		return nil, model.NewPostDroppedError(p.Name(), article.URL)
	}

	// 反映ラグを考慮して検証前に待機する
	if err := p.sleep(ctx, p.verifyDelay); err != nil {
		return nil, err
	}

	permalink, err := p.verifyPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Tumblrへの投稿を検証しました",
		slog.String("url", article.URL),
		slog.String("post_id", postID),
		slog.String("permalink", permalink),
	)
	return &PostResult{Platform: p.Name(), PostID: postID, Permalink: permalink}, nil
}

// createPost はポスト作成APIを呼び出し、受理されたポストIDを返す。
func (p *TumblrPlatform) createPost(ctx context.Context, article *model.Article) (string, error) {
	form := url.Values{}
	form.Set("tags", strings.Join(buildTags(article), ","))

	if article.ImageURL != "" {
		form.Set("type", "photo")
		form.Set("source", article.ImageURL)
		form.Set("caption", p.buildCaption(article))
		form.Set("link", article.URL)
	} else {
		form.Set("type", "text")
		form.Set("title", article.TitleKu)
		form.Set("body", p.buildCaption(article))
	}

	endpoint := fmt.Sprintf("%s/blog/%s/post", p.baseURL, p.blogName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("ポスト作成リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("Tumblr APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("Tumblr APIがステータス %d を返しました", resp.StatusCode)
	}

	var parsed tumblrCreateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return parsed.Response.IDString, nil
}

// verifyPost はポストIDで再照会し、実在する場合にパーマリンクを返す。
func (p *TumblrPlatform) verifyPost(ctx context.Context, postID string) (string, error) {
	endpoint := fmt.Sprintf("%s/blog/%s/posts?api_key=%s&id=%s",
		p.baseURL, p.blogName, url.QueryEscape(p.consumerKey), url.QueryEscape(postID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("検証リクエストの作成に失敗しました: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("検証リクエストの送信に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("検証レスポンスの読み取りに失敗しました: %w", err)
	}

	var parsed tumblrPostsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("検証レスポンスのパースに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK || len(parsed.Response.Posts) == 0 {
		return "", model.NewVerifyFailedError(p.Name(), postID)
	}

	return parsed.Response.Posts[0].PostURL, nil
}

// buildTags はポストのタグ一覧を組み立てる。
// カテゴリラベル、配信元名、生成タグの順。空要素は除外する。
func buildTags(article *model.Article) []string {
	tags := make([]string, 0, 2+len(article.Tags))
	if article.CategoryKu != "" {
		tags = append(tags, article.CategoryKu)
	}
	if article.Source != "" {
		tags = append(tags, article.Source)
	}
	for _, t := range article.Tags {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// buildCaption は投稿本文のHTMLを組み立てる。
// タイトル、要約、カテゴリラベル、出典リンクの順。
func (p *TumblrPlatform) buildCaption(article *model.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(article.TitleKu))
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(article.SummaryKu))
	fmt.Fprintf(&b, "<p>%s | %s</p>", html.EscapeString(article.CategoryKu), html.EscapeString(article.Source))
	fmt.Fprintf(&b, `<p><a href="%s">سەرچاوە</a></p>`, html.EscapeString(article.URL))
	return b.String()
}

// sleepWithContext はコンテキストキャンセルに応答するスリープ。
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
