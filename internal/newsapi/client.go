// Package newsapi はNewsAPI互換の検索APIクライアントを提供する。
// カテゴリディスクリプタに基づく検索リクエストの発行と、
// 複数APIキーの順次フェイルオーバーを含む。
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/hewalbot/internal/model"
)

const (
	// defaultBaseURL はNewsAPI v2のベースURL。
	defaultBaseURL = "https://newsapi.org/v2"
	// pageSize は1リクエストあたりの最大取得記事数。
	pageSize = 100
)

// Article は検索APIが返す記事のワイヤフォーマット。
type Article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	URLToImage  string    `json:"urlToImage"`
	PublishedAt time.Time `json:"publishedAt"`
}

// response は検索APIのレスポンス契約。
// 非okステータスの場合はmessageに理由が入る。
type response struct {
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	Articles []Article `json:"articles"`
}

// Client はNewsAPI互換APIのクライアント。
// 設定順に並んだ複数のAPIキーを保持し、キー起因の失敗時は次のキーで再試行する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	keys       []string
	limiter    *rate.Limiter
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// リクエストはレートリミッタで毎秒1件にペーシングされる。
func NewClient(httpClient *http.Client, logger *slog.Logger, keys []string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		keys:       keys,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		baseURL:    defaultBaseURL,
	}
}

// Search はカテゴリディスクリプタに基づいて1回の検索を実行する。
// APIキーを設定順に試行し、最初に成功したキーの結果を返す。
// キー起因のステータス（401/403/426/429）は次のキーで再試行し、
// 全キーが失敗した場合はexhaustionエラーを返す。
func (c *Client) Search(ctx context.Context, desc model.CategoryDescriptor, country string) ([]Article, error) {
	if len(c.keys) == 0 {
		return nil, model.NewKeysExhaustedError(desc.Code)
	}

	var lastErr error
	for i, key := range c.keys {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("レートリミッタの待機に失敗しました: %w", err)
		}

		articles, retryable, err := c.searchWithKey(ctx, desc, country, key)
		if err == nil {
			return articles, nil
		}

		lastErr = err
		if !retryable {
			return nil, model.NewSearchAPIError(desc.Code, err)
		}

		c.logger.Warn("APIキーが拒否されたため次のキーで再試行します",
			slog.String("category", string(desc.Code)),
			slog.Int("key_index", i),
			slog.String("error", err.Error()),
		)
	}

	c.logger.Error("設定済みの全APIキーが失敗しました",
		slog.String("category", string(desc.Code)),
		slog.Int("key_count", len(c.keys)),
		slog.String("last_error", lastErr.Error()),
	)
	return nil, model.NewKeysExhaustedError(desc.Code)
}

// searchWithKey は単一キーで検索リクエストを1回実行する。
// 第2戻り値は別キーでの再試行が意味を持つ失敗かどうかを示す。
func (c *Client) searchWithKey(ctx context.Context, desc model.CategoryDescriptor, country, apiKey string) ([]Article, bool, error) {
	reqURL, err := c.buildURL(desc, country, apiKey)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Hewalbot/1.0 News Pipeline")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("検索APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	// キー起因のステータスは次のキーで再試行する
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden,
		http.StatusUpgradeRequired, http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("検索APIがステータス %d を返しました", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("検索APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, false, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if parsed.Status != "ok" {
		return nil, false, fmt.Errorf("検索APIが非okステータスを返しました: %s", parsed.Message)
	}

	return parsed.Articles, false, nil
}

// buildURL はカテゴリディスクリプタから検索リクエストURLを構築する。
// top-headlinesは国コード+カテゴリ、everythingはフリーテキストクエリを使用する。
func (c *Client) buildURL(desc model.CategoryDescriptor, country, apiKey string) (string, error) {
	base, err := url.Parse(fmt.Sprintf("%s/%s", c.baseURL, desc.Endpoint))
	if err != nil {
		return "", fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	q := base.Query()
	q.Set("apiKey", apiKey)
	q.Set("pageSize", fmt.Sprintf("%d", pageSize))

	switch desc.Endpoint {
	case model.EndpointTopHeadlines:
		q.Set("country", country)
		q.Set("category", desc.APICategory)
	case model.EndpointEverything:
		q.Set("q", desc.Query)
		if desc.SearchIn != "" {
			q.Set("searchIn", desc.SearchIn)
		}
	default:
		return "", fmt.Errorf("未知のエンドポイントです: %s", desc.Endpoint)
	}

	base.RawQuery = q.Encode()
	return base.String(), nil
}
