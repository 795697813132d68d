// Package fulltext は記事URLからの本文抽出を提供する。
// 検索APIの要約が短すぎる記事に対する二次フェッチで使用される。
package fulltext

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/hitoshi/hewalbot/internal/security"
)

// fetchTimeout は本文取得のタイムアウト。
const fetchTimeout = 15 * time.Second

// HTTPDoer はHTTPリクエスト実行の抽象。テスト時にモックに差し替え可能。
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Extractor は記事ページから本文テキストを抽出する。
// go-readabilityで本文候補を抽出し、サニタイズ後に最小文字数で受理判定する。
type Extractor struct {
	ssrfGuard security.SSRFGuardService
	sanitizer security.ContentSanitizerService
	logger    *slog.Logger
	minLength int
	client    HTTPDoer // テスト用に差し替え可能。nilの場合はSSRF保護クライアントを使用
}

// NewExtractor はExtractorの新しいインスタンスを生成する。
// minLengthが0以下の場合はデフォルト値250を使用する。
func NewExtractor(
	ssrfGuard security.SSRFGuardService,
	sanitizer security.ContentSanitizerService,
	logger *slog.Logger,
	minLength int,
) *Extractor {
	if minLength <= 0 {
		minLength = 250
	}
	return &Extractor{
		ssrfGuard: ssrfGuard,
		sanitizer: sanitizer,
		logger:    logger,
		minLength: minLength,
	}
}

// Extract は記事URLをフェッチして本文テキストを抽出する。
// 抽出結果がminLength文字（rune数）未満の場合は抽出失敗としてエラーを返す。
// 呼び出し元は失敗した候補を破棄する（短すぎる本文での投稿は行わない）。
func (e *Extractor) Extract(ctx context.Context, articleURL string) (string, error) {
	if err := e.ssrfGuard.ValidateURL(articleURL); err != nil {
		return "", fmt.Errorf("記事URLの検証に失敗しました: %w", err)
	}

	parsed, err := url.Parse(articleURL)
	if err != nil {
		return "", fmt.Errorf("記事URLのパースに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Hewalbot/1.0 News Pipeline")

	client := e.client
	if client == nil {
		client = e.ssrfGuard.NewSafeClient(fetchTimeout)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("記事ページの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("記事ページがステータス %d を返しました", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return "", fmt.Errorf("本文の抽出に失敗しました: %w", err)
	}

	text := e.sanitizer.Sanitize(article.TextContent)
	if len([]rune(text)) < e.minLength {
		e.logger.Warn("抽出本文が短すぎるため候補を破棄します",
			slog.String("url", articleURL),
			slog.Int("length", len([]rune(text))),
			slog.Int("min_length", e.minLength),
		)
		return "", fmt.Errorf("抽出本文が最小文字数 %d に達していません: %d文字", e.minLength, len([]rune(text)))
	}

	return text, nil
}
