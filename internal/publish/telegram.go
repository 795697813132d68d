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
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/hewalbot/internal/model"
)

// defaultTelegramBaseURL はTelegram Bot APIのベースURL。
const defaultTelegramBaseURL = "https://api.telegram.org"

// telegramTimeout はTelegram APIリクエストのタイムアウト。
const telegramTimeout = 30 * time.Second

// telegramCaptionLimit はsendPhotoのキャプション上限（文字数）。
const telegramCaptionLimit = 1024

// TelegramPlatform はTelegramチャンネルへの投稿実装。
// 画像付き記事はsendPhoto、画像なしはsendMessageで投稿する。
// Bot APIには投稿の再照会手段がないため、message_idの返却を
// もって検証済みとみなす。
type TelegramPlatform struct {
	httpClient *http.Client
	logger     *slog.Logger
	botToken   string
	chatID     string
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewTelegramPlatform はTelegramPlatformの新しいインスタンスを生成する。
func NewTelegramPlatform(logger *slog.Logger, botToken, chatID string) *TelegramPlatform {
	return &TelegramPlatform{
		httpClient: &http.Client{Timeout: telegramTimeout},
		logger:     logger,
		botToken:   botToken,
		chatID:     chatID,
		baseURL:    defaultTelegramBaseURL,
	}
}

// Name はプラットフォーム識別子を返す。
func (p *TelegramPlatform) Name() string { return "telegram" }

// telegramResponse はBot APIのレスポンス。
type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// Publish は記事をTelegramへ投稿する。
// readMoreLinkが空でない場合は「続きを読む」導線に使用し、
// 空の場合は記事の元URLへリンクする。
func (p *TelegramPlatform) Publish(ctx context.Context, article *model.Article, readMoreLink string) (*PostResult, error) {
	link := readMoreLink
	if link == "" {
		link = article.URL
	}

	var method string
	form := url.Values{}
	form.Set("chat_id", p.chatID)
	form.Set("parse_mode", "HTML")

	if article.ImageURL != "" {
		method = "sendPhoto"
		form.Set("photo", article.ImageURL)
		form.Set("caption", p.buildCaption(article, link))
	} else {
		method = "sendMessage"
		form.Set("text", p.buildText(article, link))
		form.Set("disable_web_page_preview", "false")
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", p.baseURL, p.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("投稿リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Telegram APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var parsed telegramResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if !parsed.OK {
		return nil, fmt.Errorf("Telegram APIがエラーを返しました: %s", parsed.Description)
	}
	if parsed.Result.MessageID == 0 {
		return nil, model.NewPostDroppedError(p.Name(), article.URL)
	}

	postID := strconv.FormatInt(parsed.Result.MessageID, 10)
	p.logger.Info("Telegramへ投稿しました",
		slog.String("url", article.URL),
		slog.String("message_id", postID),
	)
	return &PostResult{Platform: p.Name(), PostID: postID}, nil
}

// buildText は投稿本文のHTMLを組み立てる。
func (p *TelegramPlatform) buildText(article *model.Article, link string) string {
	return p.renderText(article, article.SummaryKu, link)
}

// buildCaption はsendPhoto用のキャプションを組み立てる。
// 組み立て後のHTMLを切り詰めるとタグやエンティティの途中で切れる
// おそれがあるため、要約のみを先に切り詰めてから組み立てる。
// タイトル・カテゴリ行・リンクは常に完全な形で残る。
func (p *TelegramPlatform) buildCaption(article *model.Article, link string) string {
	overhead := utf8.RuneCountInString(p.renderText(article, "", link))
	budget := telegramCaptionLimit - overhead
	if budget < 0 {
		budget = 0
	}
	return p.renderText(article, truncateRunes(article.SummaryKu, budget), link)
}

// renderText はタイトル、要約、カテゴリ行、読み進めリンクの順で
// 投稿HTMLを描画する。
func (p *TelegramPlatform) renderText(article *model.Article, summary, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(article.TitleKu))
	fmt.Fprintf(&b, "%s\n\n", html.EscapeString(summary))
	fmt.Fprintf(&b, "%s | %s\n", html.EscapeString(article.CategoryKu), html.EscapeString(article.Source))
	fmt.Fprintf(&b, `<a href="%s">زیاتر بخوێنەوە</a>`, html.EscapeString(link))
	return b.String()
}

// truncateRunes は文字数（rune数）ベースで文字列を切り詰める。
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
