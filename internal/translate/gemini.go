// Package translate は記事の翻訳ステージを提供する。
// fetched記事をチャンク単位で言語モデルに渡し、ソラニー語の
// タイトル・要約・タグを取得してtranslatedへ前進させる。
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// defaultGeminiBaseURL はGemini APIのベースURL。
const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiTimeout は1回の生成リクエストのタイムアウト。
// チャンク翻訳は長文になるため余裕を持たせる。
const geminiTimeout = 120 * time.Second

// GeminiClient はGemini generateContent APIのクライアント。
type GeminiClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	model      string
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewGeminiClient はGeminiClientの新しいインスタンスを生成する。
func NewGeminiClient(logger *slog.Logger, apiKey, model string) *GeminiClient {
	return &GeminiClient{
		httpClient: &http.Client{Timeout: geminiTimeout},
		logger:     logger,
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultGeminiBaseURL,
	}
}

// generateRequest はgenerateContentのリクエストボディ。
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateResponse はgenerateContentのレスポンスボディ。
// 使用するのは最初の候補の最初のパートのみ。
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate はプロンプトを送信し生成テキストを返す。
// 候補が空の場合（セーフティブロック等）はエラーを返す。
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("言語モデルAPIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("言語モデルAPIがステータス %d を返しました: %s", resp.StatusCode, truncateForLog(body))
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("言語モデルが候補を返しませんでした")
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// truncateForLog はエラーメッセージに含めるレスポンスボディを短縮する。
func truncateForLog(body []byte) string {
	const max = 200
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
