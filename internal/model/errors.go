package model

import (
	"errors"
	"fmt"
)

// ErrArticleNotFound は指定URLの記事がストアに存在しない場合のセンチネルエラー。
var ErrArticleNotFound = errors.New("記事が見つかりません")

// PipelineError はパイプライン内の統一エラーフォーマットを表す。
// 障害分類（Category）によって呼び出し元のリトライ/エスカレーション方針が決まる。
type PipelineError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: external, integrity, verification, exhaustion
	Err      error  // 元エラー（任意）
}

// Error はerrorインターフェースを実装する。
func (e *PipelineError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap はラップされた元エラーを返す。
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeSearchAPIFailed   = "SEARCH_API_FAILED"
	ErrCodeKeysExhausted     = "KEYS_EXHAUSTED"
	ErrCodeTranslateFailed   = "TRANSLATE_FAILED"
	ErrCodeMalformedResponse = "MALFORMED_RESPONSE"
	ErrCodePostDropped       = "POST_DROPPED"
	ErrCodeVerifyFailed      = "VERIFY_FAILED"
)

// NewSearchAPIError は検索APIの回復可能な失敗を生成する。
// 次サイクルでのリトライ対象であり、ステージ境界を越えて伝播させてはならない。
func NewSearchAPIError(category Category, err error) *PipelineError {
	return &PipelineError{
		Code:     ErrCodeSearchAPIFailed,
		Message:  fmt.Sprintf("検索APIのリクエストに失敗しました: カテゴリ=%s", category),
		Category: "external",
		Err:      err,
	}
}

// NewKeysExhaustedError は設定済みAPIキーの全滅を生成する。
// 対象カテゴリのみが空結果となり、他カテゴリの処理は継続する。
func NewKeysExhaustedError(category Category) *PipelineError {
	return &PipelineError{
		Code:     ErrCodeKeysExhausted,
		Message:  fmt.Sprintf("設定済みの全APIキーが失敗しました: カテゴリ=%s", category),
		Category: "exhaustion",
	}
}

// NewTranslateError は翻訳チャンク全体の失敗を生成する。
// チャンク内の記事は一切状態変更されず、次サイクルで再試行される。
func NewTranslateError(err error) *PipelineError {
	return &PipelineError{
		Code:     ErrCodeTranslateFailed,
		Message:  "翻訳リクエストに失敗しました",
		Category: "external",
		Err:      err,
	}
}

// NewMalformedResponseError は言語サービス応答のデータ整合性違反を生成する。
func NewMalformedResponseError(reason string) *PipelineError {
	return &PipelineError{
		Code:     ErrCodeMalformedResponse,
		Message:  fmt.Sprintf("言語サービスの応答が不正です: %s", reason),
		Category: "integrity",
	}
}

// NewPostDroppedError は投稿IDが返却されなかった投稿ドロップを生成する。
func NewPostDroppedError(platform, url string) *PipelineError {
	return &PipelineError{
		Code:     ErrCodePostDropped,
		Message:  fmt.Sprintf("%s への投稿がIDなしで受理されました（ドロップの可能性）: %s", platform, url),
		Category: "verification",
	}
}

// NewVerifyFailedError は投稿後の再照会で投稿が確認できなかった失敗を生成する。
func NewVerifyFailedError(platform, postID string) *PipelineError {
	return &PipelineError{
		Code:     ErrCodeVerifyFailed,
		Message:  fmt.Sprintf("%s の投稿 %s が再照会で確認できませんでした", platform, postID),
		Category: "verification",
	}
}
