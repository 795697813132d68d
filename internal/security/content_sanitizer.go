// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はスクレイピングした記事本文からHTMLを除去する。
// 抽出された本文は翻訳プロンプトと投稿本文にそのまま埋め込まれるため、
// タグやスクリプト断片を一切持ち込まないプレーンテキストポリシーを適用する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は記事本文のサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize はHTML断片からタグをすべて除去したプレーンテキストを返す。
	// HTMLエンティティはデコードされ、連続する空白は1つにまとめられる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全タグを除去し、テキストノードのみを残す。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTML断片からタグをすべて除去したプレーンテキストを返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	stripped := s.policy.Sanitize(raw)

	// StrictPolicyはエンティティをエスケープしたまま残すためデコードする
	decoded := html.UnescapeString(stripped)

	// 改行・タブを含む連続空白を1スペースに正規化する
	return strings.Join(strings.Fields(decoded), " ")
}
