// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/hewalbot/internal/model"
)

// ArticleRepository は記事データの永続化インターフェース。
// 全ミューテーションは呼び出しの復帰前に永続化コミットされる。
// プロセスは任意の2ステージ間でkillされ得る前提で設計する。
type ArticleRepository interface {
	// UpsertArticles はURLが未登録の記事のみを一括挿入し、挿入件数を返す。
	// 既存URLとの衝突はエラーにならない（冪等）。挿入と同時にseen_urlsにも記録する。
	UpsertArticles(ctx context.Context, articles []*model.Article) (int, error)

	// ListByStatus は指定ステータスの記事をpublished_at昇順で返す。
	ListByStatus(ctx context.Context, status model.Status) ([]*model.Article, error)

	// FilterKnownURLs は既知URL（seen_urls登録済み）の集合を返す。
	// 記事行が削除済みでも一度見たURLは既知として扱う。
	FilterKnownURLs(ctx context.Context, urls []string) (map[string]bool, error)

	// AdvanceToTranslated は翻訳結果を書き込みステータスをtranslatedへ前進させる。
	// URLが存在しない場合はmodel.ErrArticleNotFoundを返す。
	// すでにtranslated以降の場合は何もしない（リトライ耐性のためエラーにしない）。
	AdvanceToTranslated(ctx context.Context, url, titleKu, summaryKu string, tags []string) error

	// AdvanceToPosted はステータスをpostedへ前進させる。
	// URLが存在しない場合はmodel.ErrArticleNotFoundを返す。
	// すでにpostedの場合は何もしない。
	AdvanceToPosted(ctx context.Context, url string) error

	// DeletePostedBefore はcutoffより前に投稿完了した記事行を削除し、削除件数を返す。
	// seen_urlsは削除しない（重複排除インデックスは永続保持）。
	DeletePostedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CooldownRepository はカテゴリごとのフェッチクールダウン台帳のインターフェース。
type CooldownRepository interface {
	// IsOnCooldown はレコードが存在し now < last_fetched_at + window の場合にtrueを返す。
	IsOnCooldown(ctx context.Context, category model.Category, now time.Time, window time.Duration) (bool, error)

	// MarkFetched はカテゴリの最終フェッチ時刻をUPSERTする。
	MarkFetched(ctx context.Context, category model.Category, now time.Time) error
}
