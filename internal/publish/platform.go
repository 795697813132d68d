// Package publish は翻訳済み記事の投稿ステージを提供する。
// 有効化されたプラットフォームへ順に投稿し、投稿後検証を経て
// 1つ以上の成功でpostedへ前進させる。
package publish

import (
	"context"

	"github.com/hitoshi/hewalbot/internal/model"
)

// PostResult は1プラットフォームへの投稿成功の結果。
type PostResult struct {
	Platform  string
	PostID    string
	Permalink string // 取得できないプラットフォームでは空
}

// Platform は投稿先プラットフォームのインターフェース。
// Publishは投稿の受理だけでなく、実在確認（検証）まで含めて成功を返す。
// readMoreLinkは「続きを読む」導線のURLで、先行プラットフォームの
// パーマリンクが利用可能な場合はそれが渡される。
type Platform interface {
	Name() string
	Publish(ctx context.Context, article *model.Article, readMoreLink string) (*PostResult, error)
}
