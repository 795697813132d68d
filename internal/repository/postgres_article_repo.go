package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/hewalbot/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// UpsertArticles はURLが未登録の記事のみを一括挿入し、挿入件数を返す。
// 記事挿入とseen_urlsへの記録を同一トランザクションで行い、
// 途中でプロセスが落ちても両者の整合が崩れないようにする。
func (r *PostgresArticleRepo) UpsertArticles(ctx context.Context, articles []*model.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, a := range articles {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO articles
			        (url, title, summary, category, source, image_url, published_at,
			         status, title_ku, summary_ku, category_ku, tags)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (url) DO NOTHING`,
			a.URL, a.Title, a.Summary, string(a.Category), a.Source, a.ImageURL,
			a.PublishedAt, string(a.Status), a.TitleKu, a.SummaryKu, a.CategoryKu,
			pq.Array(a.Tags),
		)
		if err != nil {
			return 0, fmt.Errorf("記事の挿入に失敗しました: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("挿入件数の取得に失敗しました: %w", err)
		}
		inserted += int(rows)

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO seen_urls (url) VALUES ($1) ON CONFLICT (url) DO NOTHING`,
			a.URL,
		); err != nil {
			return 0, fmt.Errorf("URL履歴の記録に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return inserted, nil
}

// ListByStatus は指定ステータスの記事をpublished_at昇順で返す。
// Publishステージは古い記事から先に処理することで、
// 逆時系列フィード上で最新記事が最も目立つ位置に来る。
func (r *PostgresArticleRepo) ListByStatus(ctx context.Context, status model.Status) ([]*model.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT url, title, summary, category, source, image_url, published_at,
		        status, title_ku, summary_ku, category_ku, tags, created_at, updated_at
		 FROM articles
		 WHERE status = $1
		 ORDER BY published_at ASC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var articles []*model.Article
	for rows.Next() {
		a := &model.Article{}
		var category, status string
		var tags pq.StringArray

		if err := rows.Scan(
			&a.URL, &a.Title, &a.Summary, &category, &a.Source, &a.ImageURL,
			&a.PublishedAt, &status, &a.TitleKu, &a.SummaryKu, &a.CategoryKu,
			&tags, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("記事行のスキャンに失敗しました: %w", err)
		}

		a.Category = model.Category(category)
		a.Status = model.Status(status)
		a.Tags = []string(tags)
		articles = append(articles, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}

	return articles, nil
}

// FilterKnownURLs は既知URLの集合を返す。
func (r *PostgresArticleRepo) FilterKnownURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(urls) == 0 {
		return known, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT url FROM seen_urls WHERE url = ANY($1)`,
		pq.Array(urls),
	)
	if err != nil {
		return nil, fmt.Errorf("既知URLの照会に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("URL行のスキャンに失敗しました: %w", err)
		}
		known[u] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("既知URLの走査に失敗しました: %w", err)
	}

	return known, nil
}

// AdvanceToTranslated は翻訳結果を書き込みステータスをtranslatedへ前進させる。
// WHERE句のステータス条件により後退は起こらず、リトライは自然にno-opになる。
func (r *PostgresArticleRepo) AdvanceToTranslated(ctx context.Context, url, titleKu, summaryKu string, tags []string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles
		 SET title_ku = $2, summary_ku = $3, tags = $4,
		     status = $5, updated_at = now()
		 WHERE url = $1 AND status = $6`,
		url, titleKu, summaryKu, pq.Array(tags),
		string(model.StatusTranslated), string(model.StatusFetched),
	)
	if err != nil {
		return fmt.Errorf("translatedへの前進に失敗しました: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// 更新0件: 記事が存在しないのか、すでに前進済みなのかを区別する
	return r.checkExists(ctx, url)
}

// AdvanceToPosted はステータスをpostedへ前進させる。
func (r *PostgresArticleRepo) AdvanceToPosted(ctx context.Context, url string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles
		 SET status = $2, updated_at = now()
		 WHERE url = $1 AND status IN ($3, $4)`,
		url, string(model.StatusPosted),
		string(model.StatusFetched), string(model.StatusTranslated),
	)
	if err != nil {
		return fmt.Errorf("postedへの前進に失敗しました: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if rows > 0 {
		return nil
	}

	return r.checkExists(ctx, url)
}

// DeletePostedBefore はcutoffより前に更新されたposted記事を削除し、削除件数を返す。
// seen_urlsには触れないため、削除後も同一URLが再フェッチされることはない。
func (r *PostgresArticleRepo) DeletePostedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM articles WHERE status = $1 AND updated_at < $2`,
		string(model.StatusPosted), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("投稿済み記事の削除に失敗しました: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	return deleted, nil
}

// checkExists は記事の存在を確認し、存在しなければErrArticleNotFoundを返す。
// 存在する場合はすでに目標状態以降とみなしnilを返す。
func (r *PostgresArticleRepo) checkExists(ctx context.Context, url string) error {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM articles WHERE url = $1)`,
		url,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("記事の存在確認に失敗しました: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", model.ErrArticleNotFound, url)
	}
	return nil
}
