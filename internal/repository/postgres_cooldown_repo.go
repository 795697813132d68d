package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/hewalbot/internal/model"
)

// PostgresCooldownRepo はPostgreSQLを使用したクールダウン台帳。
type PostgresCooldownRepo struct {
	db *sql.DB
}

// NewPostgresCooldownRepo はPostgresCooldownRepoを生成する。
func NewPostgresCooldownRepo(db *sql.DB) *PostgresCooldownRepo {
	return &PostgresCooldownRepo{db: db}
}

// IsOnCooldown はレコードが存在し now < last_fetched_at + window の場合にtrueを返す。
// レコードが存在しないカテゴリは即フェッチ可能。
func (r *PostgresCooldownRepo) IsOnCooldown(ctx context.Context, category model.Category, now time.Time, window time.Duration) (bool, error) {
	var lastFetchedAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT last_fetched_at FROM category_cooldowns WHERE category = $1`,
		string(category),
	).Scan(&lastFetchedAt)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("クールダウンレコードの取得に失敗しました: %w", err)
	}

	rec := model.CooldownRecord{Category: category, LastFetchedAt: lastFetchedAt}
	return rec.OnCooldown(now, window), nil
}

// MarkFetched はカテゴリの最終フェッチ時刻をUPSERTする。
func (r *PostgresCooldownRepo) MarkFetched(ctx context.Context, category model.Category, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO category_cooldowns (category, last_fetched_at)
		 VALUES ($1, $2)
		 ON CONFLICT (category) DO UPDATE SET last_fetched_at = EXCLUDED.last_fetched_at`,
		string(category), now,
	)
	if err != nil {
		return fmt.Errorf("クールダウンの記録に失敗しました: %w", err)
	}

	return nil
}
