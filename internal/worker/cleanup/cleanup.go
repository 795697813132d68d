// Package cleanup は投稿済み記事の自動削除ジョブを提供する。
// 保持期間（デフォルト90日）を超過した投稿済み記事行を日次バッチで削除する。
// seen_urlsの重複排除インデックスは削除対象外であり、一度見たURLが
// 再投稿されることはない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/hewalbot/internal/metrics"
	"github.com/hitoshi/hewalbot/internal/repository"
)

// CleanupJob は保持期間を超過した投稿済み記事の自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	articleRepo   repository.ArticleRepository
	collector     metrics.MetricsCollector
	logger        *slog.Logger
	RetentionDays int // 投稿済み記事の保持日数（デフォルト: 90）

	now func() time.Time // テスト用に注入可能なクロック
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は90日。
func NewCleanupJob(articleRepo repository.ArticleRepository, collector metrics.MetricsCollector, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		articleRepo:   articleRepo,
		collector:     collector,
		logger:        logger,
		RetentionDays: 90,
		now:           time.Now,
	}
}

// Start は指定間隔のティッカーでジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("retention_days", j.RetentionDays),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("クリーンアップの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Run は保持期間を超過した投稿済み記事行を削除する。
// 削除されるのはstatus=postedの行のみで、未投稿の記事には触れない。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.articleRepo.DeletePostedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("投稿済み記事のクリーンアップに失敗しました: %w", err)
	}

	j.collector.RecordArticlesCleaned(deleted)

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
