// Package pipeline はニュースパイプラインの周期実行を提供する。
// フェッチ → 翻訳 → 投稿を1サイクルとして逐次実行し、
// サイクル間はクールダウン状態で待機する。
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hitoshi/hewalbot/internal/fetch"
	"github.com/hitoshi/hewalbot/internal/logger"
	"github.com/hitoshi/hewalbot/internal/metrics"
	"github.com/hitoshi/hewalbot/internal/publish"
	"github.com/hitoshi/hewalbot/internal/translate"
)

// FetchStage は記事発見ステージのインターフェース。
type FetchStage interface {
	Run(ctx context.Context) (fetch.Result, error)
}

// TranslateStage は翻訳ステージのインターフェース。
type TranslateStage interface {
	Run(ctx context.Context) (translate.Result, error)
}

// PublishStage は投稿ステージのインターフェース。
type PublishStage interface {
	Run(ctx context.Context) (publish.Result, error)
}

// 実行状態。ログ属性として出力される。
const (
	stateRunning     = "RUNNING"
	stateCoolingDown = "COOLING_DOWN"
)

// Runner はパイプライン全体の周期実行を制御する。
// ステージは常にフェッチ → 翻訳 → 投稿の順で逐次実行される。
// ステージ内のpanicはサイクル単位で回収し、安全待機を挟んで
// 次サイクルへ進む（プロセスは落とさない）。
type Runner struct {
	fetcher     FetchStage
	translator  TranslateStage
	publisher   PublishStage
	collector   metrics.MetricsCollector
	logger      *slog.Logger
	safetyPause time.Duration

	// テスト用に差し替え可能
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner はRunnerの新しいインスタンスを生成する。
func NewRunner(
	fetcher FetchStage,
	translator TranslateStage,
	publisher PublishStage,
	collector metrics.MetricsCollector,
	log *slog.Logger,
	safetyPause time.Duration,
) *Runner {
	return &Runner{
		fetcher:     fetcher,
		translator:  translator,
		publisher:   publisher,
		collector:   collector,
		logger:      log,
		safetyPause: safetyPause,
		sleep:       sleepWithContext,
	}
}

// Start は指定間隔のティッカーでパイプラインを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("パイプラインを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	r.runCycle(ctx)

	for {
		r.logger.Info("次サイクルまで待機します",
			slog.String("state", stateCoolingDown),
			slog.Duration("interval", interval),
		)
		select {
		case <-ctx.Done():
			r.logger.Info("パイプラインを停止しました")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle は1サイクルを実行し、panicを回収する。
// panic回収後およびトップレベル失敗後は安全待機を挟んでから復帰する。
func (r *Runner) runCycle(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("サイクル内でpanicが発生しました（安全待機後に再開）",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			_ = r.sleep(ctx, r.safetyPause)
		}
	}()

	if err := r.RunOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("サイクルの実行に失敗しました（安全待機後に再開）",
			slog.String("error", err.Error()),
		)
		_ = r.sleep(ctx, r.safetyPause)
	}
}

// RunOnce はフェッチ → 翻訳 → 投稿を1回ずつ逐次実行する。
// 各ステージは内部で部分失敗を吸収するため、ここへ伝播するのは
// 致命的な失敗（DB障害、投稿停止、キャンセル）のみ。
func (r *Runner) RunOnce(ctx context.Context) error {
	start := time.Now()
	cycleLog, _ := logger.WithCycle(r.logger)

	cycleLog.Info("サイクルを開始します",
		slog.String("state", stateRunning),
	)

	fetchRes, err := r.fetcher.Run(ctx)
	if err != nil {
		return fmt.Errorf("フェッチステージが失敗しました: %w", err)
	}
	r.collector.RecordArticlesFetched(fetchRes.Inserted)
	r.collector.RecordArticlesDeduped(fetchRes.Deduped)
	r.collector.RecordImagesDropped(fetchRes.ImagesDropped)

	translateRes, err := r.translator.Run(ctx)
	if err != nil {
		return fmt.Errorf("翻訳ステージが失敗しました: %w", err)
	}
	for i := 0; i < translateRes.ChunksOK; i++ {
		r.collector.RecordTranslateChunk(true)
	}
	for i := 0; i < translateRes.ChunksFailed; i++ {
		r.collector.RecordTranslateChunk(false)
	}
	r.collector.RecordArticlesTranslated(translateRes.Translated)
	r.collector.RecordTranslationsRejected(translateRes.Rejected)

	publishRes, err := r.publisher.Run(ctx)
	r.recordPublish(publishRes)
	if err != nil {
		return fmt.Errorf("投稿ステージが失敗しました: %w", err)
	}

	duration := time.Since(start)
	r.collector.RecordCycleDuration(duration)

	cycleLog.Info("サイクルが完了しました",
		slog.Int("fetched", fetchRes.Inserted),
		slog.Int("translated", translateRes.Translated),
		slog.Int("posted", publishRes.Posted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// recordPublish は投稿ステージの集計をメトリクスへ反映する。
// 停止エラー時も途中までの集計は記録する。
func (r *Runner) recordPublish(res publish.Result) {
	for platform, count := range res.PlatformOK {
		for i := 0; i < count; i++ {
			r.collector.RecordPost(platform, true)
		}
	}
	for platform, count := range res.PlatformNG {
		for i := 0; i < count; i++ {
			r.collector.RecordPost(platform, false)
		}
	}
	for platform, count := range res.DropsBy {
		for i := 0; i < count; i++ {
			r.collector.RecordVerifiedDrop(platform)
		}
	}
}

// sleepWithContext はコンテキストキャンセルに応答するスリープ。
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
