// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// パイプラインの各ステージから利用する。
type MetricsCollector interface {
	RecordArticlesFetched(count int)
	RecordArticlesDeduped(count int)
	RecordImagesDropped(count int)
	RecordTranslateChunk(ok bool)
	RecordArticlesTranslated(count int)
	RecordTranslationsRejected(count int)
	RecordPost(platform string, ok bool)
	RecordVerifiedDrop(platform string)
	RecordCycleDuration(duration time.Duration)
	RecordArticlesCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	articlesFetched      prometheus.Counter
	articlesDeduped      prometheus.Counter
	imagesDropped        prometheus.Counter
	translateChunks      *prometheus.CounterVec
	articlesTranslated   prometheus.Counter
	translationsRejected prometheus.Counter
	posts                *prometheus.CounterVec
	verifiedDrops        *prometheus.CounterVec
	cycleDuration        prometheus.Histogram
	articlesCleaned      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		articlesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hewalbot_articles_fetched_total",
			Help: "新規に永続化された記事の合計数",
		}),
		articlesDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hewalbot_articles_deduped_total",
			Help: "既知URLとして除外された記事の合計数",
		}),
		imagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hewalbot_images_dropped_total",
			Help: "画像の生存確認に失敗し破棄された記事候補の合計数",
		}),
		translateChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hewalbot_translate_chunks_total",
			Help: "翻訳チャンクの結果別合計数",
		}, []string{"result"}),
		articlesTranslated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hewalbot_articles_translated_total",
			Help: "translatedへ前進した記事の合計数",
		}),
		translationsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hewalbot_translations_rejected_total",
			Help: "整合性検証で却下された翻訳結果の合計数",
		}),
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hewalbot_posts_total",
			Help: "プラットフォーム別・結果別の投稿試行の合計数",
		}, []string{"platform", "result"}),
		verifiedDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hewalbot_verified_drops_total",
			Help: "検証で確定した投稿ドロップの合計数",
		}, []string{"platform"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hewalbot_cycle_duration_seconds",
			Help:    "パイプラインサイクル全体の所要時間（秒）",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		articlesCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hewalbot_articles_cleaned_total",
			Help: "保持期限切れで削除された投稿済み記事の合計数",
		}),
	}

	reg.MustRegister(
		c.articlesFetched,
		c.articlesDeduped,
		c.imagesDropped,
		c.translateChunks,
		c.articlesTranslated,
		c.translationsRejected,
		c.posts,
		c.verifiedDrops,
		c.cycleDuration,
		c.articlesCleaned,
	)

	return c
}

// RecordArticlesFetched は新規永続化された記事数を記録する。
func (c *Collector) RecordArticlesFetched(count int) {
	c.articlesFetched.Add(float64(count))
}

// RecordArticlesDeduped は重複排除された記事数を記録する。
func (c *Collector) RecordArticlesDeduped(count int) {
	c.articlesDeduped.Add(float64(count))
}

// RecordImagesDropped は破棄された画像数を記録する。
func (c *Collector) RecordImagesDropped(count int) {
	c.imagesDropped.Add(float64(count))
}

// RecordTranslateChunk は翻訳チャンクの結果を記録する。
func (c *Collector) RecordTranslateChunk(ok bool) {
	c.translateChunks.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordArticlesTranslated は翻訳完了した記事数を記録する。
func (c *Collector) RecordArticlesTranslated(count int) {
	c.articlesTranslated.Add(float64(count))
}

// RecordTranslationsRejected は整合性検証で却下された件数を記録する。
func (c *Collector) RecordTranslationsRejected(count int) {
	c.translationsRejected.Add(float64(count))
}

// RecordPost は投稿試行の結果を記録する。
func (c *Collector) RecordPost(platform string, ok bool) {
	c.posts.WithLabelValues(platform, resultLabel(ok)).Inc()
}

// RecordVerifiedDrop は検証済みドロップを記録する。
func (c *Collector) RecordVerifiedDrop(platform string) {
	c.verifiedDrops.WithLabelValues(platform).Inc()
}

// RecordCycleDuration はサイクルの所要時間を記録する。
func (c *Collector) RecordCycleDuration(duration time.Duration) {
	c.cycleDuration.Observe(duration.Seconds())
}

// RecordArticlesCleaned はクリーンアップで削除された記事数を記録する。
func (c *Collector) RecordArticlesCleaned(count int64) {
	c.articlesCleaned.Add(float64(count))
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
