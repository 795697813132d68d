// Package fetch はニュース記事の発見ステージを提供する。
// カテゴリごとに検索APIを照会し、重複排除と画像検証を行った上で
// 新規記事をfetchedステータスで永続化する。
package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/hewalbot/internal/model"
	"github.com/hitoshi/hewalbot/internal/newsapi"
	"github.com/hitoshi/hewalbot/internal/repository"
	"github.com/hitoshi/hewalbot/internal/security"
)

// imageProbeTimeout は画像生存確認HEADリクエストのタイムアウト。
const imageProbeTimeout = 5 * time.Second

// removedTitle は検索APIが削除済み記事に設定するプレースホルダタイトル。
const removedTitle = "[Removed]"

// SearchClient は検索APIクライアントのインターフェース。
type SearchClient interface {
	Search(ctx context.Context, desc model.CategoryDescriptor, country string) ([]newsapi.Article, error)
}

// FullTextExtractor は記事全文抽出のインターフェース。
type FullTextExtractor interface {
	Extract(ctx context.Context, articleURL string) (string, error)
}

// HTTPDoer は画像生存確認に使うHTTPクライアントのインターフェース。
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result は1回のフェッチ実行の集計結果。
type Result struct {
	Found         int // API返却件数（フィルタ前）
	Inserted      int // 新規挿入件数
	Deduped       int // 既知URLとして除外された件数
	ImagesDropped int // 画像の生存確認に失敗し候補ごと破棄した件数
	Skipped       int // クールダウン中のためスキップしたカテゴリ数
}

// Service は記事発見ステージの実装。
// カテゴリ単位で独立に動作し、1カテゴリの失敗が他カテゴリを道連れにしない。
type Service struct {
	search         SearchClient
	articleRepo    repository.ArticleRepository
	cooldownRepo   repository.CooldownRepository
	extractor      FullTextExtractor
	logger         *slog.Logger
	country        string
	cooldownWindow time.Duration
	fullTextMinLen int
	probeClient    HTTPDoer         // テスト用に差し替え可能
	now            func() time.Time // テスト用に注入可能なクロック
}

// NewService はServiceの新しいインスタンスを生成する。
// 画像生存確認にはSSRF防止機能付きクライアントを使用する。
func NewService(
	search SearchClient,
	articleRepo repository.ArticleRepository,
	cooldownRepo repository.CooldownRepository,
	extractor FullTextExtractor,
	ssrfGuard security.SSRFGuardService,
	logger *slog.Logger,
	country string,
	cooldownWindow time.Duration,
	fullTextMinLen int,
) *Service {
	return &Service{
		search:         search,
		articleRepo:    articleRepo,
		cooldownRepo:   cooldownRepo,
		extractor:      extractor,
		logger:         logger,
		country:        country,
		cooldownWindow: cooldownWindow,
		fullTextMinLen: fullTextMinLen,
		probeClient:    ssrfGuard.NewSafeClient(imageProbeTimeout),
		now:            time.Now,
	}
}

// Run は全カテゴリを宣言順にフェッチする。
// クールダウン中のカテゴリはスキップし、検索API失敗は警告ログのみで
// 次カテゴリへ進む。致命的エラーはコンテキストキャンセルのみ。
func (s *Service) Run(ctx context.Context) (Result, error) {
	var total Result

	for _, desc := range model.AllCategories() {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		res, err := s.fetchCategory(ctx, desc)
		if err != nil {
			s.logger.Warn("カテゴリのフェッチに失敗しました",
				slog.String("category", string(desc.Code)),
				slog.String("error", err.Error()),
			)
			continue
		}

		total.Found += res.Found
		total.Inserted += res.Inserted
		total.Deduped += res.Deduped
		total.ImagesDropped += res.ImagesDropped
		total.Skipped += res.Skipped
	}

	s.logger.Info("フェッチステージが完了しました",
		slog.Int("found", total.Found),
		slog.Int("inserted", total.Inserted),
		slog.Int("deduped", total.Deduped),
		slog.Int("images_dropped", total.ImagesDropped),
		slog.Int("categories_skipped", total.Skipped),
	)
	return total, nil
}

// fetchCategory は1カテゴリ分のフェッチを実行する。
// クールダウン判定 → 検索 → 重複排除 → 記事構築 → 一括挿入 →
// クールダウン記録、の順で進む。
func (s *Service) fetchCategory(ctx context.Context, desc model.CategoryDescriptor) (Result, error) {
	var res Result
	now := s.now()

	onCooldown, err := s.cooldownRepo.IsOnCooldown(ctx, desc.Code, now, s.cooldownWindow)
	if err != nil {
		return res, err
	}
	if onCooldown {
		s.logger.Debug("クールダウン中のためカテゴリをスキップします",
			slog.String("category", string(desc.Code)),
		)
		res.Skipped = 1
		return res, nil
	}

	raw, err := s.search.Search(ctx, desc, s.country)
	if err != nil {
		return res, err
	}
	res.Found = len(raw)

	candidates := filterMalformed(raw)

	urls := make([]string, 0, len(candidates))
	for _, a := range candidates {
		urls = append(urls, a.URL)
	}

	known, err := s.articleRepo.FilterKnownURLs(ctx, urls)
	if err != nil {
		return res, err
	}

	var articles []*model.Article
	for _, a := range candidates {
		if known[a.URL] {
			res.Deduped++
			continue
		}
		article, imageDropped := s.buildArticle(ctx, desc, a, now)
		if imageDropped {
			res.ImagesDropped++
		}
		if article == nil {
			continue
		}
		articles = append(articles, article)
	}

	if len(articles) > 0 {
		inserted, err := s.articleRepo.UpsertArticles(ctx, articles)
		if err != nil {
			return res, err
		}
		res.Inserted = inserted
	}

	// 0件でも検索自体は成功しているのでクールダウンを記録する
	if err := s.cooldownRepo.MarkFetched(ctx, desc.Code, now); err != nil {
		return res, err
	}

	s.logger.Info("カテゴリのフェッチが完了しました",
		slog.String("category", string(desc.Code)),
		slog.Int("found", res.Found),
		slog.Int("inserted", res.Inserted),
		slog.Int("deduped", res.Deduped),
	)
	return res, nil
}

// buildArticle はAPI記事から永続化用のArticleを構築する。
// 画像付き候補は生存確認に失敗したら候補ごと破棄する。要約が短い場合は
// 全文抽出を試み、抽出に失敗した候補も破棄する。破棄された候補は
// seen_urlsに記録されないため、次サイクルで再評価される。
// 第1戻り値がnilの場合は候補を破棄したことを示し、第2戻り値は
// 破棄理由が画像の生存確認失敗かどうかを示す。
func (s *Service) buildArticle(ctx context.Context, desc model.CategoryDescriptor, a newsapi.Article, now time.Time) (*model.Article, bool) {
	imageURL := a.URLToImage
	if imageURL != "" && !s.probeImage(ctx, imageURL) {
		s.logger.Debug("画像の生存確認に失敗したため候補を破棄します",
			slog.String("url", a.URL),
			slog.String("image_url", imageURL),
		)
		return nil, true
	}

	summary := a.Description
	if utf8.RuneCountInString(summary) < s.fullTextMinLen {
		body, err := s.extractor.Extract(ctx, a.URL)
		if err != nil {
			s.logger.Debug("全文抽出に失敗したため候補を破棄します",
				slog.String("url", a.URL),
				slog.String("error", err.Error()),
			)
			return nil, false
		}
		summary = body
	}

	source := a.Source.Name
	if source == "" {
		source = model.UnknownSourceLabel
	}

	return &model.Article{
		URL:         a.URL,
		Title:       a.Title,
		Summary:     summary,
		Category:    desc.Code,
		Source:      source,
		ImageURL:    imageURL,
		PublishedAt: a.PublishedAt,
		Status:      model.StatusFetched,
		CategoryKu:  desc.KurdishLabel,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, false
}

// probeImage は画像URLにHEADリクエストを送り生存を確認する。
// 2xx以外、ネットワークエラー、不正URLはすべて失敗として扱う。
func (s *Service) probeImage(ctx context.Context, imageURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
	if err != nil {
		return false
	}

	resp, err := s.probeClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// filterMalformed はURLやタイトルが欠落した記事、および
// 削除済みプレースホルダ記事を除外する。
func filterMalformed(raw []newsapi.Article) []newsapi.Article {
	out := make([]newsapi.Article, 0, len(raw))
	for _, a := range raw {
		if a.URL == "" || a.Title == "" || a.Title == removedTitle {
			continue
		}
		out = append(out, a)
	}
	return out
}
