package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hitoshi/hewalbot/internal/model"
	"github.com/hitoshi/hewalbot/internal/repository"
)

// Alerter は障害通知のインターフェース。
type Alerter interface {
	Notify(ctx context.Context, subject, body string) error
}

// Result は1回の投稿実行の集計結果。
type Result struct {
	Posted     int            // postedへ前進した記事数
	Failed     int            // 全プラットフォームで失敗しtranslatedに残った記事数
	Drops      int            // 検証で確認されたドロップ/消失の件数
	PlatformOK map[string]int // プラットフォーム別の成功数
	PlatformNG map[string]int // プラットフォーム別の失敗数
	DropsBy    map[string]int // プラットフォーム別の検証済みドロップ数
}

// Service は投稿ステージの実装。
// 記事をpublished_at昇順（古い順）に処理し、プラットフォームの
// 設定順（先頭が優先）に投稿する。1つ以上の成功でpostedへ前進する。
type Service struct {
	platforms      []Platform
	articleRepo    repository.ArticleRepository
	alerter        Alerter // nilの場合は通知無効
	logger         *slog.Logger
	haltOnPostDrop bool
	pauseMin       time.Duration
	pauseMax       time.Duration

	// テスト用に差し替え可能
	sleep func(ctx context.Context, d time.Duration) error
	randN func(n int64) int64
}

// ErrHaltedOnDrop は検証済みドロップ検出によるサイクル停止を表す。
var ErrHaltedOnDrop = errors.New("検証済みの投稿ドロップを検出したため投稿を停止しました")

// NewService はServiceの新しいインスタンスを生成する。
// platformsの順序が投稿の優先順位になる。
func NewService(
	platforms []Platform,
	articleRepo repository.ArticleRepository,
	alerter Alerter,
	logger *slog.Logger,
	haltOnPostDrop bool,
	pauseMin, pauseMax time.Duration,
) *Service {
	if pauseMax < pauseMin {
		pauseMax = pauseMin
	}
	return &Service{
		platforms:      platforms,
		articleRepo:    articleRepo,
		alerter:        alerter,
		logger:         logger,
		haltOnPostDrop: haltOnPostDrop,
		pauseMin:       pauseMin,
		pauseMax:       pauseMax,
		sleep:          sleepWithContext,
		randN:          rand.Int63n,
	}
}

// Run はtranslated状態の全記事を古い順に投稿する。
// 記事間にはランダム化された待機を挟む（全プラットフォーム失敗時は挟まない）。
// HaltOnPostDrop有効時に検証済みドロップを検出するとErrHaltedOnDropを返す。
func (s *Service) Run(ctx context.Context) (Result, error) {
	res := Result{
		PlatformOK: map[string]int{},
		PlatformNG: map[string]int{},
		DropsBy:    map[string]int{},
	}

	articles, err := s.articleRepo.ListByStatus(ctx, model.StatusTranslated)
	if err != nil {
		return res, fmt.Errorf("投稿対象記事の取得に失敗しました: %w", err)
	}
	if len(articles) == 0 {
		s.logger.Info("投稿対象の記事はありません")
		return res, nil
	}

	for i, article := range articles {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		successes, err := s.publishArticle(ctx, article, &res)
		if err != nil {
			return res, err
		}

		if successes > 0 {
			if err := s.articleRepo.AdvanceToPosted(ctx, article.URL); err != nil {
				if !errors.Is(err, model.ErrArticleNotFound) {
					return res, fmt.Errorf("投稿完了の書き込みに失敗しました: %w", err)
				}
				s.logger.Warn("投稿完了の書き込み先記事が存在しません",
					slog.String("url", article.URL),
				)
			}
			res.Posted++
		} else {
			s.logger.Warn("全プラットフォームで投稿に失敗しました（translatedのまま保持）",
				slog.String("url", article.URL),
			)
			res.Failed++
		}

		// 記事間の待機。最後の記事の後と、何も投稿できなかった場合は不要
		if i < len(articles)-1 && successes > 0 {
			pause := s.nextPause()
			s.logger.Debug("次の投稿まで待機します",
				slog.Duration("pause", pause),
			)
			if err := s.sleep(ctx, pause); err != nil {
				return res, err
			}
		}
	}

	s.logger.Info("投稿ステージが完了しました",
		slog.Int("posted", res.Posted),
		slog.Int("failed", res.Failed),
		slog.Int("drops", res.Drops),
	)
	return res, nil
}

// publishArticle は1記事を全プラットフォームへ投稿し、成功数を返す。
// 先行プラットフォームのパーマリンクが得られた場合、後続の
// 「続きを読む」導線として渡す。
func (s *Service) publishArticle(ctx context.Context, article *model.Article, res *Result) (int, error) {
	successes := 0
	readMoreLink := ""

	for _, platform := range s.platforms {
		result, err := platform.Publish(ctx, article, readMoreLink)
		if err != nil {
			res.PlatformNG[platform.Name()]++

			if isVerifiedDrop(err) {
				res.Drops++
				res.DropsBy[platform.Name()]++
				s.logger.Error("検証済みの投稿ドロップを検出しました",
					slog.String("platform", platform.Name()),
					slog.String("url", article.URL),
					slog.String("error", err.Error()),
				)
				s.notifyDrop(ctx, platform.Name(), article, err)
				if s.haltOnPostDrop {
					return successes, fmt.Errorf("%w: platform=%s url=%s", ErrHaltedOnDrop, platform.Name(), article.URL)
				}
				continue
			}

			s.logger.Warn("プラットフォームへの投稿に失敗しました",
				slog.String("platform", platform.Name()),
				slog.String("url", article.URL),
				slog.String("error", err.Error()),
			)
			continue
		}

		res.PlatformOK[platform.Name()]++
		successes++
		if readMoreLink == "" && result.Permalink != "" {
			readMoreLink = result.Permalink
		}
	}

	return successes, nil
}

// isVerifiedDrop は検証で確定したドロップ/消失エラーかどうかを判定する。
func isVerifiedDrop(err error) bool {
	var pErr *model.PipelineError
	if !errors.As(err, &pErr) {
		return false
	}
	return pErr.Code == model.ErrCodePostDropped || pErr.Code == model.ErrCodeVerifyFailed
}

// notifyDrop はドロップ検出を通知する。通知自体の失敗は警告ログのみ。
func (s *Service) notifyDrop(ctx context.Context, platform string, article *model.Article, dropErr error) {
	if s.alerter == nil {
		return
	}
	subject := fmt.Sprintf("[hewalbot] %s への投稿ドロップを検出", platform)
	body := fmt.Sprintf("記事URL: %s\nタイトル: %s\nエラー: %v\n", article.URL, article.Title, dropErr)
	if err := s.alerter.Notify(ctx, subject, body); err != nil {
		s.logger.Warn("ドロップ通知の送信に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// nextPause は記事間のランダム化された待機時間を返す。
func (s *Service) nextPause() time.Duration {
	if s.pauseMax <= s.pauseMin {
		return s.pauseMin
	}
	spread := int64(s.pauseMax - s.pauseMin)
	return s.pauseMin + time.Duration(s.randN(spread+1))
}
