package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/hewalbot/internal/model"
	"github.com/hitoshi/hewalbot/internal/repository"
)

// LanguageModel は翻訳に使う言語モデルのインターフェース。
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Result は1回の翻訳実行の集計結果。
type Result struct {
	ChunksOK     int // 正常に処理されたチャンク数
	ChunksFailed int // 丸ごと失敗したチャンク数（記事は状態変更なし）
	Translated   int // translatedへ前進した記事数
	Rejected     int // 整合性検証で却下された記事数（fetchedのまま）
}

// translationItem は言語モデルが返す1記事分の翻訳結果。
// idは記事URLであり、チャンク内の突合キーとして使用する。
type translationItem struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// promptArticle はプロンプトに埋め込む1記事分の入力。
type promptArticle struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Service は翻訳ステージの実装。
// チャンク単位で処理し、1チャンクの失敗が他チャンクを道連れにしない。
// チャンク失敗時は記事を一切状態変更せず、次サイクルの再試行に委ねる。
type Service struct {
	lm          LanguageModel
	articleRepo repository.ArticleRepository
	logger      *slog.Logger
	chunkSize   int
	tagCount    int
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(lm LanguageModel, articleRepo repository.ArticleRepository, logger *slog.Logger, chunkSize, tagCount int) *Service {
	if chunkSize <= 0 {
		chunkSize = 10
	}
	return &Service{
		lm:          lm,
		articleRepo: articleRepo,
		logger:      logger,
		chunkSize:   chunkSize,
		tagCount:    tagCount,
	}
}

// Run はfetched状態の全記事をチャンク単位で翻訳する。
// 致命的エラーは記事一覧の取得失敗とコンテキストキャンセルのみ。
func (s *Service) Run(ctx context.Context) (Result, error) {
	var res Result

	articles, err := s.articleRepo.ListByStatus(ctx, model.StatusFetched)
	if err != nil {
		return res, fmt.Errorf("翻訳対象記事の取得に失敗しました: %w", err)
	}
	if len(articles) == 0 {
		s.logger.Info("翻訳対象の記事はありません")
		return res, nil
	}

	for start := 0; start < len(articles); start += s.chunkSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		end := start + s.chunkSize
		if end > len(articles) {
			end = len(articles)
		}
		chunk := articles[start:end]

		translated, rejected, err := s.translateChunk(ctx, chunk)
		if err != nil {
			s.logger.Warn("チャンクの翻訳に失敗しました（次サイクルで再試行）",
				slog.Int("chunk_size", len(chunk)),
				slog.String("error", err.Error()),
			)
			res.ChunksFailed++
			continue
		}
		res.ChunksOK++
		res.Translated += translated
		res.Rejected += rejected
	}

	s.logger.Info("翻訳ステージが完了しました",
		slog.Int("chunks_ok", res.ChunksOK),
		slog.Int("chunks_failed", res.ChunksFailed),
		slog.Int("translated", res.Translated),
		slog.Int("rejected", res.Rejected),
	)
	return res, nil
}

// translateChunk は1チャンクを翻訳し、記事ごとにtranslatedへ前進させる。
// 言語モデルの呼び出し失敗とJSONパース失敗はチャンク全体の失敗として扱い、
// 個別記事の整合性違反はその記事のみをfetchedに残す。
func (s *Service) translateChunk(ctx context.Context, chunk []*model.Article) (int, int, error) {
	prompt, err := s.buildPrompt(chunk)
	if err != nil {
		return 0, 0, err
	}

	raw, err := s.lm.Generate(ctx, prompt)
	if err != nil {
		return 0, 0, model.NewTranslateError(err)
	}

	items, err := parseItems(raw)
	if err != nil {
		return 0, 0, err
	}

	byID := make(map[string]translationItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	translated := 0
	rejected := 0
	for _, article := range chunk {
		item, ok := byID[article.URL]
		if !ok {
			s.logger.Warn("翻訳結果に記事が含まれていません（fetchedのまま保持）",
				slog.String("url", article.URL),
			)
			rejected++
			continue
		}

		if reason := s.validateItem(item); reason != "" {
			s.logger.Warn("翻訳結果が整合性検証に失敗しました（fetchedのまま保持）",
				slog.String("url", article.URL),
				slog.String("reason", reason),
			)
			rejected++
			continue
		}

		if err := s.articleRepo.AdvanceToTranslated(ctx, article.URL, item.Title, item.Summary, item.Tags); err != nil {
			if errors.Is(err, model.ErrArticleNotFound) {
				s.logger.Warn("翻訳結果の書き込み先記事が存在しません",
					slog.String("url", article.URL),
				)
				continue
			}
			return translated, rejected, fmt.Errorf("翻訳結果の書き込みに失敗しました: %w", err)
		}
		translated++
	}

	return translated, rejected, nil
}

// buildPrompt はチャンクから翻訳プロンプトを構築する。
// 入力記事はJSON配列としてそのまま埋め込み、idで結果を突合する。
func (s *Service) buildPrompt(chunk []*model.Article) (string, error) {
	inputs := make([]promptArticle, 0, len(chunk))
	for _, a := range chunk {
		inputs = append(inputs, promptArticle{
			ID:      a.URL,
			Title:   a.Title,
			Summary: a.Summary,
		})
	}

	encoded, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("プロンプト入力のエンコードに失敗しました: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a professional news translator. Translate the following news articles into Sorani Kurdish (Central Kurdish, written in Arabic script).\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Translate both the title and the summary of every article.\n")
	b.WriteString("- Remove trailing source names from titles (for example \" - CNN\" or \" | Reuters\").\n")
	b.WriteString("- Keep proper nouns (people, places, organizations) in their original form inside parentheses after the Kurdish rendering.\n")
	fmt.Fprintf(&b, "- Generate exactly %d topic tags per article, in Sorani Kurdish, without hash signs.\n", s.tagCount)
	b.WriteString("- Return ONLY a raw JSON array, no markdown fences, no commentary.\n")
	b.WriteString("- Each element must have the fields: id (copied unchanged from the input), title, summary, tags.\n\n")
	b.WriteString("Input articles:\n")
	b.Write(encoded)

	return b.String(), nil
}

// validateItem は翻訳結果1件の整合性を検証する。
// 違反がある場合はその理由を、なければ空文字を返す。
func (s *Service) validateItem(item translationItem) string {
	if strings.TrimSpace(item.Title) == "" {
		return "タイトルが空です"
	}
	if strings.TrimSpace(item.Summary) == "" {
		return "要約が空です"
	}
	if len(item.Tags) != s.tagCount {
		return fmt.Sprintf("タグ数が不正です: got %d, want %d", len(item.Tags), s.tagCount)
	}
	for _, tag := range item.Tags {
		if strings.TrimSpace(tag) == "" {
			return "空のタグが含まれています"
		}
	}
	return ""
}

// parseItems は言語モデルの生出力をパースする。
// コードフェンスで囲まれた出力は指示違反だが、実際に頻発するため剥がして許容する。
func parseItems(raw string) ([]translationItem, error) {
	cleaned := stripFences(raw)

	var items []translationItem
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, model.NewMalformedResponseError(fmt.Sprintf("JSON配列としてパースできません: %v", err))
	}
	return items, nil
}

// stripFences は出力前後のマークダウンコードフェンスを除去する。
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		// 先頭フェンス行（```json 等）を落とす
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
