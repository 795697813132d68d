package model

import "time"

// UnknownSourceLabel は配信元名が取得できなかった場合のソラニー語センチネル。
const UnknownSourceLabel = "نادیار"

// Article は検索APIから発見された1件のニュース記事を表す。
// URLがストア全体を通じた一意識別子であり、重複排除キーとして不変に扱う。
type Article struct {
	URL         string
	Title       string
	Summary     string // 原文の本文（API要約または全文抽出結果）
	Category    Category
	Source      string
	ImageURL    string // 任意。空の場合はリンク/テキスト投稿になる
	PublishedAt time.Time
	Status      Status
	TitleKu     string   // 翻訳済みタイトル
	SummaryKu   string   // 翻訳済み本文
	CategoryKu  string   // カテゴリのソラニー語ラベル（フェッチ時に確定）
	Tags        []string // 生成タグ（固定数）
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CooldownRecord はカテゴリごとの最終フェッチ時刻を表す。
// カテゴリにつき最大1レコード。
type CooldownRecord struct {
	Category      Category
	LastFetchedAt time.Time
}

// OnCooldown はnow時点でクールダウン期間内かどうかを返す。
// now < last_fetched_at + window のときtrue。
func (r CooldownRecord) OnCooldown(now time.Time, window time.Duration) bool {
	return now.Before(r.LastFetchedAt.Add(window))
}
