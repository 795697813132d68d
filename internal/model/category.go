package model

// Endpoint はNewsAPIのエンドポイント種別を表す。
type Endpoint string

const (
	// EndpointTopHeadlines は /top-headlines エンドポイント（国コード必須）。
	EndpointTopHeadlines Endpoint = "top-headlines"
	// EndpointEverything は /everything エンドポイント（フリーテキスト検索）。
	EndpointEverything Endpoint = "everything"
)

// Category はニュースカテゴリの識別子を表す。
type Category string

// 定義済みカテゴリ。フェッチはこの宣言順で実行される。
const (
	CategoryKurdistan     Category = "kurdistan"
	CategoryGeneral       Category = "general"
	CategoryBusiness      Category = "business"
	CategoryEntertainment Category = "entertainment"
	CategoryHealth        Category = "health"
	CategoryScience       Category = "science"
	CategorySports        Category = "sports"
	CategoryTechnology    Category = "technology"
	CategoryPolitics      Category = "politics"
)

// CategoryDescriptor はカテゴリごとの検索パラメータと表示ラベルを保持する。
// 実行時のマップ参照ではなく、初期化時に解決される固定のディスクリプタとして扱う。
type CategoryDescriptor struct {
	Code         Category
	Name         string
	Endpoint     Endpoint
	Query        string // everything用のフリーテキストクエリ
	SearchIn     string // everything用の検索対象フィールド
	APICategory  string // top-headlines用のカテゴリコード
	KurdishLabel string // ソラニー語のカテゴリラベル
}

// categoryDescriptors は全カテゴリのディスクリプタ定義。
// 宣言順がサイクル内の処理順になる。
var categoryDescriptors = []CategoryDescriptor{
	{
		Code:         CategoryKurdistan,
		Name:         "Kurdistan",
		Endpoint:     EndpointEverything,
		Query:        "kurd OR kurdistan OR Kurdish OR kurds",
		SearchIn:     "title,description",
		KurdishLabel: "کورد",
	},
	{
		Code:         CategoryGeneral,
		Name:         "General",
		Endpoint:     EndpointTopHeadlines,
		APICategory:  "general",
		KurdishLabel: "گشتی",
	},
	{
		Code:         CategoryBusiness,
		Name:         "Business",
		Endpoint:     EndpointTopHeadlines,
		APICategory:  "business",
		KurdishLabel: "ئابووری",
	},
	{
		Code:         CategoryEntertainment,
		Name:         "Entertainment",
		Endpoint:     EndpointTopHeadlines,
		APICategory:  "entertainment",
		KurdishLabel: "هەمەڕەنگ",
	},
	{
		Code:         CategoryHealth,
		Name:         "Health",
		Endpoint:     EndpointTopHeadlines,
		APICategory:  "health",
		KurdishLabel: "تەندرووستی",
	},
	{
		Code:         CategoryScience,
		Name:         "Science",
		Endpoint:     EndpointTopHeadlines,
		APICategory:  "science",
		KurdishLabel: "زانست",
	},
	{
		Code:         CategorySports,
		Name:         "Sports",
		Endpoint:     EndpointEverything,
		Query:        "laliga OR la liga OR El Clásico OR UEFA OR fifa",
		SearchIn:     "title,description",
		KurdishLabel: "وەرزش",
	},
	{
		Code:         CategoryTechnology,
		Name:         "Technology",
		Endpoint:     EndpointTopHeadlines,
		APICategory:  "technology",
		KurdishLabel: "تەکنەلۆژیا",
	},
	{
		Code:         CategoryPolitics,
		Name:         "Politics",
		Endpoint:     EndpointTopHeadlines,
		APICategory:  "politics",
		KurdishLabel: "سیاسەت",
	},
}

// AllCategories は全カテゴリのディスクリプタを宣言順で返す。
// 返却スライスは呼び出しごとのコピーであり、呼び出し側が変更しても定義は影響を受けない。
func AllCategories() []CategoryDescriptor {
	out := make([]CategoryDescriptor, len(categoryDescriptors))
	copy(out, categoryDescriptors)
	return out
}

// FindCategory は指定コードのディスクリプタを返す。
// 未定義のコードの場合は第2戻り値にfalseを返す。
func FindCategory(code Category) (CategoryDescriptor, bool) {
	for _, d := range categoryDescriptors {
		if d.Code == code {
			return d, true
		}
	}
	return CategoryDescriptor{}, false
}
