// Package model はドメインモデルを定義する。
package model

import "fmt"

// Status は記事のライフサイクル状態を表す。
// fetched → translated → posted の順でのみ遷移する閉じた列挙型。
type Status string

const (
	// StatusFetched は検索APIから取得済みで翻訳待ちの状態。
	StatusFetched Status = "fetched"
	// StatusTranslated は翻訳済みで投稿待ちの状態。
	StatusTranslated Status = "translated"
	// StatusPosted は少なくとも1つのプラットフォームへの投稿が確認済みの状態。
	StatusPosted Status = "posted"
)

// statusRanks はステータスの前進順序を定義する。
// 数値が大きいほどライフサイクルの後段を表す。
var statusRanks = map[Status]int{
	StatusFetched:    1,
	StatusTranslated: 2,
	StatusPosted:     3,
}

// Valid はステータスが定義済みの値かどうかを返す。
func (s Status) Valid() bool {
	_, ok := statusRanks[s]
	return ok
}

// Rank はステータスの前進順序を返す。未定義のステータスは0を返す。
func (s Status) Rank() int {
	return statusRanks[s]
}

// CanAdvance はfromからtoへの状態遷移が許可されるかを返す。
// 前進方向（rankが厳密に増加する）遷移のみを許可し、後退と自己遷移は拒否する。
func CanAdvance(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return to.Rank() > from.Rank()
}

// Advance はfromからtoへの遷移を検証し、不正な遷移の場合はエラーを返す。
// ステータスの後退（posted→translated等）はここで必ず拒否される。
func Advance(from, to Status) (Status, error) {
	if !CanAdvance(from, to) {
		return from, fmt.Errorf("不正な状態遷移です: %s → %s", from, to)
	}
	return to, nil
}
