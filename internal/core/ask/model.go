package ask

import (
	"github.com/google/uuid"
)

// AskParams は類似検索のパラメータを表す
type AskParams struct {
	ProjectID        uuid.UUID // プロジェクトID
	Query            string    // ユーザーの質問文
	Threshold        float64   // コサイン類似度の下限（デフォルト: 0.5）
	MatchCount       int       // 返すセクション数の上限（デフォルト: 10）
	MinContentLength int       // これ未満の短いセクションは除外する（デフォルト: 50）
}

const (
	DefaultThreshold        = 0.5
	DefaultMatchCount       = 10
	DefaultMinContentLength = 50
)

// AskResult は類似検索の結果を表す
// QueryEmbedding は後段の回答生成（スコープ外）で再利用できるよう返す
type AskResult struct {
	Sections       []*MatchedSection `json:"sections"`
	QueryEmbedding []float32         `json:"-"`
}

// MatchedSection は類似検索でヒットしたセクションを表す
type MatchedSection struct {
	Path       string  `json:"path"`       // ソース内のパス（WebサイトならURL）
	Content    string  `json:"content"`    // セクション本文
	TokenCount int     `json:"tokenCount"` // トークン数
	Similarity float64 `json:"similarity"` // 関連度スコア
}
