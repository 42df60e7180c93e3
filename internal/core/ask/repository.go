package ask

import (
	"context"

	"github.com/google/uuid"
)

// Repository は検索関連の全データアクセスを統合するインターフェース
type Repository interface {
	// MatchSections はプロジェクト内でベクトル類似検索を実行する
	// threshold 以上のコサイン類似度を持ち、minContentLength 以上の長さの
	// セクションを類似度の降順で最大 matchCount 件返す
	MatchSections(ctx context.Context, projectID uuid.UUID, queryVector []float32, threshold float64, matchCount int, minContentLength int) ([]*MatchedSection, error)

	// InsertQueryStat は質問の統計レコードを記録する
	// 質問文とその Embedding を保存し、noResponse は該当セクションが
	// 1件も見つからなかったことを示す
	InsertQueryStat(ctx context.Context, projectID uuid.UUID, query string, embedding []float32, noResponse bool) error
}
