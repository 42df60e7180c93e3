package train

import (
	"errors"
	"fmt"
)

// ErrUnsupportedSource は未知のソース種別に対するエラー
var ErrUnsupportedSource = errors.New("unsupported source type")

// QuotaExceededError はプロジェクトのトークン割当を超過した場合のエラー
// 対象ファイルの処理のみを中断し、他のファイルは継続する
type QuotaExceededError struct {
	Allowance int64 // プロジェクトの割当トークン数
	Used      int64 // 消費済みトークン数
	Attempted int64 // 今回消費しようとしたトークン数
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf(
		"token allowance exceeded: allowance=%d used=%d attempted=%d",
		e.Allowance, e.Used, e.Attempted,
	)
}

// IsQuotaExceeded は err が割当超過かを判定する
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}
