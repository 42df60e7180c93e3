package train

import "sync"

// QuotaTracker はプロジェクトの残トークン数を管理する
// 複数ワーカーからの確認と消費をひとつのロックで直列化する。
// 確認と減算を分離すると、並行する2ワーカーが同時に「残量あり」を観測して
// 合計で割当を超過し得るため、Consume は単一のクリティカルセクションで行う
type QuotaTracker struct {
	mu        sync.Mutex
	allowance int64
	used      int64
	bypass    bool
}

// NewQuotaTracker は割当と消費済みトークン数から QuotaTracker を作成する
func NewQuotaTracker(allowance, used int64) *QuotaTracker {
	return &QuotaTracker{allowance: allowance, used: used}
}

// NewBypassQuotaTracker は割当チェックを行わないトラッカーを作成する
// 呼び出し側が自前の API キーを持ち込む場合に使用する
func NewBypassQuotaTracker() *QuotaTracker {
	return &QuotaTracker{bypass: true}
}

// Consume は tokens 分の消費を試みる
// 割当を超過する場合は消費せずに QuotaExceededError を返す
func (t *QuotaTracker) Consume(tokens int64) error {
	if t.bypass {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.used+tokens > t.allowance {
		return &QuotaExceededError{
			Allowance: t.allowance,
			Used:      t.used,
			Attempted: tokens,
		}
	}
	t.used += tokens
	return nil
}

// Used は消費済みトークン数を返す
func (t *QuotaTracker) Used() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

// Remaining は残りトークン数を返す
func (t *QuotaTracker) Remaining() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowance - t.used
}

// Bypass は割当チェックを行わないトラッカーかを返す
func (t *QuotaTracker) Bypass() bool {
	return t.bypass
}
