package train

import "sync"

// StateKind はトレーニング状態の種別
type StateKind string

const (
	StateIdle            StateKind = "idle"
	StateFetchingData    StateKind = "fetching_data"
	StateLoading         StateKind = "loading"
	StateCancelRequested StateKind = "cancel_requested"
	StateComplete        StateKind = "complete"
)

// StateSnapshot は呼び出し側へ公開する状態のスナップショット
type StateSnapshot struct {
	Kind     StateKind
	Progress int
	Total    int
	Filename string
	Errors   []string // complete 時の累積エラー
}

// TrainingState はオーケストレータが保持する明示的な状態機械
// idle → fetching_data → loading → idle を基本遷移とし、
// 停止要求で idle → cancel_requested → idle、完走後は complete の
// スナップショットを保持する。loading.progress は total を超えない。
// 停止フラグは kind とは別に保持する。進捗更新が kind を上書きしても
// フラグは消えず、toIdle だけが解除する
type TrainingState struct {
	mu       sync.Mutex
	kind     StateKind
	cancel   bool
	progress int
	total    int
	filename string
	errors   []string
}

// NewTrainingState は idle 状態の TrainingState を作成する
func NewTrainingState() *TrainingState {
	return &TrainingState{kind: StateIdle}
}

// Snapshot は現在の状態を返す
func (s *TrainingState) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := make([]string, len(s.errors))
	copy(errs, s.errors)
	return StateSnapshot{
		Kind:     s.kind,
		Progress: s.progress,
		Total:    s.total,
		Filename: s.filename,
		Errors:   errs,
	}
}

func (s *TrainingState) toFetchingData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cancel {
		s.kind = StateFetchingData
	}
	s.progress = 0
	s.total = 0
	s.filename = ""
	s.errors = nil
}

func (s *TrainingState) toLoading(progress, total int, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if progress > total {
		progress = total
	}
	if !s.cancel {
		s.kind = StateLoading
	}
	s.progress = progress
	s.total = total
	s.filename = filename
}

func (s *TrainingState) toIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = StateIdle
	s.cancel = false
	s.progress = 0
	s.total = 0
	s.filename = ""
}

func (s *TrainingState) requestCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = true
	s.kind = StateCancelRequested
}

func (s *TrainingState) cancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel
}

func (s *TrainingState) addError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, message)
}

func (s *TrainingState) complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = StateComplete
	s.progress = 0
	s.total = 0
	s.filename = ""
}
