package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrainingState_CancelSurvivesProgressUpdates(t *testing.T) {
	state := NewTrainingState()

	state.requestCancel()
	assert.True(t, state.cancelRequested())

	// 進捗更新が割り込んでも停止要求は残る
	state.toLoading(1, 3, "docs/a.md")
	assert.True(t, state.cancelRequested())
	assert.Equal(t, StateCancelRequested, state.Snapshot().Kind)

	// 解除するのは toIdle だけ
	state.toIdle()
	assert.False(t, state.cancelRequested())
	assert.Equal(t, StateIdle, state.Snapshot().Kind)
}

func TestTrainingState_LoadingClampsProgress(t *testing.T) {
	state := NewTrainingState()
	state.toFetchingData()
	state.toLoading(5, 3, "docs/a.md")

	snapshot := state.Snapshot()
	assert.Equal(t, StateLoading, snapshot.Kind)
	assert.Equal(t, 3, snapshot.Progress)
	assert.Equal(t, 3, snapshot.Total)
}
