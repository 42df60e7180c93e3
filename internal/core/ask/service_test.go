package ask

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryStatRecord struct {
	projectID  uuid.UUID
	query      string
	embedding  []float32
	noResponse bool
}

// stubAskRepository は Repository のスタブ
type stubAskRepository struct {
	matches   []*MatchedSection
	matchErr  error
	statErr   error
	stats     []queryStatRecord
	lastQuery struct {
		threshold        float64
		matchCount       int
		minContentLength int
	}
}

func (r *stubAskRepository) MatchSections(_ context.Context, _ uuid.UUID, _ []float32, threshold float64, matchCount, minContentLength int) ([]*MatchedSection, error) {
	r.lastQuery.threshold = threshold
	r.lastQuery.matchCount = matchCount
	r.lastQuery.minContentLength = minContentLength
	if r.matchErr != nil {
		return nil, r.matchErr
	}
	return r.matches, nil
}

func (r *stubAskRepository) InsertQueryStat(_ context.Context, projectID uuid.UUID, query string, embedding []float32, noResponse bool) error {
	r.stats = append(r.stats, queryStatRecord{projectID: projectID, query: query, embedding: embedding, noResponse: noResponse})
	return r.statErr
}

var _ Repository = (*stubAskRepository)(nil)

// stubQueryEmbedder は固定ベクトルを返す Embedder のスタブ
type stubQueryEmbedder struct {
	calls int
	err   error
}

func (e *stubQueryEmbedder) Embed(_ context.Context, _ string) ([]float32, int, error) {
	e.calls++
	if e.err != nil {
		return nil, 0, e.err
	}
	return []float32{0.1, 0.2}, 5, nil
}

// stubModerator は固定の判定を返す Moderator のスタブ
type stubModerator struct {
	flagged bool
	err     error
}

func (m *stubModerator) Moderate(_ context.Context, _ string) (bool, error) {
	return m.flagged, m.err
}

func newTestAskService(repo *stubAskRepository, embedder *stubQueryEmbedder, moderator *stubModerator) *AskService {
	return NewAskService(repo, embedder, moderator,
		WithAskLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestAsk_ReturnsRankedSectionsAndQueryEmbedding(t *testing.T) {
	repo := &stubAskRepository{
		matches: []*MatchedSection{
			{Path: "docs/auth.md", Content: "Authentication works with API keys.", TokenCount: 8, Similarity: 0.91},
			{Path: "docs/setup.md", Content: "Install the CLI and log in.", TokenCount: 7, Similarity: 0.72},
		},
	}
	service := newTestAskService(repo, &stubQueryEmbedder{}, &stubModerator{})

	result, err := service.Ask(context.Background(), AskParams{
		ProjectID: uuid.New(),
		Query:     "how do I authenticate?",
	})
	require.NoError(t, err)

	require.Len(t, result.Sections, 2)
	assert.Equal(t, "docs/auth.md", result.Sections[0].Path)
	assert.Equal(t, []float32{0.1, 0.2}, result.QueryEmbedding)

	// ヒットした質問は統計に記録しない
	assert.Empty(t, repo.stats)
}

func TestAsk_AppliesDefaults(t *testing.T) {
	repo := &stubAskRepository{matches: []*MatchedSection{{Path: "docs/a.md"}}}
	service := newTestAskService(repo, &stubQueryEmbedder{}, &stubModerator{})

	_, err := service.Ask(context.Background(), AskParams{
		ProjectID: uuid.New(),
		Query:     "question",
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultThreshold, repo.lastQuery.threshold)
	assert.Equal(t, DefaultMatchCount, repo.lastQuery.matchCount)
	assert.Equal(t, DefaultMinContentLength, repo.lastQuery.minContentLength)
}

func TestAsk_FlaggedQueryIsRejectedBeforeEmbedding(t *testing.T) {
	repo := &stubAskRepository{}
	embedder := &stubQueryEmbedder{}
	service := newTestAskService(repo, embedder, &stubModerator{flagged: true})

	_, err := service.Ask(context.Background(), AskParams{
		ProjectID: uuid.New(),
		Query:     "something unsavory",
	})
	require.ErrorIs(t, err, ErrQueryFlagged)

	assert.Zero(t, embedder.calls)
	assert.Empty(t, repo.stats)
}

func TestAsk_NoMatchesRecordsQueryWithEmbedding(t *testing.T) {
	repo := &stubAskRepository{}
	service := newTestAskService(repo, &stubQueryEmbedder{}, &stubModerator{})

	projectID := uuid.New()
	_, err := service.Ask(context.Background(), AskParams{
		ProjectID: projectID,
		Query:     "  completely unrelated question  ",
	})
	require.ErrorIs(t, err, ErrNoRelevantSections)

	require.Len(t, repo.stats, 1)
	stat := repo.stats[0]
	assert.Equal(t, projectID, stat.projectID)
	// 質問文は前後の空白を除いて記録される
	assert.Equal(t, "completely unrelated question", stat.query)
	assert.Equal(t, []float32{0.1, 0.2}, stat.embedding)
	assert.True(t, stat.noResponse)
}

func TestAsk_StatInsertFailureStillReportsNoSections(t *testing.T) {
	repo := &stubAskRepository{statErr: errors.New("stats table unavailable")}
	service := newTestAskService(repo, &stubQueryEmbedder{}, &stubModerator{})

	_, err := service.Ask(context.Background(), AskParams{
		ProjectID: uuid.New(),
		Query:     "question",
	})
	require.ErrorIs(t, err, ErrNoRelevantSections)
}

func TestAsk_Validation(t *testing.T) {
	service := newTestAskService(&stubAskRepository{}, &stubQueryEmbedder{}, &stubModerator{})

	_, err := service.Ask(context.Background(), AskParams{ProjectID: uuid.New(), Query: "   "})
	require.Error(t, err)

	_, err = service.Ask(context.Background(), AskParams{Query: "question"})
	require.Error(t, err)
}

func TestAsk_EmbedErrorIsPropagated(t *testing.T) {
	repo := &stubAskRepository{}
	service := newTestAskService(repo, &stubQueryEmbedder{err: errors.New("api down")}, &stubModerator{})

	_, err := service.Ask(context.Background(), AskParams{ProjectID: uuid.New(), Query: "question"})
	require.Error(t, err)
	assert.Empty(t, repo.stats)
}
