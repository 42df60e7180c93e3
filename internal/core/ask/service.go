package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrQueryFlagged はモデレーションで質問が拒否されたことを表す
	ErrQueryFlagged = errors.New("query flagged by moderation")
	// ErrNoRelevantSections は関連セクションが1件も見つからなかったことを表す
	ErrNoRelevantSections = errors.New("no relevant sections found")
)

// Embedder は質問文のEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) (vector []float32, totalTokens int, err error)
}

// Moderator はコンテンツモデレーションのインターフェース
type Moderator interface {
	// Moderate は入力がポリシー違反かどうかを判定する
	Moderate(ctx context.Context, input string) (flagged bool, err error)
}

// AskService は類似検索のビジネスロジックを提供する
// モデレーション → Embedding → ベクトル検索の順に実行し、
// 結果が空だった質問は統計として記録する
type AskService struct {
	repo      Repository
	embedder  Embedder
	moderator Moderator
	logger    *slog.Logger
}

type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(
	repo Repository,
	embedder Embedder,
	moderator Moderator,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		repo:      repo,
		embedder:  embedder,
		moderator: moderator,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Ask は質問に関連するセクションを類似度の降順で返す
func (s *AskService) Ask(ctx context.Context, params AskParams) (*AskResult, error) {
	// 1. バリデーション
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if params.ProjectID == uuid.Nil {
		return nil, fmt.Errorf("projectID is required")
	}

	// 2. デフォルト値の設定
	threshold := params.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	matchCount := params.MatchCount
	if matchCount <= 0 {
		matchCount = DefaultMatchCount
	}
	minContentLength := params.MinContentLength
	if minContentLength <= 0 {
		minContentLength = DefaultMinContentLength
	}

	// 3. モデレーション
	flagged, err := s.moderator.Moderate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("moderation failed: %w", err)
	}
	if flagged {
		s.logger.Warn("モデレーションにより質問を拒否",
			"projectID", params.ProjectID.String(),
		)
		return nil, ErrQueryFlagged
	}

	// 4. 質問文をEmbeddingに変換
	queryVector, _, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// 5. ベクトル類似検索
	matches, err := s.repo.MatchSections(ctx, params.ProjectID, queryVector, threshold, matchCount, minContentLength)
	if err != nil {
		return nil, fmt.Errorf("section match failed: %w", err)
	}

	// 6. 結果が空だった質問はコンテンツの穴として Embedding ごと記録する
	if len(matches) == 0 {
		if err := s.repo.InsertQueryStat(ctx, params.ProjectID, query, queryVector, true); err != nil {
			s.logger.Warn("failed to record query stat", "error", err)
		}
		return nil, ErrNoRelevantSections
	}

	s.logger.Info("ask completed successfully",
		"projectID", params.ProjectID.String(),
		"matches", len(matches),
	)

	return &AskResult{Sections: matches, QueryEmbedding: queryVector}, nil
}
