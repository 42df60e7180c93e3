package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/mystery000/Chatjet-sub000/internal/core/ask"
)

// SearchRepository は core/ask.Repository を実装する PostgreSQL リポジトリ。
type SearchRepository struct {
	pool *pgxpool.Pool
}

// NewSearchRepository は新しい SearchRepository を返す。
func NewSearchRepository(pool *pgxpool.Pool) *SearchRepository {
	return &SearchRepository{pool: pool}
}

var _ ask.Repository = (*SearchRepository)(nil)

// MatchSections はコサイン類似度でセクションを検索する
// pgvector の <=> はコサイン距離を返すため、類似度は 1 - 距離で求める
func (r *SearchRepository) MatchSections(ctx context.Context, projectID uuid.UUID, queryVector []float32, threshold float64, matchCount int, minContentLength int) ([]*ask.MatchedSection, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT f.path, s.content, s.token_count, 1 - (s.embedding <=> $2) AS similarity
		 FROM sections s
		 JOIN files f ON f.id = s.file_id
		 WHERE f.project_id = $1
		   AND length(s.content) >= $3
		   AND 1 - (s.embedding <=> $2) >= $4
		 ORDER BY s.embedding <=> $2
		 LIMIT $5`,
		UUIDToPgtype(projectID),
		pgvector.NewVector(queryVector),
		minContentLength,
		threshold,
		matchCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to match sections: %w", err)
	}
	defer rows.Close()

	var results []*ask.MatchedSection
	for rows.Next() {
		var matched ask.MatchedSection
		var tokenCount int32
		if err := rows.Scan(&matched.Path, &matched.Content, &tokenCount, &matched.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan matched section: %w", err)
		}
		matched.TokenCount = int(tokenCount)
		results = append(results, &matched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matched sections: %w", err)
	}
	return results, nil
}

// InsertQueryStat は質問の統計レコードを記録する
func (r *SearchRepository) InsertQueryStat(ctx context.Context, projectID uuid.UUID, query string, embedding []float32, noResponse bool) error {
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO query_stats (id, project_id, query, embedding, no_response) VALUES ($1, $2, $3, $4, $5)`,
		UUIDToPgtype(uuid.New()), UUIDToPgtype(projectID), query, pgvector.NewVector(embedding), noResponse,
	); err != nil {
		return fmt.Errorf("failed to insert query stat: %w", err)
	}
	return nil
}
