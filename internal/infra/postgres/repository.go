package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/mystery000/Chatjet-sub000/internal/core/train"
	"github.com/mystery000/Chatjet-sub000/internal/core/train/parse"
)

// DefaultTokenAllowance は割当レコード未作成時の初期トークン割当
const DefaultTokenAllowance int64 = 1_000_000

// Repository は train.Repository インターフェースを実装する PostgreSQL リポジトリです
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

type repositoryOptions struct {
	logger *slog.Logger
}

// RepositoryOption は Repository のオプション設定
type RepositoryOption func(*repositoryOptions)

// WithRepositoryLogger は Repository にロガーを設定する
func WithRepositoryLogger(logger *slog.Logger) RepositoryOption {
	return func(o *repositoryOptions) {
		o.logger = logger
	}
}

// NewRepository は新しい Repository を作成します
func NewRepository(pool *pgxpool.Pool, opts ...RepositoryOption) *Repository {
	options := repositoryOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	return &Repository{pool: pool, logger: options.logger}
}

// コンパイル時の型チェック
var _ train.Repository = (*Repository)(nil)

// === Source ===

func (r *Repository) GetSourceByID(ctx context.Context, id uuid.UUID) (mo.Option[*train.Source], error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, project_id, type, data, created_at FROM sources WHERE id = $1`,
		UUIDToPgtype(id),
	)
	source, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*train.Source](), nil
		}
		return mo.None[*train.Source](), fmt.Errorf("failed to get source: %w", err)
	}
	return mo.Some(source), nil
}

func (r *Repository) ListSourcesByProject(ctx context.Context, projectID uuid.UUID) ([]*train.Source, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, project_id, type, data, created_at FROM sources WHERE project_id = $1 ORDER BY created_at`,
		UUIDToPgtype(projectID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*train.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}
	return sources, nil
}

func (r *Repository) CreateSource(ctx context.Context, projectID uuid.UUID, data train.SourceData) (*train.Source, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal source data: %w", err)
	}

	id := uuid.New()
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sources (id, project_id, type, data) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		UUIDToPgtype(id), UUIDToPgtype(projectID), string(data.Kind()), payload,
	)

	var createdAt pgtype.Timestamp
	if err := row.Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	return &train.Source{
		ID:        id,
		ProjectID: projectID,
		Data:      data,
		CreatedAt: PgtypeToTime(createdAt),
	}, nil
}

func (r *Repository) DeleteSource(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, UUIDToPgtype(id)); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}

// scanSource は sources の1行を train.Source へ変換する
func scanSource(row pgx.Row) (*train.Source, error) {
	var (
		id        pgtype.UUID
		projectID pgtype.UUID
		kind      string
		payload   []byte
		createdAt pgtype.Timestamp
	)
	if err := row.Scan(&id, &projectID, &kind, &payload, &createdAt); err != nil {
		return nil, err
	}

	data, err := decodeSourceData(train.SourceType(kind), payload)
	if err != nil {
		return nil, err
	}

	return &train.Source{
		ID:        PgtypeToUUID(id),
		ProjectID: PgtypeToUUID(projectID),
		Data:      data,
		CreatedAt: PgtypeToTime(createdAt),
	}, nil
}

// decodeSourceData は種別カラムに応じて data JSONB を型付きペイロードへ復元する
func decodeSourceData(kind train.SourceType, payload []byte) (train.SourceData, error) {
	switch kind {
	case train.SourceTypeGitRepo:
		var data train.GitRepoData
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal git-repo data: %w", err)
		}
		return data, nil
	case train.SourceTypeExport:
		var data train.ExportData
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal export data: %w", err)
		}
		return data, nil
	case train.SourceTypeWebsite:
		var data train.WebsiteData
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal website data: %w", err)
		}
		return data, nil
	case train.SourceTypeUpload:
		var data train.UploadData
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal upload data: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", kind)
	}
}

// === File ===

func (r *Repository) GetFileBySourcePath(ctx context.Context, sourceID uuid.UUID, path string) (mo.Option[*train.StoredFile], error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, source_id, project_id, path, meta, checksum, updated_at FROM files WHERE source_id = $1 AND path = $2`,
		UUIDToPgtype(sourceID), path,
	)

	var (
		id        pgtype.UUID
		srcID     pgtype.UUID
		projectID pgtype.UUID
		filePath  string
		meta      []byte
		checksum  pgtype.Text
		updatedAt pgtype.Timestamp
	)
	if err := row.Scan(&id, &srcID, &projectID, &filePath, &meta, &checksum, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*train.StoredFile](), nil
		}
		return mo.None[*train.StoredFile](), fmt.Errorf("failed to get file: %w", err)
	}

	var fileMeta parse.FileMeta
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &fileMeta); err != nil {
			return mo.None[*train.StoredFile](), fmt.Errorf("failed to unmarshal file meta: %w", err)
		}
	}

	return mo.Some(&train.StoredFile{
		ID:        PgtypeToUUID(id),
		SourceID:  PgtypeToUUID(srcID),
		ProjectID: PgtypeToUUID(projectID),
		Path:      filePath,
		Meta:      fileMeta,
		Checksum:  checksum.String,
		UpdatedAt: PgtypeToTime(updatedAt),
	}), nil
}

func (r *Repository) GetFileChecksums(ctx context.Context, sourceID uuid.UUID) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT path, checksum FROM files WHERE source_id = $1 AND checksum IS NOT NULL`,
		UUIDToPgtype(sourceID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list file checksums: %w", err)
	}
	defer rows.Close()

	checksums := make(map[string]string)
	for rows.Next() {
		var (
			path     string
			checksum string
		)
		if err := rows.Scan(&path, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan file checksum: %w", err)
		}
		checksums[path] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file checksums: %w", err)
	}
	return checksums, nil
}

func (r *Repository) UpsertFile(ctx context.Context, sourceID, projectID uuid.UUID, path string, meta parse.FileMeta, checksum string) (*train.StoredFile, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal file meta: %w", err)
	}

	// 既存パスは再作成せず更新する
	row := r.pool.QueryRow(ctx,
		`INSERT INTO files (id, source_id, project_id, path, meta, checksum)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (source_id, path)
		 DO UPDATE SET meta = EXCLUDED.meta, checksum = EXCLUDED.checksum, updated_at = now()
		 RETURNING id, updated_at`,
		UUIDToPgtype(uuid.New()), UUIDToPgtype(sourceID), UUIDToPgtype(projectID),
		path, payload, StringToNullableText(checksum),
	)

	var (
		id        pgtype.UUID
		updatedAt pgtype.Timestamp
	)
	if err := row.Scan(&id, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to upsert file: %w", err)
	}

	return &train.StoredFile{
		ID:        PgtypeToUUID(id),
		SourceID:  sourceID,
		ProjectID: projectID,
		Path:      path,
		Meta:      meta,
		Checksum:  checksum,
		UpdatedAt: PgtypeToTime(updatedAt),
	}, nil
}

func (r *Repository) DeleteFile(ctx context.Context, fileID uuid.UUID) error {
	// sections は外部キーのカスケードで一緒に消える
	if _, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, UUIDToPgtype(fileID)); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// === Section ===

// ReplaceFileSections はファイルのセクション集合をトランザクション内で全置換する
// バルク挿入に失敗した場合は1行ずつの挿入にフォールバックし、
// それでも入らなかった行数を返す
func (r *Repository) ReplaceFileSections(ctx context.Context, fileID uuid.UUID, sections []*train.StoredSection) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM sections WHERE file_id = $1`, UUIDToPgtype(fileID)); err != nil {
		return 0, fmt.Errorf("failed to delete stale sections: %w", err)
	}

	failed, err := r.insertSections(ctx, tx, fileID, sections)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return failed, nil
}

func (r *Repository) insertSections(ctx context.Context, tx pgx.Tx, fileID uuid.UUID, sections []*train.StoredSection) (int, error) {
	if len(sections) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(sections))
	for _, section := range sections {
		row, err := sectionRow(fileID, section)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	// COPY がサーバ側で失敗するとトランザクション全体が中断状態になる
	// 先にセーブポイントを張り、失敗したらそこへ巻き戻してから救済に入る
	bulk, err := tx.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin nested transaction: %w", err)
	}
	_, copyErr := bulk.CopyFrom(ctx,
		pgx.Identifier{"sections"},
		[]string{"id", "file_id", "content", "lead_heading", "embedding", "token_count"},
		pgx.CopyFromRows(rows),
	)
	if copyErr == nil {
		if err := bulk.Commit(ctx); err != nil {
			return 0, fmt.Errorf("failed to commit nested transaction: %w", err)
		}
		return 0, nil
	}

	// バルク挿入は1行の不正で全体が失敗するため、
	// 行単位で挿入し直して取り込める行を救済する
	r.logger.Warn("failed to bulk insert sections, falling back to row inserts",
		"fileID", fileID.String(),
		"error", copyErr,
	)
	if err := bulk.Rollback(ctx); err != nil {
		return 0, fmt.Errorf("failed to roll back bulk insert: %w", err)
	}

	// 不正な行が後続の行を巻き込まないよう、1行ごとにセーブポイントを張る
	failed := 0
	for _, row := range rows {
		savepoint, err := tx.Begin(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to begin nested transaction: %w", err)
		}
		if _, err := savepoint.Exec(ctx,
			`INSERT INTO sections (id, file_id, content, lead_heading, embedding, token_count)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			row...,
		); err != nil {
			r.logger.Warn("failed to insert section row", "fileID", fileID.String(), "error", err)
			failed++
			if err := savepoint.Rollback(ctx); err != nil {
				return 0, fmt.Errorf("failed to roll back row insert: %w", err)
			}
			continue
		}
		if err := savepoint.Commit(ctx); err != nil {
			return 0, fmt.Errorf("failed to commit row insert: %w", err)
		}
	}
	return failed, nil
}

func sectionRow(fileID uuid.UUID, section *train.StoredSection) ([]any, error) {
	var leadHeading []byte
	if section.LeadHeading != nil {
		var err error
		leadHeading, err = json.Marshal(section.LeadHeading)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal lead heading: %w", err)
		}
	}

	id := section.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	return []any{
		UUIDToPgtype(id),
		UUIDToPgtype(fileID),
		section.Content,
		leadHeading,
		pgvector.NewVector(section.Embedding),
		int32(section.TokenCount),
	}, nil
}

// === TokenAllowance ===

// GetTokenAllowance はプロジェクトの割当を取得する
// レコード未作成のプロジェクトにはデフォルト割当の行を作成する
func (r *Repository) GetTokenAllowance(ctx context.Context, projectID uuid.UUID) (*train.TokenAllowance, error) {
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO token_allowances (project_id, token_allowance, used_tokens)
		 VALUES ($1, $2, 0)
		 ON CONFLICT (project_id) DO NOTHING`,
		UUIDToPgtype(projectID), DefaultTokenAllowance,
	); err != nil {
		return nil, fmt.Errorf("failed to ensure token allowance: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`SELECT token_allowance, used_tokens FROM token_allowances WHERE project_id = $1`,
		UUIDToPgtype(projectID),
	)

	allowance := train.TokenAllowance{ProjectID: projectID}
	if err := row.Scan(&allowance.TokenAllowance, &allowance.UsedTokens); err != nil {
		return nil, fmt.Errorf("failed to get token allowance: %w", err)
	}
	return &allowance, nil
}

func (r *Repository) AddUsedTokens(ctx context.Context, projectID uuid.UUID, tokens int64) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE token_allowances SET used_tokens = used_tokens + $2 WHERE project_id = $1`,
		UUIDToPgtype(projectID), tokens,
	); err != nil {
		return fmt.Errorf("failed to add used tokens: %w", err)
	}
	return nil
}
