package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mystery000/Chatjet-sub000/internal/core/train"
)

// fakeTx は Postgres のトランザクション中断セマンティクスを再現する
// COPY や INSERT がサーバ側で失敗すると、セーブポイントへ巻き戻すまで
// 後続の文はすべて "current transaction is aborted" で拒否される
type fakeTx struct {
	pgx.Tx

	copyErr     error
	failContent string

	aborted  bool
	inserted [][]any
}

func (t *fakeTx) Begin(_ context.Context) (pgx.Tx, error) {
	if t.aborted {
		return nil, errors.New("current transaction is aborted, commands ignored until end of transaction block")
	}
	return &fakeSavepoint{parent: t}, nil
}

// fakeSavepoint は tx.Begin が発行する SAVEPOINT を表す
type fakeSavepoint struct {
	pgx.Tx

	parent *fakeTx
}

func (sp *fakeSavepoint) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	if sp.parent.aborted {
		return 0, errors.New("current transaction is aborted, commands ignored until end of transaction block")
	}
	if sp.parent.copyErr != nil {
		sp.parent.aborted = true
		return 0, sp.parent.copyErr
	}
	var count int64
	for src.Next() {
		row, err := src.Values()
		if err != nil {
			return count, err
		}
		sp.parent.inserted = append(sp.parent.inserted, row)
		count++
	}
	return count, nil
}

func (sp *fakeSavepoint) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	if sp.parent.aborted {
		return pgconn.CommandTag{}, errors.New("current transaction is aborted, commands ignored until end of transaction block")
	}
	if content, ok := args[2].(string); ok && content == sp.parent.failContent {
		sp.parent.aborted = true
		return pgconn.CommandTag{}, errors.New("value too long for type")
	}
	sp.parent.inserted = append(sp.parent.inserted, args)
	return pgconn.CommandTag{}, nil
}

func (sp *fakeSavepoint) Commit(_ context.Context) error {
	if sp.parent.aborted {
		return errors.New("current transaction is aborted, commands ignored until end of transaction block")
	}
	return nil
}

func (sp *fakeSavepoint) Rollback(_ context.Context) error {
	// ROLLBACK TO SAVEPOINT は中断状態を解除する
	sp.parent.aborted = false
	return nil
}

func newTestRepository() *Repository {
	return NewRepository(nil, WithRepositoryLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func testSections(count int) []*train.StoredSection {
	sections := make([]*train.StoredSection, 0, count)
	for i := 0; i < count; i++ {
		sections = append(sections, &train.StoredSection{
			Content:    fmt.Sprintf("Section number %d body.", i),
			Embedding:  []float32{0.1, 0.2, 0.3},
			TokenCount: 5,
		})
	}
	return sections
}

func TestInsertSections_BulkInsertUsesSingleCopy(t *testing.T) {
	repo := newTestRepository()
	tx := &fakeTx{}

	failed, err := repo.insertSections(context.Background(), tx, uuid.New(), testSections(3))
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Len(t, tx.inserted, 3)
}

func TestInsertSections_FallbackSalvagesRowsAfterFailedCopy(t *testing.T) {
	repo := newTestRepository()
	sections := testSections(3)
	tx := &fakeTx{
		copyErr:     errors.New("invalid byte sequence for encoding"),
		failContent: sections[1].Content,
	}

	failed, err := repo.insertSections(context.Background(), tx, uuid.New(), sections)
	require.NoError(t, err)

	// 不正な1行だけが落ち、残りは行単位の挿入で救済される
	assert.Equal(t, 1, failed)
	require.Len(t, tx.inserted, 2)
	assert.Equal(t, sections[0].Content, tx.inserted[0][2])
	assert.Equal(t, sections[2].Content, tx.inserted[1][2])
	// すべてのセーブポイントが解決され、トランザクションは中断状態で残らない
	assert.False(t, tx.aborted)
}

func TestInsertSections_AllRowsFailedStillCommits(t *testing.T) {
	repo := newTestRepository()
	sections := testSections(1)
	tx := &fakeTx{
		copyErr:     errors.New("invalid byte sequence for encoding"),
		failContent: sections[0].Content,
	}

	failed, err := repo.insertSections(context.Background(), tx, uuid.New(), sections)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	assert.Empty(t, tx.inserted)
	assert.False(t, tx.aborted)
}

func TestInsertSections_NoSectionsIsNoop(t *testing.T) {
	repo := newTestRepository()
	failed, err := repo.insertSections(context.Background(), &fakeTx{}, uuid.New(), nil)
	require.NoError(t, err)
	assert.Zero(t, failed)
}

func TestSectionRow_GeneratesIDWhenMissing(t *testing.T) {
	fileID := uuid.New()
	row, err := sectionRow(fileID, &train.StoredSection{
		Content:    "Body text.",
		Embedding:  []float32{0.5},
		TokenCount: 2,
	})
	require.NoError(t, err)
	require.Len(t, row, 6)
	assert.Equal(t, "Body text.", row[2])
}
