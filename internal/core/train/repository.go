package train

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/mystery000/Chatjet-sub000/internal/core/train/parse"
)

// Repository はトレーニング関連の全データアクセスを統合するインターフェース
// テスト時のモック用に消費者側で定義
type Repository interface {
	// Source
	GetSourceByID(ctx context.Context, id uuid.UUID) (mo.Option[*Source], error)
	ListSourcesByProject(ctx context.Context, projectID uuid.UUID) ([]*Source, error)
	CreateSource(ctx context.Context, projectID uuid.UUID, data SourceData) (*Source, error)
	DeleteSource(ctx context.Context, id uuid.UUID) error

	// File
	GetFileBySourcePath(ctx context.Context, sourceID uuid.UUID, path string) (mo.Option[*StoredFile], error)
	// GetFileChecksums は差分判定用に path → checksum を一括取得する
	GetFileChecksums(ctx context.Context, sourceID uuid.UUID) (map[string]string, error)
	UpsertFile(ctx context.Context, sourceID, projectID uuid.UUID, path string, meta parse.FileMeta, checksum string) (*StoredFile, error)
	// DeleteFile はファイルを削除する（所有セクションはカスケード削除）
	DeleteFile(ctx context.Context, fileID uuid.UUID) error

	// Section
	// ReplaceFileSections はファイルのセクション集合を原子的に全置換する
	// （トランザクション内で delete-then-insert）。バルク挿入に失敗した場合は
	// 1行ずつの挿入にフォールバックし、失敗した行数を返す
	ReplaceFileSections(ctx context.Context, fileID uuid.UUID, sections []*StoredSection) (failed int, err error)

	// TokenAllowance
	GetTokenAllowance(ctx context.Context, projectID uuid.UUID) (*TokenAllowance, error)
	AddUsedTokens(ctx context.Context, projectID uuid.UUID, tokens int64) error
}

// Embedder はテキストの Embedding 生成インターフェース
// 戻り値のトークン数はプロバイダが報告した使用量
type Embedder interface {
	Embed(ctx context.Context, text string) (vector []float32, totalTokens int, err error)
}

// FileLister はソースからファイル単位のアクセサ集合を解決する
// Web サイトソースは Crawler 経由で処理されるため対象外
type FileLister interface {
	ListFiles(ctx context.Context, source *Source) (FileList, error)
}

// CrawlPage はクローラが取得した1ページ
type CrawlPage struct {
	URL  string
	HTML string
}

// Crawler は Web サイトソースのページ発見と取得を担う
// 発見したページをバッチ単位で process に渡す。送出ページ総数が
// allowance を超えることはなく、超過しかけた場合は quotaReached が真になる
type Crawler interface {
	Crawl(ctx context.Context, baseURL string, allowance int, process func(ctx context.Context, pages []CrawlPage)) (quotaReached bool, err error)
}
