package train

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/mystery000/Chatjet-sub000/internal/core/train/parse"
)

// SourceType はソース種別を表す
type SourceType string

const (
	SourceTypeGitRepo SourceType = "git-repo"
	SourceTypeExport  SourceType = "export"
	SourceTypeWebsite SourceType = "website"
	SourceTypeUpload  SourceType = "upload"
)

// SourceData はソース種別ごとの型付きペイロード
// 既知の種別のみを許す閉じたユニオンとして定義し、分岐は型スイッチで行う
type SourceData interface {
	Kind() SourceType
}

// GitRepoData は Git リポジトリソースのペイロード
type GitRepoData struct {
	URL    string `json:"url"`
	Branch string `json:"branch,omitempty"`
}

func (GitRepoData) Kind() SourceType { return SourceTypeGitRepo }

// ExportData はホスティング済みプロジェクトのエクスポートアーカイブ
type ExportData struct {
	ArchivePath string `json:"archivePath"`
}

func (ExportData) Kind() SourceType { return SourceTypeExport }

// WebsiteData はクロール対象の Web サイト
type WebsiteData struct {
	BaseURL string `json:"baseUrl"`
}

func (WebsiteData) Kind() SourceType { return SourceTypeWebsite }

// UploadData はアップロードされたファイル群のディレクトリ
type UploadData struct {
	Dir string `json:"dir"`
}

func (UploadData) Kind() SourceType { return SourceTypeUpload }

// Source はプロジェクトに紐づくドキュメントソース
type Source struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Data      SourceData
	CreatedAt time.Time
}

// StoredFile は処理済みファイルのレコード
// 既存パスの再処理では再作成せず更新される
type StoredFile struct {
	ID        uuid.UUID
	SourceID  uuid.UUID
	ProjectID uuid.UUID
	Path      string
	Meta      parse.FileMeta
	Checksum  string // コンテンツの SHA-256（base64）
	UpdatedAt time.Time
}

// StoredSection は埋め込み済みセクションのレコード
// 所有者の StoredFile が再処理されるたびに全置換される
type StoredSection struct {
	ID          uuid.UUID
	FileID      uuid.UUID
	Content     string
	LeadHeading *parse.LeadHeading
	Embedding   []float32
	TokenCount  int
}

// TokenAllowance はプロジェクトごとのトークン割当
type TokenAllowance struct {
	ProjectID      uuid.UUID
	TokenAllowance int64
	UsedTokens     int64
}

// Remaining は残りトークン数を返す
func (a *TokenAllowance) Remaining() int64 {
	return a.TokenAllowance - a.UsedTokens
}

// FileList はソースアダプタが解決したファイル単位のアクセサ集合
// ContentFor が mo.None を返した単位はスキップされる
type FileList struct {
	Count      int
	PathFor    func(index int) string
	ContentFor func(ctx context.Context, index int) (mo.Option[parse.RawDocument], error)
}

// ProgressFunc は単位処理の進捗通知コールバック
type ProgressFunc func(current, total int, filename string)

// ErrorFunc は単位処理のエラー通知コールバック
type ErrorFunc func(message string)
