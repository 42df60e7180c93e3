package parse

import (
	"log/slog"
	"path/filepath"
	"strings"
)

// RawDocument はソースアダプタから渡される生ドキュメント
type RawDocument struct {
	Path    string // ソース内のパス（Webサイトの場合はURL）
	Name    string // 表示名（通常はベース名）
	Content string // 生のコンテンツ
}

// LeadHeading はセクション先頭の見出し情報
type LeadHeading struct {
	Value string `json:"value"`
	Depth int    `json:"depth"`
}

// Section は見出し区切りで分割されたドキュメントの一部分
// Sections の順序は常にドキュメント内の出現順と一致する
type Section struct {
	Content     string
	LeadHeading *LeadHeading
}

// FileMeta はパース時に抽出されたメタデータ（最低限 title を含む）
type FileMeta map[string]any

// Title は meta から title を取り出す。存在しない場合は空文字を返す
func (m FileMeta) Title() string {
	if m == nil {
		return ""
	}
	if v, ok := m["title"].(string); ok {
		return v
	}
	return ""
}

// Document はパース結果（セクション一覧 + メタデータ）
type Document struct {
	Sections []Section
	Meta     FileMeta
}

// FileType はファイル形式を表す
type FileType int

const (
	FileTypeText FileType = iota
	FileTypeMarkdown
	FileTypeMDX
	FileTypeMarkdoc
	FileTypeHTML
)

// InferFileType は拡張子からファイル形式を推定する
// URL（クロール済みページ）は拡張子で判別できない場合 HTML として扱う
func InferFileType(path string) FileType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FileTypeMarkdown
	case ".mdx":
		return FileTypeMDX
	case ".mdoc":
		return FileTypeMarkdoc
	case ".html", ".htm":
		return FileTypeHTML
	default:
		if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
			return FileTypeHTML
		}
		return FileTypeText
	}
}

// SupportedExtension はパース対象となる拡張子かを判定する
func SupportedExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdx", ".mdoc", ".html", ".htm", ".txt", ".text":
		return true
	default:
		return false
	}
}

// Parser は RawDocument をセクション一覧へ変換する
type Parser struct {
	logger *slog.Logger
}

type parserOptions struct {
	logger *slog.Logger
}

// ParserOption は Parser のオプション設定
type ParserOption func(*parserOptions)

// WithParserLogger は Parser にロガーを設定する
func WithParserLogger(logger *slog.Logger) ParserOption {
	return func(o *parserOptions) {
		o.logger = logger
	}
}

// NewParser は新しい Parser を作成する
func NewParser(opts ...ParserOption) *Parser {
	options := parserOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	return &Parser{logger: options.logger}
}

// Parse はファイル形式に応じてドキュメントをパースする
// パース失敗が想定される形式（MDX）は順序付きのフォールバックで処理する
func (p *Parser) Parse(doc RawDocument) (*Document, error) {
	switch InferFileType(doc.Path) {
	case FileTypeMarkdown:
		return p.parseMarkdown(doc.Content, markdownOptions{
			fallbackTitle: titleFromPath(doc.Path, doc.Name),
		})
	case FileTypeMDX:
		parsed, err := p.parseMDX(doc)
		if err != nil {
			// アンダースコアのエスケープと式構文の衝突などで MDX パースは
			// 失敗し得るため、Markdoc パーサで再試行してファイル全体の失敗を防ぐ
			p.logger.Debug("MDXパースに失敗、Markdocとして再試行",
				"path", doc.Path,
				"error", err,
			)
			return p.parseMarkdoc(doc)
		}
		return parsed, nil
	case FileTypeMarkdoc:
		return p.parseMarkdoc(doc)
	case FileTypeHTML:
		return p.parseHTML(doc)
	default:
		return p.parsePlainText(doc)
	}
}

// parsePlainText はプレーンテキストを単一セクションとして返す
func (p *Parser) parsePlainText(doc RawDocument) (*Document, error) {
	return &Document{
		Sections: []Section{{Content: doc.Content}},
		Meta:     FileMeta{"title": titleFromPath(doc.Path, doc.Name)},
	}, nil
}

// titleFromPath はパスのベース名（拡張子なし）からタイトルを推定する
func titleFromPath(path, name string) string {
	base := name
	if base == "" {
		base = filepath.Base(path)
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
