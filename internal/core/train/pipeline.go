package train

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mystery000/Chatjet-sub000/internal/core/train/chunk"
	"github.com/mystery000/Chatjet-sub000/internal/core/train/parse"
)

const (
	// DefaultMinContentLength は埋め込み対象とする最小コンテンツ長
	// これ未満のチャンクはノイズとして破棄する
	DefaultMinContentLength = 5
)

// FileResult は1ファイルの処理結果
type FileResult struct {
	Path         string
	Skipped      bool    // チェックサム一致でスキップされた
	SectionCount int     // 永続化されたセクション数
	TokensUsed   int64   // 消費トークン数
	Errs         []error // チャンク単位の埋め込み・挿入エラー
}

// FilePipeline は1ファイルのパース→チャンク化→埋め込み→永続化を実行する
type FilePipeline struct {
	repo             Repository
	embedder         Embedder
	parser           *parse.Parser
	splitter         *chunk.Splitter
	minContentLength int
	logger           *slog.Logger
}

// NewFilePipeline は新しい FilePipeline を作成する
func NewFilePipeline(
	repo Repository,
	embedder Embedder,
	parser *parse.Parser,
	splitter *chunk.Splitter,
	minContentLength int,
	logger *slog.Logger,
) *FilePipeline {
	if minContentLength <= 0 {
		minContentLength = DefaultMinContentLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FilePipeline{
		repo:             repo,
		embedder:         embedder,
		parser:           parser,
		splitter:         splitter,
		minContentLength: minContentLength,
		logger:           logger,
	}
}

// Checksum はコンテンツの SHA-256 ハッシュを base64 で返す
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ProcessFile は1ファイルをパイプライン処理する
// checksums は処理前に一括取得した path → checksum のマップ。
// 一致した場合は下流の処理（パース・チャンク化・埋め込み・永続化）を
// すべてスキップする。埋め込みに失敗したチャンクがひとつでもあれば
// ファイル全体をロールバックし、次回の再処理に備える
func (p *FilePipeline) ProcessFile(
	ctx context.Context,
	source *Source,
	doc parse.RawDocument,
	checksums map[string]string,
	quota *QuotaTracker,
) (*FileResult, error) {
	result := &FileResult{Path: doc.Path}

	checksum := Checksum(doc.Content)
	if stored, ok := checksums[doc.Path]; ok && stored == checksum {
		p.logger.Debug("チェックサム一致のためスキップ", "path", doc.Path)
		result.Skipped = true
		return result, nil
	}

	parsed, err := p.parser.Parse(doc)
	if err != nil {
		return result, fmt.Errorf("ファイルのパースに失敗: %w", err)
	}

	var chunks []chunk.Chunk
	for _, section := range parsed.Sections {
		chunks = append(chunks, p.splitter.Split(section)...)
	}

	var sections []*StoredSection
	var totalTokens int64
	for _, c := range chunks {
		if len(strings.TrimSpace(c.Content)) < p.minContentLength {
			continue
		}

		vector, tokens, err := p.embedder.Embed(ctx, c.Content)
		if err != nil {
			// チャンク単位の失敗は記録して残りを続行する
			p.logger.Warn("チャンクの埋め込みに失敗",
				"path", doc.Path,
				"error", err,
			)
			result.Errs = append(result.Errs, fmt.Errorf("embedding failed for chunk of %s: %w", doc.Path, err))
			continue
		}

		totalTokens += int64(tokens)
		sections = append(sections, &StoredSection{
			ID:          uuid.New(),
			Content:     c.Content,
			LeadHeading: c.LeadHeading,
			Embedding:   vector,
			TokenCount:  c.TokenCount,
		})
	}

	// 回復不能なチャンクエラーがあった場合はファイル全体をロールバック
	if len(result.Errs) > 0 {
		if err := p.rollbackFile(ctx, source, doc.Path); err != nil {
			result.Errs = append(result.Errs, err)
		}
		return result, fmt.Errorf("%d 件のチャンクの埋め込みに失敗: %s", len(result.Errs), doc.Path)
	}

	// 永続化の前に割当を確認・消費する（確認と消費は直列化済み）
	if err := quota.Consume(totalTokens); err != nil {
		if rbErr := p.rollbackFile(ctx, source, doc.Path); rbErr != nil {
			result.Errs = append(result.Errs, rbErr)
		}
		return result, err
	}

	file, err := p.repo.UpsertFile(ctx, source.ID, source.ProjectID, doc.Path, parsed.Meta, checksum)
	if err != nil {
		return result, fmt.Errorf("ファイルの永続化に失敗: %w", err)
	}

	for _, s := range sections {
		s.FileID = file.ID
	}
	failed, err := p.repo.ReplaceFileSections(ctx, file.ID, sections)
	if err != nil {
		// セクションを一切書けなかった場合はファイルごと削除して再試行可能にする
		if delErr := p.repo.DeleteFile(ctx, file.ID); delErr != nil {
			result.Errs = append(result.Errs, delErr)
		}
		return result, fmt.Errorf("セクションの永続化に失敗: %w", err)
	}
	if failed > 0 {
		result.Errs = append(result.Errs, fmt.Errorf("%d section rows dropped for %s", failed, doc.Path))
	}

	if !quota.Bypass() && totalTokens > 0 {
		if err := p.repo.AddUsedTokens(ctx, source.ProjectID, totalTokens); err != nil {
			p.logger.Warn("消費トークン数の記録に失敗",
				"projectID", source.ProjectID,
				"error", err,
			)
		}
	}

	result.SectionCount = len(sections) - failed
	result.TokensUsed = totalTokens
	return result, nil
}

// rollbackFile は既存のファイルレコードをセクションごと削除する
func (p *FilePipeline) rollbackFile(ctx context.Context, source *Source, path string) error {
	fileOpt, err := p.repo.GetFileBySourcePath(ctx, source.ID, path)
	if err != nil {
		return fmt.Errorf("ロールバック対象の取得に失敗: %w", err)
	}
	if fileOpt.IsAbsent() {
		return nil
	}
	if err := p.repo.DeleteFile(ctx, fileOpt.MustGet().ID); err != nil {
		return fmt.Errorf("ファイルのロールバックに失敗: %w", err)
	}
	return nil
}
