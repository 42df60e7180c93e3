package chunk

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/mystery000/Chatjet-sub000/internal/core/train/parse"
)

const (
	// DefaultTokenBudget はセクション分割判定の基準トークン数
	DefaultTokenBudget = 1000
	// DefaultBudgetAdjustment はトークン数近似の調整係数
	DefaultBudgetAdjustment = 0.8
	// DefaultCharsPerToken は1トークンあたりの想定文字数
	DefaultCharsPerToken = 4
)

// Chunk は埋め込み対象となる長さ制限付きのテキスト断片
// LeadHeading は分割元セクションの先頭チャンクにのみ引き継がれる
type Chunk struct {
	Content     string
	LeadHeading *parse.LeadHeading
	TokenCount  int
}

// Splitter はセクションをトークンバジェットに収まるチャンクへ分割する
type Splitter struct {
	encoder *tiktoken.Tiktoken

	tokenBudget      int
	budgetAdjustment float64
	charsPerToken    int
	maxChunkLength   int
}

type splitterOptions struct {
	tokenBudget      int
	budgetAdjustment float64
	charsPerToken    int
}

// SplitterOption は Splitter のオプション設定
type SplitterOption func(*splitterOptions)

// WithTokenBudget は基準トークン数を上書きする
func WithTokenBudget(budget int) SplitterOption {
	return func(o *splitterOptions) {
		o.tokenBudget = budget
	}
}

// WithBudgetAdjustment は調整係数を上書きする
func WithBudgetAdjustment(adjustment float64) SplitterOption {
	return func(o *splitterOptions) {
		o.budgetAdjustment = adjustment
	}
}

// NewSplitter は新しい Splitter を作成する
// cl100k_base エンコーダを使用する（text-embedding-ada 系と互換）
func NewSplitter(opts ...SplitterOption) (*Splitter, error) {
	options := splitterOptions{
		tokenBudget:      DefaultTokenBudget,
		budgetAdjustment: DefaultBudgetAdjustment,
		charsPerToken:    DefaultCharsPerToken,
	}
	for _, opt := range opts {
		opt(&options)
	}

	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}

	return &Splitter{
		encoder:          encoder,
		tokenBudget:      options.tokenBudget,
		budgetAdjustment: options.budgetAdjustment,
		charsPerToken:    options.charsPerToken,
		maxChunkLength:   int(float64(options.tokenBudget) * options.budgetAdjustment * float64(options.charsPerToken)),
	}, nil
}

// MaxChunkLength は1チャンクの最大文字数を返す
func (s *Splitter) MaxChunkLength() int {
	return s.maxChunkLength
}

// CountTokens はテキストのトークン数を返す
func (s *Splitter) CountTokens(text string) int {
	return len(s.encoder.Encode(text, nil, nil))
}

// Split はセクションをチャンクへ分割する
// 分割はチャンク長が maxChunkLength を超えないことを保証し、
// チャンクを順に連結すると分割点の空白を除いて元のセクションを復元できる
func (s *Splitter) Split(section parse.Section) []Chunk {
	content := section.Content

	if len(content) < s.maxChunkLength {
		return []Chunk{{
			Content:     content,
			LeadHeading: section.LeadHeading,
			TokenCount:  s.CountTokens(content),
		}}
	}

	var pieces []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if len(line) > s.maxChunkLength {
			// 1行だけで上限を超える行は単語境界でさらに分割する
			flush()
			pieces = append(pieces, splitWords(line, s.maxChunkLength)...)
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(line) > s.maxChunkLength {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()

	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunk := Chunk{
			Content:    piece,
			TokenCount: s.CountTokens(piece),
		}
		if i == 0 {
			chunk.LeadHeading = section.LeadHeading
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitWords は1行を単語境界で maxLen 以下の部分文字列へ分割する
// 空白の連なりはそのまま保持され、結果を連結すると元の行を完全に復元できる
func splitWords(line string, maxLen int) []string {
	var out []string
	var cur strings.Builder

	for _, word := range strings.SplitAfter(line, " ") {
		// 単語単体が上限を超える場合は機械的に切る
		for len(word) > maxLen {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			out = append(out, word[:maxLen])
			word = word[maxLen:]
		}
		if cur.Len()+len(word) > maxLen {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
