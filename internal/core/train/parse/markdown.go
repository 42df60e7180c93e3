package parse

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// markdownOptions は Markdown パスの挙動を制御する
type markdownOptions struct {
	// fallbackTitle は frontmatter に title が無い場合のタイトル
	fallbackTitle string
	// disableMetadata は frontmatter 抽出を無効化する
	// （Markdoc / HTML 経由などタイトルを別経路で抽出済みの場合）
	disableMetadata bool
	// presetMeta は呼び出し側で抽出済みのメタデータ
	presetMeta FileMeta
}

// parseMarkdown は Markdown を AST で解析し、見出し境界でセクションに分割する
// コードフェンス内の "#" 行は見出しとして扱わない（AST 上の Heading のみが境界）
func (p *Parser) parseMarkdown(content string, opts markdownOptions) (*Document, error) {
	meta := opts.presetMeta
	body := content

	if !opts.disableMetadata {
		fm, rest := extractFrontmatter(content)
		body = rest
		meta = FileMeta{}
		for k, v := range fm {
			meta[k] = v
		}
	}
	if meta == nil {
		meta = FileMeta{}
	}
	if meta.Title() == "" {
		meta["title"] = opts.fallbackTitle
	}

	sections, err := splitSections(body)
	if err != nil {
		return nil, fmt.Errorf("failed to split markdown sections: %w", err)
	}

	return &Document{Sections: sections, Meta: meta}, nil
}

// splitSections は Markdown 本文をトップレベル見出しの境界で分割する
func splitSections(body string) ([]Section, error) {
	src := []byte(body)
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader(src))

	type headingPos struct {
		lineStart int
		depth     int
		value     string
	}

	var headings []headingPos
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		h, ok := node.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		headings = append(headings, headingPos{
			lineStart: lineStartBefore(src, seg.Start),
			depth:     h.Level,
			value:     headingText(h, src),
		})
	}
	sort.Slice(headings, func(i, j int) bool { return headings[i].lineStart < headings[j].lineStart })

	var sections []Section
	appendSection := func(content string, lead *LeadHeading) {
		if strings.TrimSpace(content) == "" {
			return
		}
		sections = append(sections, Section{Content: content, LeadHeading: lead})
	}

	if len(headings) == 0 {
		appendSection(body, nil)
		return sections, nil
	}

	// 先頭見出しより前の部分は見出し無しセクション
	appendSection(string(src[:headings[0].lineStart]), nil)

	for i, h := range headings {
		end := len(src)
		if i+1 < len(headings) {
			end = headings[i+1].lineStart
		}
		appendSection(string(src[h.lineStart:end]), &LeadHeading{Value: h.value, Depth: h.depth})
	}

	return sections, nil
}

// headingText は見出しノードのテキストを連結して返す
func headingText(h *ast.Heading, src []byte) string {
	var sb strings.Builder
	for i := 0; i < h.Lines().Len(); i++ {
		seg := h.Lines().At(i)
		sb.Write(seg.Value(src))
	}
	return strings.TrimSpace(sb.String())
}

// lineStartBefore は offset を含む行の先頭位置を返す
func lineStartBefore(src []byte, offset int) int {
	if offset > len(src) {
		offset = len(src)
	}
	for i := offset - 1; i >= 0; i-- {
		if src[i] == '\n' {
			return i + 1
		}
	}
	return 0
}

// extractFrontmatter は YAML frontmatter を抽出し、残りの本文を返す
// frontmatter が無い、または YAML として不正な場合は本文をそのまま返す
func extractFrontmatter(content string) (map[string]any, string) {
	const delim = "---"

	if !strings.HasPrefix(content, delim+"\n") && !strings.HasPrefix(content, delim+"\r\n") {
		return nil, content
	}

	rest := content[len(delim):]
	rest = strings.TrimPrefix(rest, "\r")
	rest = strings.TrimPrefix(rest, "\n")

	endIdx := -1
	bodyStart := 0
	for _, marker := range []string{"\n" + delim + "\n", "\n" + delim + "\r\n"} {
		if idx := strings.Index(rest, marker); idx >= 0 && (endIdx < 0 || idx < endIdx) {
			endIdx = idx
			bodyStart = idx + len(marker)
		}
	}
	if endIdx < 0 {
		if strings.HasSuffix(rest, "\n"+delim) {
			endIdx = len(rest) - len(delim) - 1
			bodyStart = len(rest)
		} else {
			return nil, content
		}
	}

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(rest[:endIdx]), &meta); err != nil {
		return nil, content
	}

	return meta, rest[bodyStart:]
}
