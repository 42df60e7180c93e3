package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMDXParse は MDX として解釈できなかった場合のエラー
// 呼び出し側はこのエラーを検知して Markdoc パスで再試行する
var ErrMDXParse = errors.New("failed to parse as mdx")

var jsxTagPattern = regexp.MustCompile(`</?[A-Z][A-Za-z0-9.]*(\s[^<>]*?)?/?>`)

// parseMDX は MDX をパースする
// import/export 文・JSX 要素・インライン式はデータとして扱い除去する（評価はしない）
func (p *Parser) parseMDX(doc RawDocument) (*Document, error) {
	fm, body := extractFrontmatter(doc.Content)

	stripped, err := stripMDXNodes(body)
	if err != nil {
		return nil, err
	}

	meta := FileMeta{}
	for k, v := range fm {
		meta[k] = v
	}

	return p.parseMarkdown(stripped, markdownOptions{
		disableMetadata: true,
		presetMeta:      meta,
		fallbackTitle:   titleFromPath(doc.Path, doc.Name),
	})
}

// stripMDXNodes は MDX 固有の実行可能ノードを除去する
// コードフェンス内はそのまま保持する。式の波括弧が対応しない場合は ErrMDXParse
func stripMDXNodes(body string) (string, error) {
	lines := strings.Split(body, "\n")
	var out []string
	inFence := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}
		if strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "export ") {
			continue
		}
		stripped, err := stripInlineExpressions(line)
		if err != nil {
			return "", err
		}
		out = append(out, jsxTagPattern.ReplaceAllString(stripped, ""))
	}

	if inFence {
		return "", fmt.Errorf("%w: unterminated code fence", ErrMDXParse)
	}

	return strings.Join(out, "\n"), nil
}

// stripInlineExpressions は {expr} 形式のインライン式を除去する
func stripInlineExpressions(line string) (string, error) {
	var sb strings.Builder
	depth := 0
	for _, r := range line {
		switch r {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return "", fmt.Errorf("%w: unbalanced expression braces", ErrMDXParse)
			}
			depth--
		default:
			if depth == 0 {
				sb.WriteRune(r)
			}
		}
	}
	if depth != 0 {
		return "", fmt.Errorf("%w: unbalanced expression braces", ErrMDXParse)
	}
	return sb.String(), nil
}
