package parse

import (
	"fmt"
	"regexp"
)

var (
	markdocImgTag     = regexp.MustCompile(`\{%\s*img\s+([^%]*?)/?\s*%\}`)
	markdocAttrSrc    = regexp.MustCompile(`src\s*=\s*"([^"]*)"`)
	markdocAttrAlt    = regexp.MustCompile(`alt\s*=\s*"([^"]*)"`)
	markdocGenericTag = regexp.MustCompile(`\{%[^%]*?%\}`)
)

// parseMarkdoc は Markdoc をパースする
// 画像ショートハンドタグを正規の Markdown 画像へ変換し、残りのタグを
// 除去してから Markdown パスへ委譲する。メタデータは Markdoc 自身の
// frontmatter から抽出済みのため内側での再抽出は行わない
func (p *Parser) parseMarkdoc(doc RawDocument) (*Document, error) {
	fm, body := extractFrontmatter(doc.Content)

	transformed := markdocImgTag.ReplaceAllStringFunc(body, func(tag string) string {
		attrs := markdocImgTag.FindStringSubmatch(tag)[1]
		src := ""
		if m := markdocAttrSrc.FindStringSubmatch(attrs); m != nil {
			src = m[1]
		}
		alt := ""
		if m := markdocAttrAlt.FindStringSubmatch(attrs); m != nil {
			alt = m[1]
		}
		return fmt.Sprintf("![%s](%s)", alt, src)
	})
	transformed = markdocGenericTag.ReplaceAllString(transformed, "")

	meta := FileMeta{}
	for k, v := range fm {
		meta[k] = v
	}

	return p.parseMarkdown(transformed, markdownOptions{
		disableMetadata: true,
		presetMeta:      meta,
		fallbackTitle:   titleFromPath(doc.Path, doc.Name),
	})
}
