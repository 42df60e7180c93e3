package parse

import (
	"bytes"
	"fmt"
	"strings"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/go-enry/go-enry/v2"
	"golang.org/x/net/html"
)

// strippedTags は本文として意味を持たない要素
var strippedTags = map[string]bool{
	"head":   true,
	"script": true,
	"style":  true,
	"nav":    true,
	"footer": true,
	"aside":  true,
}

// codeLanguageCandidates は言語クラスの無いコードブロックの推定候補
var codeLanguageCandidates = []string{
	"go", "javascript", "typescript", "python", "ruby", "rust",
	"java", "c", "c++", "shell", "sql", "json", "yaml", "html", "css",
}

// parseHTML は HTML を Markdown に変換してからセクション分割する
// タイトルは <title> 要素から取得するため、内側の Markdown パスでの
// メタデータ抽出は無効化する
func (p *Parser) parseHTML(doc RawDocument) (*Document, error) {
	root, err := html.Parse(strings.NewReader(doc.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	title := htmlTitle(root)
	removeElements(root)

	content := findElement(root, "main")
	if content == nil {
		content = findElement(root, "body")
	}
	if content == nil {
		content = root
	}
	annotateCodeLanguages(content)

	var buf bytes.Buffer
	if err := html.Render(&buf, content); err != nil {
		return nil, fmt.Errorf("failed to render html: %w", err)
	}

	conv := htmltomd.NewConverter("", true, nil)
	markdown, err := conv.ConvertString(buf.String())
	if err != nil {
		return nil, fmt.Errorf("failed to convert html to markdown: %w", err)
	}

	meta := FileMeta{}
	if title != "" {
		meta["title"] = title
	}

	return p.parseMarkdown(markdown, markdownOptions{
		disableMetadata: true,
		presetMeta:      meta,
		fallbackTitle:   titleFromPath(doc.Path, doc.Name),
	})
}

// htmlTitle は <title> 要素のテキストを返す
func htmlTitle(root *html.Node) string {
	node := findElement(root, "title")
	if node == nil {
		return ""
	}
	var sb strings.Builder
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(sb.String())
}

// findElement はタグ名が一致する最初の要素を深さ優先で返す
func findElement(node *html.Node, tag string) *html.Node {
	if node.Type == html.ElementNode && node.Data == tag {
		return node
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// removeElements は本文に寄与しないタグをツリーから取り除く
func removeElements(node *html.Node) {
	var next *html.Node
	for c := node.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && strippedTags[c.Data] {
			node.RemoveChild(c)
			continue
		}
		removeElements(c)
	}
}

// annotateCodeLanguages は言語クラスの無い <pre><code> に推定言語を付与する
// html-to-markdown がクラスからフェンス言語を引けるようにするための前処理
func annotateCodeLanguages(node *html.Node) {
	if node.Type == html.ElementNode && node.Data == "pre" {
		if code := findElement(node, "code"); code != nil && !hasLanguageClass(code) {
			if lang := inferCodeLanguage(textContent(code)); lang != "" {
				code.Attr = append(code.Attr, html.Attribute{Key: "class", Val: "language-" + lang})
			}
		}
		return
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		annotateCodeLanguages(c)
	}
}

func hasLanguageClass(node *html.Node) bool {
	for _, attr := range node.Attr {
		if attr.Key == "class" && strings.Contains(attr.Val, "language-") {
			return true
		}
	}
	return false
}

func textContent(node *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return sb.String()
}

// inferCodeLanguage はコード片から言語を推定する
func inferCodeLanguage(code string) string {
	if strings.TrimSpace(code) == "" {
		return ""
	}
	lang, safe := enry.GetLanguageByClassifier([]byte(code), codeLanguageCandidates)
	if !safe || lang == "" {
		return ""
	}
	return strings.ToLower(lang)
}
