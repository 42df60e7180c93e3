package crawl

import (
	"bytes"
	"encoding/xml"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// extractLinks はページ内のアンカーからリンク先 URL を抽出する
// 相対リンクはページ URL を基準に解決する
func extractLinks(content, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil
	}

	var links []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				resolved, err := base.Parse(attr.Val)
				if err == nil {
					links = append(links, resolved.String())
				}
				break
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return links
}

// extractSitemapLocs はサイトマップ XML から <loc> の値を抽出する
// urlset と sitemapindex のどちらの形式でも動く
func extractSitemapLocs(body []byte) []string {
	decoder := xml.NewDecoder(bytes.NewReader(body))

	var locs []string
	var inLoc bool
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := token.(type) {
		case xml.StartElement:
			inLoc = t.Name.Local == "loc"
		case xml.CharData:
			if inLoc {
				if loc := strings.TrimSpace(string(t)); loc != "" {
					locs = append(locs, loc)
				}
			}
		case xml.EndElement:
			inLoc = false
		}
	}
	return locs
}

// isSitemapIndexEntry は <loc> がネストしたサイトマップを指すかを判定する
func isSitemapIndexEntry(loc string) bool {
	return strings.HasSuffix(strings.ToLower(loc), ".xml")
}
