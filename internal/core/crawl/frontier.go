package crawl

import (
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"
)

// frontier は未処理 URL のキューと割当の消化状況を管理する
// 処理済み・キュー済みの URL は二度と積まれない
type frontier struct {
	basePrefix   string
	robots       *robotstxt.Group
	allowance    int
	numSent      int
	queue        []string
	seen         map[string]struct{}
	quotaReached bool
}

func newFrontier(base *url.URL, robots *robotstxt.Group, allowance int) *frontier {
	prefix := base.Scheme + "://" + base.Host + base.Path
	return &frontier{
		basePrefix: strings.TrimSuffix(prefix, "/"),
		robots:     robots,
		allowance:  allowance,
		seen:       make(map[string]struct{}),
	}
}

func (f *frontier) seed(urls []string) {
	for _, u := range urls {
		f.enqueue(u)
	}
}

// enqueue は正規化した URL をキューへ積む
// ベースプレフィックス外、robots.txt で拒否された URL、重複は捨てる
func (f *frontier) enqueue(raw string) {
	normalized, ok := f.normalize(raw)
	if !ok {
		return
	}
	if _, dup := f.seen[normalized]; dup {
		return
	}
	f.seen[normalized] = struct{}{}
	f.queue = append(f.queue, normalized)
}

// nextBatch は次のバッチを取り出す
// 残り割当を超える分は切り詰め、打ち切りが起きたことを記録する
func (f *frontier) nextBatch(size int) []string {
	if len(f.queue) == 0 {
		return nil
	}

	remaining := f.allowance - f.numSent
	if remaining <= 0 {
		f.quotaReached = true
		return nil
	}

	n := size
	if n > len(f.queue) {
		n = len(f.queue)
	}
	if n > remaining {
		n = remaining
	}

	batch := f.queue[:n]
	f.queue = f.queue[n:]
	f.numSent += n

	if f.numSent >= f.allowance && len(f.queue) > 0 {
		f.quotaReached = true
	}
	return batch
}

// normalize は URL を正規化し、クロール対象かどうかを判定する
func (f *frontier) normalize(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}

	u.Fragment = ""
	normalized := strings.TrimSuffix(u.String(), "/")

	if normalized != f.basePrefix && !strings.HasPrefix(normalized, f.basePrefix+"/") {
		return "", false
	}
	if f.robots != nil && !f.robots.Test(u.Path) {
		return "", false
	}
	return normalized, true
}
