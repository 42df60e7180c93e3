package crawl

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/robotstxt"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestFrontier_EnqueueNormalizesAndDedupes(t *testing.T) {
	f := newFrontier(mustParseURL(t, "https://docs.example.com"), nil, 100)

	f.enqueue("https://docs.example.com/guide")
	f.enqueue("https://docs.example.com/guide/")         // 末尾スラッシュは同一視
	f.enqueue("https://docs.example.com/guide#install")  // フラグメントは同一視
	f.enqueue("https://other.example.com/guide")         // プレフィックス外
	f.enqueue("mailto:support@example.com")              // http(s) 以外
	f.enqueue("/relative")                               // 絶対 URL のみ
	f.enqueue("https://docs.example.com.evil.test/page") // ホスト偽装

	assert.Equal(t, []string{"https://docs.example.com/guide"}, f.queue)
}

func TestFrontier_EnqueueRespectsBasePath(t *testing.T) {
	f := newFrontier(mustParseURL(t, "https://example.com/docs/"), nil, 100)

	f.enqueue("https://example.com/docs/intro")
	f.enqueue("https://example.com/docs")
	f.enqueue("https://example.com/blog/post") // ベースパス外

	assert.Equal(t, []string{
		"https://example.com/docs/intro",
		"https://example.com/docs",
	}, f.queue)
}

func TestFrontier_EnqueueRespectsRobots(t *testing.T) {
	data, err := robotstxt.FromString("User-agent: *\nDisallow: /private/\n")
	require.NoError(t, err)

	f := newFrontier(mustParseURL(t, "https://docs.example.com"), data.FindGroup("ChatjetBot/1.0"), 100)

	f.enqueue("https://docs.example.com/public")
	f.enqueue("https://docs.example.com/private/internal")

	assert.Equal(t, []string{"https://docs.example.com/public"}, f.queue)
}

func TestFrontier_NextBatchClipsToAllowance(t *testing.T) {
	f := newFrontier(mustParseURL(t, "https://docs.example.com"), nil, 3)
	f.seed([]string{
		"https://docs.example.com/a",
		"https://docs.example.com/b",
		"https://docs.example.com/c",
		"https://docs.example.com/d",
		"https://docs.example.com/e",
	})

	batch := f.nextBatch(10)
	assert.Len(t, batch, 3)
	assert.True(t, f.quotaReached)

	// 割当を使い切った後は何も返さない
	assert.Nil(t, f.nextBatch(10))
}

func TestFrontier_NextBatchDrainsQueueWithinAllowance(t *testing.T) {
	f := newFrontier(mustParseURL(t, "https://docs.example.com"), nil, 50)
	f.seed([]string{
		"https://docs.example.com/a",
		"https://docs.example.com/b",
		"https://docs.example.com/c",
	})

	first := f.nextBatch(2)
	assert.Len(t, first, 2)
	second := f.nextBatch(2)
	assert.Len(t, second, 1)
	assert.Nil(t, f.nextBatch(2))
	assert.False(t, f.quotaReached)
}
