package crawl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/mystery000/Chatjet-sub000/internal/core/train"
)

const (
	// DefaultBatchSize は1回の処理コールバックへ渡すページ数
	DefaultBatchSize = 10
	// DefaultUserAgent はクロール時の User-Agent
	DefaultUserAgent = "ChatjetBot/1.0"
	// DefaultFetchTimeout は1ページあたりの取得タイムアウト
	DefaultFetchTimeout = 30 * time.Second
)

// Crawler は Web サイトのページ集合を解決して取得する
// サイトマップが見つかればその URL 一覧を、見つからなければ
// ベース URL からのリンク探索でページ集合を決める
type Crawler struct {
	client    *http.Client
	userAgent string
	batchSize int
	logger    *slog.Logger
}

var _ train.Crawler = (*Crawler)(nil)

type crawlerOptions struct {
	client    *http.Client
	userAgent string
	batchSize int
	logger    *slog.Logger
}

// CrawlerOption は Crawler のオプション設定
type CrawlerOption func(*crawlerOptions)

// WithHTTPClient は HTTP クライアントを差し替える
func WithHTTPClient(client *http.Client) CrawlerOption {
	return func(o *crawlerOptions) {
		o.client = client
	}
}

// WithUserAgent は User-Agent を設定する
func WithUserAgent(userAgent string) CrawlerOption {
	return func(o *crawlerOptions) {
		o.userAgent = userAgent
	}
}

// WithBatchSize はバッチサイズを設定する
func WithBatchSize(size int) CrawlerOption {
	return func(o *crawlerOptions) {
		o.batchSize = size
	}
}

// WithCrawlerLogger は Crawler にロガーを設定する
func WithCrawlerLogger(logger *slog.Logger) CrawlerOption {
	return func(o *crawlerOptions) {
		o.logger = logger
	}
}

// NewCrawler は新しい Crawler を作成する
func NewCrawler(opts ...CrawlerOption) *Crawler {
	options := crawlerOptions{
		client:    &http.Client{Timeout: DefaultFetchTimeout},
		userAgent: DefaultUserAgent,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Crawler{
		client:    options.client,
		userAgent: options.userAgent,
		batchSize: options.batchSize,
		logger:    options.logger,
	}
}

// Crawl はベース URL 配下のページを allowance の範囲内で取得し、
// バッチごとに process を呼び出す
// 割当によってページ集合が打ち切られた場合は true を返す
func (c *Crawler) Crawl(
	ctx context.Context,
	baseURL string,
	allowance int,
	process func(ctx context.Context, pages []train.CrawlPage),
) (bool, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return false, fmt.Errorf("failed to parse base URL %q: %w", baseURL, err)
	}
	if !base.IsAbs() || (base.Scheme != "http" && base.Scheme != "https") {
		return false, fmt.Errorf("base URL %q is not an absolute http(s) URL", baseURL)
	}

	robots, sitemaps := c.fetchRobots(ctx, base)
	frontier := newFrontier(base, robots, allowance)

	locs := c.collectSitemapURLs(ctx, base, sitemaps)
	if len(locs) > 0 {
		// サイトマップモード: ページ集合はサイトマップの <loc> で確定し、
		// リンク探索は行わない
		c.logger.Info("サイトマップからページ集合を解決",
			"baseURL", baseURL,
			"pages", len(locs),
		)
		frontier.seed(locs)
		return c.run(ctx, frontier, false, process)
	}

	// 探索モード: ベース URL から同一プレフィックス配下のリンクを辿る
	c.logger.Info("サイトマップ未検出、リンク探索でクロール", "baseURL", baseURL)
	frontier.seed([]string{base.String()})
	return c.run(ctx, frontier, true, process)
}

// run はフロンティアが空になるか割当を使い切るまでバッチ処理を繰り返す
func (c *Crawler) run(
	ctx context.Context,
	frontier *frontier,
	expandLinks bool,
	process func(ctx context.Context, pages []train.CrawlPage),
) (bool, error) {
	for {
		urls := frontier.nextBatch(c.batchSize)
		if len(urls) == 0 {
			break
		}

		pages := make([]train.CrawlPage, 0, len(urls))
		for _, pageURL := range urls {
			if err := ctx.Err(); err != nil {
				return frontier.quotaReached, err
			}

			content, err := c.fetchPage(ctx, pageURL)
			if err != nil {
				// 取得失敗はページ単位で読み飛ばし、クロール全体は継続する
				c.logger.Warn("failed to fetch page", "url", pageURL, "error", err)
				continue
			}
			pages = append(pages, train.CrawlPage{URL: pageURL, HTML: content})

			if expandLinks {
				for _, link := range extractLinks(content, pageURL) {
					frontier.enqueue(link)
				}
			}
		}

		if len(pages) > 0 {
			process(ctx, pages)
		}
	}
	return frontier.quotaReached, nil
}

// fetchRobots は robots.txt を取得し、適用グループとサイトマップ一覧を返す
// robots.txt が存在しない・取得できない場合は全許可として扱う
func (c *Crawler) fetchRobots(ctx context.Context, base *url.URL) (*robotstxt.Group, []string) {
	robotsURL := base.Scheme + "://" + base.Host + "/robots.txt"
	body, err := c.fetch(ctx, robotsURL)
	if err != nil {
		c.logger.Debug("robots.txtの取得をスキップ", "url", robotsURL, "error", err)
		return nil, nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		c.logger.Warn("failed to parse robots.txt", "url", robotsURL, "error", err)
		return nil, nil
	}
	return data.FindGroup(c.userAgent), data.Sitemaps
}

// collectSitemapURLs はサイトマップからページ URL の一覧を集める
// robots.txt に宣言がない場合は /sitemap.xml を探しに行く
func (c *Crawler) collectSitemapURLs(ctx context.Context, base *url.URL, declared []string) []string {
	sitemaps := declared
	if len(sitemaps) == 0 {
		sitemaps = []string{base.Scheme + "://" + base.Host + "/sitemap.xml"}
	}

	var locs []string
	for _, sitemapURL := range sitemaps {
		body, err := c.fetch(ctx, sitemapURL)
		if err != nil {
			c.logger.Debug("サイトマップの取得をスキップ", "url", sitemapURL, "error", err)
			continue
		}
		for _, loc := range extractSitemapLocs(body) {
			if isSitemapIndexEntry(loc) {
				// サイトマップインデックスは1段だけ辿る
				nested, err := c.fetch(ctx, loc)
				if err != nil {
					c.logger.Debug("ネストしたサイトマップの取得をスキップ", "url", loc, "error", err)
					continue
				}
				locs = append(locs, extractSitemapLocs(nested)...)
				continue
			}
			locs = append(locs, loc)
		}
	}
	return locs
}

// fetchPage はページ本文を取得する
func (c *Crawler) fetchPage(ctx context.Context, pageURL string) (string, error) {
	body, err := c.fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Crawler) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
