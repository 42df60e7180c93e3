package crawl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mystery000/Chatjet-sub000/internal/core/train"
)

func newTestCrawler(opts ...CrawlerOption) *Crawler {
	opts = append(opts, WithCrawlerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewCrawler(opts...)
}

func pageHTML(title string, links ...string) string {
	body := fmt.Sprintf("<html><head><title>%s</title></head><body><main><p>Content of %s.</p>", title, title)
	for _, link := range links {
		body += fmt.Sprintf(`<a href=%q>%s</a>`, link, link)
	}
	return body + "</main></body></html>"
}

func collectPages(t *testing.T, crawler *Crawler, baseURL string, allowance int) ([]string, bool) {
	t.Helper()
	var urls []string
	quotaReached, err := crawler.Crawl(context.Background(), baseURL, allowance,
		func(_ context.Context, pages []train.CrawlPage) {
			for _, p := range pages {
				assert.NotEmpty(t, p.HTML)
				urls = append(urls, p.URL)
			}
		})
	require.NoError(t, err)
	return urls, quotaReached
}

func TestCrawl_SitemapMode(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "User-agent: *\nAllow: /\nSitemap: %s/sitemap.xml\n", server.URL)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset>
  <url><loc>%[1]s/</loc></url>
  <url><loc>%[1]s/setup</loc></url>
  <url><loc>%[1]s/api</loc></url>
</urlset>`, server.URL)
	})
	// サイトマップモードではページ内リンクを辿らない
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, pageHTML("Home", server.URL+"/hidden"))
	})
	mux.HandleFunc("/setup", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, pageHTML("Setup"))
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, pageHTML("API"))
	})

	urls, quotaReached := collectPages(t, newTestCrawler(), server.URL, 50)

	assert.ElementsMatch(t, []string{server.URL, server.URL + "/setup", server.URL + "/api"}, urls)
	assert.False(t, quotaReached)
	assert.NotContains(t, urls, server.URL+"/hidden")
}

func TestCrawl_SitemapIndexIsFollowedOneLevel(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<sitemapindex><sitemap><loc>%s/sitemap-docs.xml</loc></sitemap></sitemapindex>`, server.URL)
	})
	mux.HandleFunc("/sitemap-docs.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<urlset><url><loc>%[1]s/a</loc></url><url><loc>%[1]s/b</loc></url></urlset>`, server.URL)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, pageHTML("A"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, pageHTML("B"))
	})

	urls, quotaReached := collectPages(t, newTestCrawler(), server.URL, 50)

	assert.ElementsMatch(t, []string{server.URL + "/a", server.URL + "/b"}, urls)
	assert.False(t, quotaReached)
}

func TestCrawl_LinkExpansionMode(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	// robots.txt もサイトマップも無いサイト
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, pageHTML("Home", "/guide", "/guide", "https://external.example.com/away"))
	})
	mux.HandleFunc("/guide", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, pageHTML("Guide", "/guide/advanced"))
	})
	mux.HandleFunc("/guide/advanced", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, pageHTML("Advanced", "/"))
	})

	urls, quotaReached := collectPages(t, newTestCrawler(), server.URL, 50)

	assert.ElementsMatch(t, []string{server.URL, server.URL + "/guide", server.URL + "/guide/advanced"}, urls)
	assert.False(t, quotaReached)
}

func TestCrawl_PageAllowanceTruncates(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<urlset>")
		for i := 0; i < 10; i++ {
			fmt.Fprintf(w, "<url><loc>%s/page-%d</loc></url>", server.URL, i)
		}
		fmt.Fprint(w, "</urlset>")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, pageHTML("Page"))
	})

	urls, quotaReached := collectPages(t, newTestCrawler(WithBatchSize(4)), server.URL, 6)

	assert.Len(t, urls, 6)
	assert.True(t, quotaReached)
}

func TestCrawl_FetchFailureSkipsPage(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<urlset><url><loc>%[1]s/ok</loc></url><url><loc>%[1]s/broken</loc></url></urlset>`, server.URL)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, pageHTML("OK"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	urls, _ := collectPages(t, newTestCrawler(), server.URL, 50)
	assert.Equal(t, []string{server.URL + "/ok"}, urls)
}

func TestCrawl_SendsConfiguredUserAgent(t *testing.T) {
	var sawAgent atomic.Value
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		sawAgent.Store(r.Header.Get("User-Agent"))
		fmt.Fprint(w, pageHTML("Home"))
	})

	crawler := newTestCrawler(WithUserAgent("CustomBot/2.0"))
	_, err := crawler.Crawl(context.Background(), server.URL, 5, func(context.Context, []train.CrawlPage) {})
	require.NoError(t, err)

	assert.Equal(t, "CustomBot/2.0", sawAgent.Load())
}

func TestCrawl_RejectsRelativeBaseURL(t *testing.T) {
	_, err := newTestCrawler().Crawl(context.Background(), "docs.example.com", 5, nil)
	require.Error(t, err)
}
