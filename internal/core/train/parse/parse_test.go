package parse

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{AddSource: false}))
	return NewParser(WithParserLogger(logger))
}

func TestParseMarkdown_SplitsAtHeadings(t *testing.T) {
	content := "intro text\n\n## First\n\nalpha\n\n## Second\n\nbeta\n"

	parsed, err := newTestParser().Parse(RawDocument{
		Path:    "docs/guide.md",
		Name:    "guide.md",
		Content: content,
	})
	require.NoError(t, err)
	require.Len(t, parsed.Sections, 3)

	// 先頭見出し前の部分は見出し無しセクションになる
	assert.Nil(t, parsed.Sections[0].LeadHeading)
	assert.Contains(t, parsed.Sections[0].Content, "intro text")

	require.NotNil(t, parsed.Sections[1].LeadHeading)
	assert.Equal(t, "First", parsed.Sections[1].LeadHeading.Value)
	assert.Equal(t, 2, parsed.Sections[1].LeadHeading.Depth)
	assert.Contains(t, parsed.Sections[1].Content, "alpha")

	require.NotNil(t, parsed.Sections[2].LeadHeading)
	assert.Equal(t, "Second", parsed.Sections[2].LeadHeading.Value)
	assert.Contains(t, parsed.Sections[2].Content, "beta")
}

func TestParseMarkdown_FencedHashIsNotABoundary(t *testing.T) {
	content := "some text\n\n```\n# not a heading\n```\n"

	parsed, err := newTestParser().Parse(RawDocument{
		Path:    "notes.md",
		Content: content,
	})
	require.NoError(t, err)
	require.Len(t, parsed.Sections, 1)
	assert.Nil(t, parsed.Sections[0].LeadHeading)
	assert.Contains(t, parsed.Sections[0].Content, "# not a heading")
}

func TestParseMarkdown_FrontmatterTitle(t *testing.T) {
	content := "---\ntitle: My Guide\n---\n\n# Heading\n\nbody\n"

	parsed, err := newTestParser().Parse(RawDocument{
		Path:    "docs/guide.md",
		Content: content,
	})
	require.NoError(t, err)
	assert.Equal(t, "My Guide", parsed.Meta.Title())
	// frontmatter は本文から取り除かれる
	for _, section := range parsed.Sections {
		assert.NotContains(t, section.Content, "title: My Guide")
	}
}

func TestParseMarkdown_TitleFallsBackToFilename(t *testing.T) {
	parsed, err := newTestParser().Parse(RawDocument{
		Path:    "docs/getting-started.md",
		Name:    "getting-started.md",
		Content: "no frontmatter here\n",
	})
	require.NoError(t, err)
	assert.Equal(t, "getting-started", parsed.Meta.Title())
}

func TestParseMDX_StripsImportsAndJSX(t *testing.T) {
	content := "import { Note } from '../components'\n\n# Title\n\n<Note type=\"warn\">\nsome note\n</Note>\n\nplain text\n"

	parsed, err := newTestParser().Parse(RawDocument{
		Path:    "docs/page.mdx",
		Content: content,
	})
	require.NoError(t, err)

	var all string
	for _, section := range parsed.Sections {
		all += section.Content
	}
	assert.NotContains(t, all, "import")
	assert.NotContains(t, all, "<Note")
	assert.Contains(t, all, "plain text")
	assert.Contains(t, all, "some note")
}

func TestParseMDX_UnbalancedBracesFallsBackToMarkdoc(t *testing.T) {
	// 閉じ波括弧が多い本文は MDX としては不正だが、
	// Markdoc パスでの再試行によりファイル全体は失われない
	content := "# Title\n\nweird } brace\n"

	parsed, err := newTestParser().Parse(RawDocument{
		Path:    "docs/page.mdx",
		Content: content,
	})
	require.NoError(t, err)
	require.NotEmpty(t, parsed.Sections)
	assert.Contains(t, parsed.Sections[0].Content, "weird } brace")
}

func TestParseMarkdoc_ConvertsImgTags(t *testing.T) {
	content := "---\ntitle: Pics\n---\n\n# Images\n\n{% img src=\"/a.png\" alt=\"diagram\" /%}\n\n{% callout %}\n"

	parsed, err := newTestParser().Parse(RawDocument{
		Path:    "docs/pics.mdoc",
		Content: content,
	})
	require.NoError(t, err)
	assert.Equal(t, "Pics", parsed.Meta.Title())

	var all string
	for _, section := range parsed.Sections {
		all += section.Content
	}
	assert.Contains(t, all, "![diagram](/a.png)")
	assert.NotContains(t, all, "{%")
}

func TestParseHTML_UsesMainAndTitle(t *testing.T) {
	content := `<html><head><title>API Guide</title><script>var x = 1;</script></head>` +
		`<body><nav>navigation links</nav><main><h1>API Guide</h1><p>welcome text</p></main>` +
		`<footer>copyright</footer></body></html>`

	parsed, err := newTestParser().Parse(RawDocument{
		Path:    "docs/api.html",
		Content: content,
	})
	require.NoError(t, err)
	assert.Equal(t, "API Guide", parsed.Meta.Title())

	var all string
	for _, section := range parsed.Sections {
		all += section.Content
	}
	assert.Contains(t, all, "welcome text")
	assert.NotContains(t, all, "navigation links")
	assert.NotContains(t, all, "copyright")
	assert.NotContains(t, all, "var x = 1;")
}

func TestParsePlainText_SingleSection(t *testing.T) {
	parsed, err := newTestParser().Parse(RawDocument{
		Path:    "README.txt",
		Content: "# looks like a heading but is plain text\n",
	})
	require.NoError(t, err)
	require.Len(t, parsed.Sections, 1)
	assert.Nil(t, parsed.Sections[0].LeadHeading)
	assert.Equal(t, "README", parsed.Meta.Title())
}

func TestInferFileType(t *testing.T) {
	assert.Equal(t, FileTypeMarkdown, InferFileType("a/b.md"))
	assert.Equal(t, FileTypeMDX, InferFileType("a/b.MDX"))
	assert.Equal(t, FileTypeMarkdoc, InferFileType("a/b.mdoc"))
	assert.Equal(t, FileTypeHTML, InferFileType("a/b.html"))
	assert.Equal(t, FileTypeText, InferFileType("a/b.txt"))
	// URL は拡張子が無くても HTML として扱う
	assert.Equal(t, FileTypeHTML, InferFileType("https://docs.example.com/guide"))
}

func TestSupportedExtension(t *testing.T) {
	assert.True(t, SupportedExtension("docs/a.md"))
	assert.True(t, SupportedExtension("docs/a.mdx"))
	assert.True(t, SupportedExtension("docs/a.htm"))
	assert.True(t, SupportedExtension("docs/a.txt"))
	assert.False(t, SupportedExtension("main.go"))
	assert.False(t, SupportedExtension("image.png"))
}
