package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathFilter_Accept(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		path    string
		want    bool
	}{
		{
			name: "グロブ未指定なら対応拡張子は全て通る",
			path: "docs/guide.md",
			want: true,
		},
		{
			name: "未対応拡張子は常に除外",
			path: "main.go",
			want: false,
		},
		{
			name: "ドットで始まる要素を含むパスは除外",
			path: ".github/README.md",
			want: false,
		},
		{
			name: "途中のドット要素も除外",
			path: "docs/.drafts/wip.md",
			want: false,
		},
		{
			name:    "include に一致するパスは通る",
			include: []string{"docs/**"},
			path:    "docs/api/auth.mdx",
			want:    true,
		},
		{
			name:    "include に一致しないパスは除外",
			include: []string{"docs/**"},
			path:    "guides/intro.md",
			want:    false,
		},
		{
			name:    "exclude に一致するパスは除外",
			exclude: []string{"**/CHANGELOG.md"},
			path:    "docs/CHANGELOG.md",
			want:    false,
		},
		{
			name:    "include と exclude の両方に一致する場合は exclude が勝つ",
			include: []string{"docs/**"},
			exclude: []string{"docs/internal/**"},
			path:    "docs/internal/secrets.md",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewPathFilter(tt.include, tt.exclude)
			assert.Equal(t, tt.want, f.Accept(tt.path))
		})
	}
}
