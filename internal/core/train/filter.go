package train

import (
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/mystery000/Chatjet-sub000/internal/core/train/parse"
)

// PathFilter はパース開始前に候補パスを絞り込むフィルタ
// include グロブのいずれかに一致し、exclude グロブのどれにも一致しない
// パスのみを通す。ドットで始まるパス要素や未対応拡張子は常に除外する
type PathFilter struct {
	include *gitignore.GitIgnore // nil の場合は全パスが include 対象
	exclude *gitignore.GitIgnore
}

// NewPathFilter は include/exclude グロブから PathFilter を作成する
func NewPathFilter(include, exclude []string) *PathFilter {
	f := &PathFilter{}
	if len(include) > 0 {
		f.include = gitignore.CompileIgnoreLines(include...)
	}
	if len(exclude) > 0 {
		f.exclude = gitignore.CompileIgnoreLines(exclude...)
	}
	return f
}

// Accept はパスが処理対象かを判定する
func (f *PathFilter) Accept(path string) bool {
	if hasDotSegment(path) {
		return false
	}
	if !parse.SupportedExtension(path) {
		return false
	}
	if f.include != nil && !f.include.MatchesPath(path) {
		return false
	}
	if f.exclude != nil && f.exclude.MatchesPath(path) {
		return false
	}
	return true
}

// hasDotSegment はパスにドットで始まる要素が含まれるかを判定する
func hasDotSegment(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
