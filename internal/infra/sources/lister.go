package sources

import (
	"context"
	"fmt"

	"github.com/mystery000/Chatjet-sub000/internal/core/train"
)

// Lister はソース種別ごとのアダプタを束ねる train.FileLister 実装
// Web サイトソースはクローラが担当するため、ここでは扱わない
type Lister struct {
	git *gitClient
}

var _ train.FileLister = (*Lister)(nil)

type listerOptions struct {
	cloneBaseDir string
	sshKeyPath   string
	sshPassword  string
}

// ListerOption は Lister のオプション設定
type ListerOption func(*listerOptions)

// WithCloneBaseDir は Git リポジトリのクローン先ベースディレクトリを設定する
func WithCloneBaseDir(dir string) ListerOption {
	return func(o *listerOptions) {
		o.cloneBaseDir = dir
	}
}

// WithSSHKey は Git 認証用の SSH 鍵を設定する
func WithSSHKey(keyPath, password string) ListerOption {
	return func(o *listerOptions) {
		o.sshKeyPath = keyPath
		o.sshPassword = password
	}
}

// NewLister は新しい Lister を作成する
func NewLister(opts ...ListerOption) *Lister {
	options := listerOptions{
		cloneBaseDir: ".cache/repos",
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Lister{
		git: &gitClient{
			cloneBaseDir: options.cloneBaseDir,
			sshKeyPath:   options.sshKeyPath,
			sshPassword:  options.sshPassword,
		},
	}
}

// ListFiles はソース種別に応じたファイル一覧アクセサを返す
func (l *Lister) ListFiles(ctx context.Context, source *train.Source) (train.FileList, error) {
	switch data := source.Data.(type) {
	case train.GitRepoData:
		return l.git.listFiles(ctx, data)
	case train.ExportData:
		return listArchiveFiles(data.ArchivePath)
	case train.UploadData:
		return listDirFiles(data.Dir)
	case train.WebsiteData:
		return train.FileList{}, fmt.Errorf("website sources are resolved by the crawler")
	default:
		return train.FileList{}, fmt.Errorf("%w: %T", train.ErrUnsupportedSource, data)
	}
}
