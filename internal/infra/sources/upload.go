package sources

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-enry/go-enry/v2"
	"github.com/samber/mo"

	"github.com/mystery000/Chatjet-sub000/internal/core/train"
	"github.com/mystery000/Chatjet-sub000/internal/core/train/parse"
)

// listDirFiles はアップロードされたファイル群のディレクトリを
// FileList として返す。パスはディレクトリからの相対パス
func listDirFiles(dir string) (train.FileList, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return train.FileList{}, fmt.Errorf("failed to walk directory %s: %w", dir, err)
	}

	return train.FileList{
		Count: len(paths),
		PathFor: func(i int) string {
			return paths[i]
		},
		ContentFor: func(_ context.Context, i int) (mo.Option[parse.RawDocument], error) {
			content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(paths[i])))
			if err != nil {
				return mo.None[parse.RawDocument](), fmt.Errorf("failed to read file %s: %w", paths[i], err)
			}
			if enry.IsBinary(content) {
				return mo.None[parse.RawDocument](), nil
			}
			return mo.Some(parse.RawDocument{
				Path:    paths[i],
				Name:    filepath.Base(paths[i]),
				Content: string(content),
			}), nil
		},
	}, nil
}
