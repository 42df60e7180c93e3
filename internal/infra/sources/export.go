package sources

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
	"github.com/samber/mo"

	"github.com/mystery000/Chatjet-sub000/internal/core/train"
	"github.com/mystery000/Chatjet-sub000/internal/core/train/parse"
)

// listArchiveFiles はホスティング済みプロジェクトのエクスポート
// アーカイブ（zip）を FileList として返す
// エントリの読み出しは単位ごとにアーカイブを開き直す
func listArchiveFiles(archivePath string) (train.FileList, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return train.FileList{}, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer reader.Close()

	// エントリ名の対応表（表示パス → アーカイブ内の実名）
	var paths []string
	names := make(map[string]string)
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		path := archiveEntryPath(entry.Name)
		paths = append(paths, path)
		names[path] = entry.Name
	}

	return train.FileList{
		Count: len(paths),
		PathFor: func(i int) string {
			return paths[i]
		},
		ContentFor: func(_ context.Context, i int) (mo.Option[parse.RawDocument], error) {
			content, err := readArchiveEntry(archivePath, names[paths[i]])
			if err != nil {
				return mo.None[parse.RawDocument](), err
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

func readArchiveEntry(archivePath, name string) ([]byte, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		if entry.Name != name {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open archive entry %s: %w", name, err)
		}
		defer rc.Close()

		content, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry %s: %w", name, err)
		}
		return content, nil
	}
	return nil, fmt.Errorf("archive entry not found: %s", name)
}

// archiveEntryPath はエントリ名をソース内パスへ正規化する
func archiveEntryPath(name string) string {
	return strings.TrimPrefix(filepath.ToSlash(name), "./")
}
