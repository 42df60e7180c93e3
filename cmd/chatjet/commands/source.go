package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/mystery000/Chatjet-sub000/internal/core/train"
)

// SourceAddAction はプロジェクトへソースを登録するコマンドのアクション
func SourceAddAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	projectID, err := uuid.Parse(cmd.String("project"))
	if err != nil {
		return fmt.Errorf("不正なプロジェクトID: %w", err)
	}

	data, err := sourceDataFromFlags(cmd)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	source, err := appCtx.Repository().CreateSource(ctx, projectID, data)
	if err != nil {
		return fmt.Errorf("ソースの登録に失敗: %w", err)
	}

	appCtx.Logger.Info("ソースを登録しました",
		"sourceID", source.ID.String(),
		"type", string(source.Data.Kind()),
	)
	fmt.Println(source.ID.String())
	return nil
}

// sourceDataFromFlags はフラグからソース種別ごとのペイロードを組み立てる
func sourceDataFromFlags(cmd *cli.Command) (train.SourceData, error) {
	switch kind := train.SourceType(cmd.String("type")); kind {
	case train.SourceTypeGitRepo:
		url := cmd.String("url")
		if url == "" {
			return nil, fmt.Errorf("git-repo ソースには --url が必要です")
		}
		return train.GitRepoData{URL: url, Branch: cmd.String("branch")}, nil
	case train.SourceTypeExport:
		archive := cmd.String("archive")
		if archive == "" {
			return nil, fmt.Errorf("export ソースには --archive が必要です")
		}
		return train.ExportData{ArchivePath: archive}, nil
	case train.SourceTypeWebsite:
		baseURL := cmd.String("url")
		if baseURL == "" {
			return nil, fmt.Errorf("website ソースには --url が必要です")
		}
		return train.WebsiteData{BaseURL: baseURL}, nil
	case train.SourceTypeUpload:
		dir := cmd.String("dir")
		if dir == "" {
			return nil, fmt.Errorf("upload ソースには --dir が必要です")
		}
		return train.UploadData{Dir: dir}, nil
	default:
		return nil, fmt.Errorf("未知のソース種別: %s", kind)
	}
}

// SourceListAction はプロジェクトのソース一覧を表示するコマンドのアクション
func SourceListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	projectID, err := uuid.Parse(cmd.String("project"))
	if err != nil {
		return fmt.Errorf("不正なプロジェクトID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	srcs, err := appCtx.Repository().ListSourcesByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("ソース一覧の取得に失敗: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tIDENTIFIER\tCREATED")
	for _, source := range srcs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			source.ID.String(),
			string(source.Data.Kind()),
			sourceIdentifier(source.Data),
			source.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

func sourceIdentifier(data train.SourceData) string {
	switch d := data.(type) {
	case train.GitRepoData:
		return d.URL
	case train.ExportData:
		return d.ArchivePath
	case train.WebsiteData:
		return d.BaseURL
	case train.UploadData:
		return d.Dir
	default:
		return ""
	}
}

// SourceDeleteAction はソースを削除するコマンドのアクション
func SourceDeleteAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	sourceID, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("不正なソースID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Repository().DeleteSource(ctx, sourceID); err != nil {
		return fmt.Errorf("ソースの削除に失敗: %w", err)
	}

	appCtx.Logger.Info("ソースを削除しました", "sourceID", sourceID.String())
	return nil
}
