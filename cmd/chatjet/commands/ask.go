package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/mystery000/Chatjet-sub000/internal/core/ask"
)

// AskAction は質問に関連するセクションを検索するコマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	query := cmd.String("query")
	projectID, err := uuid.Parse(cmd.String("project"))
	if err != nil {
		return fmt.Errorf("不正なプロジェクトID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	service := appCtx.AskService()

	result, err := service.Ask(ctx, ask.AskParams{
		ProjectID:        projectID,
		Query:            query,
		Threshold:        appCtx.Config.Ask.Threshold,
		MatchCount:       int(cmd.Int("limit")),
		MinContentLength: appCtx.Config.Ask.MinContentLength,
	})
	if err != nil {
		if errors.Is(err, ask.ErrQueryFlagged) {
			return fmt.Errorf("この質問はモデレーションにより拒否されました")
		}
		if errors.Is(err, ask.ErrNoRelevantSections) {
			fmt.Println("関連するセクションが見つかりませんでした")
			return nil
		}
		return fmt.Errorf("検索に失敗: %w", err)
	}

	for i, matched := range result.Sections {
		fmt.Printf("--- [%d] %s (similarity=%.3f, tokens=%d)\n", i+1, matched.Path, matched.Similarity, matched.TokenCount)
		fmt.Println(matched.Content)
		fmt.Println()
	}
	return nil
}
