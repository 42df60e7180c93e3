package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/mystery000/Chatjet-sub000/internal/core/train"
)

// TrainAction は1ソースをトレーニングするコマンドのアクション
func TrainAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	sourceID, err := uuid.Parse(cmd.String("source"))
	if err != nil {
		return fmt.Errorf("不正なソースID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	sourceOpt, err := appCtx.Repository().GetSourceByID(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("ソースの取得に失敗: %w", err)
	}
	source, ok := sourceOpt.Get()
	if !ok {
		return fmt.Errorf("ソースが見つかりません: %s", sourceID)
	}

	service, err := appCtx.TrainService()
	if err != nil {
		return err
	}

	// Ctrl-C で残りの単位を停止する（実行中の単位は完了まで走る）
	go func() {
		<-ctx.Done()
		service.StopGeneratingEmbeddings()
	}()

	appCtx.Logger.Info("トレーニングを開始",
		"sourceID", source.ID.String(),
		"type", string(source.Data.Kind()),
	)

	if err := service.TrainSource(ctx, source, progressPrinter, errorPrinter); err != nil {
		return fmt.Errorf("トレーニングに失敗: %w", err)
	}

	reportState(service.State())
	return nil
}

// TrainAllAction はプロジェクトの全ソースをトレーニングするコマンドのアクション
func TrainAllAction(ctx context.Context, cmd *cli.Command) error {
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

	service, err := appCtx.TrainService()
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		service.StopGeneratingEmbeddings()
	}()

	appCtx.Logger.Info("全ソースのトレーニングを開始", "projectID", projectID.String())

	if err := service.TrainAllSources(ctx, projectID, progressPrinter, errorPrinter); err != nil {
		return fmt.Errorf("トレーニングに失敗: %w", err)
	}

	reportState(service.State())
	return nil
}

func progressPrinter(current, total int, filename string) {
	fmt.Printf("[%d/%d] %s\n", current, total, filename)
}

func errorPrinter(message string) {
	fmt.Fprintf(os.Stderr, "error: %s\n", message)
}

// reportState は最終状態と蓄積されたエラーを標準出力へまとめる
func reportState(state train.StateSnapshot) {
	if len(state.Errors) == 0 {
		fmt.Println("完了しました")
		return
	}
	fmt.Printf("完了しました（%d 件のエラー）\n", len(state.Errors))
	for _, message := range state.Errors {
		fmt.Fprintf(os.Stderr, "  - %s\n", message)
	}
}
