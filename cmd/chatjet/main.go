package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/mystery000/Chatjet-sub000/cmd/chatjet/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "chatjet",
		Usage: "ドキュメントの取り込み・埋め込み・類似検索パイプライン",
		Commands: []*cli.Command{
			{
				Name:  "source",
				Usage: "ソース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "add",
						Usage: "プロジェクトへソースを登録",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "project",
								Usage:    "プロジェクトID",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "type",
								Usage:    "ソース種別 (git-repo/export/website/upload)",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "url",
								Usage: "リポジトリURLまたはサイトのベースURL",
							},
							&cli.StringFlag{
								Name:  "branch",
								Usage: "ブランチ名（git-repo のみ、省略時は HEAD）",
							},
							&cli.StringFlag{
								Name:  "archive",
								Usage: "エクスポートアーカイブ（zip）のパス",
							},
							&cli.StringFlag{
								Name:  "dir",
								Usage: "アップロード済みファイルのディレクトリ",
							},
						},
						Action: commands.SourceAddAction,
					},
					{
						Name:  "list",
						Usage: "プロジェクトのソース一覧を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "project",
								Usage:    "プロジェクトID",
								Required: true,
							},
						},
						Action: commands.SourceListAction,
					},
					{
						Name:  "delete",
						Usage: "ソースを削除（ファイル・セクションも削除）",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ソースID",
								Required: true,
							},
						},
						Action: commands.SourceDeleteAction,
					},
				},
			},
			{
				Name:  "train",
				Usage: "ソースのトレーニング（埋め込み生成）",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "source",
						Usage:    "ソースID",
						Required: true,
					},
				},
				Action: commands.TrainAction,
			},
			{
				Name:  "train-all",
				Usage: "プロジェクトの全ソースをトレーニング",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "project",
						Usage:    "プロジェクトID",
						Required: true,
					},
				},
				Action: commands.TrainAllAction,
			},
			{
				Name:  "ask",
				Usage: "質問に関連するセクションを検索",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "project",
						Usage:    "プロジェクトID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "query",
						Usage:    "質問文",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "返すセクション数の上限",
						Value: 10,
					},
				},
				Action: commands.AskAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
