package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mystery000/Chatjet-sub000/internal/core/ask"
	"github.com/mystery000/Chatjet-sub000/internal/core/crawl"
	"github.com/mystery000/Chatjet-sub000/internal/core/train"
	"github.com/mystery000/Chatjet-sub000/internal/core/train/chunk"
	"github.com/mystery000/Chatjet-sub000/internal/infra/openai"
	"github.com/mystery000/Chatjet-sub000/internal/infra/postgres"
	"github.com/mystery000/Chatjet-sub000/internal/infra/sources"
	"github.com/mystery000/Chatjet-sub000/internal/platform/logger"
	"github.com/mystery000/Chatjet-sub000/pkg/config"
	"github.com/mystery000/Chatjet-sub000/pkg/db"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config   *config.Config
	Database *db.DB
	Logger   *slog.Logger

	repo       *postgres.Repository
	searchRepo *postgres.SearchRepository
	embedder   *openai.Embedder
}

// NewAppContext は設定ファイルを読み込み、DBに接続して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.DefaultConfig())

	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	return &AppContext{
		Config:   cfg,
		Database: database,
		Logger:   appLogger,
		repo: postgres.NewRepository(database.Pool,
			postgres.WithRepositoryLogger(appLogger),
		),
		searchRepo: postgres.NewSearchRepository(database.Pool),
		embedder: openai.NewEmbedder(cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		),
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Database != nil {
		ac.Database.Close()
	}
}

// Repository は train.Repository 実装を返す
func (ac *AppContext) Repository() *postgres.Repository {
	return ac.repo
}

// TrainService はトレーニングサービスを組み立てる
func (ac *AppContext) TrainService() (*train.Service, error) {
	lister := sources.NewLister(
		sources.WithCloneBaseDir(ac.Config.Git.CloneDir),
		sources.WithSSHKey(ac.Config.Git.SSHKeyPath, ac.Config.Git.SSHPassword),
	)
	crawler := crawl.NewCrawler(
		crawl.WithUserAgent(ac.Config.Crawl.UserAgent),
		crawl.WithCrawlerLogger(ac.Logger),
	)
	splitter, err := chunk.NewSplitter()
	if err != nil {
		return nil, fmt.Errorf("スプリッタの初期化に失敗: %w", err)
	}

	return train.NewService(
		ac.repo,
		ac.embedder,
		lister,
		crawler,
		splitter,
		train.WithServiceConfig(&train.ServiceConfig{
			Concurrency:      ac.Config.Train.Concurrency,
			MinContentLength: ac.Config.Train.MinContentLength,
			PageAllowance:    ac.Config.Crawl.PageAllowance,
			Include:          ac.Config.Train.Include,
			Exclude:          ac.Config.Train.Exclude,
			BYOKey:           ac.Config.Train.BYOKey,
		}),
		train.WithServiceLogger(ac.Logger),
	), nil
}

// AskService は類似検索サービスを組み立てる
func (ac *AppContext) AskService() *ask.AskService {
	moderator := openai.NewModerator(ac.Config.OpenAI.APIKey)
	return ask.NewAskService(
		ac.searchRepo,
		ac.embedder,
		moderator,
		ask.WithAskLogger(ac.Logger),
	)
}
