package train

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/mystery000/Chatjet-sub000/internal/core/train/chunk"
	"github.com/mystery000/Chatjet-sub000/internal/core/train/parse"
)

const (
	// DefaultConcurrency は同時に処理するファイル数の上限
	DefaultConcurrency = 5
	// DefaultPageAllowance はプロジェクトごとのクロールページ割当
	DefaultPageAllowance = 50
)

// ServiceConfig はトレーニングサービスの設定
// プロジェクト設定面から渡される値を明示的な構造体として受け取る
type ServiceConfig struct {
	Concurrency      int
	MinContentLength int
	PageAllowance    int
	Include          []string // 候補パスの include グロブ
	Exclude          []string // 候補パスの exclude グロブ
	BYOKey           bool     // 呼び出し側キー持ち込み時は割当管理を行わない
}

// DefaultServiceConfig はデフォルトのサービス設定を返す
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Concurrency:      DefaultConcurrency,
		MinContentLength: DefaultMinContentLength,
		PageAllowance:    DefaultPageAllowance,
	}
}

// Service はソースのトレーニング（埋め込み生成）を統括する
type Service struct {
	repo     Repository
	embedder Embedder
	lister   FileLister
	crawler  Crawler
	parser   *parse.Parser
	splitter *chunk.Splitter
	config   *ServiceConfig
	state    *TrainingState
	logger   *slog.Logger
}

type serviceOptions struct {
	config *ServiceConfig
	logger *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithServiceConfig はサービス設定を上書きする
func WithServiceConfig(cfg *ServiceConfig) ServiceOption {
	return func(o *serviceOptions) {
		o.config = cfg
	}
}

// WithServiceLogger は Service にロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(
	repo Repository,
	embedder Embedder,
	lister FileLister,
	crawler Crawler,
	splitter *chunk.Splitter,
	opts ...ServiceOption,
) *Service {
	options := serviceOptions{
		config: DefaultServiceConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.config == nil {
		options.config = DefaultServiceConfig()
	}
	if options.config.Concurrency <= 0 {
		options.config.Concurrency = DefaultConcurrency
	}
	if options.config.PageAllowance <= 0 {
		options.config.PageAllowance = DefaultPageAllowance
	}

	return &Service{
		repo:     repo,
		embedder: embedder,
		lister:   lister,
		crawler:  crawler,
		parser:   parse.NewParser(parse.WithParserLogger(options.logger)),
		splitter: splitter,
		config:   options.config,
		state:    NewTrainingState(),
		logger:   options.logger,
	}
}

// State は現在のトレーニング状態のスナップショットを返す
func (s *Service) State() StateSnapshot {
	return s.state.Snapshot()
}

// StopGeneratingEmbeddings は停止フラグを立てる
// 実行中の単位は完了まで走り、以降の単位はディスパッチされない
func (s *Service) StopGeneratingEmbeddings() {
	s.state.requestCancel()
}

// GenerateEmbeddings はファイル一覧に対して埋め込み生成を実行する
// 戻り値は単位ごとのエラーの集積で、個々の失敗はバッチを中断しない
func (s *Service) GenerateEmbeddings(ctx context.Context, source *Source, list FileList, onProgress ProgressFunc) []error {
	quota, err := s.loadQuota(ctx, source.ProjectID)
	if err != nil {
		return []error{err}
	}
	s.state.toFetchingData()
	errs := s.generateEmbeddings(ctx, source, list, quota, onProgress)
	if s.state.cancelRequested() {
		s.state.toIdle()
		return errs
	}
	s.state.complete()
	return errs
}

// generateEmbeddings は固定サイズのワーカープールでファイルを並行処理する
// 停止フラグは単位のディスパッチ境界でのみ確認する
func (s *Service) generateEmbeddings(
	ctx context.Context,
	source *Source,
	list FileList,
	quota *QuotaTracker,
	onProgress ProgressFunc,
) []error {
	checksums, err := s.repo.GetFileChecksums(ctx, source.ID)
	if err != nil {
		return []error{fmt.Errorf("チェックサム一覧の取得に失敗: %w", err)}
	}

	pipeline := NewFilePipeline(s.repo, s.embedder, s.parser, s.splitter, s.config.MinContentLength, s.logger)

	docCh := make(chan parse.RawDocument)

	var mu sync.Mutex
	var errs []error
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		s.state.addError(err.Error())
	}

	var wg sync.WaitGroup
	wg.Add(s.config.Concurrency)
	for i := 0; i < s.config.Concurrency; i++ {
		go func() {
			defer wg.Done()
			for doc := range docCh {
				result, err := pipeline.ProcessFile(ctx, source, doc, checksums, quota)
				if err != nil {
					record(err)
					continue
				}
				for _, chunkErr := range result.Errs {
					record(chunkErr)
				}
			}
		}()
	}

	for i := 0; i < list.Count; i++ {
		if s.state.cancelRequested() {
			s.logger.Info("停止要求により残りの単位をスキップ",
				"dispatched", i,
				"total", list.Count,
			)
			break
		}

		path := list.PathFor(i)
		docOpt, err := list.ContentFor(ctx, i)
		if err != nil {
			record(fmt.Errorf("コンテンツの取得に失敗 (%s): %w", path, err))
			continue
		}
		if docOpt.IsAbsent() {
			continue
		}

		docCh <- docOpt.MustGet()

		s.state.toLoading(i+1, list.Count, path)
		if onProgress != nil {
			onProgress(i+1, list.Count, path)
		}
	}
	close(docCh)
	wg.Wait()

	return errs
}

// TrainSource は1ソースをトレーニングする
// Web サイトソースはクローラでページ集合を解決し、それ以外は
// FileLister で単位一覧を解決してから埋め込み生成を実行する
func (s *Service) TrainSource(ctx context.Context, source *Source, onProgress ProgressFunc, onError ErrorFunc) error {
	quota, err := s.loadQuota(ctx, source.ProjectID)
	if err != nil {
		return err
	}

	s.state.toFetchingData()
	errs := s.trainSource(ctx, source, quota, onProgress, onError)

	if s.state.cancelRequested() {
		s.state.toIdle()
		return nil
	}
	s.state.complete()
	if len(errs) > 0 {
		s.logger.Warn("トレーニング完了（一部失敗あり）",
			"sourceID", source.ID,
			"errors", len(errs),
		)
	}
	return nil
}

// TrainAllSources はプロジェクトの全ソースを順番にトレーニングする
// トークン割当はプロジェクト単位で共有される
func (s *Service) TrainAllSources(ctx context.Context, projectID uuid.UUID, onProgress ProgressFunc, onError ErrorFunc) error {
	sources, err := s.repo.ListSourcesByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("ソース一覧の取得に失敗: %w", err)
	}

	quota, err := s.loadQuota(ctx, projectID)
	if err != nil {
		return err
	}

	s.state.toFetchingData()
	for _, source := range sources {
		if s.state.cancelRequested() {
			break
		}
		s.trainSource(ctx, source, quota, onProgress, onError)
	}

	if s.state.cancelRequested() {
		s.state.toIdle()
		return nil
	}
	s.state.complete()
	return nil
}

// trainSource はソース種別ごとに単位一覧を解決して埋め込み生成を実行する
func (s *Service) trainSource(
	ctx context.Context,
	source *Source,
	quota *QuotaTracker,
	onProgress ProgressFunc,
	onError ErrorFunc,
) []error {
	report := func(errs []error) {
		if onError == nil {
			return
		}
		for _, err := range errs {
			onError(err.Error())
		}
	}

	switch data := source.Data.(type) {
	case WebsiteData:
		var all []error
		quotaReached, err := s.crawler.Crawl(ctx, data.BaseURL, s.config.PageAllowance,
			func(ctx context.Context, pages []CrawlPage) {
				errs := s.generateEmbeddings(ctx, source, fileListFromPages(pages), quota, onProgress)
				report(errs)
				all = append(all, errs...)
			})
		if err != nil {
			wrapped := fmt.Errorf("サイトのクロールに失敗: %w", err)
			s.state.addError(wrapped.Error())
			report([]error{wrapped})
			return append(all, wrapped)
		}
		if quotaReached {
			notice := fmt.Errorf("page allowance of %d reached for %s", s.config.PageAllowance, data.BaseURL)
			s.state.addError(notice.Error())
			report([]error{notice})
			all = append(all, notice)
		}
		return all

	case GitRepoData, ExportData, UploadData:
		list, err := s.lister.ListFiles(ctx, source)
		if err != nil {
			wrapped := fmt.Errorf("ファイル一覧の解決に失敗: %w", err)
			s.state.addError(wrapped.Error())
			report([]error{wrapped})
			return []error{wrapped}
		}
		filtered := filterFileList(list, NewPathFilter(s.config.Include, s.config.Exclude))
		errs := s.generateEmbeddings(ctx, source, filtered, quota, onProgress)
		report(errs)
		return errs

	default:
		err := fmt.Errorf("%w: %T", ErrUnsupportedSource, data)
		s.state.addError(err.Error())
		report([]error{err})
		return []error{err}
	}
}

// loadQuota はプロジェクトの割当トラッカーを作成する
func (s *Service) loadQuota(ctx context.Context, projectID uuid.UUID) (*QuotaTracker, error) {
	if s.config.BYOKey {
		return NewBypassQuotaTracker(), nil
	}
	allowance, err := s.repo.GetTokenAllowance(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("トークン割当の取得に失敗: %w", err)
	}
	return NewQuotaTracker(allowance.TokenAllowance, allowance.UsedTokens), nil
}

// filterFileList は候補パスのフィルタを適用した FileList を返す
// フィルタはパース開始前に適用される
func filterFileList(list FileList, filter *PathFilter) FileList {
	kept := make([]int, 0, list.Count)
	for i := 0; i < list.Count; i++ {
		if filter.Accept(list.PathFor(i)) {
			kept = append(kept, i)
		}
	}
	return FileList{
		Count: len(kept),
		PathFor: func(i int) string {
			return list.PathFor(kept[i])
		},
		ContentFor: func(ctx context.Context, i int) (mo.Option[parse.RawDocument], error) {
			return list.ContentFor(ctx, kept[i])
		},
	}
}

// fileListFromPages はクロール済みページを疑似ファイル一覧へ変換する
// path は URL、コンテンツは取得済み HTML
func fileListFromPages(pages []CrawlPage) FileList {
	return FileList{
		Count: len(pages),
		PathFor: func(i int) string {
			return pages[i].URL
		},
		ContentFor: func(_ context.Context, i int) (mo.Option[parse.RawDocument], error) {
			return mo.Some(parse.RawDocument{
				Path:    pages[i].URL,
				Name:    pages[i].URL,
				Content: pages[i].HTML,
			}), nil
		},
	}
}
