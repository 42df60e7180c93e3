package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/mystery000/Chatjet-sub000/internal/core/ask"
	"github.com/mystery000/Chatjet-sub000/internal/core/train"
)

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
// レート制限・一時的な障害は Exponential Backoff でリトライする
type Embedder struct {
	client         openai.Client
	model          string
	dimension      int
	initialBackoff time.Duration
	maxAttempts    uint64
}

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-ada-002"
	// DefaultEmbeddingDimension はデフォルトのベクトル次元
	DefaultEmbeddingDimension = 1536
	// DefaultInitialBackoff はリトライの初期待機時間
	DefaultInitialBackoff = 10 * time.Second
	// DefaultMaxAttempts はリトライを含む最大試行回数
	DefaultMaxAttempts = 10
)

type embedderOptions struct {
	model          string
	dimension      int
	initialBackoff time.Duration
	maxAttempts    uint64
	requestOpts    []option.RequestOption
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithInitialBackoff はリトライの初期待機時間を上書きする
func WithInitialBackoff(initial time.Duration) EmbedderOption {
	return func(o *embedderOptions) {
		o.initialBackoff = initial
	}
}

// WithMaxAttempts は最大試行回数を上書きする
func WithMaxAttempts(attempts uint64) EmbedderOption {
	return func(o *embedderOptions) {
		o.maxAttempts = attempts
	}
}

// WithRequestOptions は openai クライアントへのオプションを追加する
func WithRequestOptions(opts ...option.RequestOption) EmbedderOption {
	return func(o *embedderOptions) {
		o.requestOpts = append(o.requestOpts, opts...)
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) *Embedder {
	options := embedderOptions{
		model:          DefaultEmbeddingModel,
		dimension:      DefaultEmbeddingDimension,
		initialBackoff: DefaultInitialBackoff,
		maxAttempts:    DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&options)
	}

	requestOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		// リトライはこちらの Backoff で制御する
		option.WithMaxRetries(0),
	}, options.requestOpts...)

	return &Embedder{
		client:         openai.NewClient(requestOpts...),
		model:          options.model,
		dimension:      options.dimension,
		initialBackoff: options.initialBackoff,
		maxAttempts:    options.maxAttempts,
	}
}

// Embed は単一テキストの Embedding を生成する
// 戻り値には API が消費した総トークン数を含む
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, int, error) {
	if text == "" {
		return nil, 0, fmt.Errorf("no text provided")
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	}
	// ada-002 は dimensions パラメータを受け付けない
	if e.dimension > 0 && supportsDimensions(e.model) {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	var resp *openai.CreateEmbeddingResponse
	operation := func() error {
		var err error
		resp, err = e.client.Embeddings.New(ctx, params)
		if err != nil {
			if isPermanentError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(e.retryPolicy(), e.maxAttempts-1),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, 0, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, 0, fmt.Errorf("no embeddings generated")
	}

	vector := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float32(v)
	}

	return vector, int(resp.Usage.TotalTokens), nil
}

func (e *Embedder) retryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.initialBackoff
	policy.MaxElapsedTime = 0
	return policy
}

// isPermanentError はリトライしても回復しないエラーかを判定する
// レート制限 (429) とサーバ側エラー (5xx) 以外の HTTP エラーは打ち切る
func isPermanentError(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == 429 {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// supportsDimensions は次元数の指定を受け付けるモデルかを判定する
func supportsDimensions(model string) bool {
	return strings.HasPrefix(model, "text-embedding-3")
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// インターフェース実装の確認
var (
	_ train.Embedder = (*Embedder)(nil)
	_ ask.Embedder   = (*Embedder)(nil)
)
