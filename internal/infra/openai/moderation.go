package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/mystery000/Chatjet-sub000/internal/core/ask"
)

// Moderator は OpenAI Moderation API を使用した入力検査の実装
type Moderator struct {
	client openai.Client
}

// NewModerator は新しい Moderator を作成する
func NewModerator(apiKey string, opts ...option.RequestOption) *Moderator {
	requestOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Moderator{
		client: openai.NewClient(requestOpts...),
	}
}

// Moderate は入力がポリシー違反としてフラグされたかを返す
func (m *Moderator) Moderate(ctx context.Context, input string) (bool, error) {
	resp, err := m.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{
			OfString: openai.String(input),
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to call moderation API: %w", err)
	}

	if len(resp.Results) == 0 {
		return false, fmt.Errorf("no moderation results returned")
	}

	return resp.Results[0].Flagged, nil
}

// インターフェース実装の確認
var _ ask.Moderator = (*Moderator)(nil)
