package caption

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicProvider struct {
	model string
	opts  []option.RequestOption
}

var _ Provider = (*AnthropicProvider)(nil)

func NewAnthropicProvider(model string, opts ...option.RequestOption) *AnthropicProvider {
	return &AnthropicProvider{model: model, opts: opts}
}

func (p *AnthropicProvider) Generate(ctx context.Context, apiKey, prompt string, image []byte, mimeType string) (string, error) {
	opts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, p.opts...)
	client := anthropic.NewClient(opts...)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(image)),
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call Claude API: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", ErrEmptyResponse
}
