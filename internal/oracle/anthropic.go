package oracle

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Anthropic is an Oracle backed by the Anthropic Messages API.
type Anthropic struct {
	client sdk.Client
	model  string
}

// NewAnthropic creates an Anthropic oracle. Extra request options (base URL,
// HTTP client) are passed through to the SDK. SDK-level retries are disabled
// so that a failed call falls back immediately.
func NewAnthropic(apiKey, model string, opts ...option.RequestOption) *Anthropic {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &Anthropic{
		client: sdk.NewClient(opts...),
		model:  model,
	}
}

func (a *Anthropic) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(a.model),
		MaxTokens:   int64(params.MaxTokens),
		Temperature: sdk.Float(float64(params.Temperature)),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "anthropic: create message")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := CleanText(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
