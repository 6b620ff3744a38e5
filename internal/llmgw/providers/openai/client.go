// Package openai adapts the OpenAI Go SDK to the llmgw.Provider interface,
// trimmed from the teacher's internal/llm/openai/client.go down to the single
// non-streaming Chat Completions call the LM Gateway needs — stage engines
// only ever want one strict-JSON completion per call_json invocation, never
// token-level streaming (that lives separately in internal/sse for the
// simulation stage's own SSE sub-stages).
package openai

import (
	"context"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"factcheck-orchestrator/internal/llmgw"
)

type Client struct {
	sdk   sdk.Client
	model string
}

// New builds a Client against baseURL (empty means the public OpenAI API).
// apiKey is required even for self-hosted OpenAI-compatible gateways that
// ignore it, matching the teacher's unconditional option.WithAPIKey.
func New(baseURL, apiKey, model string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient)}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: model}
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Complete(ctx context.Context, req llmgw.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(model)}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, sdk.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, sdk.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, sdk.UserMessage(m.Content))
		}
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(comp.Choices) == 0 {
		return "", nil
	}
	return comp.Choices[0].Message.Content, nil
}
