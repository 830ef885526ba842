// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API. Structured outputs use the JSON schema response
// format and handoffs are offered as function tools.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

const provider = "openai"

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client. Client
// options (API key, base URL) are passed through unchanged.
func NewModel(clientOpts []option.RequestOption, optFns ...func(o *Options)) *Model {
	client := openai.NewClient(clientOpts...)
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{client: client, opts: opts}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	ctx, cancel := model.WithTimeout(ctx, req)
	defer cancel()

	resp, err := m.client.Chat.Completions.New(ctx, m.buildParams(req))
	if err != nil {
		return nil, classifyError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, &core.BackendError{Provider: provider, Cause: errors.New("no choices returned")}
	}

	return convertResponse(resp.Choices[0], resp.Usage, req.Handoffs), nil
}

// buildParams assembles the OpenAI request parameters including handoff tools.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	messages = append(messages, openai.UserMessage(req.Input))

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               req.ModelOrDefault(m.opts.Model),
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}

	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        sanitizeName(req.Schema.Name),
					Description: openai.String(req.Schema.Description),
					Schema:      req.Schema.JSONSchema(),
					Strict:      openai.Bool(req.Schema.AllRequired()),
				},
			},
		}
	}

	if len(req.Handoffs) == 0 {
		return params
	}

	defs := model.HandoffTools(req.Handoffs)
	tools := make([]openai.ChatCompletionToolParam, len(defs))

	for i, def := range defs {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  def.Parameters,
			},
		}
	}

	params.Tools = tools

	return params
}

func convertResponse(ch openai.ChatCompletionChoice, usage openai.CompletionUsage, handoffs []model.HandoffOption) *model.Response {
	names := make([]string, 0, len(ch.Message.ToolCalls))
	for _, tc := range ch.Message.ToolCalls {
		names = append(names, tc.Function.Name)
	}

	return &model.Response{
		Text:         ch.Message.Content,
		Handoffs:     model.ResolveHandoffs(names, handoffs),
		FinishReason: ch.FinishReason,
		Usage: &model.Usage{
			PromptTokens:     int(usage.PromptTokens),
			CompletionTokens: int(usage.CompletionTokens),
			TotalTokens:      int(usage.TotalTokens),
		},
	}
}

// classifyError maps SDK errors onto *core.BackendError.
func classifyError(ctx context.Context, err error) error {
	status := 0

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}

	return model.WrapError(ctx, provider, status, fmt.Errorf("openai api error: %w", err))
}

// sanitizeName restricts schema names to the characters the API accepts.
func sanitizeName(name string) string {
	if name == "" {
		return "output"
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:           m.opts.Model,
		Provider:       provider,
		SupportsTools:  true,
		SupportsSchema: true,
	}
}
