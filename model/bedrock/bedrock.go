// Package bedrock provides a model.Model for Anthropic models hosted on AWS
// Bedrock, using InvokeModel with the Anthropic messages request body.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

const (
	provider         = "bedrock"
	anthropicVersion = "bedrock-2023-05-31"
)

// InvokeModelAPI is the subset of the Bedrock runtime client used by Model.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Options configures the Bedrock adapter.
type Options struct {
	ModelID     string
	Region      string
	MaxTokens   int
	Temperature float64
}

// Model invokes Anthropic models on Bedrock.
type Model struct {
	client InvokeModelAPI
	opts   Options
}

func defaultOptions() Options {
	return Options{
		ModelID:     "anthropic.claude-3-5-sonnet-20240620-v1:0",
		MaxTokens:   4096,
		Temperature: 0.7,
	}
}

// NewModel loads the default AWS configuration (credentials chain, region)
// and creates a Bedrock runtime client.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Model{client: bedrockruntime.NewFromConfig(cfg), opts: opts}, nil
}

// NewModelFromClient creates a Model from an existing client.
func NewModelFromClient(client InvokeModelAPI, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{client: client, opts: opts}
}

type requestBody struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	System           string    `json:"system,omitempty"`
	Messages         []message `json:"messages"`
	Tools            []tool    `json:"tools,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
}

type tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type responseBody struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	ctx, cancel := model.WithTimeout(ctx, req)
	defer cancel()

	body, err := m.buildBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create bedrock request: %w", err)
	}

	out, err := m.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.ModelOrDefault(m.opts.ModelID)),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		status := 0

		var re *awshttp.ResponseError
		if errors.As(err, &re) {
			status = re.HTTPStatusCode()
		}

		return nil, model.WrapError(ctx, provider, status, fmt.Errorf("failed to invoke bedrock model: %w", err))
	}

	return parseResponse(out.Body, req.Handoffs)
}

func (m *Model) buildBody(req model.Request) ([]byte, error) {
	rb := requestBody{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        m.opts.MaxTokens,
		Temperature:      m.opts.Temperature,
		System:           model.SystemPrompt(req),
		Messages: []message{{
			Role:    "user",
			Content: []contentBlock{{Type: "text", Text: req.Input}},
		}},
	}

	for _, def := range model.HandoffTools(req.Handoffs) {
		rb.Tools = append(rb.Tools, tool{Name: def.Name, Description: def.Description, InputSchema: def.Parameters})
	}

	return json.Marshal(rb)
}

func parseResponse(body []byte, handoffs []model.HandoffOption) (*model.Response, error) {
	var rb responseBody
	if err := json.Unmarshal(body, &rb); err != nil {
		return nil, &core.BackendError{Provider: provider, Cause: fmt.Errorf("failed to decode bedrock response: %w", err)}
	}

	var (
		text  string
		tools []string
	)

	for _, block := range rb.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			tools = append(tools, block.Name)
		}
	}

	return &model.Response{
		Text:         text,
		Handoffs:     model.ResolveHandoffs(tools, handoffs),
		FinishReason: rb.StopReason,
		Usage: &model.Usage{
			PromptTokens:     rb.Usage.InputTokens,
			CompletionTokens: rb.Usage.OutputTokens,
			TotalTokens:      rb.Usage.InputTokens + rb.Usage.OutputTokens,
		},
	}, nil
}

// Info returns metadata describing this Bedrock model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.ModelID,
		Provider:      provider,
		SupportsTools: true,
	}
}
