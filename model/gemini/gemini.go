// Package gemini provides a model.Model backed by the Google Gemini API.
// Structured outputs use ResponseSchema and handoffs are offered as
// function declarations.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/schema"
)

const provider = "gemini"

// Options configures the Gemini adapter.
type Options struct {
	Model       string
	Temperature float32
	APIKey      string
}

// Model wraps a genai client. A fresh GenerativeModel is derived per call
// so concurrent calls never share request configuration.
type Model struct {
	client *genai.Client
	opts   Options
}

// NewModel creates a genai client authenticated with opts.APIKey.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := Options{Model: "gemini-1.5-flash", Temperature: 0.7}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.APIKey == "" {
		return nil, errors.New("gemini api key not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// Close releases the underlying client.
func (m *Model) Close() error { return m.client.Close() }

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	ctx, cancel := model.WithTimeout(ctx, req)
	defer cancel()

	gm := m.client.GenerativeModel(req.ModelOrDefault(m.opts.Model))
	configure(gm, req, m.opts.Temperature)

	resp, err := gm.GenerateContent(ctx, genai.Text(req.Input))
	if err != nil {
		return nil, model.WrapError(ctx, provider, statusCode(err), fmt.Errorf("failed to generate content: %w", err))
	}

	return convertResponse(resp, req.Handoffs)
}

func configure(gm *genai.GenerativeModel, req model.Request, temperature float32) {
	gm.SetTemperature(temperature)

	if req.Instructions != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.Instructions)}}
	}

	if req.Schema != nil {
		gm.ResponseMIMEType = "application/json"
		gm.ResponseSchema = toGenaiSchema(req.Schema)
	}

	if len(req.Handoffs) > 0 {
		defs := model.HandoffTools(req.Handoffs)
		decls := make([]*genai.FunctionDeclaration, 0, len(defs))

		for _, def := range defs {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        def.Name,
				Description: def.Description,
			})
		}

		gm.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
}

// toGenaiSchema converts an output schema to genai's schema representation.
func toGenaiSchema(s *schema.Schema) *genai.Schema {
	out := &genai.Schema{
		Type:        genai.TypeObject,
		Description: s.Description,
		Properties:  make(map[string]*genai.Schema, len(s.Fields)),
	}

	for _, f := range s.Fields {
		prop := &genai.Schema{Type: genaiType(f.Type), Description: f.Description}
		if f.Type == schema.TypeArray && f.Items != "" {
			prop.Items = &genai.Schema{Type: genaiType(f.Items)}
		}

		out.Properties[f.Name] = prop

		if f.Required {
			out.Required = append(out.Required, f.Name)
		}
	}

	return out
}

func genaiType(t schema.Type) genai.Type {
	switch t {
	case schema.TypeString:
		return genai.TypeString
	case schema.TypeInteger:
		return genai.TypeInteger
	case schema.TypeNumber:
		return genai.TypeNumber
	case schema.TypeBoolean:
		return genai.TypeBoolean
	case schema.TypeArray:
		return genai.TypeArray
	case schema.TypeObject:
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func convertResponse(resp *genai.GenerateContentResponse, handoffs []model.HandoffOption) (*model.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, model.WrapError(context.Background(), provider, 0, errors.New("received an empty response from gemini"))
	}

	cand := resp.Candidates[0]

	var (
		text  strings.Builder
		tools []string
	)

	for _, part := range cand.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			tools = append(tools, v.Name)
		case *genai.FunctionCall:
			tools = append(tools, v.Name)
		}
	}

	out := &model.Response{
		Text:         text.String(),
		Handoffs:     model.ResolveHandoffs(tools, handoffs),
		FinishReason: strings.ToLower(strings.TrimPrefix(cand.FinishReason.String(), "FinishReason")),
	}

	if um := resp.UsageMetadata; um != nil {
		out.Usage = &model.Usage{
			PromptTokens:     int(um.PromptTokenCount),
			CompletionTokens: int(um.CandidatesTokenCount),
			TotalTokens:      int(um.TotalTokenCount),
		}
	}

	return out, nil
}

// statusCode extracts an HTTP status from REST or gRPC flavoured errors.
func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}

	var aerr *apierror.APIError
	if !errors.As(err, &aerr) {
		return 0
	}

	if code := aerr.HTTPCode(); code > 0 {
		return code
	}

	if st := aerr.GRPCStatus(); st != nil {
		switch st.Code() {
		case codes.ResourceExhausted:
			return http.StatusTooManyRequests
		case codes.Unavailable:
			return http.StatusServiceUnavailable
		case codes.Internal, codes.Unknown:
			return http.StatusInternalServerError
		case codes.DeadlineExceeded:
			return http.StatusGatewayTimeout
		case codes.InvalidArgument:
			return http.StatusBadRequest
		case codes.PermissionDenied:
			return http.StatusForbidden
		case codes.Unauthenticated:
			return http.StatusUnauthorized
		}
	}

	return 0
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:           m.opts.Model,
		Provider:       provider,
		SupportsTools:  true,
		SupportsSchema: true,
	}
}
