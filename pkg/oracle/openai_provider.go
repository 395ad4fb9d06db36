package oracle

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"tradecore/pkg/errs"
)

// OpenAIProvider is the default Provider (§6's "Oracle adapter"),
// talking to any OpenAI-compatible completions endpoint.
type OpenAIProvider struct {
	name       string
	client     *openai.Client
	costPerTok float64 // approximate $/token, used to populate Meta.Cost
}

// NewOpenAIProvider builds a provider bound to one named model
// endpoint. baseURL may point at a compatible gateway; apiKey is never
// logged.
func NewOpenAIProvider(name, apiKey, baseURL string, costPerTok float64, httpClient *http.Client) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{name: name, client: &client, costPerTok: costPerTok}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Analyze(ctx context.Context, prompt string, maxTokens int, temperature float64, model string) (string, Meta, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}

	start := time.Now()
	completion, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return "", Meta{}, classifyOpenAIError(p.name, err)
	}
	if len(completion.Choices) == 0 {
		return "", Meta{}, errs.New(errs.KindTransient, "oracle.openai", "empty completion, no choices returned")
	}

	text := completion.Choices[0].Message.Content
	tokensIn := int(completion.Usage.PromptTokens)
	tokensOut := int(completion.Usage.CompletionTokens)
	meta := Meta{
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Cost:      float64(tokensIn+tokensOut) * p.costPerTok,
		Latency:   latency,
		Provider:  p.name,
	}
	return text, meta, nil
}

// classify maps an openai-go error to the taxonomy §4.4/§7 require:
// RateLimited and auth failures trigger oracle fallback; 400 and 404
// are permanent so the fallback chain doesn't retry a malformed
// request against every configured provider; other HTTP errors and
// non-HTTP failures are transient.
func classifyOpenAIError(provider string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return errs.Wrap(errs.KindTransient, "oracle."+provider, "rate limited", err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return errs.Wrap(errs.KindAuthFailure, "oracle."+provider, "auth failure", err)
		case http.StatusBadRequest, http.StatusNotFound:
			return errs.Wrap(errs.KindPermanent, "oracle."+provider, "bad request", err)
		default:
			return errs.Wrap(errs.KindTransient, "oracle."+provider, "http error", err)
		}
	}
	return errs.Wrap(errs.KindTransient, "oracle."+provider, "request failed", err)
}
