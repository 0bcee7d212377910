package ai

import (
	"context"
	"fmt"
	"net/http"
)

const defaultOllamaModel = "qwen2.5:14b"

// OllamaProvider implements Provider for self-hosted Ollama through its
// native /api/chat endpoint.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

// OllamaOption configures an OllamaProvider.
type OllamaOption func(*OllamaProvider)

// WithOllamaHTTPClient sets a custom HTTP client.
func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(p *OllamaProvider) {
		p.client = client
	}
}

// WithOllamaModel sets the model used when a request names none.
func WithOllamaModel(model string) OllamaOption {
	return func(p *OllamaProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(baseURL string, opts ...OllamaOption) *OllamaProvider {
	p := &OllamaProvider{
		baseURL: baseURL,
		model:   defaultOllamaModel,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	in := ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
	}
	if in.Model == "" {
		in.Model = p.model
	}
	if req.JSON {
		in.Format = "json"
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		in.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}

	var out ollamaChatResponse
	if err := p.endpoint().postJSON(ctx, "/api/chat", in, &out); err != nil {
		return CompletionResponse{}, err
	}
	if out.Message.Content == "" {
		return CompletionResponse{}, fmt.Errorf("empty message in response")
	}

	return CompletionResponse{
		Content:      out.Message.Content,
		Model:        out.Model,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
	}, nil
}

func (p *OllamaProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: p.model, Name: p.model, MaxTokens: 32768, Description: "Self-hosted model via Ollama"},
	}
}

// HealthCheck lists the local models, which fails fast when the daemon is
// down.
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	return p.endpoint().probe(ctx, "/api/tags")
}

func (p *OllamaProvider) endpoint() endpoint {
	return endpoint{provider: "ollama", baseURL: p.baseURL, client: p.client}
}
