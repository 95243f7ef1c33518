package providerreg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/codeready-toolchain/ctxengine/pkg/ctxerr"
)

// requestBuilder encodes/decodes one provider type's wire format over
// a shared fasthttp transport. Keeping the wire shape behind this
// small interface is what lets httpClient stay provider-agnostic.
type requestBuilder interface {
	// completionPath returns the endpoint path appended to the
	// provider's configured base endpoint.
	completionPath() string
	// buildBody marshals messages/options/model into the provider's
	// request JSON.
	buildBody(cfg Config, messages []Message, opts CompletionOptions) ([]byte, error)
	// applyAuth sets auth headers for the given API key.
	applyAuth(req *fasthttp.Request, apiKey string)
	// parseResponse decodes a successful response body into the
	// normalized CompletionResult shape.
	parseResponse(body []byte) (*CompletionResult, error)
	// modelsPath returns the endpoint path used to list models.
	modelsPath() string
	parseModels(body []byte) ([]string, error)
}

// httpClient is a Client implemented over a provider's HTTP API using
// fasthttp, following the request/response shape of the anthropic
// HTTP provider (other_examples digitallysavvy-go-ai) adapted to a
// single shared transport instead of per-provider SDK types.
type httpClient struct {
	cfg     Config
	builder requestBuilder
	hc      *fasthttp.Client
}

func newHTTPClient(cfg Config, builder requestBuilder) *httpClient {
	return &httpClient{
		cfg:     cfg,
		builder: builder,
		hc: &fasthttp.Client{
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (c *httpClient) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (*CompletionResult, error) {
	body, err := c.builder.buildBody(c.cfg, messages, opts)
	if err != nil {
		return nil, ctxerr.Wrap(ctxerr.KindProviderRequestFailed, err, "provider %q: building request", c.cfg.ProviderName)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.Endpoint + c.builder.completionPath())
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	apiKey := c.cfg.ResolveAPIKey()
	if apiKey == "" {
		return nil, ctxerr.New(ctxerr.KindProviderAuthFailed, "provider %q: no API key configured", c.cfg.ProviderName)
	}
	c.builder.applyAuth(req, apiKey)
	req.SetBody(body)

	if err := c.doWithContext(ctx, req, resp); err != nil {
		return nil, err
	}

	if resp.StatusCode() == fasthttp.StatusTooManyRequests {
		return nil, ctxerr.New(ctxerr.KindProviderRateLimit, "provider %q: rate limited", c.cfg.ProviderName)
	}
	if resp.StatusCode() == fasthttp.StatusUnauthorized || resp.StatusCode() == fasthttp.StatusForbidden {
		return nil, ctxerr.New(ctxerr.KindProviderAuthFailed, "provider %q: auth failed (status %d)", c.cfg.ProviderName, resp.StatusCode())
	}
	if resp.StatusCode() == fasthttp.StatusNotFound {
		return nil, ctxerr.New(ctxerr.KindProviderModelNotFound, "provider %q: model %q not found", c.cfg.ProviderName, c.cfg.Model)
	}
	if resp.StatusCode() >= 400 {
		return nil, ctxerr.New(ctxerr.KindProviderRequestFailed, "provider %q: request failed (status %d): %s", c.cfg.ProviderName, resp.StatusCode(), resp.Body())
	}

	result, err := c.builder.parseResponse(resp.Body())
	if err != nil {
		return nil, ctxerr.Wrap(ctxerr.KindProviderError, err, "provider %q: decoding response", c.cfg.ProviderName)
	}
	if result.Model == "" {
		result.Model = c.cfg.Model
	}
	return result, nil
}

func (c *httpClient) ListModels(ctx context.Context) ([]string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.Endpoint + c.builder.modelsPath())
	req.Header.SetMethod(fasthttp.MethodGet)
	c.builder.applyAuth(req, c.cfg.ResolveAPIKey())

	if err := c.doWithContext(ctx, req, resp); err != nil {
		return nil, err
	}
	if resp.StatusCode() >= 400 {
		return nil, ctxerr.New(ctxerr.KindProviderRequestFailed, "provider %q: list_models failed (status %d)", c.cfg.ProviderName, resp.StatusCode())
	}
	return c.builder.parseModels(resp.Body())
}

func (c *httpClient) doWithContext(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	deadline, ok := ctx.Deadline()
	var err error
	if ok {
		err = c.hc.DoDeadline(req, resp, deadline)
	} else {
		err = c.hc.Do(req, resp)
	}
	if err != nil {
		return ctxerr.Wrap(ctxerr.KindProviderRequestFailed, err, "provider %q: request failed", c.cfg.ProviderName)
	}
	return nil
}

// --- OpenAI-like wire format ---

type openAIRequestBuilder struct{}

func (openAIRequestBuilder) completionPath() string { return "/v1/chat/completions" }
func (openAIRequestBuilder) modelsPath() string     { return "/v1/models" }

func (openAIRequestBuilder) buildBody(cfg Config, messages []Message, opts CompletionOptions) ([]byte, error) {
	type oaiMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	payload := struct {
		Model            string       `json:"model"`
		Messages         []oaiMessage `json:"messages"`
		Temperature      float64      `json:"temperature,omitempty"`
		MaxTokens        int          `json:"max_tokens,omitempty"`
		TopP             float64      `json:"top_p,omitempty"`
		FrequencyPenalty float64      `json:"frequency_penalty,omitempty"`
		PresencePenalty  float64      `json:"presence_penalty,omitempty"`
		Stop             []string     `json:"stop,omitempty"`
	}{
		Model: cfg.Model, Temperature: opts.Temperature, MaxTokens: opts.MaxTokens,
		TopP: opts.TopP, FrequencyPenalty: opts.FrequencyPenalty, PresencePenalty: opts.PresencePenalty, Stop: opts.Stop,
	}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, oaiMessage{Role: m.Role, Content: m.Content})
	}
	return json.Marshal(payload)
}

func (openAIRequestBuilder) applyAuth(req *fasthttp.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
}

func (openAIRequestBuilder) parseResponse(body []byte) (*CompletionResult, error) {
	var decoded struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding openai-style response: %w", err)
	}
	result := &CompletionResult{
		Model: decoded.Model,
		Usage: Usage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		},
	}
	if len(decoded.Choices) > 0 {
		result.Content = decoded.Choices[0].Message.Content
		result.FinishReason = decoded.Choices[0].FinishReason
	}
	return result, nil
}

func (openAIRequestBuilder) parseModels(body []byte) ([]string, error) {
	var decoded struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding openai-style model list: %w", err)
	}
	out := make([]string, len(decoded.Data))
	for i, m := range decoded.Data {
		out[i] = m.ID
	}
	return out, nil
}

// --- Anthropic-like wire format ---

type anthropicRequestBuilder struct{}

func (anthropicRequestBuilder) completionPath() string { return "/v1/messages" }
func (anthropicRequestBuilder) modelsPath() string     { return "/v1/models" }

func (anthropicRequestBuilder) buildBody(cfg Config, messages []Message, opts CompletionOptions) ([]byte, error) {
	type anthMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	var system string
	var rest []anthMessage
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = m.Content
			continue
		}
		rest = append(rest, anthMessage{Role: m.Role, Content: m.Content})
	}
	payload := struct {
		Model     string        `json:"model"`
		System    string        `json:"system,omitempty"`
		Messages  []anthMessage `json:"messages"`
		MaxTokens int           `json:"max_tokens"`
	}{Model: cfg.Model, System: system, Messages: rest, MaxTokens: opts.MaxTokens}
	if payload.MaxTokens == 0 {
		payload.MaxTokens = 4096
	}
	return json.Marshal(payload)
}

func (anthropicRequestBuilder) applyAuth(req *fasthttp.Request, apiKey string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
}

func (anthropicRequestBuilder) parseResponse(body []byte) (*CompletionResult, error) {
	var decoded struct {
		Model   string `json:"model"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding anthropic-style response: %w", err)
	}
	var text string
	for _, c := range decoded.Content {
		text += c.Text
	}
	return &CompletionResult{
		Content:      text,
		Model:        decoded.Model,
		FinishReason: decoded.StopReason,
		Usage: Usage{
			PromptTokens:     decoded.Usage.InputTokens,
			CompletionTokens: decoded.Usage.OutputTokens,
			TotalTokens:      decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
		},
	}, nil
}

func (anthropicRequestBuilder) parseModels(body []byte) ([]string, error) {
	var decoded struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding anthropic-style model list: %w", err)
	}
	out := make([]string, len(decoded.Data))
	for i, m := range decoded.Data {
		out[i] = m.ID
	}
	return out, nil
}

// --- Ollama-like wire format ---

type ollamaRequestBuilder struct{}

func (ollamaRequestBuilder) completionPath() string { return "/api/chat" }
func (ollamaRequestBuilder) modelsPath() string     { return "/api/tags" }

func (ollamaRequestBuilder) buildBody(cfg Config, messages []Message, opts CompletionOptions) ([]byte, error) {
	type ollMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	payload := struct {
		Model    string       `json:"model"`
		Messages []ollMessage `json:"messages"`
		Stream   bool         `json:"stream"`
	}{Model: cfg.Model, Stream: false}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, ollMessage{Role: m.Role, Content: m.Content})
	}
	return json.Marshal(payload)
}

func (ollamaRequestBuilder) applyAuth(req *fasthttp.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func (ollamaRequestBuilder) parseResponse(body []byte) (*CompletionResult, error) {
	var decoded struct {
		Model   string `json:"model"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		DoneReason string `json:"done_reason"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding ollama-style response: %w", err)
	}
	return &CompletionResult{
		Content:      decoded.Message.Content,
		Model:        decoded.Model,
		FinishReason: decoded.DoneReason,
	}, nil
}

func (ollamaRequestBuilder) parseModels(body []byte) ([]string, error) {
	var decoded struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding ollama-style model list: %w", err)
	}
	out := make([]string, len(decoded.Models))
	for i, m := range decoded.Models {
		out[i] = m.Name
	}
	return out, nil
}
