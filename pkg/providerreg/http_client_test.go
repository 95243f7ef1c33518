package providerreg

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

// newInmemoryClient wires an httpClient to an in-process fasthttp
// server via fasthttputil.InmemoryListener, avoiding any real
// network socket.
func newInmemoryClient(t *testing.T, cfg Config, builder requestBuilder, handler fasthttp.RequestHandler) *httpClient {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	cfg.Endpoint = "http://inmemory"
	c := newHTTPClient(cfg, builder)
	c.hc.Dial = func(string) (net.Conn, error) { return ln.Dial() }
	return c
}

func TestHTTPClientCompleteOpenAIStyle(t *testing.T) {
	cfg := Config{ProviderName: "oa", ProviderType: TypeOpenAI, Model: "gpt-test", APIKey: "k"}
	client := newInmemoryClient(t, cfg, openAIRequestBuilder{}, func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{
			"model": "gpt-test",
			"choices": [{"message": {"content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4}
		}`)
	})

	result, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Content)
	assert.Equal(t, "stop", result.FinishReason)
	assert.Equal(t, 4, result.Usage.TotalTokens)
}

func TestHTTPClientCompleteMissingAPIKey(t *testing.T) {
	cfg := Config{ProviderName: "oa", ProviderType: TypeOpenAI, Model: "gpt-test"}
	client := newInmemoryClient(t, cfg, openAIRequestBuilder{}, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
	})

	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CompletionOptions{})
	require.Error(t, err)
}

func TestHTTPClientCompleteRateLimited(t *testing.T) {
	cfg := Config{ProviderName: "oa", ProviderType: TypeOpenAI, Model: "gpt-test", APIKey: "k"}
	client := newInmemoryClient(t, cfg, openAIRequestBuilder{}, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
	})

	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, CompletionOptions{})
	require.Error(t, err)
}

func TestHTTPClientListModelsOllamaStyle(t *testing.T) {
	cfg := Config{ProviderName: "ol", ProviderType: TypeOllama}
	client := newInmemoryClient(t, cfg, ollamaRequestBuilder{}, func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"models": [{"name": "llama3"}, {"name": "mistral"}]}`)
	})

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3", "mistral"}, models)
}

func TestHTTPClientCompleteAnthropicStyleSeparatesSystemMessage(t *testing.T) {
	cfg := Config{ProviderName: "an", ProviderType: TypeAnthropic, Model: "claude-test", APIKey: "k"}
	var gotBody string
	client := newInmemoryClient(t, cfg, anthropicRequestBuilder{}, func(ctx *fasthttp.RequestCtx) {
		gotBody = string(ctx.PostBody())
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{
			"model": "claude-test",
			"content": [{"text": "hi there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 5, "output_tokens": 2}
		}`)
	})

	result, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hi"},
	}, CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.Content)
	assert.Equal(t, 7, result.Usage.TotalTokens)
	assert.Contains(t, gotBody, `"system":"be terse"`)
	assert.NotContains(t, gotBody, `"role":"system"`)
}
