package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client *openai.Client
	params Params
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

// NewOpenAI builds a client for any OpenAI compatible endpoint. Extra headers are
// attached to every request (OpenRouter wants HTTP-Referer / X-Title, for example).
func NewOpenAI(apiKey, baseURL string, params Params, headers http.Header) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if len(headers) > 0 {
		config.HTTPClient = &http.Client{Transport: headerTransport{rt: http.DefaultTransport, headers: headers}}
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		params: params,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       c.params.Model,
		Messages:    oaMsgs,
		Temperature: c.params.Temperature,
		MaxTokens:   c.params.MaxTokens,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, &CompletionError{Provider: ProviderOpenAI, Err: err}
	}
	if len(resp.Choices) == 0 {
		return Response{}, &CompletionError{Provider: ProviderOpenAI, Err: errors.New("empty choices")}
	}

	return Response{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}
