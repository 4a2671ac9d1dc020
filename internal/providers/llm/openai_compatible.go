package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sandevgo/reliefdesk/internal/core"
)

type OpenAICompatible struct {
	baseProvider
	authHeader   string
	authPrefix   string
	extraHeaders map[string]string
	maxTokens    int
}

type OpenAICompatibleConfig struct {
	Name         string
	BaseURL      string
	APIKey       string
	Model        string
	AuthHeader   string // e.g., "Authorization"
	AuthPrefix   string // e.g., "Bearer "
	ExtraHeaders map[string]string
	MaxTokens    int
}

func NewOpenAICompatible(cfg OpenAICompatibleConfig) *OpenAICompatible {
	name := cfg.Name
	if name == "" {
		name = "openai-compatible"
	}
	return &OpenAICompatible{
		baseProvider: newBaseProvider(name, cfg.BaseURL, cfg.APIKey, cfg.Model),
		authHeader:   cfg.AuthHeader,
		authPrefix:   cfg.AuthPrefix,
		extraHeaders: cfg.ExtraHeaders,
		maxTokens:    cfg.MaxTokens,
	}
}

type openAIPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *openAIImage `json:"image_url,omitempty"`
}

type openAIImage struct {
	URL string `json:"url"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

func toOpenAIMessages(history []core.Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(history))
	for _, m := range history {
		if len(m.Images) == 0 {
			out = append(out, openAIMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := make([]openAIPart, 0, len(m.Images)+1)
		for _, img := range m.Images {
			parts = append(parts, openAIPart{Type: "image_url", ImageURL: &openAIImage{URL: dataURI(img)}})
		}
		if m.Content != "" {
			parts = append(parts, openAIPart{Type: "text", Text: m.Content})
		}
		out = append(out, openAIMessage{Role: m.Role, Content: parts})
	}
	return out
}

func (o *OpenAICompatible) headers() map[string]string {
	headers := make(map[string]string)
	if o.authHeader != "" && o.apiKey != "" {
		headers[o.authHeader] = o.authPrefix + o.apiKey
	}
	for k, v := range o.extraHeaders {
		headers[k] = v
	}
	return headers
}

func (o *OpenAICompatible) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	payload := map[string]any{
		"model":    o.model,
		"messages": toOpenAIMessages(history),
	}
	if o.maxTokens > 0 {
		payload["max_tokens"] = o.maxTokens
	}

	resp, err := o.doRequest(ctx, http.MethodPost, "/v1/chat/completions", payload, o.headers())
	if err != nil {
		return core.Message{}, err
	}
	defer resp.Body.Close()

	data, err := o.readBody(resp)
	if err != nil {
		return core.Message{}, err
	}
	return parseOpenAIResponse(data)
}

func parseOpenAIResponse(data []byte) (core.Message, error) {
	var result struct {
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return core.Message{}, fmt.Errorf("decode: %w", err)
	}
	if len(result.Choices) == 0 {
		return core.Message{}, fmt.Errorf("empty choices: %s", truncate(string(data), 300))
	}
	msg := result.Choices[0].Message
	return core.Message{Role: core.ChatAssistant, Content: msg.Content}, nil
}

// Models lists /v1/models, the shape shared by OpenAI, OpenRouter and most
// self-hosted gateways.
func (o *OpenAICompatible) Models(ctx context.Context) ([]core.Model, error) {
	resp, err := o.doRequest(ctx, http.MethodGet, "/v1/models", nil, o.headers())
	if err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}
	defer resp.Body.Close()

	data, err := o.readBody(resp)
	if err != nil {
		return nil, err
	}

	var apiResp struct {
		Data []struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			ContextLength int    `json:"context_length"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}

	models := make([]core.Model, 0, len(apiResp.Data))
	for _, m := range apiResp.Data {
		name := m.Name
		if name == "" {
			name = m.ID
		}
		models = append(models, core.Model{ID: m.ID, Name: name, ContextLength: m.ContextLength})
	}
	return models, nil
}
