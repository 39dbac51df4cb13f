package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"
)

const (
	defaultAnthropicURL   = "https://api.anthropic.com"
	defaultAnthropicModel = "claude-haiku-4-5"
	anthropicVersion      = "2023-06-01"

	defaultOpenAIURL   = "https://api.openai.com"
	defaultOpenAIModel = "gpt-4o-mini"

	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2"

	maxTokens = 1024
)

// Anthropic streams names from the Messages API.
type Anthropic struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

func (a *Anthropic) Generate(ctx context.Context, description string, count int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		body := map[string]any{
			"model":      or(a.Model, defaultAnthropicModel),
			"max_tokens": maxTokens,
			"stream":     true,
			"system":     systemPrompt,
			"messages": []chatMessage{
				{Role: "user", Content: userPrompt(description, ClampCount(count))},
			},
		}
		h := http.Header{}
		h.Set("x-api-key", a.APIKey)
		h.Set("anthropic-version", anthropicVersion)

		resp, err := postJSON(ctx, client(a.HTTPClient), strings.TrimRight(or(a.BaseURL, defaultAnthropicURL), "/")+"/v1/messages", h, body)
		if err != nil {
			yield("", fmt.Errorf("anthropic: %w", err))
			return
		}
		defer resp.Body.Close()
		streamNames(ctx, resp.Body, anthropicFragment, yield)
	}
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

func anthropicFragment(line []byte) string {
	data := sseData(line)
	if len(data) == 0 {
		return ""
	}
	var ev anthropicEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ""
	}
	if ev.Type != "content_block_delta" || ev.Delta.Type != "text_delta" {
		return ""
	}
	return ev.Delta.Text
}

// OpenAI streams names from the chat completions API.
type OpenAI struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

func (o *OpenAI) Generate(ctx context.Context, description string, count int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		body := map[string]any{
			"model":      or(o.Model, defaultOpenAIModel),
			"stream":     true,
			"max_tokens": maxTokens,
			"messages":   chatMessages(description, count),
		}
		h := http.Header{}
		h.Set("authorization", "Bearer "+o.APIKey)

		resp, err := postJSON(ctx, client(o.HTTPClient), strings.TrimRight(or(o.BaseURL, defaultOpenAIURL), "/")+"/v1/chat/completions", h, body)
		if err != nil {
			yield("", fmt.Errorf("openai: %w", err))
			return
		}
		defer resp.Body.Close()
		streamNames(ctx, resp.Body, openAIFragment, yield)
	}
}

type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func openAIFragment(line []byte) string {
	data := sseData(line)
	if len(data) == 0 || string(data) == "[DONE]" {
		return ""
	}
	var c openAIChunk
	if err := json.Unmarshal(data, &c); err != nil || len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// Ollama streams names from a local Ollama server's /api/chat (NDJSON).
type Ollama struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

func (o *Ollama) Generate(ctx context.Context, description string, count int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		body := map[string]any{
			"model":    or(o.Model, defaultOllamaModel),
			"stream":   true,
			"messages": chatMessages(description, count),
		}

		resp, err := postJSON(ctx, client(o.HTTPClient), strings.TrimRight(or(o.BaseURL, defaultOllamaURL), "/")+"/api/chat", nil, body)
		if err != nil {
			yield("", fmt.Errorf("ollama: %w", err))
			return
		}
		defer resp.Body.Close()
		streamNames(ctx, resp.Body, ollamaFragment, yield)
	}
}

type ollamaChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func ollamaFragment(line []byte) string {
	if len(line) == 0 {
		return ""
	}
	var c ollamaChunk
	if err := json.Unmarshal(line, &c); err != nil {
		return ""
	}
	return c.Message.Content
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func client(hc *http.Client) *http.Client {
	if hc == nil {
		return http.DefaultClient
	}
	return hc
}
