package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dimfeld/ashford/internal/prompt"
)

// OpenAIClient calls an OpenAI-compatible chat completions endpoint with
// the record_decision function offered as a tool, grounded on the
// teacher's OpenAIAgent.callOpenAI (internal/agent/openai_agent.go in the
// teacher repository): net/http directly, no SDK, because the teacher
// never imports one for this provider either.
type OpenAIClient struct {
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
}

// NewOpenAIClient builds an OpenAIClient for model.
func NewOpenAIClient(apiKey, model string, temperature float64, maxTokens int) *OpenAIClient {
	return &OpenAIClient{
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "openai-classify",
			Timeout:  30 * time.Second,
			Interval: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAITool struct {
	Type     string                 `json:"type"`
	Function map[string]interface{} `json:"function"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Tools       []openAITool    `json:"tools,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string            `json:"content"`
			ToolCalls []openAIToolCall  `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Classify sends p to the chat completions endpoint with record_decision
// offered as a function tool.
func (c *OpenAIClient) Classify(ctx context.Context, p prompt.Prompt) (*Response, error) {
	start := time.Now()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req := openAIRequest{
			Model:       c.model,
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
			Messages: []openAIMessage{
				{Role: "system", Content: p.System},
				{Role: "user", Content: p.User},
			},
			Tools: []openAITool{{
				Type: "function",
				Function: map[string]interface{}{
					"name":        recordDecisionTool,
					"description": decisionToolSchema["description"],
					"parameters":  decisionToolSchema["input_schema"],
				},
			}},
		}

		body, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		var out openAIResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("llm: decode openai response: %w (body: %s)", err, string(raw))
		}
		if out.Error != nil {
			return nil, fmt.Errorf("llm: openai error: %s", out.Error.Message)
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}

	out := result.(*openAIResponse)
	r := &Response{
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
	if len(out.Choices) == 0 {
		return r, nil
	}
	msg := out.Choices[0].Message
	r.Text = msg.Content
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == recordDecisionTool {
			r.ToolCallJSON = json.RawMessage(tc.Function.Arguments)
			break
		}
	}
	return r, nil
}
