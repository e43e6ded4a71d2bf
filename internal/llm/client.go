// Package llm provides the LLM client interface, a Bedrock (Claude)
// implementation grounded on the teacher's BedrockAgent
// (internal/agent/bedrock_agent.go in the teacher repository), and the LLM
// Decision Parser (C5, spec.md §4.5).
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/sony/gobreaker"

	"github.com/dimfeld/ashford/internal/prompt"
)

// Response is a raw model turn: text output plus the structured tool-call
// payload, when the model used one, plus usage telemetry.
type Response struct {
	Text         string
	ToolCallJSON json.RawMessage // non-nil iff the model called record_decision
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
}

// Client is the LLM boundary the Classify Orchestrator (C7) calls through.
// Kept as an interface, per the "LLM tool calling" design note, so both a
// Bedrock- and an OpenAI-style implementation sit behind the same contract.
type Client interface {
	Classify(ctx context.Context, p prompt.Prompt) (*Response, error)
}

const recordDecisionTool = "record_decision"

// decisionToolSchema is the tool-call contract the system prompt asks the
// model to honor; its shape matches the §6 decision contract exactly.
var decisionToolSchema = map[string]interface{}{
	"name":        recordDecisionTool,
	"description": "Record the classification decision for this message.",
	"input_schema": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"message_ref":  map[string]interface{}{"type": "object"},
			"decision":     map[string]interface{}{"type": "object"},
			"explanations": map[string]interface{}{"type": "object"},
			"undo_hint":    map[string]interface{}{"type": "object"},
		},
		"required": []string{"message_ref", "decision", "undo_hint"},
	},
}

// BedrockClient calls Anthropic Claude models via AWS Bedrock's InvokeModel
// API (Anthropic messages request body), wrapped in a
// gobreaker.CircuitBreaker so a sustained Bedrock outage
// trips open instead of piling up retrying job-queue workers.
type BedrockClient struct {
	client      *bedrockruntime.Client
	modelID     string
	temperature float64
	maxTokens   int
	breaker     *gobreaker.CircuitBreaker
}

// NewBedrockClient builds a BedrockClient for modelID in region, loading
// AWS credentials from the default provider chain (env, shared config,
// instance role), matching the teacher's NewBedrockAgent.
func NewBedrockClient(ctx context.Context, modelID, region string, temperature float64, maxTokens int) (*BedrockClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("llm: load aws config: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bedrock-classify",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &BedrockClient{
		client:      bedrockruntime.NewFromConfig(cfg),
		modelID:     modelID,
		temperature: temperature,
		maxTokens:   maxTokens,
		breaker:     breaker,
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	Temperature      float64            `json:"temperature,omitempty"`
	Tools            []interface{}      `json:"tools,omitempty"`
}

type anthropicContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Classify sends p to Claude with the record_decision tool offered,
// returning the tool-call payload when the model used it, or the raw text
// otherwise (the parser falls back to JSON extraction in that case).
func (c *BedrockClient) Classify(ctx context.Context, p prompt.Prompt) (*Response, error) {
	start := time.Now()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req := anthropicRequest{
			AnthropicVersion: "bedrock-2023-05-31",
			MaxTokens:        c.maxTokens,
			System:           p.System,
			Temperature:      c.temperature,
			Messages:         []anthropicMessage{{Role: "user", Content: p.User}},
			Tools:            []interface{}{decisionToolSchema},
		}
		body, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}

		out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(c.modelID),
			ContentType: aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return nil, err
		}

		var resp anthropicResponse
		if err := json.Unmarshal(out.Body, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("llm: bedrock invoke: %w", err)
	}

	resp := result.(*anthropicResponse)
	r := &Response{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "tool_use":
			if block.Name == recordDecisionTool {
				r.ToolCallJSON = block.Input
			}
		case "text":
			r.Text += block.Text
		}
	}
	return r, nil
}
