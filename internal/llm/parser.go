package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dimfeld/ashford/internal/model"
)

// ParseErrorKind enumerates C5's typed parse failures (spec §4.5).
type ParseErrorKind string

const (
	ErrNoToolCall               ParseErrorKind = "NoToolCall"
	ErrWrongToolName            ParseErrorKind = "WrongToolName"
	ErrNoJsonFound              ParseErrorKind = "NoJsonFound"
	ErrMalformedJson            ParseErrorKind = "MalformedJson"
	ErrSchema                   ParseErrorKind = "Schema"
	ErrSemanticEmptyField       ParseErrorKind = "Semantic.EmptyField"
	ErrSemanticInvalidConfidence ParseErrorKind = "Semantic.InvalidConfidence"
	ErrSemanticInvalidAltConfidence ParseErrorKind = "Semantic.InvalidAlternativeConfidence"
)

// ParseError is C5's typed failure, carrying the kind plus a human message.
type ParseError struct {
	Kind ParseErrorKind
	Msg  string
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

// rawDecision mirrors the §6 decision contract's wire shape for unmarshal.
type rawDecision struct {
	MessageRef struct {
		Provider  string `json:"provider"`
		AccountID string `json:"account_id"`
		ThreadID  string `json:"thread_id"`
		MessageID string `json:"message_id"`
	} `json:"message_ref"`
	Decision struct {
		Action        string          `json:"action"`
		Parameters    json.RawMessage `json:"parameters"`
		Confidence    float64         `json:"confidence"`
		NeedsApproval bool            `json:"needs_approval"`
		Rationale     string          `json:"rationale"`
	} `json:"decision"`
	Explanations struct {
		SalientFeatures        []string `json:"salient_features"`
		MatchedDirections      []string `json:"matched_directions"`
		ConsideredAlternatives []struct {
			Action     string  `json:"action"`
			Confidence float64 `json:"confidence"`
			WhyNot     string  `json:"why_not"`
		} `json:"considered_alternatives"`
	} `json:"explanations"`
	UndoHint struct {
		InverseAction     string          `json:"inverse_action"`
		InverseParameters json.RawMessage `json:"inverse_parameters"`
	} `json:"undo_hint"`
}

// schema is the compiled JSON Schema enforcing the wire contract's required
// fields at the structural level, ahead of the semantic checks below.
var schema = mustCompileSchema()

const decisionSchemaJSON = `{
	"type": "object",
	"required": ["message_ref", "decision", "undo_hint"],
	"properties": {
		"message_ref": {
			"type": "object",
			"required": ["provider", "account_id", "thread_id", "message_id"]
		},
		"decision": {
			"type": "object",
			"required": ["action", "confidence", "rationale"]
		},
		"undo_hint": {
			"type": "object",
			"required": ["inverse_action"]
		}
	}
}`

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("decision.json", strings.NewReader(decisionSchemaJSON)); err != nil {
		panic(fmt.Sprintf("llm: invalid embedded schema: %v", err))
	}
	return compiler.MustCompile("decision.json")
}

// Parse implements C5: prefer the tool-call payload; fall back to
// extracting the first balanced-brace JSON object (including from fenced
// code blocks) out of free text.
func Parse(resp *Response) (*model.DecisionOutput, *ParseError) {
	var raw json.RawMessage
	switch {
	case resp.ToolCallJSON != nil:
		raw = resp.ToolCallJSON
	default:
		extracted, err := extractJSON(resp.Text)
		if err != nil {
			return nil, err
		}
		raw = extracted
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &ParseError{Kind: ErrMalformedJson, Msg: err.Error()}
	}
	if err := schema.Validate(v); err != nil {
		return nil, &ParseError{Kind: ErrSchema, Msg: err.Error()}
	}

	var d rawDecision
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, &ParseError{Kind: ErrMalformedJson, Msg: err.Error()}
	}

	if d.MessageRef.Provider == "" || d.MessageRef.AccountID == "" || d.MessageRef.ThreadID == "" || d.MessageRef.MessageID == "" {
		return nil, &ParseError{Kind: ErrSemanticEmptyField, Msg: "message_ref fields must be non-empty"}
	}
	if !model.ValidActionTypes[model.ActionType(d.Decision.Action)] {
		return nil, &ParseError{Kind: ErrSemanticEmptyField, Msg: fmt.Sprintf("unknown action %q", d.Decision.Action)}
	}
	if d.Decision.Confidence < 0 || d.Decision.Confidence > 1 {
		return nil, &ParseError{Kind: ErrSemanticInvalidConfidence, Msg: fmt.Sprintf("confidence %.3f out of range", d.Decision.Confidence)}
	}
	if d.Decision.Rationale == "" {
		return nil, &ParseError{Kind: ErrSemanticEmptyField, Msg: "rationale must be non-empty"}
	}
	if !model.ValidInverseActionTypes[model.InverseActionType(d.UndoHint.InverseAction)] {
		return nil, &ParseError{Kind: ErrSemanticEmptyField, Msg: fmt.Sprintf("unknown inverse_action %q", d.UndoHint.InverseAction)}
	}

	alternatives := make([]model.Alternative, 0, len(d.Explanations.ConsideredAlternatives))
	for _, a := range d.Explanations.ConsideredAlternatives {
		if a.Confidence < 0 || a.Confidence > 1 {
			return nil, &ParseError{Kind: ErrSemanticInvalidAltConfidence, Msg: fmt.Sprintf("alternative %q confidence %.3f out of range", a.Action, a.Confidence)}
		}
		alternatives = append(alternatives, model.Alternative{
			Action:     model.ActionType(a.Action),
			Confidence: a.Confidence,
			WhyNot:     a.WhyNot,
		})
	}

	return &model.DecisionOutput{
		MessageRef: model.MessageRef{
			Provider:  d.MessageRef.Provider,
			AccountID: d.MessageRef.AccountID,
			ThreadID:  d.MessageRef.ThreadID,
			MessageID: d.MessageRef.MessageID,
		},
		Source:        model.SourceLLM,
		ActionType:    model.ActionType(d.Decision.Action),
		Parameters:    d.Decision.Parameters,
		Confidence:    d.Decision.Confidence,
		NeedsApproval: d.Decision.NeedsApproval,
		Rationale:     d.Decision.Rationale,
		Explanations: model.Explanations{
			SalientFeatures:        d.Explanations.SalientFeatures,
			MatchedDirections:      d.Explanations.MatchedDirections,
			ConsideredAlternatives: alternatives,
		},
		UndoHint: model.UndoHint{
			InverseAction:     model.InverseActionType(d.UndoHint.InverseAction),
			InverseParameters: d.UndoHint.InverseParameters,
		},
		Telemetry: model.Telemetry{
			LatencyMs:    resp.LatencyMs,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		},
	}, nil
}

// extractJSON finds the first balanced-brace JSON object in text, stripping
// a surrounding fenced code block if present.
func extractJSON(text string) (json.RawMessage, *ParseError) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, &ParseError{Kind: ErrNoJsonFound, Msg: "no '{' in response text"}
	}

	for start >= 0 {
		depth, inString, escaped, end := 0, false, false, -1
		for i := start; i < len(text) && end < 0; i++ {
			c := text[i]
			switch {
			case escaped:
				escaped = false
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
				// inside a string, braces don't count
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					end = i
				}
			}
		}
		if end < 0 {
			break
		}
		// A balanced group that is not JSON (e.g. "{ not json }" in prose)
		// is skipped; the search resumes at the next '{'.
		if json.Valid([]byte(text[start : end+1])) {
			return json.RawMessage(text[start : end+1]), nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, &ParseError{Kind: ErrNoJsonFound, Msg: "no balanced JSON object in response text"}
}

// RequireToolCall enforces the "prefer tool call" path: if the provider
// supports tool calling but returned no tool_use block named
// record_decision, that is NoToolCall rather than falling through to JSON
// extraction silently. It never returns WrongToolName.
func RequireToolCall(resp *Response, toolCallingSupported bool) *ParseError {
	if !toolCallingSupported {
		return nil
	}
	if resp.ToolCallJSON == nil {
		return &ParseError{Kind: ErrNoToolCall, Msg: "model did not call record_decision"}
	}
	return nil
}
