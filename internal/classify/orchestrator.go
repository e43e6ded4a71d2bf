// Package classify implements the Classify Orchestrator (C7, spec.md §4.7):
// the handler registered for model.JobTypeClassify that ties the Rule
// Loader, condition-tree evaluator, Prompt Builder, LLM Client, and Safety
// Enforcer together, then persists exactly one Decision/Action pair and
// enqueues the matching execution job. Grounded on the teacher's
// CampaignProcessor.Process (internal/worker/campaign_processor.go in the
// teacher repository): one handler method, injected collaborators, one
// persistence step (plain store calls with no transaction around them).
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dimfeld/ashford/internal/llm"
	"github.com/dimfeld/ashford/internal/logging"
	"github.com/dimfeld/ashford/internal/metrics"
	"github.com/dimfeld/ashford/internal/model"
	"github.com/dimfeld/ashford/internal/prompt"
	"github.com/dimfeld/ashford/internal/rules"
	"github.com/dimfeld/ashford/internal/safety"
	"github.com/dimfeld/ashford/internal/store"
	"github.com/dimfeld/ashford/internal/tracing"
)

// Orchestrator runs one classification end to end.
type Orchestrator struct {
	store        *store.Store
	loader       *rules.Loader
	promptBuilder *prompt.Builder
	llmClient    llm.Client
	policy       safety.PolicyConfig
	toolCalling  bool
	tracer       trace.Tracer
}

// labelParams is the Action.Parameters shape for apply_label/remove_label.
type labelParams struct {
	LabelID string `json:"label_id"`
}

// New builds an Orchestrator. toolCalling should be true for the Bedrock
// client (Claude tool_use is reliable) and false for OpenAI-compatible
// endpoints where the parser should fall straight to JSON extraction rather
// than treating a missing tool call as a hard NoToolCall error. tracer is
// optional; a nil tracer falls back to the global no-op tracer so tests
// never need to call tracing.Init.
func New(st *store.Store, llmClient llm.Client, policy safety.PolicyConfig, toolCalling bool, tracer trace.Tracer) *Orchestrator {
	if tracer == nil {
		tracer = otel.Tracer("ashford")
	}
	return &Orchestrator{
		store:         st,
		loader:        rules.NewLoader(st.Rules, st.Directions),
		promptBuilder: prompt.NewBuilder(),
		llmClient:     llmClient,
		policy:        policy,
		toolCalling:   toolCalling,
		tracer:        tracer,
	}
}

// Handle is the queue.Handler registered for model.JobTypeClassify.
func (o *Orchestrator) Handle(ctx context.Context, job *model.Job) error {
	var payload model.ClassifyPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return model.NewKindError(model.ErrInternalInvariant, fmt.Errorf("classify: decode payload: %w", err))
	}

	ctx, traceID, endSpan := tracing.JobSpan(ctx, o.tracer, "classify.handle",
		attribute.String("message_id", payload.MessageID), attribute.String("account_id", payload.AccountID))
	var handleErr error
	defer func() { endSpan(handleErr) }()

	msg, err := o.store.Messages.Get(ctx, payload.MessageID)
	if err != nil {
		handleErr = model.NewKindError(model.ErrLoader, fmt.Errorf("classify: load message %s: %w", payload.MessageID, err))
		return handleErr
	}

	bundle, err := o.loader.Load(ctx, payload.AccountID, msg.SenderEmail)
	if err != nil {
		handleErr = model.NewKindError(model.ErrLoader, fmt.Errorf("classify: load rules: %w", err))
		return handleErr
	}

	start := time.Now()
	decision, safeMode, err := o.classify(ctx, msg, bundle)
	if err != nil {
		handleErr = err
		return handleErr
	}
	metrics.ClassifyDuration.WithLabelValues(string(decision.Source)).Observe(time.Since(start).Seconds())

	result := safety.Evaluate(*decision, safeMode, o.policy)
	decision.NeedsApproval = result.RequiresApproval
	decision.Telemetry.RequiresApproval = result.RequiresApproval
	for _, ov := range result.Overrides {
		decision.Telemetry.SafetyOverrides = append(decision.Telemetry.SafetyOverrides, string(ov))
	}

	handleErr = o.persist(ctx, payload.AccountID, msg.ID, traceID, decision)
	return handleErr
}

// classify runs the deterministic layer first, falling through to the LLM
// only when no rule matches (§4.7 steps 1-3). The returned SafeMode is the
// matching rule's, or model.SafeModeDefault for an LLM-sourced decision.
func (o *Orchestrator) classify(ctx context.Context, msg *model.Message, bundle *rules.Bundle) (*model.DecisionOutput, model.SafeMode, error) {
	match := rules.FirstMatch(bundle.Deterministic, msg)
	if match.Rule != nil {
		return deterministicDecision(msg, match.Rule), match.Rule.SafeMode, nil
	}

	labels, err := o.store.Labels.ForAccount(ctx, msg.AccountID)
	if err != nil {
		return nil, model.SafeModeDefault, model.NewKindError(model.ErrLoader, fmt.Errorf("classify: load labels: %w", err))
	}
	idToName := make(map[string]string, len(labels))
	nameToID := make(map[string]string, len(labels))
	for _, l := range labels {
		idToName[l.ProviderLabelID] = l.Name
		nameToID[l.Name] = l.ProviderLabelID
	}

	p := o.promptBuilder.Build(msg, bundle.Directions, bundle.LLM, idToName)

	resp, err := o.llmClient.Classify(ctx, p)
	if err != nil {
		return nil, model.SafeModeDefault, model.NewKindError(model.ErrLLMTransient, fmt.Errorf("classify: llm call: %w", err))
	}

	if perr := llm.RequireToolCall(resp, o.toolCalling); perr != nil {
		logging.Warn("classify: llm did not honor tool-call contract, emitting safe fallback", "message_id", msg.ID, "err", perr.Error())
		return fallbackDecision(msg, perr), model.SafeModeDefault, nil
	}

	out, perr := llm.Parse(resp)
	if perr != nil {
		logging.Warn("classify: llm decision parse failed, emitting safe fallback", "message_id", msg.ID, "err", perr.Error())
		return fallbackDecision(msg, perr), model.SafeModeDefault, nil
	}

	if out.ActionType == model.ActionApplyLabel || out.ActionType == model.ActionRemoveLabel {
		translated, perr := translateLabelName(out.Parameters, nameToID)
		if perr != nil {
			logging.Warn("classify: llm returned unknown label name, emitting safe fallback", "message_id", msg.ID, "err", perr.Error())
			return fallbackDecision(msg, perr), model.SafeModeDefault, nil
		}
		out.Parameters = translated
	}
	return out, model.SafeModeDefault, nil
}

// translateLabelName converts the LLM's {"label": "<name>"} parameters into
// the {"label_id": "<provider id>"} shape the Action Executor expects, per
// §4.4's "LLM-returned label names are translated back to IDs" clause.
func translateLabelName(params json.RawMessage, nameToID map[string]string) (json.RawMessage, *llm.ParseError) {
	var p struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Label == "" {
		return nil, &llm.ParseError{Kind: llm.ErrSchema, Msg: "missing parameters.label"}
	}
	id, ok := nameToID[p.Label]
	if !ok {
		return nil, &llm.ParseError{Kind: llm.ErrSemanticEmptyField, Msg: fmt.Sprintf("unknown label name %q", p.Label)}
	}
	return json.Marshal(labelParams{LabelID: id})
}

// deterministicDecision converts a matched DeterministicRule into a
// DecisionOutput. Deterministic decisions always carry confidence 1.0 —
// they are not probabilistic, so LowConfidence never applies to them.
func deterministicDecision(msg *model.Message, rule *model.DeterministicRule) *model.DecisionOutput {
	return &model.DecisionOutput{
		MessageRef: model.MessageRef{
			Provider:  "gmail",
			AccountID: msg.AccountID,
			ThreadID:  msg.ThreadID,
			MessageID: msg.ID,
		},
		Source:     model.SourceDeterministic,
		ActionType: rule.ActionType,
		Parameters: rule.ActionParameters,
		Confidence: 1.0,
		Rationale:  fmt.Sprintf("matched deterministic rule %q", rule.Name),
		Explanations: model.Explanations{
			MatchedDirections: nil,
		},
		UndoHint: model.UndoHint{InverseAction: model.InverseNone},
	}
}

// fallbackDecision is the safe default when the LLM's output cannot be
// parsed at all (§4.7 step 3: action=None, needs_approval=true,
// rationale="classifier_unavailable" — the message is never dropped, just
// left for a human to triage).
func fallbackDecision(msg *model.Message, perr *llm.ParseError) *model.DecisionOutput {
	return &model.DecisionOutput{
		MessageRef: model.MessageRef{
			Provider:  "gmail",
			AccountID: msg.AccountID,
			ThreadID:  msg.ThreadID,
			MessageID: msg.ID,
		},
		Source:        model.SourceLLM,
		ActionType:    model.ActionNone,
		Parameters:    json.RawMessage(`{}`),
		Confidence:    0,
		NeedsApproval: true,
		Rationale:     "classifier_unavailable",
		UndoHint:      model.UndoHint{InverseAction: model.InverseNone},
	}
}

// persist writes the Decision, then its Action, then enqueues the execution
// job (or, for an ApprovedPending action, the approval notification). These
// are separate store calls with no transaction around them: when a later
// step fails, the rows already written stay in place (a Decision with no
// Action, or an Action with no job) and the error is returned as ErrIntegrity.
func (o *Orchestrator) persist(ctx context.Context, accountID, messageID, traceID string, out *model.DecisionOutput) error {
	decision := &model.Decision{
		AccountID:     accountID,
		MessageID:     messageID,
		Source:        out.Source,
		ActionType:    out.ActionType,
		Parameters:    out.Parameters,
		Confidence:    out.Confidence,
		NeedsApproval: out.NeedsApproval,
		Rationale:     out.Rationale,
		Explanations:  out.Explanations,
		UndoHint:      out.UndoHint,
		Telemetry:     out.Telemetry,
	}
	if err := o.store.Decisions.Create(ctx, decision); err != nil {
		return model.NewKindError(model.ErrIntegrity, fmt.Errorf("classify: persist decision: %w", err))
	}

	status := model.ActionStatusQueued
	if out.NeedsApproval {
		status = model.ActionStatusApprovedPending
	}

	action := &model.Action{
		AccountID:  accountID,
		MessageID:  messageID,
		DecisionID: decision.ID,
		ActionType: out.ActionType,
		Parameters: out.Parameters,
		Status:     status,
		TraceID:    traceID,
	}
	if err := o.store.Actions.Create(ctx, action); err != nil {
		return model.NewKindError(model.ErrIntegrity, fmt.Errorf("classify: persist action: %w", err))
	}

	if status == model.ActionStatusApprovedPending {
		_, err := o.store.Jobs.Enqueue(ctx, model.JobTypeApprovalNotify,
			mustMarshal(model.ApprovalNotifyPayload{ActionID: action.ID}), 5, "", nil)
		if err != nil {
			return model.NewKindError(model.ErrIntegrity, fmt.Errorf("classify: enqueue approval notify: %w", err))
		}
		return nil
	}

	_, err := o.store.Jobs.Enqueue(ctx, model.JobTypeActionGmail,
		mustMarshal(model.ActionGmailPayload{ActionID: action.ID}), 5, model.ActionIdempotencyKey(action.ID), nil)
	if err != nil {
		return model.NewKindError(model.ErrIntegrity, fmt.Errorf("classify: enqueue action: %w", err))
	}
	return nil
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("classify: marshal payload: %v", err))
	}
	return b
}
