package model

import (
	"encoding/json"
	"time"
)

// Message is the immutable envelope ingestion hands to the core. The core
// only ever reads it; ingestion (outside this repository's scope) owns
// writes.
type Message struct {
	ID                string
	AccountID         string
	ThreadID          string
	ProviderMessageID string
	SenderEmail       string
	SenderName        string
	To                []string
	Cc                []string
	Bcc               []string
	Subject           string
	Snippet           string
	Headers           map[string]string
	BodyPlain         string
	BodyHTMLSanitized string
	LabelIDs          []string
	CreatedAt         time.Time
}

// Direction is a global, always-applied natural-language guardrail.
type Direction struct {
	ID        string
	Content   string
	Enabled   bool
	CreatedAt time.Time
}

// ConditionLeaf enumerates the deterministic condition leaf kinds (C3).
type ConditionLeafKind string

const (
	LeafSenderEmail     ConditionLeafKind = "sender_email"
	LeafSenderDomain    ConditionLeafKind = "sender_domain"
	LeafSubjectContains ConditionLeafKind = "subject_contains"
	LeafSubjectRegex    ConditionLeafKind = "subject_regex"
	LeafHeaderMatch     ConditionLeafKind = "header_match"
	LeafLabelPresent    ConditionLeafKind = "label_present"
)

// ConditionNodeKind enumerates the logical combinators over leaves.
type ConditionNodeKind string

const (
	NodeAnd ConditionNodeKind = "and"
	NodeOr  ConditionNodeKind = "or"
	NodeNot ConditionNodeKind = "not"
)

// Condition is a recursive condition-tree node. Exactly one of the Kind-
// specific fields is populated, depending on whether Kind names a leaf or a
// logical node — this is Ashford's tagged-variant encoding of the
// "dynamic JSON" design note: the in-memory shape is structured, and
// (de)serialization to the `conditions` JSONB column happens only at the
// store boundary (see store/rules.go).
type Condition struct {
	Kind ConditionLeafKindOrNode `json:"kind"`

	// Leaf fields.
	SenderEmailGlob  string `json:"sender_email_glob,omitempty"`
	SenderDomain     string `json:"sender_domain,omitempty"`
	SubjectSubstring string `json:"subject_substring,omitempty"`
	SubjectPattern   string `json:"subject_pattern,omitempty"`
	HeaderName       string `json:"header_name,omitempty"`
	HeaderPattern    string `json:"header_pattern,omitempty"`
	LabelID          string `json:"label_id,omitempty"`

	// Logical node fields.
	Children []Condition `json:"children,omitempty"`
}

// ConditionLeafKindOrNode is a string union of ConditionLeafKind and
// ConditionNodeKind, since a Condition.Kind may be either.
type ConditionLeafKindOrNode string

// DeterministicRule is a structured condition tree plus an explicit action,
// evaluated before the LLM (C2/C3).
type DeterministicRule struct {
	ID              string
	Name            string
	Scope           RuleScope
	ScopeRef        string
	Priority        int
	Enabled         bool
	DisabledReason  string
	Conditions      Condition
	ActionType      ActionType
	ActionParameters json.RawMessage
	SafeMode        SafeMode
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LlmRule is situational natural-language guidance injected into the
// prompt for messages that fall through to the LLM.
type LlmRule struct {
	ID        string
	Name      string
	Scope     RuleScope
	ScopeRef  string
	RuleText  string
	Enabled   bool
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// MessageRef identifies the message a Decision/Action pair is about, as
// carried in the wire decision contract (§6).
type MessageRef struct {
	Provider  string `json:"provider"`
	AccountID string `json:"account_id"`
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
}

// Alternative is a considered-but-rejected action in the decision's
// explanations block.
type Alternative struct {
	Action     ActionType `json:"action"`
	Confidence float64    `json:"confidence"`
	WhyNot     string     `json:"why_not"`
}

// Explanations carries the human-auditable rationale behind a Decision.
type Explanations struct {
	SalientFeatures      []string      `json:"salient_features"`
	MatchedDirections    []string      `json:"matched_directions"`
	ConsideredAlternatives []Alternative `json:"considered_alternatives"`
}

// UndoHint is the pre-image + inverse-action descriptor recorded at
// execution time to make an action reversible (C9).
type UndoHint struct {
	InverseAction     InverseActionType `json:"inverse_action"`
	InverseParameters json.RawMessage   `json:"inverse_parameters"`
}

// SafetyOverride is a reason the Safety Enforcer forced approval. Recorded
// verbatim into Decision.Telemetry.
type SafetyOverride string

const (
	OverrideDangerousAction       SafetyOverride = "DangerousAction"
	OverrideLowConfidence         SafetyOverride = "LowConfidence"
	OverrideInApprovalAlwaysList  SafetyOverride = "InApprovalAlwaysList"
	OverrideLlmRequestedApproval  SafetyOverride = "LlmRequestedApproval"
)

// Telemetry records model + safety metadata for a Decision.
type Telemetry struct {
	Model             string   `json:"model"`
	LatencyMs         int64    `json:"latency_ms"`
	InputTokens       int      `json:"input_tokens"`
	OutputTokens      int      `json:"output_tokens"`
	SafetyOverrides   []string `json:"safety_overrides"`
	RequiresApproval  bool     `json:"requires_approval"`
}

// DecisionOutput is the in-memory result of classification, before
// persistence splits it into a Decision row (C7 step 4-5 input).
type DecisionOutput struct {
	MessageRef    MessageRef
	Source        DecisionSource
	ActionType    ActionType
	Parameters    json.RawMessage
	Confidence    float64
	NeedsApproval bool
	Rationale     string
	Explanations  Explanations
	UndoHint      UndoHint
	Telemetry     Telemetry
}

// Decision is created once per classification outcome.
type Decision struct {
	ID            string
	AccountID     string
	MessageID     string
	Source        DecisionSource
	ActionType    ActionType
	Parameters    json.RawMessage
	Confidence    float64
	NeedsApproval bool
	Rationale     string
	Explanations  Explanations
	UndoHint      UndoHint
	Telemetry     Telemetry
	CreatedAt     time.Time
}

// Action is the executable/undoable unit produced by a Decision.
type Action struct {
	ID          string
	AccountID   string
	MessageID   string
	DecisionID  string // empty for undo-synthesized actions
	ActionType  ActionType
	Parameters  json.RawMessage
	Status      ActionStatus
	Error       string
	ExecutedAt  *time.Time
	UndoHint    *UndoHint
	TraceID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ActionLink relates two actions — undo, approval, spawn, or generic
// relation. Represented as its own relation (not object references) so the
// store stays the DAG's source of truth, per the "cyclic action graphs"
// design note.
type ActionLink struct {
	ID             string
	CauseActionID  string
	EffectActionID string
	Relation       ActionLinkRelation
	CreatedAt      time.Time
}

// Job is a durable unit of at-least-once work (C1).
type Job struct {
	ID             string
	Type           JobType
	Payload        json.RawMessage
	Priority       int
	State          JobState
	Attempts       int
	MaxAttempts    int
	NotBefore      *time.Time
	IdempotencyKey string
	LastError      string
	HeartbeatAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Label is a cached, account-scoped copy of a provider label.
type Label struct {
	ID                     string
	AccountID              string
	ProviderLabelID        string
	Name                   string
	Type                   LabelType
	Description            string
	AvailableToClassifier  bool
}

// PreImage is the snapshot the Action Executor takes before mutating a
// message, used to build the undo hint (§4.8).
type PreImage struct {
	Labels    []string
	Unread    bool
	Starred   bool
	InInbox   bool
	InTrash   bool
}
