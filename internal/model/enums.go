package model

// ActionType is the sum-typed set of provider actions a Decision can produce.
// Represented as a string enum (not an interface hierarchy) per the
// "sum-typed actions" design note: exhaustive switches over these values,
// never type assertions on an object graph.
type ActionType string

const (
	ActionApplyLabel  ActionType = "apply_label"
	ActionRemoveLabel ActionType = "remove_label"
	ActionMarkRead    ActionType = "mark_read"
	ActionMarkUnread  ActionType = "mark_unread"
	ActionArchive     ActionType = "archive"
	ActionDelete      ActionType = "delete"
	ActionMove        ActionType = "move"
	ActionTrash       ActionType = "trash"
	ActionRestore     ActionType = "restore"
	ActionStar        ActionType = "star"
	ActionUnstar      ActionType = "unstar"
	ActionForward     ActionType = "forward"
	ActionAutoReply   ActionType = "auto_reply"
	ActionCreateTask  ActionType = "create_task"
	ActionSnooze      ActionType = "snooze"
	ActionAddNote     ActionType = "add_note"
	ActionEscalate    ActionType = "escalate"
	ActionNone        ActionType = "none"

	// The undo-only vocabulary: §4.9 synthesizes an undo action U with
	// action_type = undo_hint.inverse_action, so any inverse token without a
	// forward-action counterpart (unapply_label, delete_reply, reopen_task,
	// unsnooze, remove_note, deescalate) must also dispatch as an ActionType.
	// These never appear as a Decision's forward action or an LLM-returned
	// action token — ValidActionTypes deliberately excludes them.
	ActionUnapplyLabel ActionType = "unapply_label"
	ActionDeleteReply  ActionType = "delete_reply"
	ActionReopenTask   ActionType = "reopen_task"
	ActionUnsnooze     ActionType = "unsnooze"
	ActionRemoveNote   ActionType = "remove_note"
	ActionDeescalate   ActionType = "deescalate"
)

// ValidActionTypes enumerates every token the LLM may return and every
// token a deterministic rule's action_type may hold.
var ValidActionTypes = map[ActionType]bool{
	ActionApplyLabel: true, ActionRemoveLabel: true, ActionMarkRead: true,
	ActionMarkUnread: true, ActionArchive: true, ActionDelete: true,
	ActionMove: true, ActionTrash: true, ActionRestore: true, ActionStar: true,
	ActionUnstar: true, ActionForward: true, ActionAutoReply: true,
	ActionCreateTask: true, ActionSnooze: true, ActionAddNote: true,
	ActionEscalate: true, ActionNone: true,
}

// InverseActionType is the sum type for undo_hint.inverse_action. Distinct
// from ActionType because some inverses (delete_reply, reopen_task,
// unsnooze, remove_note, deescalate) have no forward-action counterpart.
type InverseActionType string

const (
	// InverseApplyLabel/InverseRemoveLabel reuse the forward ActionApplyLabel/
	// ActionRemoveLabel tokens per §9's "one sum type" design note: archive's
	// and remove_label's inverse is apply_label, apply_label's inverse is
	// remove_label (§4.8's table), so no separate undo-only token is needed
	// for them the way unapply_label once stood in for both directions.
	InverseApplyLabel   InverseActionType = "apply_label"
	InverseRemoveLabel  InverseActionType = "remove_label"
	InverseUnapplyLabel InverseActionType = "unapply_label"
	InverseMarkUnread   InverseActionType = "mark_unread"
	InverseMarkRead     InverseActionType = "mark_read"
	InverseMove         InverseActionType = "move"
	InverseRestore      InverseActionType = "restore"
	InverseTrash        InverseActionType = "trash" // restore's inverse, §4.8's table
	InverseUnstar       InverseActionType = "unstar"
	InverseStar         InverseActionType = "star"
	InverseDeleteReply  InverseActionType = "delete_reply"
	InverseReopenTask   InverseActionType = "reopen_task"
	InverseUnsnooze     InverseActionType = "unsnooze"
	InverseRemoveNote   InverseActionType = "remove_note"
	InverseDeescalate   InverseActionType = "deescalate"
	InverseNone         InverseActionType = "none"
)

var ValidInverseActionTypes = map[InverseActionType]bool{
	InverseApplyLabel: true, InverseRemoveLabel: true,
	InverseUnapplyLabel: true, InverseMarkUnread: true, InverseMarkRead: true,
	InverseMove: true, InverseRestore: true, InverseTrash: true, InverseUnstar: true,
	InverseStar: true, InverseDeleteReply: true, InverseReopenTask: true,
	InverseUnsnooze: true, InverseRemoveNote: true, InverseDeescalate: true,
	InverseNone: true,
}

// DangerLevel classifies an ActionType for the Safety Enforcer (C6).
type DangerLevel string

const (
	DangerSafe       DangerLevel = "safe"
	DangerReversible DangerLevel = "reversible"
	DangerDangerous  DangerLevel = "dangerous"
)

var dangerLevels = map[ActionType]DangerLevel{
	ActionApplyLabel: DangerSafe, ActionMarkRead: DangerSafe, ActionMarkUnread: DangerSafe,
	ActionArchive: DangerSafe, ActionMove: DangerSafe, ActionNone: DangerSafe,
	ActionStar: DangerReversible, ActionUnstar: DangerReversible, ActionSnooze: DangerReversible,
	ActionAddNote: DangerReversible, ActionCreateTask: DangerReversible,
	ActionDelete: DangerDangerous, ActionForward: DangerDangerous,
	ActionAutoReply: DangerDangerous, ActionEscalate: DangerDangerous,
	// remove_label/trash/restore/unapply aren't in the spec's three explicit
	// buckets; trash/restore are reversible-in-practice (undo exists) and
	// remove_label mirrors apply_label's safety.
	ActionRemoveLabel: DangerSafe, ActionTrash: DangerReversible, ActionRestore: DangerReversible,
}

// DangerLevelOf returns the danger classification for an action type.
// Unknown action types are treated as dangerous — fail closed.
func DangerLevelOf(a ActionType) DangerLevel {
	if lvl, ok := dangerLevels[a]; ok {
		return lvl
	}
	return DangerDangerous
}

// DecisionSource records which layer of the rule engine produced a Decision.
type DecisionSource string

const (
	SourceDeterministic DecisionSource = "deterministic"
	SourceLLM           DecisionSource = "llm"
)

// SafeMode controls how a DeterministicRule interacts with the Safety
// Enforcer's DangerousAction / LowConfidence overrides (§4.6).
type SafeMode string

const (
	SafeModeDefault           SafeMode = "default"
	SafeModeAlwaysSafe        SafeMode = "always_safe"
	SafeModeDangerousOverride SafeMode = "dangerous_override"
)

// RuleScope is the scoping dimension for DeterministicRule / LlmRule.
type RuleScope string

const (
	ScopeGlobal RuleScope = "global"
	ScopeAccount RuleScope = "account"
	ScopeSender RuleScope = "sender"
	ScopeDomain RuleScope = "domain"
)

// ActionStatus is the Action lifecycle state machine from §3.
type ActionStatus string

const (
	ActionStatusQueued          ActionStatus = "Queued"
	ActionStatusExecuting       ActionStatus = "Executing"
	ActionStatusCompleted       ActionStatus = "Completed"
	ActionStatusFailed          ActionStatus = "Failed"
	ActionStatusCanceled        ActionStatus = "Canceled"
	ActionStatusApprovedPending ActionStatus = "ApprovedPending"
	ActionStatusRejected        ActionStatus = "Rejected"
)

// TerminalActionStatuses accept no further transitions.
var TerminalActionStatuses = map[ActionStatus]bool{
	ActionStatusCompleted: true,
	ActionStatusFailed:    true,
	ActionStatusCanceled:  true,
	ActionStatusRejected:  true,
}

// validActionTransitions enumerates the only legal Action.status edges,
// per the state diagram in spec.md §3.
var validActionTransitions = map[ActionStatus]map[ActionStatus]bool{
	ActionStatusQueued: {
		ActionStatusExecuting: true,
		ActionStatusCanceled:  true,
		ActionStatusRejected:  true,
	},
	ActionStatusExecuting: {
		ActionStatusCompleted: true,
		ActionStatusFailed:    true,
		ActionStatusCanceled:  true,
	},
	ActionStatusApprovedPending: {
		ActionStatusQueued:   true,
		ActionStatusRejected: true,
		ActionStatusCanceled: true,
	},
}

// CanTransitionAction reports whether from -> to is a legal Action status
// edge. Terminal states accept nothing.
func CanTransitionAction(from, to ActionStatus) bool {
	if TerminalActionStatuses[from] {
		return false
	}
	return validActionTransitions[from][to]
}

// ActionLinkRelation is the tag on an ActionLink edge between two actions.
type ActionLinkRelation string

const (
	RelationUndoOf       ActionLinkRelation = "undo_of"
	RelationApprovalFor  ActionLinkRelation = "approval_for"
	RelationSpawned      ActionLinkRelation = "spawned"
	RelationRelated      ActionLinkRelation = "related"
)

// JobState is the Job Queue's lifecycle state (C1).
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCanceled  JobState = "canceled"
)

// JobType enumerates the job payload kinds consumed by the core (§6).
type JobType string

const (
	JobTypeIngestGmail    JobType = "ingest.gmail"
	JobTypeClassify       JobType = "classify"
	JobTypeActionGmail    JobType = "action.gmail"
	JobTypeApprovalNotify JobType = "approval.notify"
	JobTypeUndoAction     JobType = "undo.action"
	JobTypeOutboundSend   JobType = "outbound.send"
	JobTypeUnsnoozeGmail  JobType = "unsnooze.gmail"
)

// LabelType mirrors Gmail's label taxonomy for the Label cache.
type LabelType string

const (
	LabelTypeSystem LabelType = "system"
	LabelTypeUser   LabelType = "user"
)
