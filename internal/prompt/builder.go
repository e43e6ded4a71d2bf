// Package prompt implements the Prompt Builder (C4, spec.md §4.4): turns a
// Message plus the in-scope Directions/LlmRules into the two chat messages
// the LLM client sends. Grounded on the teacher's buildSystemPrompt/
// buildContextMessage split (internal/agent/bedrock_agent.go in the teacher
// repository): plain string concatenation via strings.Builder, not a
// templating library — the teacher never reaches for one either.
package prompt

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/dimfeld/ashford/internal/model"
)

const (
	subjectTruncateChars = 500
	defaultBodyCap       = 8000
)

var whitelistedHeaders = []string{"List-Id", "Return-Path", "X-Priority", "X-Mailer", "Reply-To", "Precedence"}

// ValidActionTokens lists every snake_case action token the LLM may return,
// per §6.
var ValidActionTokens = []string{
	"apply_label", "remove_label", "mark_read", "mark_unread", "archive", "delete",
	"move", "trash", "restore", "star", "unstar", "forward", "auto_reply",
	"create_task", "snooze", "add_note", "escalate", "none",
}

// Builder constructs the system + user prompt pair for one classification.
type Builder struct {
	BodyCap int
}

// NewBuilder returns a Builder with the default body cap (8000 chars,
// overridable per Config.Model if ever exposed there).
func NewBuilder() *Builder {
	return &Builder{BodyCap: defaultBodyCap}
}

// Prompt is the two chat messages C4 produces.
type Prompt struct {
	System string
	User   string
}

// Build assembles the prompt from msg, the in-scope directions/LLM rules,
// and the label-id-to-name translation (labelNames), per §4.4.
func (b *Builder) Build(msg *model.Message, directions []model.Direction, llmRules []model.LlmRule, labelNames map[string]string) Prompt {
	return Prompt{
		System: buildSystemPrompt(),
		User:   b.buildUserPrompt(msg, directions, llmRules, labelNames),
	}
}

func buildSystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are Ashford, a single-user email triage agent. ")
	sb.WriteString("Classify the message below into exactly one action. ")
	sb.WriteString("Prefer the record_decision tool call over free text; if tool calling is unavailable, ")
	sb.WriteString("respond with a single JSON object matching the decision contract, optionally inside a fenced code block. ")
	sb.WriteString("Obey every DIRECTIONS entry unconditionally; they are non-negotiable guardrails, not suggestions. ")
	sb.WriteString("When uncertain, bias toward the safest action and set needs_approval=true rather than guessing. ")
	sb.WriteString("Never invent facts not present in the message context. ")
	sb.WriteString("undo_hint.inverse_action must be the exact inverse of the chosen action.")
	return sb.String()
}

func (b *Builder) buildUserPrompt(msg *model.Message, directions []model.Direction, llmRules []model.LlmRule, labelNames map[string]string) string {
	var sb strings.Builder

	if len(directions) > 0 {
		sb.WriteString("DIRECTIONS\n")
		for i, d := range directions {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, d.Content)
		}
		sb.WriteString("\n")
	}

	if len(llmRules) > 0 {
		sb.WriteString("LLM RULES\n")
		for _, r := range llmRules {
			fmt.Fprintf(&sb, "LLM RULE: %s\n%s\n\n", r.Name, r.RuleText)
		}
	}

	sb.WriteString("MESSAGE CONTEXT\n")
	fmt.Fprintf(&sb, "From: %s <%s>\n", msg.SenderName, msg.SenderEmail)
	fmt.Fprintf(&sb, "To: %s\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&sb, "Cc: %s\n", strings.Join(msg.Cc, ", "))
	}
	if len(msg.Bcc) > 0 {
		fmt.Fprintf(&sb, "Bcc: %s\n", strings.Join(msg.Bcc, ", "))
	}
	fmt.Fprintf(&sb, "Subject: %s\n", truncate(msg.Subject, subjectTruncateChars))
	if msg.Snippet != "" {
		fmt.Fprintf(&sb, "Snippet: %s\n", msg.Snippet)
	}

	for _, h := range whitelistedHeaders {
		if v, ok := lookupHeader(msg.Headers, h); ok {
			fmt.Fprintf(&sb, "%s: %s\n", h, v)
		}
	}

	if len(msg.LabelIDs) > 0 {
		names := make([]string, 0, len(msg.LabelIDs))
		for _, id := range msg.LabelIDs {
			if name, ok := labelNames[id]; ok {
				names = append(names, name)
			}
		}
		if len(names) > 0 {
			fmt.Fprintf(&sb, "Labels: %s\n", strings.Join(names, ", "))
		}
	}

	body := msg.BodyPlain
	if body == "" {
		body = stripHTML(msg.BodyHTMLSanitized)
	}
	cap := b.BodyCap
	if cap == 0 {
		cap = defaultBodyCap
	}
	fmt.Fprintf(&sb, "\nBody:\n%s\n", truncateAtWordBoundary(body, cap))

	sb.WriteString("\nTASK\n")
	fmt.Fprintf(&sb, "Valid actions: %s.\n", strings.Join(ValidActionTokens, ", "))
	sb.WriteString("confidence must be in [0,1]. Set needs_approval=true for dangerous or low-confidence calls. ")
	sb.WriteString("undo_hint.inverse_action must invert the primary action. ")
	sb.WriteString("For apply_label/remove_label set parameters.label to one of the names from the Labels line above, never an id.\n")

	return sb.String()
}

func lookupHeader(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func truncateAtWordBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := strings.LastIndexAny(s[:max], " \n\t")
	if cut <= 0 {
		cut = max
	}
	return s[:cut] + "…"
}

var tagRegex = regexp.MustCompile(`<[^>]*>`)

// stripHTML degrades sanitized HTML to plain text for the prompt when no
// plain-text body was supplied.
func stripHTML(h string) string {
	text := tagRegex.ReplaceAllString(h, " ")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}
