package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dimfeld/ashford/internal/model"
)

func TestBuild_IncludesDirectionsAndRules(t *testing.T) {
	b := NewBuilder()
	msg := &model.Message{
		SenderEmail: "vendor@acme.com",
		SenderName:  "Acme Billing",
		To:          []string{"me@example.com"},
		Subject:     "Invoice #1234",
		BodyPlain:   "Please find attached your invoice.",
	}
	directions := []model.Direction{{Content: "Never auto-delete anything from a known vendor."}}
	rules := []model.LlmRule{{Name: "vendor-invoices", RuleText: "Treat invoices as low priority."}}

	p := b.Build(msg, directions, rules, map[string]string{})

	assert.Contains(t, p.User, "DIRECTIONS")
	assert.Contains(t, p.User, "Never auto-delete")
	assert.Contains(t, p.User, "LLM RULE: vendor-invoices")
	assert.Contains(t, p.User, "Subject: Invoice #1234")
	assert.Contains(t, p.System, "record_decision")
}

func TestBuild_OmitsEmptySections(t *testing.T) {
	b := NewBuilder()
	msg := &model.Message{SenderEmail: "a@b.com", Subject: "hi"}
	p := b.Build(msg, nil, nil, nil)
	assert.NotContains(t, p.User, "DIRECTIONS")
	assert.NotContains(t, p.User, "LLM RULES")
}

func TestTruncateAtWordBoundary(t *testing.T) {
	s := strings.Repeat("word ", 2000)
	out := truncateAtWordBoundary(s, 20)
	assert.LessOrEqual(t, len(out), 22)
}

func TestStripHTML(t *testing.T) {
	out := stripHTML("<p>Hello&nbsp;<b>world</b></p>")
	assert.Equal(t, "Hello world", out)
}
