package provider

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMIME_PlainAndHTML(t *testing.T) {
	raw := string(buildMIME(MIMEMessage{
		From:      "ashford@example.com",
		To:        []string{"recipient@example.com"},
		Subject:   "Re: hello",
		BodyPlain: "plain body",
		BodyHTML:  "<p>html body</p>",
		InReplyTo: "<abc@mail.gmail.com>",
		References: "<abc@mail.gmail.com>",
	}))

	assert.Contains(t, raw, "From: ashford@example.com")
	assert.Contains(t, raw, "To: recipient@example.com")
	assert.Contains(t, raw, "In-Reply-To: <abc@mail.gmail.com>")
	assert.Contains(t, raw, "plain body")
	assert.Contains(t, raw, "html body")
}

func TestBuildMIME_ForwardOmitsInReplyTo(t *testing.T) {
	raw := string(buildMIME(MIMEMessage{
		From:      "ashford@example.com",
		To:        []string{"recipient@example.com"},
		Subject:   "Fwd: hello",
		BodyPlain: "forwarded",
	}))
	assert.NotContains(t, raw, "In-Reply-To")
}

func TestBuildMIME_Attachment(t *testing.T) {
	raw := string(buildMIME(MIMEMessage{
		From:      "a@example.com",
		To:        []string{"b@example.com"},
		Subject:   "with attachment",
		BodyPlain: "see attached",
		Attachments: []Attachment{
			{Filename: "note.txt", ContentType: "text/plain", Data: []byte("hello")},
		},
	}))
	assert.Contains(t, raw, `filename="note.txt"`)
	assert.True(t, strings.Contains(raw, "Content-Transfer-Encoding: base64"))
}

func TestNotFound(t *testing.T) {
	assert.True(t, NotFound(&gmailNotFoundError{msg: "x"}))
	assert.False(t, NotFound(errors.New("other")))
}
