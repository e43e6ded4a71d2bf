package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/dimfeld/ashford/internal/model"
)

// TokenSource supplies a bearer access token for an account. OAuth refresh
// and credential storage are out of scope (spec.md's "no secret storage"
// non-goal); Ashford only consumes a token this interface already holds.
type TokenSource interface {
	AccessToken(ctx context.Context, accountID string) (string, error)
}

// GmailProvider implements Provider against the Gmail REST API directly
// over net/http, in the same spirit as llm.OpenAIClient: no SDK, because
// nothing in the retrieved pack pulls in google.golang.org/api for Gmail
// specifically (its one occurrence, in jordigilh-kubernaut, is an indirect
// Vertex AI transitive, not a Gmail client) — reaching for it here would be
// an ungrounded dependency, not a justified one.
type GmailProvider struct {
	tokens     TokenSource
	httpClient *http.Client
	baseURL    string
}

// NewGmailProvider builds a GmailProvider using tokens for auth.
func NewGmailProvider(tokens TokenSource) *GmailProvider {
	return &GmailProvider{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://www.googleapis.com/gmail/v1/users/me",
	}
}

type gmailMessage struct {
	ID       string   `json:"id"`
	LabelIDs []string `json:"labelIds"`
}

type gmailError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// gmailNotFoundError marks a 404 so provider.NotFound can recognize it.
type gmailNotFoundError struct{ msg string }

func (e *gmailNotFoundError) Error() string  { return e.msg }
func (e *gmailNotFoundError) NotFound() bool { return true }

func (p *GmailProvider) do(ctx context.Context, accountID, method, path string, body interface{}) ([]byte, error) {
	token, err := p.tokens.AccessToken(ctx, accountID)
	if err != nil {
		return nil, model.NewKindError(model.ErrAuth, fmt.Errorf("provider: access token: %w", err))
	}

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Transient: true, Cause: err}
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, &Error{Transient: true, Cause: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, &gmailNotFoundError{msg: fmt.Sprintf("provider: gmail 404: %s %s", method, path)}
	}
	if resp.StatusCode >= 500 {
		return nil, &Error{Transient: true, Cause: fmt.Errorf("gmail %s %s: %s", method, path, buf.String())}
	}
	if resp.StatusCode >= 400 {
		var gerr gmailError
		_ = json.Unmarshal(buf.Bytes(), &gerr)
		return nil, &Error{Transient: false, Cause: fmt.Errorf("gmail %s %s: %d %s", method, path, resp.StatusCode, gerr.Error.Message)}
	}
	return buf.Bytes(), nil
}

// PreImage fetches the message's current label set and derives starred/
// unread/in-inbox/in-trash from Gmail's fixed system labels.
func (p *GmailProvider) PreImage(ctx context.Context, accountID, providerMessageID string) (*PreImage, error) {
	raw, err := p.do(ctx, accountID, http.MethodGet, fmt.Sprintf("/messages/%s?format=minimal", providerMessageID), nil)
	if err != nil {
		return nil, err
	}
	var msg gmailMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	pre := &PreImage{Labels: msg.LabelIDs}
	for _, l := range msg.LabelIDs {
		switch l {
		case LabelUnread:
			pre.Unread = true
		case LabelStarred:
			pre.Starred = true
		case LabelInbox:
			pre.InInbox = true
		case "TRASH":
			pre.InTrash = true
		}
	}
	return pre, nil
}

func (p *GmailProvider) modify(ctx context.Context, accountID, providerMessageID string, add, remove []string) error {
	_, err := p.do(ctx, accountID, http.MethodPost, fmt.Sprintf("/messages/%s/modify", providerMessageID), map[string]interface{}{
		"addLabelIds":    add,
		"removeLabelIds": remove,
	})
	return err
}

func (p *GmailProvider) AddLabel(ctx context.Context, accountID, providerMessageID, labelID string) error {
	return p.modify(ctx, accountID, providerMessageID, []string{labelID}, nil)
}

func (p *GmailProvider) RemoveLabel(ctx context.Context, accountID, providerMessageID, labelID string) error {
	return p.modify(ctx, accountID, providerMessageID, nil, []string{labelID})
}

func (p *GmailProvider) Trash(ctx context.Context, accountID, providerMessageID string) error {
	_, err := p.do(ctx, accountID, http.MethodPost, fmt.Sprintf("/messages/%s/trash", providerMessageID), nil)
	return err
}

func (p *GmailProvider) Untrash(ctx context.Context, accountID, providerMessageID string) error {
	_, err := p.do(ctx, accountID, http.MethodPost, fmt.Sprintf("/messages/%s/untrash", providerMessageID), nil)
	return err
}

func (p *GmailProvider) Delete(ctx context.Context, accountID, providerMessageID string) error {
	_, err := p.do(ctx, accountID, http.MethodDelete, fmt.Sprintf("/messages/%s", providerMessageID), nil)
	return err
}

type gmailLabel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type gmailLabelList struct {
	Labels []gmailLabel `json:"labels"`
}

// EnsureLabel looks up name among the account's labels, creating it via
// Gmail's labels.create endpoint if absent.
func (p *GmailProvider) EnsureLabel(ctx context.Context, accountID, name string) (string, error) {
	raw, err := p.do(ctx, accountID, http.MethodGet, "/labels", nil)
	if err != nil {
		return "", err
	}
	var list gmailLabelList
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", err
	}
	for _, l := range list.Labels {
		if l.Name == name {
			return l.ID, nil
		}
	}

	raw, err = p.do(ctx, accountID, http.MethodPost, "/labels", map[string]string{
		"name":                  name,
		"labelListVisibility":   "labelShow",
		"messageListVisibility": "show",
	})
	if err != nil {
		return "", err
	}
	var created gmailLabel
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// Send builds a raw RFC-5322 message and POSTs it to messages.send,
// passing ThreadID as threadId when set so the message joins that
// conversation.
func (p *GmailProvider) Send(ctx context.Context, accountID string, msg MIMEMessage) error {
	raw := buildMIME(msg)
	encoded := base64.URLEncoding.EncodeToString(raw)

	body := map[string]interface{}{"raw": encoded}
	if msg.ThreadID != "" {
		body["threadId"] = msg.ThreadID
	}

	_, err := p.do(ctx, accountID, http.MethodPost, "/messages/send", body)
	return err
}

// buildMIME assembles an RFC-5322 message per §4.8: From/To/Cc/Bcc/Subject,
// plain + html bodies, base64 (RFC-2045) attachments, with In-Reply-To/
// References set for replies and omitted for forwards.
func buildMIME(msg MIMEMessage) []byte {
	boundary := "ashford-mime-boundary"
	var sb strings.Builder

	fmt.Fprintf(&sb, "From: %s\r\n", msg.From)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&sb, "Cc: %s\r\n", strings.Join(msg.Cc, ", "))
	}
	if len(msg.Bcc) > 0 {
		fmt.Fprintf(&sb, "Bcc: %s\r\n", strings.Join(msg.Bcc, ", "))
	}
	fmt.Fprintf(&sb, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	if msg.InReplyTo != "" {
		fmt.Fprintf(&sb, "In-Reply-To: %s\r\n", msg.InReplyTo)
		fmt.Fprintf(&sb, "References: %s\r\n", msg.References)
	}
	fmt.Fprintf(&sb, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&sb, "Content-Type: multipart/mixed; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&sb, "--%s\r\n", boundary)
	sb.WriteString("Content-Type: multipart/alternative; boundary=\"ashford-alt-boundary\"\r\n\r\n")

	fmt.Fprintf(&sb, "--ashford-alt-boundary\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	sb.WriteString(msg.BodyPlain)
	sb.WriteString("\r\n")

	if msg.BodyHTML != "" {
		fmt.Fprintf(&sb, "--ashford-alt-boundary\r\n")
		sb.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
		sb.WriteString(msg.BodyHTML)
		sb.WriteString("\r\n")
	}
	sb.WriteString("--ashford-alt-boundary--\r\n")

	for _, a := range msg.Attachments {
		fmt.Fprintf(&sb, "--%s\r\n", boundary)
		fmt.Fprintf(&sb, "Content-Type: %s; name=\"%s\"\r\n", a.ContentType, a.Filename)
		sb.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&sb, "Content-Disposition: attachment; filename=\"%s\"\r\n\r\n", a.Filename)
		sb.WriteString(base64.StdEncoding.EncodeToString(a.Data))
		sb.WriteString("\r\n")
	}
	fmt.Fprintf(&sb, "--%s--\r\n", boundary)

	return []byte(sb.String())
}
