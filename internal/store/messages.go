package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/dimfeld/ashford/internal/model"
)

// MessageStore reads the message envelope ingestion writes. Ashford's core
// never writes to this table, per model.Message's doc comment.
type MessageStore struct {
	db *sql.DB
}

// Get retrieves a Message by id.
func (s *MessageStore) Get(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	var to, cc, bcc, headers, labelIDs []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, thread_id, provider_message_id, sender_email, sender_name,
		       "to", cc, bcc, subject, snippet, headers, body_plain, body_html_sanitized,
		       label_ids, created_at
		FROM messages WHERE id = $1
	`, id).Scan(&m.ID, &m.AccountID, &m.ThreadID, &m.ProviderMessageID, &m.SenderEmail, &m.SenderName,
		&to, &cc, &bcc, &m.Subject, &m.Snippet, &headers, &m.BodyPlain, &m.BodyHTMLSanitized,
		&labelIDs, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(to, &m.To); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cc, &m.Cc); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(bcc, &m.Bcc); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(headers, &m.Headers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(labelIDs, &m.LabelIDs); err != nil {
		return nil, err
	}
	return &m, nil
}
