package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/nhle/mail-assistant/internal/model"
)

// messageRow mirrors a row of the messages table.
type messageRow struct {
	ID               string         `db:"id"`
	Subject          string         `db:"subject"`
	FromName         string         `db:"from_name"`
	FromEmail        string         `db:"from_email"`
	ToRecipients     string         `db:"to_recipients"`
	Body             string         `db:"body"`
	BodyPreview      string         `db:"body_preview"`
	ReceivedDateTime string         `db:"received_date_time"`
	IsDraft          bool           `db:"is_draft"`
	ConversationID   sql.NullString `db:"conversation_id"`
	SyncedAt         string         `db:"synced_at"`
}

const messageColumns = `id, subject, from_name, from_email, to_recipients, body,
	body_preview, received_date_time, is_draft, conversation_id, synced_at`

func (r messageRow) toMessage() (model.Message, error) {
	msg := model.Message{
		ID:             r.ID,
		Subject:        r.Subject,
		From:           model.Address{Name: r.FromName, Email: r.FromEmail},
		Body:           r.Body,
		BodyPreview:    r.BodyPreview,
		IsDraft:        r.IsDraft,
		ConversationID: r.ConversationID.String,
	}

	if err := json.Unmarshal([]byte(r.ToRecipients), &msg.To); err != nil {
		return msg, storageErr(fmt.Sprintf("decoding recipients of %s", r.ID), err)
	}

	var err error
	if msg.ReceivedDateTime, err = parseTime(r.ReceivedDateTime); err != nil {
		return msg, storageErr(fmt.Sprintf("parsing received time of %s", r.ID), err)
	}
	if msg.SyncedAt, err = parseTime(r.SyncedAt); err != nil {
		return msg, storageErr(fmt.Sprintf("parsing synced time of %s", r.ID), err)
	}
	return msg, nil
}

func rowsToMessages(rows []messageRow) ([]model.Message, error) {
	msgs := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.toMessage()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// UpsertMessages inserts or replaces a batch of messages. The batch is
// applied in one transaction and every row gets the same synced_at.
func (s *SQLiteStore) UpsertMessages(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("beginning transaction", err)
	}
	defer tx.Rollback()

	query := `INSERT OR REPLACE INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return storageErr("preparing upsert statement", err)
	}
	defer stmt.Close()

	syncedAt := formatTime(time.Now())

	for _, m := range msgs {
		to := m.To
		if to == nil {
			to = []model.Address{}
		}
		toJSON, err := json.Marshal(to)
		if err != nil {
			return fmt.Errorf("encoding recipients of %s: %w", m.ID, err)
		}

		var conversationID sql.NullString
		if m.ConversationID != "" {
			conversationID = sql.NullString{String: m.ConversationID, Valid: true}
		}

		_, err = stmt.ExecContext(ctx,
			m.ID, m.Subject, m.From.Name, m.From.Email, string(toJSON), m.Body,
			m.BodyPreview, formatTime(m.ReceivedDateTime), m.IsDraft, conversationID,
			syncedAt,
		)
		if err != nil {
			return storageErr(fmt.Sprintf("upserting message %s", m.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("committing messages", err)
	}
	return nil
}

// GetMessages returns up to limit messages with the given draft flag,
// most recent first.
func (s *SQLiteStore) GetMessages(ctx context.Context, limit int, isDraft bool) ([]model.Message, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []messageRow
	err = db.SelectContext(ctx, &rows,
		`SELECT `+messageColumns+` FROM messages
		WHERE is_draft = ?
		ORDER BY received_date_time DESC
		LIMIT ?`,
		isDraft, limit,
	)
	if err != nil {
		return nil, storageErr("querying messages", err)
	}
	return rowsToMessages(rows)
}

// GetMessageByID returns the cached message or nil when absent.
func (s *SQLiteStore) GetMessageByID(ctx context.Context, id string) (*model.Message, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var row messageRow
	err = db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(fmt.Sprintf("getting message %s", id), err)
	}

	msg, err := row.toMessage()
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetConversation returns every cached message in a thread, oldest first.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	if conversationID == "" {
		return []model.Message{}, nil
	}

	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []messageRow
	err = db.SelectContext(ctx, &rows,
		`SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ?
		ORDER BY received_date_time ASC`,
		conversationID,
	)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("querying conversation %s", conversationID), err)
	}
	return rowsToMessages(rows)
}

// SearchMessages matches query case-insensitively against subject,
// preview, and sender name.
func (s *SQLiteStore) SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var rows []messageRow
	err = db.SelectContext(ctx, &rows,
		`SELECT `+messageColumns+` FROM messages
		WHERE LOWER(subject) LIKE ? ESCAPE '\'
			OR LOWER(body_preview) LIKE ? ESCAPE '\'
			OR LOWER(from_name) LIKE ? ESCAPE '\'
		ORDER BY received_date_time DESC
		LIMIT ?`,
		pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, storageErr("searching messages", err)
	}
	return rowsToMessages(rows)
}

// ClearMessages deletes every cached message.
func (s *SQLiteStore) ClearMessages(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return storageErr("clearing messages", err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
