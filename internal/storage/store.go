package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"teamassist/internal/models"
)

// Store is the durable CRUD and query surface over messages, action items and
// feedback. Read operations degrade to empty results on internal failure
// (logged) rather than propagating; writes that cannot degrade return an
// explicit error or boolean failure signal.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New wraps an opened database handle. The schema must already be migrated.
func New(db *sql.DB, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}, nil
}

// InsertMessage appends a message row and returns the generated id. The store
// does not enforce timestamp monotonicity; callers supply timestamps already
// rendered with Timestamp.
func (s *Store) InsertMessage(ctx context.Context, m models.Message) (int64, error) {
	if m.ConversationID == "" {
		return 0, errors.New("conversation_id is required")
	}
	if m.Timestamp == "" {
		m.Timestamp = Timestamp(time.Now())
	}
	activity := sql.NullString{String: m.ActivityID, Valid: m.ActivityID != ""}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, name, timestamp, activity_id) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ConversationID, m.Role, m.Content, m.Name, m.Timestamp, activity,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message id: %w", err)
	}
	return id, nil
}

// MessagesByTimeRange returns the conversation's messages ordered ascending by
// timestamp. Bounds are optional and inclusive, compared lexically against the
// stored canonical format.
func (s *Store) MessagesByTimeRange(ctx context.Context, conversationID, start, end string) []models.Message {
	query := `SELECT id, conversation_id, role, content, name, timestamp, activity_id FROM messages WHERE conversation_id = ?`
	args := []any{conversationID}
	if start != "" {
		query += ` AND timestamp >= ?`
		args = append(args, start)
	}
	if end != "" {
		query += ` AND timestamp <= ?`
		args = append(args, end)
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("messages by time range query failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	defer rows.Close()
	return s.scanMessages(rows, conversationID)
}

// RecentMessages returns the limit most recently inserted messages for the
// conversation, re-ordered oldest-first.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) []models.Message {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, name, timestamp, activity_id
		 FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		s.logger.Error("recent messages query failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	defer rows.Close()

	msgs := s.scanMessages(rows, conversationID)
	// rows came newest-first; flip to chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}

// MessageCount returns the number of stored messages for the conversation,
// or -1 on failure.
func (s *Store) MessageCount(ctx context.Context, conversationID string) int {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID,
	).Scan(&n)
	if err != nil {
		s.logger.Error("message count query failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return -1
	}
	return n
}

// Conversations lists every distinct conversation key with a message count,
// used by the operator command surface.
func (s *Store) Conversations(ctx context.Context) map[string]int {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, COUNT(*) FROM messages GROUP BY conversation_id`)
	if err != nil {
		s.logger.Error("conversations query failed", zap.Error(err))
		return nil
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			s.logger.Error("scan conversation row failed", zap.Error(err))
			return out
		}
		out[id] = n
	}
	return out
}

// ClearConversation removes all messages for a conversation. Action items and
// feedback are untouched.
func (s *Store) ClearConversation(ctx context.Context, conversationID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("clear conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear conversation rows: %w", err)
	}
	return n, nil
}

func (s *Store) scanMessages(rows *sql.Rows, conversationID string) []models.Message {
	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var activity sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Name, &m.Timestamp, &activity); err != nil {
			s.logger.Error("scan message failed",
				zap.String("conversation_id", conversationID), zap.Error(err))
			return msgs
		}
		m.ActivityID = activity.String
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("message rows failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return msgs
}
