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

// InitializeFeedbackRecord creates the ledger row for a sent message if one
// does not exist yet. Calling it twice for the same message id is a no-op;
// only UpdateFeedback mutates counters. Safe under concurrent first-feedback
// events: losing a creation race is treated as success.
func (s *Store) InitializeFeedbackRecord(ctx context.Context, messageID, delegatedCapability string) error {
	if messageID == "" {
		return errors.New("message_id is required")
	}
	if existing := s.FeedbackByMessageID(ctx, messageID); existing != nil {
		return nil
	}
	now := Timestamp(time.Now())
	capability := sql.NullString{String: delegatedCapability, Valid: delegatedCapability != ""}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (message_id, likes, dislikes, delegated_capability, created_at, updated_at)
		 VALUES (?, 0, 0, ?, ?, ?)`,
		messageID, capability, now, now,
	)
	if err != nil {
		// a concurrent initializer may have taken the unique slot first
		if s.FeedbackByMessageID(ctx, messageID) != nil {
			return nil
		}
		return fmt.Errorf("initialize feedback record: %w", err)
	}
	return nil
}

// StoreDelegatedCapability records which capability produced the message that
// was just sent. Repeated calls for the same id overwrite harmlessly.
func (s *Store) StoreDelegatedCapability(ctx context.Context, messageID, capability string) error {
	if messageID == "" {
		return errors.New("message_id is required")
	}
	now := Timestamp(time.Now())
	delegated := sql.NullString{String: capability, Valid: capability != ""}
	update := func() (bool, error) {
		res, err := s.db.ExecContext(ctx,
			`UPDATE feedback SET delegated_capability = ?, updated_at = ? WHERE message_id = ?`,
			delegated, now, messageID,
		)
		if err != nil {
			return false, err
		}
		affected, err := res.RowsAffected()
		return err == nil && affected > 0, nil
	}
	done, err := update()
	if err != nil {
		return fmt.Errorf("store delegated capability: %w", err)
	}
	if done {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feedback (message_id, likes, dislikes, delegated_capability, created_at, updated_at)
		 VALUES (?, 0, 0, ?, ?, ?)`,
		messageID, delegated, now, now,
	)
	if err != nil {
		// the row may have been inserted concurrently; update it instead
		if done, uerr := update(); uerr == nil && done {
			return nil
		}
		return fmt.Errorf("store delegated capability: %w", err)
	}
	return nil
}

// FeedbackByMessageID returns the ledger entry for a message, or nil when no
// record exists.
func (s *Store) FeedbackByMessageID(ctx context.Context, messageID string) *models.Feedback {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, message_id, likes, dislikes, delegated_capability, created_at, updated_at
		 FROM feedback WHERE message_id = ?`, messageID)
	fb, err := scanFeedback(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("feedback by message id failed", zap.String("message_id", messageID), zap.Error(err))
		}
		return nil
	}
	fb.Comments = s.commentsByMessageID(ctx, messageID)
	return fb
}

// UpdateFeedback increments the counter matching reaction and appends any
// free-text comment. The counter bump is a single statement, so concurrent
// reactions to the same message all land. Returns false when no record
// exists; callers must initialize first.
func (s *Store) UpdateFeedback(ctx context.Context, messageID, reaction, comment string) bool {
	var likes, dislikes int
	switch reaction {
	case models.ReactionLike:
		likes = 1
	case models.ReactionDislike:
		dislikes = 1
	}
	now := Timestamp(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE feedback SET likes = likes + ?, dislikes = dislikes + ?, updated_at = ? WHERE message_id = ?`,
		likes, dislikes, now, messageID,
	)
	if err != nil {
		s.logger.Error("update feedback failed", zap.String("message_id", messageID), zap.Error(err))
		return false
	}
	affected, err := res.RowsAffected()
	if err != nil {
		s.logger.Error("update feedback rows failed", zap.String("message_id", messageID), zap.Error(err))
		return false
	}
	if affected == 0 {
		return false
	}
	if comment != "" {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO feedback_comments (message_id, comment, created_at) VALUES (?, ?, ?)`,
			messageID, comment, now,
		)
		if err != nil {
			// the reaction is already counted; losing the comment is logged only
			s.logger.Error("store feedback comment failed", zap.String("message_id", messageID), zap.Error(err))
		}
	}
	return true
}

// AllFeedback returns every ledger entry, newest first.
func (s *Store) AllFeedback(ctx context.Context) []models.Feedback {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, likes, dislikes, delegated_capability, created_at, updated_at
		 FROM feedback ORDER BY id DESC`)
	if err != nil {
		s.logger.Error("all feedback query failed", zap.Error(err))
		return nil
	}
	defer rows.Close()

	var records []models.Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			s.logger.Error("scan feedback failed", zap.Error(err))
			return records
		}
		records = append(records, *fb)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("feedback rows failed", zap.Error(err))
	}

	comments := s.allComments(ctx)
	for i := range records {
		records[i].Comments = comments[records[i].MessageID]
	}
	return records
}

// FeedbackSummary aggregates like/dislike totals across the ledger.
type FeedbackSummary struct {
	Records   int     `json:"records"`
	Likes     int     `json:"likes"`
	Dislikes  int     `json:"dislikes"`
	LikeRatio float64 `json:"like_ratio"`
}

// SummarizeFeedback computes aggregate totals and the like ratio for
// diagnostics.
func (s *Store) SummarizeFeedback(ctx context.Context) FeedbackSummary {
	var out FeedbackSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(likes), 0), COALESCE(SUM(dislikes), 0) FROM feedback`,
	).Scan(&out.Records, &out.Likes, &out.Dislikes)
	if err != nil {
		s.logger.Error("feedback summary failed", zap.Error(err))
		return FeedbackSummary{}
	}
	if total := out.Likes + out.Dislikes; total > 0 {
		out.LikeRatio = float64(out.Likes) / float64(total)
	}
	return out
}

// ClearFeedback removes every ledger entry with its comments and returns the
// entry count.
func (s *Store) ClearFeedback(ctx context.Context) int64 {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM feedback_comments`); err != nil {
		s.logger.Error("clear feedback comments failed", zap.Error(err))
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM feedback`)
	if err != nil {
		s.logger.Error("clear feedback failed", zap.Error(err))
		return 0
	}
	n, _ := res.RowsAffected()
	return n
}

func (s *Store) commentsByMessageID(ctx context.Context, messageID string) []string {
	rows, err := s.db.QueryContext(ctx,
		`SELECT comment FROM feedback_comments WHERE message_id = ? ORDER BY id ASC`, messageID)
	if err != nil {
		s.logger.Error("feedback comments query failed", zap.String("message_id", messageID), zap.Error(err))
		return nil
	}
	defer rows.Close()

	var comments []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			s.logger.Error("scan feedback comment failed", zap.String("message_id", messageID), zap.Error(err))
			return comments
		}
		comments = append(comments, c)
	}
	return comments
}

func (s *Store) allComments(ctx context.Context) map[string][]string {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, comment FROM feedback_comments ORDER BY id ASC`)
	if err != nil {
		s.logger.Error("feedback comments query failed", zap.Error(err))
		return nil
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var id, c string
		if err := rows.Scan(&id, &c); err != nil {
			s.logger.Error("scan feedback comment failed", zap.Error(err))
			return out
		}
		out[id] = append(out[id], c)
	}
	return out
}

func scanFeedback(row rowScanner) (*models.Feedback, error) {
	var fb models.Feedback
	var capability sql.NullString
	err := row.Scan(&fb.ID, &fb.MessageID, &fb.Likes, &fb.Dislikes, &capability, &fb.CreatedAt, &fb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	fb.DelegatedCapability = capability.String
	return &fb, nil
}
