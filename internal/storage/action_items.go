package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"teamassist/internal/models"
)

const actionItemColumns = `id, conversation_id, title, description, assigned_to, assigned_to_id,
	assigned_by, assigned_by_id, status, priority, due_date, created_at, updated_at, updated_by, source_message_ids`

// CreateActionItem inserts a new item, stamping created/updated timestamps,
// and returns the persisted record including the generated id.
func (s *Store) CreateActionItem(ctx context.Context, item models.ActionItem) (*models.ActionItem, error) {
	if item.ConversationID == "" {
		return nil, errors.New("conversation_id is required")
	}
	if item.Title == "" {
		return nil, errors.New("title is required")
	}
	if item.Status == "" {
		item.Status = models.StatusPending
	}
	if !models.ValidStatus(item.Status) {
		return nil, fmt.Errorf("invalid status: %s", item.Status)
	}
	if item.Priority == "" {
		item.Priority = models.PriorityMedium
	}
	if !models.ValidPriority(item.Priority) {
		return nil, fmt.Errorf("invalid priority: %s", item.Priority)
	}

	now := Timestamp(time.Now())
	item.CreatedAt = now
	item.UpdatedAt = now

	var sources sql.NullString
	if len(item.SourceMessageIDs) > 0 {
		raw, err := json.Marshal(item.SourceMessageIDs)
		if err != nil {
			return nil, fmt.Errorf("encode source message ids: %w", err)
		}
		sources = sql.NullString{String: string(raw), Valid: true}
	}
	due := sql.NullString{String: item.DueDate, Valid: item.DueDate != ""}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO action_items (conversation_id, title, description, assigned_to, assigned_to_id,
			assigned_by, assigned_by_id, status, priority, due_date, created_at, updated_at, updated_by, source_message_ids)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ConversationID, item.Title, item.Description, item.AssignedTo, item.AssignedToID,
		item.AssignedBy, item.AssignedByID, item.Status, item.Priority, due, item.CreatedAt, item.UpdatedAt, item.UpdatedBy, sources,
	)
	if err != nil {
		return nil, fmt.Errorf("create action item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("action item id: %w", err)
	}
	item.ID = id
	return &item, nil
}

// ActionItemsByConversation returns every item for a conversation, newest
// first. No pagination; full result sets are returned.
func (s *Store) ActionItemsByConversation(ctx context.Context, conversationID string) []models.ActionItem {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+actionItemColumns+` FROM action_items WHERE conversation_id = ? ORDER BY id DESC`,
		conversationID,
	)
	if err != nil {
		s.logger.Error("action items by conversation failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	defer rows.Close()
	return s.scanActionItems(rows)
}

// ActionItemsForUser returns items whose assignee name or id matches,
// across all conversations.
func (s *Store) ActionItemsForUser(ctx context.Context, nameOrID string) []models.ActionItem {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+actionItemColumns+` FROM action_items
		 WHERE assigned_to = ? OR assigned_to_id = ? ORDER BY id DESC`,
		nameOrID, nameOrID,
	)
	if err != nil {
		s.logger.Error("action items for user failed", zap.String("assignee", nameOrID), zap.Error(err))
		return nil
	}
	defer rows.Close()
	return s.scanActionItems(rows)
}

// ActionItemsByUserID returns items assigned to the given stable user id,
// across all conversations (the personal view).
func (s *Store) ActionItemsByUserID(ctx context.Context, userID string) []models.ActionItem {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+actionItemColumns+` FROM action_items WHERE assigned_to_id = ? ORDER BY id DESC`,
		userID,
	)
	if err != nil {
		s.logger.Error("action items by user id failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	defer rows.Close()
	return s.scanActionItems(rows)
}

// ActionItemByID returns one item, or nil when it does not exist.
func (s *Store) ActionItemByID(ctx context.Context, id int64) *models.ActionItem {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+actionItemColumns+` FROM action_items WHERE id = ?`, id)
	item, err := scanActionItem(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("action item by id failed", zap.Int64("id", id), zap.Error(err))
		}
		return nil
	}
	return item
}

// UpdateActionItemStatus moves an item to newStatus, stamping updated_at and
// recording who changed it. The assigner fields are creation-time attributes
// and are never touched here. Returns false when no item with the id exists,
// so callers can render a friendly not-found message instead of an error.
func (s *Store) UpdateActionItemStatus(ctx context.Context, id int64, newStatus models.ItemStatus, updatedBy string) bool {
	if !models.ValidStatus(newStatus) {
		s.logger.Warn("rejecting unknown action item status",
			zap.Int64("id", id), zap.String("status", string(newStatus)))
		return false
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE action_items SET status = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
		newStatus, updatedBy, Timestamp(time.Now()), id,
	)
	if err != nil {
		s.logger.Error("update action item status failed", zap.Int64("id", id), zap.Error(err))
		return false
	}
	affected, err := res.RowsAffected()
	if err != nil {
		s.logger.Error("update action item rows failed", zap.Int64("id", id), zap.Error(err))
		return false
	}
	return affected > 0
}

// ClearActionItems bulk-deletes a conversation's items and returns the count.
func (s *Store) ClearActionItems(ctx context.Context, conversationID string) int64 {
	res, err := s.db.ExecContext(ctx, `DELETE FROM action_items WHERE conversation_id = ?`, conversationID)
	if err != nil {
		s.logger.Error("clear action items failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return 0
	}
	n, _ := res.RowsAffected()
	return n
}

// ClearAllActionItems bulk-deletes every item and returns the count.
func (s *Store) ClearAllActionItems(ctx context.Context) int64 {
	res, err := s.db.ExecContext(ctx, `DELETE FROM action_items`)
	if err != nil {
		s.logger.Error("clear all action items failed", zap.Error(err))
		return 0
	}
	n, _ := res.RowsAffected()
	return n
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActionItem(row rowScanner) (*models.ActionItem, error) {
	var item models.ActionItem
	var due, sources sql.NullString
	err := row.Scan(&item.ID, &item.ConversationID, &item.Title, &item.Description,
		&item.AssignedTo, &item.AssignedToID, &item.AssignedBy, &item.AssignedByID,
		&item.Status, &item.Priority, &due, &item.CreatedAt, &item.UpdatedAt, &item.UpdatedBy, &sources)
	if err != nil {
		return nil, err
	}
	item.DueDate = due.String
	if sources.Valid && sources.String != "" {
		// best effort; a corrupt blob loses only the source references
		_ = json.Unmarshal([]byte(sources.String), &item.SourceMessageIDs)
	}
	return &item, nil
}

func (s *Store) scanActionItems(rows *sql.Rows) []models.ActionItem {
	var items []models.ActionItem
	for rows.Next() {
		item, err := scanActionItem(rows)
		if err != nil {
			s.logger.Error("scan action item failed", zap.Error(err))
			return items
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("action item rows failed", zap.Error(err))
	}
	return items
}
