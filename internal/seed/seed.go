// Package seed loads demo fixtures into the store, for local development
// against an empty database.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"teamassist/internal/models"
	"teamassist/internal/storage"
)

type fixture struct {
	Messages    []models.Message    `json:"messages"`
	ActionItems []models.ActionItem `json:"action_items"`
}

// Load inserts the fixture file's messages and action items. Messages keep
// their fixture timestamps; empty timestamps get the insertion time.
func Load(ctx context.Context, path string, store *storage.Store, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return fmt.Errorf("decode seed file: %w", err)
	}

	for _, m := range fx.Messages {
		if _, err := store.InsertMessage(ctx, m); err != nil {
			return fmt.Errorf("seed message: %w", err)
		}
	}
	for _, item := range fx.ActionItems {
		if _, err := store.CreateActionItem(ctx, item); err != nil {
			return fmt.Errorf("seed action item: %w", err)
		}
	}
	logger.Info("seed fixtures loaded", zap.String("path", path),
		zap.Int("messages", len(fx.Messages)), zap.Int("action_items", len(fx.ActionItems)))
	return nil
}
