package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
)

func (c *sqliteClient) GetBanSettings(ctx context.Context, key db.ChatKey) (*db.BanSettings, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var settings db.BanSettings
	err := c.db.GetContext(ctx, &settings, `
		SELECT chat_id, thread_id, warnings_until_ban, allow_warn_admins, work_mode
		FROM ban_settings
		WHERE chat_id = ? AND thread_id = ?
	`, key.ChatID, key.ThreadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ban settings: %w", err)
	}
	return &settings, nil
}

func (c *sqliteClient) SetBanSettings(ctx context.Context, settings *db.BanSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO ban_settings (chat_id, thread_id, warnings_until_ban, allow_warn_admins, work_mode)
		VALUES (:chat_id, :thread_id, :warnings_until_ban, :allow_warn_admins, :work_mode)
		ON CONFLICT(chat_id, thread_id) DO UPDATE SET
			warnings_until_ban = excluded.warnings_until_ban,
			allow_warn_admins = excluded.allow_warn_admins,
			work_mode = excluded.work_mode
	`
	if _, err := c.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("set ban settings: %w", err)
	}
	return nil
}

func (c *sqliteClient) AddWarning(ctx context.Context, key db.WarningKey, messageID int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO warnings (chat_id, thread_id, target_id, message_id, created_at)
		VALUES (?, ?, ?, ?, datetime('now'))
	`, key.ChatID, key.ThreadID, key.TargetID, messageID)
	if err != nil {
		return fmt.Errorf("add warning: %w", err)
	}
	return nil
}

func (c *sqliteClient) GetWarnings(ctx context.Context, key db.WarningKey) ([]*db.Warning, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var warnings []*db.Warning
	err := c.db.SelectContext(ctx, &warnings, `
		SELECT id, chat_id, thread_id, target_id, message_id, created_at
		FROM warnings
		WHERE chat_id = ? AND thread_id = ? AND target_id = ?
		ORDER BY id
	`, key.ChatID, key.ThreadID, key.TargetID)
	if err != nil {
		return nil, fmt.Errorf("get warnings: %w", err)
	}
	return warnings, nil
}

func (c *sqliteClient) CountWarnings(ctx context.Context, key db.WarningKey) (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM warnings WHERE chat_id = ? AND thread_id = ? AND target_id = ?
	`, key.ChatID, key.ThreadID, key.TargetID)
	if err != nil {
		return 0, fmt.Errorf("count warnings: %w", err)
	}
	return count, nil
}

// ReplaceWarnings clears the ledger and re-appends the given entries in order, in one transaction.
func (c *sqliteClient) ReplaceWarnings(ctx context.Context, key db.WarningKey, warnings []*db.Warning) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM warnings WHERE chat_id = ? AND thread_id = ? AND target_id = ?
	`, key.ChatID, key.ThreadID, key.TargetID); err != nil {
		return fmt.Errorf("clear warnings: %w", err)
	}

	for _, w := range warnings {
		if w == nil {
			continue
		}
		createdAt := w.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO warnings (chat_id, thread_id, target_id, message_id, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, key.ChatID, key.ThreadID, key.TargetID, w.MessageID, createdAt); err != nil {
			return fmt.Errorf("reinsert warning: %w", err)
		}
	}
	return tx.Commit()
}

func (c *sqliteClient) ClearWarnings(ctx context.Context, key db.WarningKey) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `
		DELETE FROM warnings WHERE chat_id = ? AND thread_id = ? AND target_id = ?
	`, key.ChatID, key.ThreadID, key.TargetID)
	if err != nil {
		return fmt.Errorf("clear warnings: %w", err)
	}
	return nil
}
