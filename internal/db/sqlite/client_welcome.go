package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
)

func (c *sqliteClient) GetWelcomeSettings(ctx context.Context, chatID int64) (*db.WelcomeSettings, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var settings db.WelcomeSettings
	err := c.db.GetContext(ctx, &settings, `
		SELECT chat_id, thread_id, source_chat_id, source_message_id, updated_at
		FROM welcome_settings
		WHERE chat_id = ?
	`, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get welcome settings: %w", err)
	}
	return &settings, nil
}

func (c *sqliteClient) SetWelcomeSettings(ctx context.Context, settings *db.WelcomeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	settings.UpdatedAt = time.Now()
	query := `
		INSERT INTO welcome_settings (chat_id, thread_id, source_chat_id, source_message_id, updated_at)
		VALUES (:chat_id, :thread_id, :source_chat_id, :source_message_id, :updated_at)
		ON CONFLICT(chat_id) DO UPDATE SET
			thread_id = excluded.thread_id,
			source_chat_id = excluded.source_chat_id,
			source_message_id = excluded.source_message_id,
			updated_at = excluded.updated_at
	`
	if _, err := c.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("set welcome settings: %w", err)
	}
	return nil
}

func (c *sqliteClient) DeleteWelcomeSettings(ctx context.Context, chatID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM welcome_settings WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete welcome settings: %w", err)
	}
	return nil
}
