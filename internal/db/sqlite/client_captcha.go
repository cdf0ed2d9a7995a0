package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
)

func (c *sqliteClient) GetCaptchaSettings(ctx context.Context, chatID int64) (*db.CaptchaSettings, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var settings db.CaptchaSettings
	err := c.db.GetContext(ctx, &settings, `
		SELECT chat_id, provider, auto_remove_commands, auto_remove_events, kick_on_unsuccess,
			enabled, cas_enabled, react_on_join_request, auto_pass_known
		FROM captcha_settings
		WHERE chat_id = ?
	`, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get captcha settings: %w", err)
	}
	return &settings, nil
}

func (c *sqliteClient) SetCaptchaSettings(ctx context.Context, settings *db.CaptchaSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO captcha_settings (
			chat_id, provider, auto_remove_commands, auto_remove_events, kick_on_unsuccess,
			enabled, cas_enabled, react_on_join_request, auto_pass_known
		) VALUES (
			:chat_id, :provider, :auto_remove_commands, :auto_remove_events, :kick_on_unsuccess,
			:enabled, :cas_enabled, :react_on_join_request, :auto_pass_known
		)
		ON CONFLICT(chat_id) DO UPDATE SET
			provider = excluded.provider,
			auto_remove_commands = excluded.auto_remove_commands,
			auto_remove_events = excluded.auto_remove_events,
			kick_on_unsuccess = excluded.kick_on_unsuccess,
			enabled = excluded.enabled,
			cas_enabled = excluded.cas_enabled,
			react_on_join_request = excluded.react_on_join_request,
			auto_pass_known = excluded.auto_pass_known
	`
	if _, err := c.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("set captcha settings: %w", err)
	}
	return nil
}

func (c *sqliteClient) SetPassRecord(ctx context.Context, record *db.PassRecord) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}
	query := `
		INSERT INTO captcha_passes (user_id, chat_id, passed, complexity, updated_at)
		VALUES (:user_id, :chat_id, :passed, :complexity, :updated_at)
		ON CONFLICT(user_id, chat_id) DO UPDATE SET
			passed = excluded.passed,
			complexity = excluded.complexity,
			updated_at = excluded.updated_at
	`
	if _, err := c.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("set pass record: %w", err)
	}
	return nil
}

func (c *sqliteClient) GetPassRecord(ctx context.Context, userID, chatID int64) (*db.PassRecord, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var record db.PassRecord
	err := c.db.GetContext(ctx, &record, `
		SELECT user_id, chat_id, passed, complexity, updated_at
		FROM captcha_passes
		WHERE user_id = ? AND chat_id = ?
	`, userID, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pass record: %w", err)
	}
	return &record, nil
}

// HasPassed looks across every chat of the user.
func (c *sqliteClient) HasPassed(ctx context.Context, userID int64, minComplexity int64) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM captcha_passes
		WHERE user_id = ? AND passed = 1 AND complexity >= ?
	`, userID, minComplexity)
	if err != nil {
		return false, fmt.Errorf("check passes: %w", err)
	}
	return count > 0, nil
}
