package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (c *sqliteClient) GetKV(ctx context.Context, key string) (string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var value string
	err := c.db.GetContext(ctx, &value, `SELECT value FROM kv_store WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get value for key %s: %w", key, err)
	}
	return value, nil
}

func (c *sqliteClient) SetKV(ctx context.Context, key string, value string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := c.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set value for key %s: %w", key, err)
	}
	return nil
}

func (c *sqliteClient) DeleteKV(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete key %s: %w", key, err)
	}
	return nil
}
