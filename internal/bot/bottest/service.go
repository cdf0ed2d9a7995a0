package bottest

import (
	"context"
	"testing"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db/sqlite"
)

// NewService builds a real service over a temporary sqlite database and the recording client.
func NewService(t testing.TB, client *Client, opts bot.ServiceOptions) bot.Service {
	t.Helper()
	dbClient, err := sqlite.NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = dbClient.Close() })
	return bot.NewService(client, dbClient, opts)
}
