package db

import "context"

type (
	BanSettingsStore interface {
		GetBanSettings(ctx context.Context, key ChatKey) (*BanSettings, error)
		SetBanSettings(ctx context.Context, settings *BanSettings) error
	}

	WarningsStore interface {
		AddWarning(ctx context.Context, key WarningKey, messageID int) error
		GetWarnings(ctx context.Context, key WarningKey) ([]*Warning, error)
		CountWarnings(ctx context.Context, key WarningKey) (int, error)
		ReplaceWarnings(ctx context.Context, key WarningKey, warnings []*Warning) error
		ClearWarnings(ctx context.Context, key WarningKey) error
	}

	CaptchaSettingsStore interface {
		GetCaptchaSettings(ctx context.Context, chatID int64) (*CaptchaSettings, error)
		SetCaptchaSettings(ctx context.Context, settings *CaptchaSettings) error
	}

	PassStore interface {
		SetPassRecord(ctx context.Context, record *PassRecord) error
		GetPassRecord(ctx context.Context, userID, chatID int64) (*PassRecord, error)
		HasPassed(ctx context.Context, userID int64, minComplexity int64) (bool, error)
	}

	WelcomeStore interface {
		GetWelcomeSettings(ctx context.Context, chatID int64) (*WelcomeSettings, error)
		SetWelcomeSettings(ctx context.Context, settings *WelcomeSettings) error
		DeleteWelcomeSettings(ctx context.Context, chatID int64) error
	}

	KVStore interface {
		GetKV(ctx context.Context, key string) (string, error)
		SetKV(ctx context.Context, key string, value string) error
		DeleteKV(ctx context.Context, key string) error
	}

	Client interface {
		BanSettingsStore
		WarningsStore
		CaptchaSettingsStore
		PassStore
		WelcomeStore
		KVStore
		Close() error
	}
)
