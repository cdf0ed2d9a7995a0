package db

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

type (
	// ChatKey identifies a chat, optionally narrowed to a forum topic. Thread 0 means the whole chat.
	ChatKey struct {
		ChatID   int64 `db:"chat_id"`
		ThreadID int   `db:"thread_id"`
	}

	// WarningKey addresses a warning ledger: a chat and an offender, which is a user or a sender chat.
	WarningKey struct {
		ChatKey
		TargetID int64 `db:"target_id"`
	}

	BanSettings struct {
		ChatKey
		WarningsUntilBan int      `db:"warnings_until_ban" validate:"min=1"`
		AllowWarnAdmins  bool     `db:"allow_warn_admins"`
		WorkMode         WorkMode `db:"work_mode"`
	}

	Warning struct {
		ID        int64     `db:"id"`
		ChatID    int64     `db:"chat_id"`
		ThreadID  int       `db:"thread_id"`
		TargetID  int64     `db:"target_id"`
		MessageID int       `db:"message_id"`
		CreatedAt time.Time `db:"created_at"`
	}

	PassRecord struct {
		UserID     int64     `db:"user_id"`
		ChatID     int64     `db:"chat_id"`
		Passed     bool      `db:"passed"`
		Complexity int64     `db:"complexity"`
		UpdatedAt  time.Time `db:"updated_at"`
	}

	WelcomeSettings struct {
		ChatID          int64     `db:"chat_id"`
		ThreadID        int       `db:"thread_id"`
		SourceChatID    int64     `db:"source_chat_id" validate:"required"`
		SourceMessageID int       `db:"source_message_id" validate:"required"`
		UpdatedAt       time.Time `db:"updated_at"`
	}
)

// WorkMode scopes who may use the ban plugin in a chat.
type WorkMode uint8

const (
	WorkModeDisabled WorkMode = iota
	WorkModeEnabled
	WorkModeEnabledForAdmins
	WorkModeEnabledForUsers
)

const DefaultWarningsUntilBan = 3

var workModeNames = map[WorkMode]string{
	WorkModeDisabled:         "disabled",
	WorkModeEnabled:          "enabled",
	WorkModeEnabledForAdmins: "admins",
	WorkModeEnabledForUsers:  "users",
}

var validate = validator.New()

func (m WorkMode) String() string {
	if name, ok := workModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("WorkMode(%d)", uint8(m))
}

func ParseWorkMode(s string) (WorkMode, error) {
	for mode, name := range workModeNames {
		if strings.EqualFold(name, s) {
			return mode, nil
		}
	}
	return WorkModeDisabled, fmt.Errorf("unknown work mode %q", s)
}

// AllowsAdmin reports whether admins may act under the mode. Enabled counts for both roles.
func (m WorkMode) AllowsAdmin() bool {
	return m == WorkModeEnabled || m == WorkModeEnabledForAdmins
}

// AllowsUser reports whether non-admin members may act under the mode.
func (m WorkMode) AllowsUser() bool {
	return m == WorkModeEnabled || m == WorkModeEnabledForUsers
}

// Allows is the role-matching check used to gate warn actions.
func (m WorkMode) Allows(isAdmin bool) bool {
	if isAdmin {
		return m.AllowsAdmin()
	}
	return m.AllowsUser()
}

func (m WorkMode) Value() (driver.Value, error) {
	return m.String(), nil
}

func (m *WorkMode) Scan(v interface{}) error {
	switch data := v.(type) {
	case nil:
		*m = WorkModeEnabled
		return nil
	case string:
		mode, err := ParseWorkMode(data)
		if err != nil {
			return err
		}
		*m = mode
		return nil
	case []byte:
		return m.Scan(string(data))
	default:
		return fmt.Errorf("cannot scan type %T into WorkMode", v)
	}
}

func DefaultBanSettings(key ChatKey) *BanSettings {
	return &BanSettings{
		ChatKey:          key,
		WarningsUntilBan: DefaultWarningsUntilBan,
		AllowWarnAdmins:  true,
		WorkMode:         WorkModeEnabled,
	}
}

func (s *BanSettings) Validate() error {
	if s == nil {
		return errors.New("nil ban settings")
	}
	return errors.WithMessage(validate.Struct(s), "invalid ban settings")
}

func (s *WelcomeSettings) Validate() error {
	if s == nil {
		return errors.New("nil welcome settings")
	}
	return errors.WithMessage(validate.Struct(s), "invalid welcome settings")
}
