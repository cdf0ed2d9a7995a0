package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

type ProviderKind string

const (
	ProviderSimple      ProviderKind = "simple"
	ProviderSlotMachine ProviderKind = "slot_machine"
	ProviderExpression  ProviderKind = "expression"
)

const (
	DefaultCheckTimeSeconds = 60

	DefaultExpressionMaxPerNumber = 10
	DefaultExpressionOperations   = 2
	DefaultExpressionAnswers      = 6
	DefaultExpressionAttempts     = 3
)

type (
	// ProviderConfig is the persisted form of a captcha provider. Expression knobs are ignored by the
	// other kinds. Empty texts fall back to the translated defaults.
	ProviderConfig struct {
		Kind             ProviderKind `json:"kind" validate:"oneof=simple slot_machine expression"`
		CheckTimeSeconds int          `json:"check_time" validate:"min=15,max=300"`
		CaptchaText      string       `json:"captcha_text,omitempty"`
		ButtonText       string       `json:"button_text,omitempty"`

		MaxPerNumber int `json:"max_per_number,omitempty" validate:"omitempty,min=1,max=1000"`
		Operations   int `json:"operations,omitempty" validate:"omitempty,min=1,max=10"`
		Answers      int `json:"answers,omitempty" validate:"omitempty,min=2,max=10"`
		Attempts     int `json:"attempts,omitempty" validate:"omitempty,min=1,max=10"`
	}

	CaptchaSettings struct {
		ChatID             int64          `db:"chat_id"`
		Provider           ProviderConfig `db:"provider"`
		AutoRemoveCommands bool           `db:"auto_remove_commands"`
		AutoRemoveEvents   bool           `db:"auto_remove_events"`
		KickOnUnsuccess    bool           `db:"kick_on_unsuccess"`
		Enabled            bool           `db:"enabled"`
		CASEnabled         bool           `db:"cas_enabled"`
		ReactOnJoinRequest bool           `db:"react_on_join_request"`
		AutoPassKnown      bool           `db:"auto_pass_known"`
	}
)

func NewProviderConfig(kind ProviderKind) ProviderConfig {
	cfg := ProviderConfig{
		Kind:             kind,
		CheckTimeSeconds: DefaultCheckTimeSeconds,
	}
	if kind == ProviderExpression {
		cfg.MaxPerNumber = DefaultExpressionMaxPerNumber
		cfg.Operations = DefaultExpressionOperations
		cfg.Answers = DefaultExpressionAnswers
		cfg.Attempts = DefaultExpressionAttempts
	}
	return cfg
}

// WithKind switches the provider kind keeping the check time and texts.
func (p ProviderConfig) WithKind(kind ProviderKind) ProviderConfig {
	next := NewProviderConfig(kind)
	next.CheckTimeSeconds = p.CheckTimeSeconds
	next.CaptchaText = p.CaptchaText
	next.ButtonText = p.ButtonText
	if kind == ProviderExpression && p.Kind == ProviderExpression {
		next.MaxPerNumber = p.MaxPerNumber
		next.Operations = p.Operations
		next.Answers = p.Answers
		next.Attempts = p.Attempts
	}
	return next
}

func (p ProviderConfig) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (p *ProviderConfig) Scan(v interface{}) error {
	switch data := v.(type) {
	case nil:
		*p = NewProviderConfig(ProviderSimple)
		return nil
	case string:
		return json.Unmarshal([]byte(data), p)
	case []byte:
		return json.Unmarshal(data, p)
	default:
		return fmt.Errorf("cannot scan type %T into ProviderConfig", v)
	}
}

func DefaultCaptchaSettings(chatID int64, enabled bool) *CaptchaSettings {
	return &CaptchaSettings{
		ChatID:           chatID,
		Provider:         NewProviderConfig(ProviderSimple),
		AutoRemoveEvents: true,
		KickOnUnsuccess:  true,
		Enabled:          enabled,
	}
}

func (s *CaptchaSettings) Validate() error {
	if s == nil {
		return errors.New("nil captcha settings")
	}
	return errors.WithMessage(validate.Struct(s), "invalid captcha settings")
}
