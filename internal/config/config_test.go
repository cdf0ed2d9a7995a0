package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestProcessAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Process(context.Background(), envconfig.MapLookuper(map[string]string{
		"NG_TOKEN":    "123:abc",
		"NG_DOT_PATH": "/tmp/ngguard",
	}))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if cfg.DefaultLanguage != "en" {
		t.Fatalf("unexpected language %q", cfg.DefaultLanguage)
	}
	if !cfg.Captcha.EnabledByDefault {
		t.Fatalf("captcha should be enabled by default")
	}
	if cfg.Admins.CacheTTL != 10*time.Minute {
		t.Fatalf("unexpected admins ttl %s", cfg.Admins.CacheTTL)
	}
	if len(cfg.EnabledHandlers) != 5 || cfg.EnabledHandlers[0] != "admins" {
		t.Fatalf("unexpected handlers %v", cfg.EnabledHandlers)
	}
	if cfg.Captcha.CASURL != "https://api.cas.chat/check?user_id=%d" {
		t.Fatalf("unexpected cas url %q", cfg.Captcha.CASURL)
	}
}

func TestProcessRequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := Process(context.Background(), envconfig.MapLookuper(map[string]string{})); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestProcessOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := Process(context.Background(), envconfig.MapLookuper(map[string]string{
		"NG_TOKEN":           "t",
		"NG_DOT_PATH":        "/tmp/x",
		"NG_LANG":            "RU",
		"NG_CAPTCHA_ENABLED": "false",
		"NG_CAS_PROVIDERS":   "cas,lols",
		"NG_REDIS_ADDR":      "localhost:6379",
	}))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if cfg.DefaultLanguage != "ru" {
		t.Fatalf("language not normalised: %q", cfg.DefaultLanguage)
	}
	if cfg.Captcha.EnabledByDefault {
		t.Fatalf("captcha default override ignored")
	}
	if len(cfg.Captcha.CASProviders) != 2 || cfg.Captcha.CASProviders[1] != "lols" {
		t.Fatalf("unexpected providers %v", cfg.Captcha.CASProviders)
	}
	if cfg.Admins.RedisAddr != "localhost:6379" {
		t.Fatalf("redis addr not read")
	}
}
