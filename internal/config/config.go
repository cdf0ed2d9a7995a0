package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string        `env:"TOKEN,required"`
		DefaultLanguage  string        `env:"LANG,default=en"`
		EnabledHandlers  []string      `env:"HANDLERS,default=admins,captcha,welcome,bans,settings"`
		LogLevel         int           `env:"LOG_LEVEL,default=2"`
		DotPath          string        `env:"DOT_PATH,default=~/.ngguard"`
		Debug            bool          `env:"DEBUG,default=false"`
		UpdateTimeout    time.Duration `env:"UPDATE_TIMEOUT,default=5m"`
		Captcha          Captcha
		Admins           Admins
		Events           Events
		Metrics          Metrics
		Welcome          Welcome
	}

	Captcha struct {
		// EnabledByDefault is the enabled flag given to chats without stored captcha settings.
		EnabledByDefault bool          `env:"CAPTCHA_ENABLED,default=true"`
		CASProviders     []string      `env:"CAS_PROVIDERS,default=cas"`
		CASURL           string        `env:"CAS_URL,default=https://api.cas.chat/check?user_id=%d"`
		LolsURL          string        `env:"LOLS_URL,default=https://api.lols.bot/account?id=%d"`
		CASTimeout       time.Duration `env:"CAS_TIMEOUT,default=5s"`
		MaxConcurrent    int           `env:"CAPTCHA_MAX_CONCURRENT,default=32"`
	}

	Admins struct {
		CacheTTL      time.Duration `env:"ADMINS_CACHE_TTL,default=10m"`
		RedisAddr     string        `env:"REDIS_ADDR"`
		RedisPassword string        `env:"REDIS_PASSWORD"`
		RedisDB       int           `env:"REDIS_DB,default=0"`
	}

	Events struct {
		NatsURL       string `env:"NATS_URL"`
		SubjectPrefix string `env:"NATS_SUBJECT_PREFIX,default=ngguard"`
		QueueSize     int    `env:"EVENTS_QUEUE_SIZE,default=256"`
	}

	Metrics struct {
		Addr string `env:"METRICS_ADDR,default=:2112"`
	}

	Welcome struct {
		RecacheChatID int64 `env:"WELCOME_RECACHE_CHAT_ID"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.WithField("error", err.Error()).Warn("cant read .env")
		}
		cfg, err := Process(context.Background(), envconfig.OsLookuper())
		if err != nil {
			globalErr = err
			return
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

// Process reads the NG_ prefixed variables through the given lookuper.
func Process(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	envcfg := envconfig.Config{
		Lookuper: envconfig.PrefixLookuper("NG_", lookuper),
		Target:   cfg,
	}
	if err := envconfig.ProcessWith(ctx, &envcfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	dotPath, err := homedir.Expand(cfg.DotPath)
	if err != nil {
		return nil, fmt.Errorf("expand dot path: %w", err)
	}
	cfg.DotPath = dotPath
	cfg.DefaultLanguage = strings.ToLower(cfg.DefaultLanguage)
	return cfg, nil
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
