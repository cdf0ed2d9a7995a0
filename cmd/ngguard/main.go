package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/admins"
	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/cas"
	"github.com/iamwavecut/ngguard/internal/commands"
	"github.com/iamwavecut/ngguard/internal/config"
	"github.com/iamwavecut/ngguard/internal/db/sqlite"
	"github.com/iamwavecut/ngguard/internal/event"
	"github.com/iamwavecut/ngguard/internal/handlers/bans"
	"github.com/iamwavecut/ngguard/internal/handlers/captcha"
	"github.com/iamwavecut/ngguard/internal/handlers/settings"
	"github.com/iamwavecut/ngguard/internal/handlers/welcome"
	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/infra"
	"github.com/iamwavecut/ngguard/internal/lifecycle"
	"github.com/iamwavecut/ngguard/internal/observability"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	log.SetFormatter(&config.NbFormatter{})
	log.SetOutput(os.Stdout)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		log.WithField("error", err.Error()).Error("cant initialize bot api")
		time.Sleep(1 * time.Second)
		log.Fatal("exiting")
	}
	botAPI.Debug = cfg.Debug || log.Level(cfg.LogLevel) == log.TraceLevel

	workDir, err := infra.GetWorkDir(cfg.DotPath)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cant prepare work dir")
	}
	dbClient, err := sqlite.NewSQLiteClient(ctx, workDir, "bot.db")
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cant open database")
	}
	defer dbClient.Close()

	supportedLanguages := i18n.GetLanguagesList()
	service := bot.NewService(botAPI, dbClient, bot.ServiceOptions{
		DefaultLanguage:         cfg.DefaultLanguage,
		CaptchaEnabledByDefault: cfg.Captcha.EnabledByDefault,
		SupportedLanguages:      supportedLanguages,
	})

	var adminStore admins.Store
	if cfg.Admins.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Admins.RedisAddr,
			Password: cfg.Admins.RedisPassword,
			DB:       cfg.Admins.RedisDB,
		})
		defer rdb.Close()
		adminStore = admins.NewRedisStore(rdb)
	}
	adminsCache := admins.NewCache(botAPI, adminStore, cfg.Admins.CacheTTL)

	bus := event.NewBus(cfg.Events.QueueSize)
	bus.Subscribe(observability.RecordEvent)
	if cfg.Events.NatsURL != "" {
		conn, err := event.ConnectNats(cfg.Events.NatsURL)
		if err != nil {
			log.WithField("error", err.Error()).Warn("moderation events will not be published to nats")
		} else {
			defer conn.Close()
			bus.Subscribe(event.NewNatsSink(conn, cfg.Events.SubjectPrefix).Handle)
		}
	}

	casChecker := cas.New(cfg.Captcha.CASProviders, cfg.Captcha.CASURL, cfg.Captcha.LolsURL, cfg.Captcha.CASTimeout)
	engine := captcha.NewEngine(service, adminsCache, casChecker, bus, captcha.Options{MaxConcurrent: cfg.Captcha.MaxConcurrent})
	panel := settings.NewPanel(service, adminsCache)
	welcomeHandler := welcome.NewWelcome(service, adminsCache, panel, cfg.Welcome.RecacheChatID)
	bansHandler := bans.NewBans(service, adminsCache, bus)
	panel.Register(
		bans.NewDrawer(service),
		captcha.NewDrawer(service),
		welcome.NewDrawer(service),
	)

	registry := bot.NewRegistry()
	registry.RegisterUpdateHandler("admins", adminsCache)
	registry.RegisterUpdateHandler("captcha", engine)
	registry.RegisterUpdateHandler("welcome", welcomeHandler)
	registry.RegisterUpdateHandler("bans", bansHandler)
	registry.RegisterUpdateHandler("settings", panel)
	updateProcessor := bot.NewUpdateProcessor(registry, cfg.EnabledHandlers, cfg.UpdateTimeout).
		WithObserver(observability.ObserveHandler)

	botCommands := commands.NewRegistry(botAPI, supportedLanguages...)
	botCommands.Declare(engine, welcomeHandler, bansHandler, panel)

	components := lifecycle.NewRuntime()
	components.Register("observability", observability.NewServer(cfg.Metrics.Addr))
	components.Register("event_bus", bus)
	components.Register("captcha", engine)
	components.Register("commands", botCommands)
	if err := components.Start(ctx); err != nil {
		log.WithField("error", err.Error()).Fatal("cant start components")
	}

	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateConfig.AllowedUpdates = []string{"message", "callback_query", "chat_join_request", "chat_member", "my_chat_member"}

	done := make(chan struct{})
	go infra.GoRecoverable(-1, "process_updates", func() {
		updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)
		for {
			select {
			case err, ok := <-errorChan:
				if ok && ctx.Err() == nil {
					log.WithField("error", err.Error()).Error("bot api get updates error")
				}
				close(done)
				return
			case update, ok := <-updateChan:
				if !ok {
					updateChan = nil
					continue
				}
				if err := updateProcessor.Process(ctx, &update); err != nil {
					log.WithField("error", err.Error()).Error("cant process update")
				}
			}
		}
	})

	execChanged := infra.MonitorExecutable(ctx)
	for waiting := true; waiting; {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			waiting = false
		case <-done:
			waiting = false
		case _, changed := <-execChanged:
			if !changed {
				execChanged = nil
				continue
			}
			log.Warn("executable file was modified")
			waiting = false
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := components.Stop(shutdownCtx); err != nil {
		log.WithField("error", err.Error()).Error("unclean shutdown")
	}
}
