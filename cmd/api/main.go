package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ai-phone-assistant/internal/archive"
	"ai-phone-assistant/internal/audit"
	"ai-phone-assistant/internal/auth"
	"ai-phone-assistant/internal/calls"
	"ai-phone-assistant/internal/config"
	"ai-phone-assistant/internal/finalize"
	"ai-phone-assistant/internal/language"
	"ai-phone-assistant/internal/llm"
	"ai-phone-assistant/internal/notify"
	"ai-phone-assistant/internal/observability"
	"ai-phone-assistant/internal/reporting"
	"ai-phone-assistant/internal/responder"
	"ai-phone-assistant/internal/session"
	"ai-phone-assistant/internal/telephony"
	"ai-phone-assistant/pkg/logger"
	"ai-phone-assistant/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := observability.NewMetrics(cfg.App.MetricsNamespace)

	// Optional persistence: archive + audit go to Postgres when DB_HOST is set.
	var (
		archiveRepo archive.Repository = archive.NewMemoryRepo()
		auditRepo   audit.Repository   = audit.NewMemoryRepo()
		db          *sql.DB
	)
	if cfg.DBEnabled() {
		db, err = utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := archive.Migrate(rootCtx, db, log); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		archiveRepo = archive.NewPostgresRepo(db)
		auditRepo = audit.NewPostgresRepo(db)
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	// Language, voices and static phrases.
	defTag, err := language.Parse(cfg.Assistant.DefaultLanguage)
	if err != nil {
		log.Error("invalid default language", "err", err)
		os.Exit(1)
	}
	catalog := language.NewCatalog(defTag)
	catalog.SetVoice(language.English, cfg.Assistant.VoiceEN)
	catalog.SetVoice(language.Spanish, cfg.Assistant.VoiceES)
	catalog.SetFarewellTokens(language.English, cfg.Assistant.FarewellTokensEN)
	catalog.SetFarewellTokens(language.Spanish, cfg.Assistant.FarewellTokensES)
	resolver := language.NewResolver(defTag, language.NewWhatlangDetector(), log)

	var client llm.Client = llm.NewMockClient()
	if cfg.LLMEnabled() {
		oc, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: float32(cfg.OpenAI.Temperature),
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Timeout:     cfg.OpenAI.Timeout,
		})
		if err != nil {
			log.Error("openai init failed", "err", err)
			os.Exit(1)
		}
		client = oc
	} else {
		log.Warn("OPENAI_API_KEY not set, using mock replies")
	}
	resp := responder.New(client, responder.Options{
		SystemPrompts: map[language.Tag]string{
			language.English: cfg.Assistant.SystemPromptEN,
			language.Spanish: cfg.Assistant.SystemPromptES,
		},
		Window:  cfg.Assistant.HistoryWindow,
		Catalog: catalog,
		Metrics: metrics,
	})

	notifier, err := buildNotifier(cfg, log)
	if err != nil {
		log.Error("notifier init failed", "err", err)
		os.Exit(1)
	}

	store := session.NewStore(session.Options{
		IdleTimeout:   cfg.Session.IdleTimeout,
		EvictionGrace: cfg.Session.EvictionGrace,
		TombstoneTTL:  cfg.Session.TombstoneTTL,
		Metrics:       metrics,
		Logger:        log,
	})

	auditSvc := audit.NewService(auditRepo)
	finOpts := finalize.Options{
		Store:         store,
		Notifier:      notifier,
		Summarizer:    resp,
		Archive:       archiveRepo,
		Audit:         auditSvc,
		Metrics:       metrics,
		Logger:        log,
		SubjectPrefix: cfg.Notify.SubjectPrefix,
		Timeout:       cfg.Notify.Timeout,
		Summarize:     cfg.Notify.Summarize,
		Offload:       cfg.Notify.Offload,
		Language:      defTag,
	}
	if rdb != nil {
		finOpts.Guard = finalize.NewRedisGuard(rdb, cfg.Redis.GuardTTL)
	}
	coordinator := finalize.NewCoordinator(finOpts)
	store.SetAbandonHook(coordinator.Abandon)
	janitorDone := store.StartJanitor(rootCtx, cfg.Session.JanitorInterval)

	machine := calls.NewMachine(calls.Options{
		Store:         store,
		Resolver:      resolver,
		Catalog:       catalog,
		Responder:     resp,
		Finalizer:     coordinator,
		ListenTimeout: cfg.Assistant.ListenTimeout,
		Metrics:       metrics,
	})

	base := strings.TrimRight(cfg.Twilio.PublicBaseURL, "/")
	deps := routeDeps{
		Machine:  machine,
		VoiceURL: joinURL(base, voicePath),
		Metrics:  metrics,
		Sessions: store,
		Archive:  archiveRepo,
		Reports:  reporting.NewService(archiveRepo),
		Audit:    auditSvc,
		AdminKey: cfg.Auth.AdminAPIKey,
		Health: func(ctx context.Context) error {
			if db != nil {
				if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
					return err
				}
			}
			if rdb != nil {
				return rdb.Ping(ctx).Err()
			}
			return nil
		},
	}

	if cfg.AdminEnabled() {
		deps.Auth, err = auth.NewManager(cfg.Auth)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
	}
	if cfg.OutboundEnabled() {
		deps.Calls, err = telephony.NewTwilioProvider(telephony.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			FromNumber: cfg.Twilio.FromNumber,
			VoiceURL:   joinURL(base, voicePath),
			StatusURL:  joinURL(base, statusPath),
		})
		if err != nil {
			log.Error("twilio init failed", "err", err)
			os.Exit(1)
		}
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env,
			"llm", cfg.LLMEnabled(), "notify", cfg.NotifyModes(),
			"postgres", cfg.DBEnabled(), "redis", cfg.RedisEnabled(), "admin", cfg.AdminEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	// The janitor can still be handing idle calls to the coordinator; let it stop first.
	select {
	case <-janitorDone:
	case <-shutdownCtx.Done():
	}
	// Offloaded notifications are not durable; give in-flight ones a chance to finish.
	if err := coordinator.Wait(shutdownCtx); err != nil {
		log.Warn("pending call finalizations abandoned", "err", err)
	}
}

// buildNotifier assembles the configured delivery targets.
func buildNotifier(cfg config.Config, log *slog.Logger) (notify.Notifier, error) {
	var out notify.Multi
	for _, mode := range cfg.NotifyModes() {
		switch mode {
		case "log":
			out = append(out, notify.NewLogNotifier(log))
		case "graph":
			g, err := notify.NewGraphMailer(notify.GraphConfig{
				TenantID:     cfg.Notify.GraphTenantID,
				ClientID:     cfg.Notify.GraphClientID,
				ClientSecret: cfg.Notify.GraphClientSecret,
				From:         cfg.Notify.MailFrom,
				To:           cfg.Notify.MailTo,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		case "webhook":
			out = append(out, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, &http.Client{Timeout: cfg.Notify.Timeout}))
		default:
			return nil, errors.New("unknown notify mode: " + mode)
		}
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

func joinURL(base, path string) string {
	if base == "" {
		return ""
	}
	return base + path
}
