package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairy-root/media-downloader-bot/internal/bot"
	rcache "github.com/fairy-root/media-downloader-bot/internal/cache/redis"
	"github.com/fairy-root/media-downloader-bot/internal/common/logger"
	"github.com/fairy-root/media-downloader-bot/internal/config"
	"github.com/fairy-root/media-downloader-bot/internal/domain/payment"
	domainsettings "github.com/fairy-root/media-downloader-bot/internal/domain/settings"
	domainuser "github.com/fairy-root/media-downloader-bot/internal/domain/user"
	apphttp "github.com/fairy-root/media-downloader-bot/internal/http"
	"github.com/fairy-root/media-downloader-bot/internal/metrics"
	pgplatform "github.com/fairy-root/media-downloader-bot/internal/platform/postgres"
	rplatform "github.com/fairy-root/media-downloader-bot/internal/platform/redis"
	"github.com/fairy-root/media-downloader-bot/internal/repository/memory"
	pgrepo "github.com/fairy-root/media-downloader-bot/internal/repository/postgres"
	redisrepo "github.com/fairy-root/media-downloader-bot/internal/repository/redis"
	"github.com/fairy-root/media-downloader-bot/internal/service/admin"
	"github.com/fairy-root/media-downloader-bot/internal/service/channelgate"
	"github.com/fairy-root/media-downloader-bot/internal/service/download"
	"github.com/fairy-root/media-downloader-bot/internal/service/entitlement"
	"github.com/fairy-root/media-downloader-bot/internal/service/fetch"
	"github.com/fairy-root/media-downloader-bot/internal/service/premium"
	"github.com/fairy-root/media-downloader-bot/internal/service/quota"
	settingssvc "github.com/fairy-root/media-downloader-bot/internal/service/settings"
	"github.com/fairy-root/media-downloader-bot/internal/service/telegram"
	usersvc "github.com/fairy-root/media-downloader-bot/internal/service/user"
	"github.com/fairy-root/media-downloader-bot/internal/workers"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Bot exited with error")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	logger.Init("media-downloader-bot", cfg.Debug, cfg.LogPretty)
	log.Info().
		Str("store", cfg.Store.Backend).
		Str("update_mode", cfg.Telegram.UpdateMode).
		Int("admins", len(cfg.Telegram.AdminIDs)).
		Msg("Starting media downloader bot")

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	checks := map[string]apphttp.HealthCheck{}

	var (
		rdb          *rplatform.Client
		userRepo     domainuser.Repository
		settingsRepo domainsettings.Repository
		payments     payment.Repository
	)
	switch cfg.Store.Backend {
	case config.StoreRedis:
		rdb, err = rplatform.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("redis open: %w", err)
		}
		defer rdb.Close()
		checks["redis"] = rdb.HealthCheck
		userRepo = redisrepo.NewUserRepository(rdb)
		settingsRepo = redisrepo.NewSettingsRepository(rdb)
	default:
		log.Warn().Msg("Using in-memory store; state is lost on restart")
		userRepo = memory.NewUserRepository()
		settingsRepo = memory.NewSettingsRepository()
	}

	if cfg.DatabaseURL != "" {
		pg, err := pgplatform.NewClient(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres open: %w", err)
		}
		defer pg.Close()
		checks["postgres"] = pg.HealthCheck
		repo := pgrepo.NewPaymentRepository(pg.DB())
		if cfg.DBAutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				return fmt.Errorf("payments migrate: %w", err)
			}
		}
		payments = repo
	}
	if payments == nil {
		// charges are still deduplicated within this process
		payments = memory.NewPaymentRepository()
	}

	if err := os.MkdirAll(cfg.Download.Dir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	users := usersvc.NewService(userRepo)
	settings := settingssvc.NewService(settingsRepo)
	if err := settings.Init(ctx); err != nil {
		return fmt.Errorf("settings init: %w", err)
	}

	resolver := entitlement.NewResolver(users, settings, cfg.Telegram.AdminIDs)
	ledger := quota.NewLedger(users, cfg.Download.DailyLimit, loc)
	ledger.OnRollback(metrics.Get().RecordQuotaRollback)
	engine := premium.NewEngine(users, payments, premium.DefaultCatalog)
	adminSvc := admin.NewService(users, settings, resolver, engine, ledger)

	tg := telegram.NewClient(cfg.Telegram.BotToken)
	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	log.Info().Int64("bot_id", me.ID).Str("username", me.Username).Msg("Authorized with Telegram")

	var oracle channelgate.MembershipOracle = tg
	if rdb != nil && cfg.MembershipCacheTTL() > 0 {
		oracle = rcache.NewMembershipCache(rdb, tg, cfg.MembershipCacheTTL())
	}

	orchestrator := download.NewOrchestrator(
		users,
		resolver,
		channelgate.New(settings, oracle),
		ledger,
		fetch.NewService(cfg.Download.YtDlpPath, cfg.Download.Dir, cfg.Download.MaxConcurrent),
		tg,
		download.Limits{
			StandardMaxBytes: config.BytesFromMB(cfg.Download.StandardMaxFileMB),
			ElevatedMaxBytes: config.BytesFromMB(cfg.Download.ElevatedMaxFileMB),
			AllowedHosts:     cfg.Download.StandardAllowedHost,
		},
	)
	b := bot.New(tg, users, resolver, ledger, engine, adminSvc, orchestrator, bot.Options{
		SupportContact: cfg.Telegram.SupportContact,
		StandardMaxMB:  cfg.Download.StandardMaxFileMB,
	})
	if err := tg.SetMyCommands(ctx, bot.Commands()); err != nil {
		log.Warn().Err(err).Msg("Failed to register bot commands")
	}
	dispatcher := bot.NewDispatcher(b, cfg.MaxConcurrentUpdates)

	deps := apphttp.Deps{
		Debug:          cfg.Debug,
		AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		BotToken:       cfg.Telegram.BotToken,
		InitDataTTL:    cfg.InitDataTTL(),
		IsAdmin:        resolver.ActsAsAdmin,
		Admin:          adminSvc,
		Checks:         checks,
		Redis:          rdb,
	}

	g, gctx := errgroup.WithContext(ctx)
	switch cfg.Telegram.UpdateMode {
	case config.UpdatesWebhook:
		hostname, _ := os.Hostname()
		stream := workers.NewUpdateStream(rdb, hostname+"-"+uuid.NewString()[:8])
		deps.Webhook = apphttp.NewWebhookHandler(cfg.Telegram.WebhookSecret, stream)
		if cfg.Telegram.WebhookURL != "" {
			if err := tg.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
				return fmt.Errorf("set webhook: %w", err)
			}
		}
		g.Go(func() error { return stream.Run(gctx, dispatcher) })
	default:
		if err := tg.DeleteWebhook(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to delete webhook")
		}
		g.Go(func() error { return workers.NewPoller(tg).Run(gctx, dispatcher) })
	}

	server := apphttp.NewServer(cfg.HTTP.Addr, apphttp.NewRouter(deps))
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	err = g.Wait()
	dispatcher.Wait()
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if ferr := users.Flush(flushCtx); ferr != nil {
		log.Error().Err(ferr).Msg("Final flush failed")
	}
	log.Info().Msg("Bot stopped")
	return err
}
