package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/isp-ops/internal/api"
	"github.com/taoyao-code/isp-ops/internal/app"
	"github.com/taoyao-code/isp-ops/internal/chat"
	cfgpkg "github.com/taoyao-code/isp-ops/internal/config"
	"github.com/taoyao-code/isp-ops/internal/health"
	"github.com/taoyao-code/isp-ops/internal/metrics"
)

// Run starts every component in dependency order and blocks until SIGINT/SIGTERM.
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	log = log.With(zap.String("instance", app.InstanceID()))
	log.Info("starting isp-ops", zap.String("env", cfg.App.Env))
	ctx := context.Background()

	// ========== Stage 1: metrics and readiness ==========
	reg, appm := app.NewMetrics()
	metricsHandler := metrics.Handler(reg)
	ready := health.New()

	// ========== Stage 2: billing store (fatal on failure) ==========
	store, err := app.OpenBilling(ctx, cfg.Billing, log)
	if err != nil {
		return err
	}
	defer store.Close()

	// ========== Stage 3: Redis (optional) ==========
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// ========== Stage 4: ACS client, device cache, resolver ==========
	acsClient, err := app.NewACSClient(cfg.ACS, log, appm)
	if err != nil {
		return err
	}
	cache := app.NewDeviceCache(cfg.Cache, acsClient, log, appm)
	res, err := app.NewResolver(cfg.Resolver, cache, acsClient, store, log, appm)
	if err != nil {
		return err
	}

	// ========== Stage 5: confirmations and scheduled jobs ==========
	pending := app.NewConfirmStore(cfg.Confirm, redisClient, log)
	scheduler, err := app.NewScheduler(cfg.Confirm, cfg.Cache, pending, cache, log)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	// ========== Stage 6: HTTP (health, admin API, chat webhook) ==========
	healthAgg := app.NewHealthAggregator(acsClient, store)
	app.AddRedisChecker(healthAgg, redisClient)

	httpSrv := app.NewHTTPServer(cfg.HTTP, cfg.Metrics.Path, metricsHandler, ready.Ready, log)
	handler := api.NewHandler(res, acsClient, cache, store, log.Named("api"))

	var webhook *chat.Webhook
	if cfg.Chat.Enabled {
		router := chat.NewRouter(res, acsClient, pending, cfg.Chat.AdminPhones, log.Named("chat"), appm)
		var sender chat.Sender
		if cfg.Chat.GatewayURL != "" {
			sender = chat.NewGateway(cfg.Chat.GatewayURL, cfg.Chat.GatewayToken, cfg.Chat.SendTimeout)
		}
		webhook = chat.NewWebhook(router, sender, cfg.Chat.SendTimeout, log.Named("chat"))
		if redisClient != nil {
			webhook.SetDeduper(chat.NewRedisDeduper(redisClient.Client, chat.DefaultDedupTTL))
		} else {
			webhook.SetDeduper(chat.NewMemoryDeduper(chat.DefaultDedupTTL))
		}
	}

	httpSrv.Register(func(r *gin.Engine) {
		app.RegisterHealthRoutes(r, healthAgg)
		api.RegisterRoutes(r, handler, cfg.API.Auth, log)
		if webhook != nil {
			webhook.RegisterRoutes(r, cfg.Chat.WebhookToken)
			if cfg.Chat.WebhookToken == "" {
				log.Warn("chat enabled without webhookToken, every webhook call will be rejected")
			}
		}
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	ready.SetStarted(true)
	log.Info("http server started",
		zap.String("addr", cfg.HTTP.Addr),
		zap.Bool("chat", cfg.Chat.Enabled),
		zap.Bool("redis", redisClient != nil))

	// ========== Stage 7: wait for shutdown ==========
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("received shutdown signal, gracefully shutting down...")
	case err := <-errCh:
		log.Error("http server error", zap.Error(err))
		return err
	}

	ready.SetDraining(true)
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}
