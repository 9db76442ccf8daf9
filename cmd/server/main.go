package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/room-settlement/internal/config"
	"github.com/iliyamo/room-settlement/internal/database"
	"github.com/iliyamo/room-settlement/internal/handler"
	"github.com/iliyamo/room-settlement/internal/middleware"
	"github.com/iliyamo/room-settlement/internal/notify"
	"github.com/iliyamo/room-settlement/internal/provider"
	"github.com/iliyamo/room-settlement/internal/queue"
	"github.com/iliyamo/room-settlement/internal/repository"
	"github.com/iliyamo/room-settlement/internal/router"
	"github.com/iliyamo/room-settlement/internal/service"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := database.RunMigrations(ctx, db); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	store := repository.NewMySQLStore(db)

	xumm := provider.NewClient(provider.Config{
		BaseURL:   cfg.Provider.BaseURL,
		APIKey:    cfg.Provider.APIKey,
		APISecret: cfg.Provider.APISecret,
		Timeout:   cfg.Provider.Timeout,
	})

	rdb := config.NewRedisClient() // nil when Redis is unreachable
	if rdb != nil {
		defer rdb.Close()
	}
	rlCfg := config.LoadRateLimitConfig()
	cacheCfg := config.LoadCacheConfig()

	// change notifications: broker when enabled, local sinks always
	hub := notify.NewHub()
	audit := queue.NewAuditLog(cfg.Events.AuditDir)
	invalidator := middleware.NewCacheInvalidator(cacheCfg, rdb)
	var transport notify.Transport
	if cfg.Events.Enabled {
		publisher := queue.NewPublisher(cfg.Events.URL, cfg.Events.Exchange)
		defer publisher.Close()
		transport = publisher
	}
	// cache invalidation runs before the writer's response goes out
	broadcaster := notify.NewBroadcaster(transport, notify.HubSink(hub), audit.Sink).Before(invalidator.Sink)
	if cfg.Events.Enabled {
		go func() {
			err := queue.StartEventConsumer(ctx, cfg.Events.URL, cfg.Events.Exchange, broadcaster.Deliver)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("event-consumer: stopped: %v", err)
			}
		}()
	}

	rooms := service.NewRoomService(store, broadcaster)
	parts := service.NewParticipantService(store, broadcaster)
	payments := service.NewPaymentService(store, xumm, broadcaster, service.PaymentConfig{
		PublicURL:   cfg.PublicURL,
		BaseUnitExp: cfg.Provider.BaseUnitExp,
	})
	reconciler := service.NewReconciler(store, xumm, broadcaster)
	observer := service.NewObserverService(store)
	profiles := service.NewProfileService(store)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				log.Printf("%s %s %d %s ip=%s err=%v", v.Method, v.URI, v.Status, v.Latency, v.RemoteIP, v.Error)
				return nil
			}
			log.Printf("%s %s %d %s ip=%s", v.Method, v.URI, v.Status, v.Latency, v.RemoteIP)
			return nil
		},
	}))

	router.New(e, router.Handlers{
		Auth:         handler.NewAuthHandler(cfg, store),
		Rooms:        handler.NewRoomHandler(rooms),
		Participants: handler.NewParticipantHandler(parts),
		Payments:     handler.NewPaymentHandler(payments),
		Profile:      handler.NewProfileHandler(profiles, payments),
		Webhook:      handler.NewWebhookHandler(reconciler),
		Events:       handler.NewEventsHandler(hub, observer, cfg.Events.Origins...),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: rlCfg,
		Cache:     cacheCfg,
		DB:        db,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.WithCORS(e, cfg.Events.Origins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s (env=%s)", srv.Addr, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
