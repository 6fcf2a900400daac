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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tarifly/backend/internal/config"
	"github.com/tarifly/backend/internal/handler"
	"github.com/tarifly/backend/internal/logger"
	"github.com/tarifly/backend/internal/mail"
	"github.com/tarifly/backend/internal/repository"
	"github.com/tarifly/backend/internal/server"
	"github.com/tarifly/backend/internal/service"
	"github.com/tarifly/backend/pkg/crypto"
)

func main() {
	// Load .env file if present (for local development)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("config error")
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, db, err := repository.NewDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.WithError(err).Fatal("database error")
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}()
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		log.WithError(err).Fatal("index creation failed")
	}
	log.Info("database connected")

	var (
		sessionStore service.SessionStore
		redisClient  *redis.Client
	)
	switch cfg.Session.Backend {
	case "redis":
		redisClient, err = repository.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.WithError(err).Fatal("redis error")
		}
		defer redisClient.Close()
		sessionStore = repository.NewRedisSessionStore(redisClient)
		log.Info("payment sessions stored in redis")
	default:
		sessionStore = repository.NewMemorySessionStore()
	}

	enc, err := crypto.NewEncryptor(cfg.Server.EncryptionKey)
	if err != nil {
		log.WithError(err).Fatal("encryption error")
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	planRepo := repository.NewPlanRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	gatewayRepo := repository.NewGatewayRepository(db)
	contactRepo := repository.NewContactRepository(db)
	smtpRepo := repository.NewSmtpRepository(db)
	attributionRepo := repository.NewAttributionRepository(db)

	// Services
	mailSvc := service.NewMailService(smtpRepo, enc, mail.Config{
		Host:      cfg.Mail.Host,
		Port:      cfg.Mail.Port,
		Username:  cfg.Mail.Username,
		Password:  cfg.Mail.Password,
		FromEmail: cfg.Mail.FromEmail,
		FromName:  cfg.Mail.FromName,
	}, cfg.Mail.AdminTo)

	authSvc := service.NewAuthService(service.AuthConfig{
		JWTSecret:        cfg.Auth.JWTSecret,
		TokenTTL:         cfg.Auth.TokenTTL,
		RememberMeTTL:    cfg.Auth.RememberMeTTL,
		RefreshTTL:       cfg.Auth.RefreshTTL,
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		LockDuration:     cfg.Auth.LockDuration,
		AdminEmail:       cfg.Auth.AdminEmail,
		AdminPassword:    cfg.Auth.AdminPassword,
		FrontendURL:      cfg.Server.FrontendURL,
	}, userRepo, planRepo, subRepo, mailSvc)

	planSvc := service.NewPlanService(planRepo)
	gatewaySvc := service.NewGatewayService(gatewayRepo, enc)
	subSvc := service.NewSubscriptionService(subRepo, planRepo, paymentRepo, userRepo, gatewaySvc, mailSvc, cfg.Payments.Currency)
	sessionSvc := service.NewSessionService(sessionStore, subSvc, paymentRepo, cfg.Session.TTL)
	paymentSvc := service.NewPaymentService(service.PaymentConfig{
		Currency:    cfg.Payments.Currency,
		PublicURL:   cfg.Server.PublicURL,
		FrontendURL: cfg.Server.FrontendURL,
	}, paymentRepo, sessionSvc, subSvc, gatewaySvc)
	webhookSvc := service.NewWebhookService(gatewaySvc, paymentRepo, subSvc)
	contactSvc := service.NewContactService(contactRepo, mailSvc, mailSvc.AdminRecipient())
	attributionSvc := service.NewAttributionService(attributionRepo)
	adminSvc := service.NewAdminService(userRepo, subRepo, paymentRepo, contactRepo)

	// Seed admin user and default plans on first startup
	if err := authSvc.SeedAdmin(ctx); err != nil {
		log.WithError(err).Fatal("admin seed error")
	}
	if err := planSvc.SeedDefaults(ctx); err != nil {
		log.WithError(err).Fatal("plan seed error")
	}

	service.NewSweeper(sessionStore, subSvc, cfg.Session.SweepInterval).Start(ctx)

	checks := map[string]handler.CheckFunc{
		"database": func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := server.NewRouter(server.Handlers{
		Auth:         handler.NewAuthHandler(authSvc, cfg.Server.SecureCookies, cfg.Auth.RefreshTTL),
		Plans:        handler.NewPlansHandler(planSvc),
		Subscription: handler.NewSubscriptionHandler(subSvc, sessionSvc),
		Payment:      handler.NewPaymentHandler(paymentSvc, sessionSvc, gatewaySvc),
		Webhook:      handler.NewWebhookHandler(webhookSvc),
		Gateway:      handler.NewGatewayHandler(gatewaySvc),
		Smtp:         handler.NewSmtpHandler(mailSvc),
		Contact:      handler.NewContactHandler(contactSvc),
		Attribution:  handler.NewAttributionHandler(attributionSvc),
		Affiliation:  handler.NewAffiliationHandler(authSvc),
		Admin:        handler.NewAdminHandler(adminSvc, authSvc),
		Health:       handler.NewHealthHandler(checks),
	}, authSvc, server.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		GlobalRPS:   20,
		GlobalBurst: 40,
	})

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.WithError(err).Error("shutdown failed")
		}
	}()

	log.Infof("tarifly backend listening at http://%s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server error")
	}
}
