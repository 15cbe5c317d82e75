package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gatherhq/gather/internal/broker"
	"github.com/gatherhq/gather/internal/config"
	"github.com/gatherhq/gather/internal/domain"
	"github.com/gatherhq/gather/internal/fanout"
	"github.com/gatherhq/gather/internal/gateway"
	"github.com/gatherhq/gather/internal/httpapi"
	"github.com/gatherhq/gather/internal/reaper"
	"github.com/gatherhq/gather/internal/store"
	"github.com/gatherhq/gather/pkg/database"
	"github.com/gatherhq/gather/pkg/jwt"
	"github.com/gatherhq/gather/pkg/log"
	"github.com/gatherhq/gather/pkg/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting gather server")

	if cfg.JWT.Secret == "" {
		l.Fatal().Msg("JWT_SECRET is required")
	}

	// Database
	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := database.AutoMigrate(db,
		&domain.MessageModel{},
		&domain.GroupMemberModel{},
		&domain.RoomModel{},
		&domain.ParticipantModel{},
	); err != nil {
		l.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Broker bridge
	br, err := broker.New(cfg.Broker)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize broker")
	}
	defer br.Close()
	l.Info().Str("driver", cfg.Broker.Driver).Msg("broker connected")

	// Stores
	messageStore := store.NewGormMessageStore(db)
	membershipStore := store.NewGormMembershipStore(db)
	roomStore := store.NewGormRoomStore(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fan-out service
	fanoutSvc := fanout.NewService(br, messageStore, membershipStore, cfg.Fanout)
	if err := fanoutSvc.Start(ctx); err != nil {
		l.Fatal().Err(err).Msg("failed to start fan-out service")
	}
	defer fanoutSvc.Stop()

	// Connection gateway
	hub := gateway.NewHub()
	go hub.Run()

	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessDuration)
	gatewaySvc := gateway.NewService(fanoutSvc, membershipStore, tokens)
	wsHandler := gateway.NewWSHandler(hub, gatewaySvc, cfg.WebSocket)

	// Room reaper
	var provider reaper.Provider = reaper.NoopProvider{}
	if cfg.RoomProvider.BaseURL != "" {
		provider = reaper.NewHTTPProvider(cfg.RoomProvider.BaseURL, cfg.RoomProvider.APIKey, cfg.RoomProvider.RequestTimeout)
	}
	roomReaper := reaper.New(roomStore, provider, cfg.Reaper)
	roomReaper.Start(ctx)
	defer roomReaper.Stop()

	// HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(log.GinMiddleware(l), gin.Recovery())

	authMiddleware := middleware.NewAuthMiddleware(tokens)
	apiHandler := httpapi.NewHandler(fanoutSvc, hub, authMiddleware)
	apiHandler.RegisterRoutes(router)
	wsHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}

	l.Info().Msg("server stopped")
}
