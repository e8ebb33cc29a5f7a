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

	_ "crm-backend/api/swagger" // swagger docs
	"crm-backend/internal/config"
	"crm-backend/internal/database"
	"crm-backend/internal/server"
	"crm-backend/internal/websocket"
	"crm-backend/pkg/logger"

	"go.uber.org/zap"
)

// @title           CRM Finance API
// @version         1.0
// @description     Invoicing, payments and project finance for multi-tenant CRM workspaces.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.LogLevel,
		Environment: cfg.Server.Env,
		ServiceName: config.ServiceName,
	}); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.GetLogger()
	log.Info("Configuration loaded", cfg.LogFields()...)

	db, err := database.NewConnection(cfg.DB)
	if err != nil {
		log.Fatal("Database connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Database migration failed", zap.Error(err))
	}
	log.Info("Connected to PostgreSQL successfully")

	stop := make(chan struct{})
	wsHub := websocket.NewHub()
	go wsHub.Run(stop)

	app := server.NewApp(db, cfg, wsHub, nil)
	router := server.NewRouter(app, cfg, wsHub)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
	close(stop)

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
