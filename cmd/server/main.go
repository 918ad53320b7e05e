package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ripple/internal/api"
	"ripple/internal/auth"
	"ripple/internal/config"
	"ripple/internal/db"
	"ripple/internal/gateway"
	"ripple/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	logger.Log.Info("starting server", "addr", cfg.ServerAddress)

	database, err := db.NewDB(cfg.CleanDatabasePath())
	if err != nil {
		logger.Log.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Log.Info("database ready", "path", cfg.CleanDatabasePath())

	hub := gateway.NewHub(database)
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTTTL, database)
	handlers := api.NewHandlers(database, hub, verifier, cfg)

	server := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: handlers.NewRouter(),
	}

	go func() {
		logger.Log.Info("listening", "addr", cfg.ServerAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Log.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("shutdown error", "err", err)
	}
}
