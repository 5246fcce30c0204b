package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/RichardoC/chatsync/internal/api"
	"github.com/RichardoC/chatsync/internal/config"
	"github.com/RichardoC/chatsync/internal/db"
	"github.com/RichardoC/chatsync/internal/llm"
	"github.com/RichardoC/chatsync/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(viper.New(), *configPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	if cfg.Server.JWTSecret == "" {
		logger.Fatal("server.jwt_secret is required (CHATSYNC_SERVER_JWT_SECRET)")
	}
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := db.New(cfg.Server.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.Server.DBPath))
	}
	defer database.Close()

	var model llms.Model
	if cfg.LLM.Model != "" {
		model, err = llm.NewOpenAI(cfg.LLM.BaseURL, cfg.LLM.Token, cfg.LLM.Model)
		if err != nil {
			logger.Fatal("failed to initialize LLM service", zap.Error(err))
		}
	} else {
		logger.Warn("no llm.model configured, answering with canned replies")
	}
	llmService := llm.New(model, database,
		llm.WithLogger(logger.Named("llm")),
		llm.WithTimeout(cfg.LLM.Timeout))

	handler := api.NewHandler(database, llmService, logger.Named("api"), cfg.Server.JWTSecret, cfg.Server.TokenTTL)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
