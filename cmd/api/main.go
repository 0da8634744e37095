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

	"recipe-substitution/internal/api"
	"recipe-substitution/internal/core/cache"
	"recipe-substitution/internal/core/substitution"
	"recipe-substitution/internal/infrastructure/config"
	"recipe-substitution/internal/pkg/common"

	"go.uber.org/zap"
)

func main() {
	// 載入設定（含選用的 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel, cfg.LogDir); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("artifacts_dir", cfg.Artifacts.Dir),
		zap.Bool("knowledge_base", cfg.KnowledgeBase.Enabled),
		zap.Bool("semantic", cfg.Semantic.Enabled),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.String("search_strategy", cfg.Engine.SearchStrategy),
	)

	// 載入引擎
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 5*time.Minute)
	engine, err := substitution.LoadEngine(loadCtx, cfg)
	cancelLoad()
	if err != nil {
		common.LogFatal("Failed to load substitution engine", zap.Error(err))
	}
	defer engine.Close()

	// 初始化快取
	cacheManager := cache.NewManager(cfg.Cache)
	defer cacheManager.Close()

	svc := substitution.NewService(engine, cacheManager)
	router := api.SetupRouter(cfg, svc)

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("ready", engine.Ready()),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.LogFatal("Failed to start server", zap.Error(err))
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")

	// 設置關閉超時
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
	}

	common.LogInfo("Server exited")
}
