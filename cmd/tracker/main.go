package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solar-panel-mes/internal/api"
	"solar-panel-mes/internal/config"
	"solar-panel-mes/internal/event"
	"solar-panel-mes/internal/handlers"
	"solar-panel-mes/internal/order"
	"solar-panel-mes/internal/persistence"
	"solar-panel-mes/internal/web"
	"solar-panel-mes/internal/workflow"
)

// main 是应用程序的主入口
func main() {
	// 1. 初始化核心组件
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("加载配置失败", "error", err)
		os.Exit(1)
	}

	hub := web.NewHub()
	go hub.Run()
	stateTracker := web.NewStateTracker(hub)

	eventBus := event.NewBus()

	journal, err := persistence.NewJournal(cfg.JournalPath)
	if err != nil {
		logger.Error("无法初始化审计日志", "error", err)
		os.Exit(1)
	}
	defer journal.Close()

	// 2. 注册事件处理器
	handlers.RegisterEventHandlers(eventBus, stateTracker, logger)

	// 3. 初始化 MO 追踪器和工作流引擎
	tracker := order.NewTracker(eventBus, logger)
	engine := workflow.NewEngine(workflow.NewMemoryStore(), cfg.Registry(), eventBus, tracker, journal, logger)

	// 4. 从审计日志恢复面板记录
	panels, err := journal.Recover()
	if err != nil {
		logger.Warn("从审计日志恢复失败", "error", err)
	} else {
		engine.Restore(panels)
	}

	logger.Info("=== 光伏组件产线追踪系统启动 ===", "listen_addr", cfg.ListenAddr)

	// 5. 启动 API 服务器
	handler := api.NewHandler(engine, tracker, stateTracker, hub, logger)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.SetupRouter(handler),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API 服务器启动失败", "error", err)
			os.Exit(1)
		}
	}()

	// 6. 优雅停机
	waitForShutdown(logger, server)
}

// waitForShutdown 等待系统信号以实现优雅停机
func waitForShutdown(logger *slog.Logger, server *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("接收到停机信号，正在优雅关闭...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("关闭 API 服务器失败", "error", err)
	}
	logger.Info("系统已安全退出。")
}
