package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/projectlens/backend/config"
	"github.com/projectlens/backend/internal/eventbus"
	"github.com/projectlens/backend/internal/handler"
	"github.com/projectlens/backend/internal/pkg/database"
	"github.com/projectlens/backend/internal/repository"
	"github.com/projectlens/backend/internal/router"
	"github.com/projectlens/backend/internal/service"
	"github.com/projectlens/backend/internal/service/analysis"
	"github.com/projectlens/backend/internal/service/session"
	"github.com/projectlens/backend/internal/subscriber"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// 凭据缺失等配置问题在启动时暴露
	analyzer, err := analysis.NewClient(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize analysis client: %v", err)
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 计量：分析事件 -> 订阅者 -> 数据库
	usageRepo := repository.NewUsageRepository(db)
	usageService := service.NewUsageService(usageRepo)
	auditBus := eventbus.NewAuditEventBus()
	subscriber.NewUsageSubscriber(usageService).Register(auditBus)

	store, err := session.NewStore(analyzer, session.Options{
		TTL:           cfg.Server.SessionTTL,
		MaxConcurrent: cfg.LLM.MaxConcurrent,
		Publisher:     auditBus,
	})
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}
	store.Start()

	// 初始化 Handler
	auditHandler := handler.NewAuditHandler(store)
	usageHandler := handler.NewUsageHandler(usageService)
	configHandler := handler.NewConfigHandler(cfg)

	// 设置路由
	r, err := router.Setup(cfg, auditHandler, usageHandler, configHandler)
	if err != nil {
		log.Fatalf("Failed to setup router: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("Server starting on port %s...", cfg.Server.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	case sig := <-interrupt:
		klog.Infof("收到退出信号: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			klog.Errorf("HTTP 服务关闭失败: %v", err)
		}
		// 等待进行中的分析写完计量记录
		if err := store.Close(cfg.LLM.Timeout + shutdownTimeout); err != nil {
			klog.Warningf("会话存储关闭超时: %v", err)
		}
		klog.Infof("服务已停止")
	}
}
