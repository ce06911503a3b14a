// Package main 是聊天客户端的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pai-chat-client/internal/config"
	"pai-chat-client/internal/handler"
	"pai-chat-client/internal/render"
	"pai-chat-client/internal/repository"
	"pai-chat-client/internal/service"
	"pai-chat-client/internal/state"
	"pai-chat-client/pkg/exchange"
	"pai-chat-client/pkg/log"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(log.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 打开会话存储
	repo, err := repository.Open(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatal("打开会话存储失败 (driver="+orDefault(cfg.Storage.Driver, "bolt")+")", err)
	}
	log.Infof("会话存储已就绪: %s", orDefault(cfg.Storage.Driver, "bolt"))

	// 4. 初始化 Service (依赖注入)
	hub := handler.NewViewHub()
	chatService := service.NewChatService(
		repo,
		exchange.NewClient(cfg.Endpoint),
		render.NewHTMLRenderer(),
		hub,
		service.Options{
			ApologyText: cfg.Chat.ApologyText,
			State: state.Options{
				DefaultTitle:   cfg.Chat.DefaultTitle,
				TitleMaxLength: cfg.Chat.TitleMaxLength,
			},
		},
	)
	chatService.Start(context.Background())

	// 5. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.NewChatHandler(chatService, hub))

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("客户端已启动，打开 http://localhost%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	// 等待在途请求并做最后一次落盘
	if err := chatService.Close(ctx); err != nil {
		log.Error("最终保存会话失败", err)
	}
	if err := repo.Close(); err != nil {
		log.Error("关闭会话存储失败", err)
	}
	log.Info("服务已优雅关闭")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
