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

	"pulse-gateway/internal/config"
	httpapi "pulse-gateway/internal/http"
	"pulse-gateway/internal/logger"
	"pulse-gateway/internal/mqtt"
	"pulse-gateway/internal/presage"
	"pulse-gateway/internal/service"

	"go.uber.org/zap"
)

const serviceName = "pulse-gateway"

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 远程测量客户端 + 测量门面
	client := presage.NewClient(
		cfg.Presage.BaseURL,
		cfg.Presage.AltBaseURL,
		cfg.Presage.APIKey,
		cfg.Presage.JPEGQuality,
		log,
	)
	detector := service.NewDetector(client, log)

	// 4. 可选：把读数作为事件发布到 MQTT
	// broker 连不上只降级告警，不影响测量主链路
	if cfg.MQTT.Enabled {
		publisher, err := mqtt.NewPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic, log)
		if err != nil {
			log.Warn("MQTT broker unavailable, reading events disabled", zap.Error(err))
		} else {
			defer publisher.Disconnect()
			detector.OnReading(publisher.PublishReading)
			log.Info("MQTT reading events enabled", zap.String("topic", cfg.MQTT.Topic))
		}
	}

	// 5. 路由
	router := httpapi.NewRouter(log)
	router.RegisterHeartrateRoutes(httpapi.NewHeartrateHandler(detector, log))
	router.RegisterStreamRoutes(httpapi.NewStreamHandler(detector, log))

	// 6. 启动时先试一次会话协商；失败不阻止服务起来，前端可随时重试 start
	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := detector.Start(startCtx, service.DefaultMode); err != nil {
		log.Warn("initial measurement start failed, waiting for /api/heartrate/start",
			zap.Error(err),
		)
	}
	cancelStart()

	// 7. 启动 HTTP 服务（在 goroutine 中）
	srv := service.NewServer(cfg.HTTP.Addr, router, log)
	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	// 8. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case err := <-serverErrChan:
		log.Fatal("HTTP server error",
			zap.Error(err),
		)
	}

	// 9. 停止测量、拆除远程会话，再关 HTTP
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	detector.Stop(shutdownCtx)
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", zap.Error(err))
	}

	log.Info("pulse-gateway stopped")
}
