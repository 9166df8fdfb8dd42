package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/CryptoCourier/internal/api"
	"github.com/LJTian/CryptoCourier/internal/app"
	"github.com/LJTian/CryptoCourier/internal/config"
	"github.com/LJTian/CryptoCourier/internal/logger"
	"github.com/LJTian/CryptoCourier/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// 缺少凭据等启动期配置错误是唯一允许终止进程的情况
		logger.Get().Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	log := logger.Named("main")

	a, err := app.Build(cfg, app.Overrides{})
	if err != nil {
		log.Fatal().Err(err).Msg("init components failed")
	}
	defer a.Close()

	s := scheduler.New(cfg.Location(), logger.Named("scheduler"))
	if err := s.AddJob("news", cfg.NewsCron, a.Pipeline.Job, true); err != nil {
		log.Fatal().Err(err).Msg("add news job failed")
	}
	if len(cfg.PriceCoins) > 0 && cfg.PriceCron != "" {
		if err := s.AddJob("prices", cfg.PriceCron, a.Prices.Job, false); err != nil {
			log.Fatal().Err(err).Msg("add price job failed")
		}
	}
	s.Start()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLog(logger.Named("http")))
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}
	// 接口值需保持为 nil，不能传入 nil 指针
	var history api.HistoryLister
	if a.History != nil {
		history = a.History
	}
	api.NewServer(a.Pipeline, history).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server exit")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info().Msg("shutting down")

	// 先停调度并等待在途的状态保存完成，再关闭 HTTP
	if err := s.Stop(shutdownTimeout); err != nil {
		log.Error().Err(err).Msg("scheduler stop")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}
