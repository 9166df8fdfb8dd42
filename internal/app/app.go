// Package app 按配置组装各组件，供 cmd/courier 与 cmd/collect 共用
package app

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LJTian/CryptoCourier/internal/collector"
	"github.com/LJTian/CryptoCourier/internal/config"
	"github.com/LJTian/CryptoCourier/internal/enricher"
	"github.com/LJTian/CryptoCourier/internal/logger"
	"github.com/LJTian/CryptoCourier/internal/pipeline"
	"github.com/LJTian/CryptoCourier/internal/processor"
	"github.com/LJTian/CryptoCourier/internal/publisher"
	"github.com/LJTian/CryptoCourier/internal/storage"
)

type App struct {
	Config   *config.Config
	Pipeline *pipeline.Pipeline
	Prices   *pipeline.PriceReport
	// History 未配置 POSTGRES_DSN 时为 nil
	History *storage.History
	Redis   *redis.Client
}

// Overrides 允许调用方替换部分组件（dry-run 用）
type Overrides struct {
	Publisher publisher.Publisher
	Store     pipeline.StateStore
	// WrapStore 包装按配置构建的状态存储，复用 Build 打开的 Redis 连接
	WrapStore func(pipeline.StateStore) pipeline.StateStore

	// DisableHistory 为 true 时即使配置了 POSTGRES_DSN 也不写发布历史
	DisableHistory bool
}

func Build(cfg *config.Config, ov Overrides) (*App, error) {
	log := logger.Named("app")
	loc := cfg.Location()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = storage.NewRedisClient(cfg.RedisAddr)
	}

	store := ov.Store
	if store == nil {
		var backend storage.Backend
		switch cfg.StateBackend {
		case "redis":
			if rdb == nil {
				return nil, fmt.Errorf("STATE_BACKEND=redis requires REDIS_ADDR")
			}
			backend = &storage.RedisBackend{Client: rdb, Key: cfg.StateKey}
		default:
			backend = &storage.FileBackend{Path: cfg.StateFile}
		}
		store = storage.NewStateStore(backend, cfg.SeenLimit)
	}
	if ov.WrapStore != nil {
		store = ov.WrapStore(store)
	}

	var history *storage.History
	if historyEnabled(cfg, ov) {
		h, err := storage.NewHistory(cfg.PostgresDSN, rdb, loc)
		if err != nil {
			// 发布历史只用于展示，数据库不可用不影响发布
			log.Warn().Err(err).Msg("history storage disabled")
		} else {
			history = h
		}
	}

	pub := ov.Publisher
	if pub == nil {
		pub = publisher.NewTelegram(publisher.Options{
			Token:    cfg.BotToken,
			APIBase:  cfg.TelegramAPIBase,
			Interval: cfg.PublishInterval,
		})
	}

	deps := pipeline.Deps{
		Store:    store,
		Fetchers: Fetchers(cfg),
		Engine: processor.NewEngine(processor.Options{
			MinBodyWords:  cfg.MinBodyWords,
			BannedDomains: cfg.BannedDomains,
		}),
		Enricher: enricher.New(enricher.Options{
			Translate:  cfg.Translate,
			TargetLang: cfg.TargetLang,
		}),
		Publisher: pub,
	}
	if cfg.ResolveImages {
		deps.Images = &collector.ImageResolver{Timeout: cfg.FetchTimeout}
	}
	if history != nil {
		deps.History = history
	}

	p := pipeline.New(deps, pipeline.Options{
		ChannelID:      cfg.ChannelID,
		MaxPostsPerRun: cfg.MaxPostsPerRun,
		MaxPostsPerDay: cfg.MaxPostsPerDay,
		Location:       loc,
	})

	prices := &pipeline.PriceReport{
		Source:    &collector.PriceFetcher{Coins: cfg.PriceCoins, Timeout: cfg.FetchTimeout},
		Publisher: pub,
		ChannelID: cfg.ChannelID,
		Location:  loc,
	}
	if history != nil {
		prices.History = history
	}

	log.Info().
		Int("sources", len(deps.Fetchers)).
		Str("state_backend", cfg.StateBackend).
		Bool("history", history != nil).
		Bool("translate", cfg.Translate).
		Msg("components ready")

	return &App{Config: cfg, Pipeline: p, Prices: prices, History: history, Redis: rdb}, nil
}

func historyEnabled(cfg *config.Config, ov Overrides) bool {
	return cfg.PostgresDSN != "" && !ov.DisableHistory
}

// Fetchers 按优先级返回数据源：RSS 按配置顺序在前，其后是配置了密钥的 API
func Fetchers(cfg *config.Config) []collector.Fetcher {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var out []collector.Fetcher
	for _, u := range cfg.RSSFeeds {
		out = append(out, &collector.RSSFetcher{URL: u, Limit: cfg.PerSourceLimit, Timeout: timeout})
	}
	if cfg.GNewsAPIKey != "" {
		out = append(out, &collector.GNewsFetcher{APIKey: cfg.GNewsAPIKey, Limit: cfg.PerSourceLimit, Timeout: timeout})
	}
	if cfg.MarketAuxAPIKey != "" {
		out = append(out, &collector.MarketAuxFetcher{APIKey: cfg.MarketAuxAPIKey, Limit: cfg.PerSourceLimit, Timeout: timeout})
	}
	if cfg.CoinStatsAPIKey != "" {
		out = append(out, &collector.CoinStatsFetcher{APIKey: cfg.CoinStatsAPIKey, Limit: cfg.PerSourceLimit, Timeout: timeout})
	}
	return out
}

// Close 释放连接
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.History != nil {
		if db, err := a.History.DB.DB(); err == nil {
			_ = db.Close()
		}
	}
}
