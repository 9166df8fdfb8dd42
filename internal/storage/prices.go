package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/LJTian/CryptoCourier/internal/collector"
)

const latestPricesKey = "courier:prices:latest"

// PriceSnapshot 是一次行情播报的快照，按币种列表原样存 JSON
type PriceSnapshot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Data      string    `gorm:"type:text" json:"data"`
	FetchedAt time.Time `gorm:"index" json:"fetchedAt"`
}

// SavePrices 写入一次行情快照，同时刷新 Redis 中的最新值
func (h *History) SavePrices(ctx context.Context, quotes []collector.PriceQuote) error {
	bs, err := json.Marshal(quotes)
	if err != nil {
		return err
	}
	snap := PriceSnapshot{Data: string(bs), FetchedAt: time.Now()}
	if err := h.DB.WithContext(ctx).Create(&snap).Error; err != nil {
		return fmt.Errorf("save prices: %w", err)
	}
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, latestPricesKey, bs, 0).Err()
	}
	return nil
}

// LatestPrices 优先读 Redis，缺失时回退到最近一条快照；没有任何数据时返回 nil
func (h *History) LatestPrices(ctx context.Context) ([]collector.PriceQuote, error) {
	if h.Redis != nil {
		if bs, err := h.Redis.Get(ctx, latestPricesKey).Bytes(); err == nil {
			var quotes []collector.PriceQuote
			if err := json.Unmarshal(bs, &quotes); err == nil {
				return quotes, nil
			}
		}
	}
	if h.DB == nil {
		return nil, nil
	}

	var snap PriceSnapshot
	silent := h.DB.WithContext(ctx).Session(&gorm.Session{Logger: h.DB.Logger.LogMode(logger.Silent)})
	if err := silent.Order("fetched_at DESC").First(&snap).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest prices: %w", err)
	}
	var quotes []collector.PriceQuote
	if err := json.Unmarshal([]byte(snap.Data), &quotes); err != nil {
		return nil, fmt.Errorf("decode prices: %w", err)
	}
	return quotes, nil
}
