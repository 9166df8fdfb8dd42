package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/CryptoCourier/internal/collector"
	"github.com/LJTian/CryptoCourier/internal/formatter"
	"github.com/LJTian/CryptoCourier/internal/logger"
	"github.com/LJTian/CryptoCourier/internal/publisher"
)

type PriceSource interface {
	Fetch(ctx context.Context) ([]collector.PriceQuote, error)
}

type PriceRecorder interface {
	SavePrices(ctx context.Context, quotes []collector.PriceQuote) error
}

var errNoQuotes = errors.New("no price quotes")

// PriceReport 定时发布行情快照，与新闻采集相互独立，不读写去重状态
type PriceReport struct {
	Source    PriceSource
	Publisher publisher.Publisher
	History   PriceRecorder // 可为空
	ChannelID string
	Location  *time.Location
	Now       func() time.Time
}

func (r *PriceReport) Run(ctx context.Context) error {
	quotes, err := r.Source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch prices: %w", err)
	}
	if len(quotes) == 0 {
		return errNoQuotes
	}

	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	text := formatter.Prices(quotes, now, r.Location)
	if err := r.Publisher.Publish(ctx, r.ChannelID, text, ""); err != nil {
		return fmt.Errorf("publish prices: %w", err)
	}

	if r.History != nil {
		if err := r.History.SavePrices(context.WithoutCancel(ctx), quotes); err != nil {
			log := logger.Named("prices")
			log.Warn().Err(err).Msg("save price snapshot failed")
		}
	}
	return nil
}

// Job 适配 scheduler
func (r *PriceReport) Job(ctx context.Context) {
	log := logger.Named("prices")
	if err := r.Run(ctx); err != nil {
		log.Warn().Err(err).Msg("price report failed")
		return
	}
	log.Info().Msg("price report published")
}
