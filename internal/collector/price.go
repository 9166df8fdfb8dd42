package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const coingeckoBaseURL = "https://api.coingecko.com/api/v3"

// PriceQuote 是单个币种的行情快照
type PriceQuote struct {
	Coin      string  `json:"coin"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
}

// PriceFetcher 从 CoinGecko simple/price 拉取行情，供定时行情播报使用
type PriceFetcher struct {
	Coins    []string
	Currency string
	BaseURL  string
	Timeout  time.Duration
	Client   *http.Client
}

func (p *PriceFetcher) Name() string {
	return "coingecko_price"
}

// Fetch 返回的顺序与 Coins 一致；接口未返回的币种跳过
func (p *PriceFetcher) Fetch(ctx context.Context) ([]PriceQuote, error) {
	if len(p.Coins) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(p.Timeout))
	defer cancel()

	base := p.BaseURL
	if base == "" {
		base = coingeckoBaseURL
	}
	cur := strings.ToLower(p.currency())
	params := url.Values{
		"ids":                 {strings.Join(p.Coins, ",")},
		"vs_currencies":       {cur},
		"include_24hr_change": {"true"},
	}

	// 响应形如 {"bitcoin":{"usd":67000.1,"usd_24h_change":-1.2}}
	var data map[string]map[string]float64
	if err := getJSON(ctx, p.Client, base+"/simple/price?"+params.Encode(), nil, &data); err != nil {
		return nil, fmt.Errorf("coingecko: %w", err)
	}

	quotes := make([]PriceQuote, 0, len(p.Coins))
	for _, coin := range p.Coins {
		row, ok := data[coin]
		if !ok {
			continue
		}
		price, ok := row[cur]
		if !ok {
			continue
		}
		quotes = append(quotes, PriceQuote{
			Coin:      coin,
			Price:     price,
			Change24h: row[cur+"_24h_change"],
		})
	}
	return quotes, nil
}

func (p *PriceFetcher) currency() string {
	if p.Currency == "" {
		return "usd"
	}
	return p.Currency
}
