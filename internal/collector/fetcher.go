package collector

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
)

// 各数据源名称
const (
	SourceRSS       = "RSS"
	SourceGNews     = "GNews"
	SourceMarketAux = "MarketAux"
	SourceCoinStats = "CoinStats"
)

const (
	defaultWindow    = 5
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 2 << 20 // 2MB
	defaultUserAgent = "CryptoCourierBot/1.0"
)

// NewsItem 统一采集后的基础结构；Title / Body 此时仍是源站原文，清洗在 processor 中完成
type NewsItem struct {
	Title       string
	Body        string
	URL         string
	ImageURL    string
	Source      string
	// Feed 为具体来源（RSS 地址或 API 名），仅用于日志
	Feed        string
	PublishedAt time.Time
}

// Fetcher 抽象每一个数据源。
// 返回保持源站顺序、截断到窗口大小的条目；失败时返回错误，由调用方记录后当作空结果。
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]NewsItem, error)
}

// FetchResult 是单个数据源的采集结果
type FetchResult struct {
	Source string
	Items  []NewsItem
	Err    error
}

// FetchAll 并发调用所有数据源并等待全部返回。
// 结果顺序与 fetchers 一致（即配置的优先级），单个源失败不影响其它源。
func FetchAll(ctx context.Context, fetchers []Fetcher) []FetchResult {
	results := make([]FetchResult, len(fetchers))
	var g errgroup.Group
	for i, f := range fetchers {
		i, f := i, f
		g.Go(func() error {
			items, err := f.Fetch(ctx)
			results[i] = FetchResult{Source: f.Name(), Items: items, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Merge 按数据源优先级拼接结果，保留每个源内部的时间顺序，不做跨源排序
func Merge(results []FetchResult) []NewsItem {
	var n int
	for _, r := range results {
		n += len(r.Items)
	}
	out := make([]NewsItem, 0, n)
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		out = append(out, r.Items...)
	}
	return out
}

func window(n int) int {
	if n <= 0 {
		return defaultWindow
	}
	return n
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}

func readLimit(r io.Reader, n int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, n))
}
