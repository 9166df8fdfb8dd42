package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	gnewsBaseURL     = "https://gnews.io/api/v4"
	marketauxBaseURL = "https://api.marketaux.com/v1"
	coinstatsBaseURL = "https://openapiv1.coinstats.app"
)

// getJSON 发起 GET 请求并把响应解码到 out；任何非 200 都视为失败
func getJSON(ctx context.Context, client *http.Client, rawURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := readLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// ---------- GNews ----------

// GNewsFetcher 通过 GNews 搜索接口拉取加密货币新闻
type GNewsFetcher struct {
	APIKey  string
	Query   string
	BaseURL string
	Limit   int
	Timeout time.Duration
	Client  *http.Client
}

type gnewsResp struct {
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		Image       string `json:"image"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func (g *GNewsFetcher) Name() string {
	return SourceGNews
}

func (g *GNewsFetcher) Fetch(ctx context.Context) ([]NewsItem, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(g.Timeout))
	defer cancel()

	base := g.BaseURL
	if base == "" {
		base = gnewsBaseURL
	}
	query := g.Query
	if query == "" {
		query = "crypto OR bitcoin OR ethereum"
	}
	n := window(g.Limit)
	params := url.Values{
		"q":      {query},
		"lang":   {"en"},
		"sortby": {"publishedAt"},
		"max":    {strconv.Itoa(n)},
		"apikey": {g.APIKey},
	}

	var data gnewsResp
	if err := getJSON(ctx, g.Client, base+"/search?"+params.Encode(), nil, &data); err != nil {
		return nil, fmt.Errorf("gnews: %w", err)
	}

	items := make([]NewsItem, 0, len(data.Articles))
	for _, a := range data.Articles {
		// description 一般比 content 更完整（content 会被截断并带 "[1234 chars]"）
		body := a.Description
		if strings.TrimSpace(body) == "" {
			body = a.Content
		}
		items = append(items, NewsItem{
			Title:       a.Title,
			Body:        body,
			URL:         a.URL,
			ImageURL:    a.Image,
			Source:      SourceGNews,
			Feed:        SourceGNews,
			PublishedAt: parseTime(a.PublishedAt),
		})
	}
	if len(items) > n {
		items = items[:n]
	}
	return items, nil
}

// ---------- MarketAux ----------

// MarketAuxFetcher 拉取 MarketAux 的加密货币实体新闻
type MarketAuxFetcher struct {
	APIKey  string
	Symbols string
	BaseURL string
	Limit   int
	Timeout time.Duration
	Client  *http.Client
}

type marketauxResp struct {
	Data []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Snippet     string `json:"snippet"`
		URL         string `json:"url"`
		ImageURL    string `json:"image_url"`
		PublishedAt string `json:"published_at"`
	} `json:"data"`
}

func (m *MarketAuxFetcher) Name() string {
	return SourceMarketAux
}

func (m *MarketAuxFetcher) Fetch(ctx context.Context) ([]NewsItem, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(m.Timeout))
	defer cancel()

	base := m.BaseURL
	if base == "" {
		base = marketauxBaseURL
	}
	symbols := m.Symbols
	if symbols == "" {
		symbols = "CC:BTC,CC:ETH"
	}
	n := window(m.Limit)
	params := url.Values{
		"symbols":         {symbols},
		"filter_entities": {"true"},
		"language":        {"en"},
		"limit":           {strconv.Itoa(n)},
		"api_token":       {m.APIKey},
	}

	var data marketauxResp
	if err := getJSON(ctx, m.Client, base+"/news/all?"+params.Encode(), nil, &data); err != nil {
		return nil, fmt.Errorf("marketaux: %w", err)
	}

	items := make([]NewsItem, 0, len(data.Data))
	for _, a := range data.Data {
		// snippet 是正文开头，比 description 长
		body := a.Snippet
		if strings.TrimSpace(body) == "" {
			body = a.Description
		}
		items = append(items, NewsItem{
			Title:       a.Title,
			Body:        body,
			URL:         a.URL,
			ImageURL:    a.ImageURL,
			Source:      SourceMarketAux,
			Feed:        SourceMarketAux,
			PublishedAt: parseTime(a.PublishedAt),
		})
	}
	if len(items) > n {
		items = items[:n]
	}
	return items, nil
}

// ---------- CoinStats ----------

// CoinStatsFetcher 拉取 CoinStats 新闻流
type CoinStatsFetcher struct {
	APIKey  string
	BaseURL string
	Limit   int
	Timeout time.Duration
	Client  *http.Client
}

type coinstatsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	ImgURL      string `json:"imgUrl"`
	ImgURLAlt   string `json:"imgURL"`
	FeedDate    int64  `json:"feedDate"` // 毫秒时间戳
}

// 新版 OpenAPI 返回 result，旧版 public API 返回 news
type coinstatsResp struct {
	Result []coinstatsArticle `json:"result"`
	News   []coinstatsArticle `json:"news"`
}

func (c *CoinStatsFetcher) Name() string {
	return SourceCoinStats
}

func (c *CoinStatsFetcher) Fetch(ctx context.Context) ([]NewsItem, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(c.Timeout))
	defer cancel()

	base := c.BaseURL
	if base == "" {
		base = coinstatsBaseURL
	}
	n := window(c.Limit)
	params := url.Values{"page": {"1"}, "limit": {strconv.Itoa(n)}}
	header := http.Header{}
	if c.APIKey != "" {
		header.Set("X-API-KEY", c.APIKey)
	}

	var data coinstatsResp
	if err := getJSON(ctx, c.Client, base+"/news?"+params.Encode(), header, &data); err != nil {
		return nil, fmt.Errorf("coinstats: %w", err)
	}

	list := data.Result
	if len(list) == 0 {
		list = data.News
	}
	items := make([]NewsItem, 0, len(list))
	for _, a := range list {
		img := a.ImgURL
		if img == "" {
			img = a.ImgURLAlt
		}
		var published time.Time
		if a.FeedDate > 0 {
			published = time.UnixMilli(a.FeedDate)
		}
		items = append(items, NewsItem{
			Title:       a.Title,
			Body:        a.Description,
			URL:         a.Link,
			ImageURL:    img,
			Source:      SourceCoinStats,
			Feed:        SourceCoinStats,
			PublishedAt: published,
		})
	}
	if len(items) > n {
		items = items[:n]
	}
	return items, nil
}

// parseTime 解析 API 返回的 RFC3339 时间，失败返回零值
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000000Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
