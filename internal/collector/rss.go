package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// RSSFetcher 通过 gofeed 解析一个 RSS/Atom 源
type RSSFetcher struct {
	URL     string
	Limit   int
	Timeout time.Duration
	Client  *http.Client
}

func (r *RSSFetcher) Name() string {
	return SourceRSS + ":" + r.URL
}

func (r *RSSFetcher) Fetch(ctx context.Context) ([]NewsItem, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(r.Timeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("rss %s: build request: %w", r.URL, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rss %s: %w", r.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss %s: unexpected status %d", r.URL, resp.StatusCode)
	}

	body, err := readLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("rss %s: read: %w", r.URL, err)
	}
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("rss %s: parse: %w", r.URL, err)
	}

	items := make([]NewsItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		items = append(items, convertFeedItem(it, r.URL))
	}

	// 源站本身按时间倒序输出，这里不再排序
	if n := window(r.Limit); len(items) > n {
		items = items[:n]
	}
	return items, nil
}

func convertFeedItem(it *gofeed.Item, feedURL string) NewsItem {
	// 正文优先 description，缺失时退回 content
	body := it.Description
	if strings.TrimSpace(body) == "" {
		body = it.Content
	}

	link := strings.TrimSpace(it.Link)
	if link == "" {
		link = strings.TrimSpace(it.GUID)
	}

	var published time.Time
	if it.PublishedParsed != nil {
		published = *it.PublishedParsed
	} else if it.UpdatedParsed != nil {
		published = *it.UpdatedParsed
	}

	return NewsItem{
		Title:       it.Title,
		Body:        body,
		URL:         link,
		ImageURL:    feedItemImage(it),
		Source:      SourceRSS,
		Feed:        feedURL,
		PublishedAt: published,
	}
}

// feedItemImage 依次尝试 <image>、图片类 enclosure、media:content
func feedItemImage(it *gofeed.Item) string {
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	for _, enc := range it.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	if media, ok := it.Extensions["media"]; ok {
		for _, key := range []string{"content", "thumbnail"} {
			for _, ext := range media[key] {
				if u := ext.Attrs["url"]; u != "" {
					return u
				}
			}
		}
	}
	return ""
}
