package collector

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// ImageResolver 在条目缺少配图时，抓取文章页的 og:image / twitter:image
type ImageResolver struct {
	Timeout   time.Duration
	UserAgent string
}

// Resolve 尽力而为：任何失败都返回空串
func (r *ImageResolver) Resolve(ctx context.Context, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	if ctx.Err() != nil {
		return ""
	}

	ua := r.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	c := colly.NewCollector(
		colly.UserAgent(ua),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(timeoutOr(r.Timeout))

	var ogImage, twitterImage string
	c.OnHTML(`meta[property="og:image"], meta[property="og:image:url"]`, func(e *colly.HTMLElement) {
		if ogImage == "" {
			ogImage = strings.TrimSpace(e.Attr("content"))
		}
	})
	c.OnHTML(`meta[name="twitter:image"]`, func(e *colly.HTMLElement) {
		if twitterImage == "" {
			twitterImage = strings.TrimSpace(e.Attr("content"))
		}
	})

	if err := c.Visit(pageURL); err != nil {
		return ""
	}

	img := ogImage
	if img == "" {
		img = twitterImage
	}
	if img == "" {
		return ""
	}
	// 相对路径补全为绝对地址
	ref, err := url.Parse(img)
	if err != nil {
		return ""
	}
	return u.ResolveReference(ref).String()
}
