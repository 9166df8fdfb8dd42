// Package processor 负责候选新闻的清洗、有效性校验、屏蔽域名过滤与去重判定。
// Engine 只读 state.State，从不修改它；记录已发布内容是 pipeline 在发布成功后的职责。
package processor

import (
	"net/url"
	"strings"

	"github.com/LJTian/CryptoCourier/internal/collector"
	"github.com/LJTian/CryptoCourier/internal/state"
)

const DefaultMinBodyWords = 5

// Reason 是拒绝原因，供日志和统计使用
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonEmpty          Reason = "empty"
	ReasonTooShort       Reason = "too_short"
	ReasonBannedDomain   Reason = "banned_domain"
	ReasonDuplicateHash  Reason = "duplicate_hash"
	ReasonDuplicateURL   Reason = "duplicate_url"
	ReasonDuplicateTitle Reason = "duplicate_title"
)

type Options struct {
	// 正文词数 <= MinBodyWords 视为导读/占位条目；0 表示使用 DefaultMinBodyWords
	MinBodyWords  int
	BannedDomains []string
}

// Decision 是一次判定的结果；Accepted 为 true 时 Item 为清洗后的条目
type Decision struct {
	Accepted bool
	Reason   Reason
	Item     collector.NewsItem
	Identity state.Identity
}

type Engine struct {
	minWords int
	banned   []string
}

func NewEngine(opt Options) *Engine {
	minWords := opt.MinBodyWords
	if minWords <= 0 {
		minWords = DefaultMinBodyWords
	}
	banned := make([]string, 0, len(opt.BannedDomains))
	for _, d := range opt.BannedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			banned = append(banned, d)
		}
	}
	return &Engine{minWords: minWords, banned: banned}
}

// Evaluate 依次执行：清洗 → 有效性 → 屏蔽域名 → 计算哈希 → 去重，遇到第一个失败即返回
func (e *Engine) Evaluate(item collector.NewsItem, st *state.State) Decision {
	item.Title = Sanitize(item.Title)
	item.Body = Sanitize(item.Body)
	item.URL = strings.TrimSpace(item.URL)

	if item.Title == "" || item.Body == "" {
		return reject(ReasonEmpty, item)
	}
	if WordCount(item.Body) <= e.minWords {
		return reject(ReasonTooShort, item)
	}
	if e.IsBanned(item.URL) {
		return reject(ReasonBannedDomain, item)
	}

	id := state.Identity{
		Hash:  ContentHash(item.Title, item.Body),
		URL:   item.URL,
		Title: item.Title,
	}
	if st != nil {
		switch st.Seen(id) {
		case state.MatchHash:
			return Decision{Reason: ReasonDuplicateHash, Item: item, Identity: id}
		case state.MatchURL:
			return Decision{Reason: ReasonDuplicateURL, Item: item, Identity: id}
		case state.MatchTitle:
			return Decision{Reason: ReasonDuplicateTitle, Item: item, Identity: id}
		}
	}
	return Decision{Accepted: true, Item: item, Identity: id}
}

// IsBanned 判断链接主机名是否包含任一屏蔽域名
func (e *Engine) IsBanned(rawURL string) bool {
	if len(e.banned) == 0 || rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, d := range e.banned {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}

func reject(r Reason, item collector.NewsItem) Decision {
	return Decision{Reason: r, Item: item}
}
