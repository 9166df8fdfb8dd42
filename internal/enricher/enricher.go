// Package enricher 为待发布新闻补充译文、情绪标签、话题标签与一句背景说明。
// 任何内部失败都退回原文，从不向调用方返回错误。
package enricher

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/LJTian/CryptoCourier/internal/logger"
)

// Sentiment 取值
const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentNeutral = "neutral"
)

const maxTags = 5

type Options struct {
	Translate  bool
	TargetLang string
	// 以下主要供测试替换
	GoogleURL   string
	MyMemoryURL string
	Timeout     time.Duration
	Client      *http.Client
}

type Result struct {
	Title      string
	Body       string
	Note       string
	Sentiment  string
	Tags       []string
	Translated bool
}

type Enricher struct {
	translate  bool
	translator *Translator
	log        *logger.Logger
}

func New(opt Options) *Enricher {
	return &Enricher{
		translate: opt.Translate,
		translator: &Translator{
			Target:      opt.TargetLang,
			GoogleURL:   opt.GoogleURL,
			MyMemoryURL: opt.MyMemoryURL,
			Timeout:     opt.Timeout,
			Client:      opt.Client,
		},
		log: logger.Named("enricher"),
	}
}

// Enrich 的情绪、标签和说明都基于原文（英文）计算，译文只用于展示
func (e *Enricher) Enrich(ctx context.Context, title, body string) Result {
	text := title + " " + body
	res := Result{
		Title:     title,
		Body:      body,
		Sentiment: Sentiment(text),
		Tags:      Tags(text),
		Note:      Note(text),
	}
	if !e.translate {
		return res
	}

	tTitle, err := e.translator.Translate(ctx, title)
	if err != nil {
		e.log.Warn().Err(err).Msg("translate title failed, using original")
		return res
	}
	tBody, err := e.translator.Translate(ctx, body)
	if err != nil {
		e.log.Warn().Err(err).Msg("translate body failed, using original")
		return res
	}
	res.Title, res.Body, res.Translated = tTitle, tBody, true
	return res
}

var wordRe = regexp.MustCompile(`[a-z0-9]+(?:-[a-z0-9]+)*`)

func words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

var (
	bullishWords = []string{
		"surge", "surges", "soar", "soars", "rally", "rallies", "gain", "gains",
		"approve", "approved", "approval", "record", "high", "bull", "bullish",
		"rise", "rises", "jump", "jumps", "adoption", "inflow", "inflows", "partnership", "launch", "launches",
	}
	bearishWords = []string{
		"crash", "crashes", "plunge", "plunges", "drop", "drops", "fall", "falls",
		"hack", "hacked", "exploit", "lawsuit", "sue", "sues", "fraud", "ban", "bans",
		"bear", "bearish", "outflow", "outflows", "liquidation", "liquidations", "sell-off", "scam", "reject", "rejected",
	}
	bullishSet = toSet(bullishWords)
	bearishSet = toSet(bearishWords)
)

// Sentiment 按关键词计分，正负相抵后给出标签
func Sentiment(text string) string {
	var score int
	for _, w := range words(text) {
		if _, ok := bullishSet[w]; ok {
			score++
		}
		if _, ok := bearishSet[w]; ok {
			score--
		}
	}
	switch {
	case score > 0:
		return SentimentBullish
	case score < 0:
		return SentimentBearish
	}
	return SentimentNeutral
}

type topic struct {
	tag      string
	keywords []string
	note     string
}

// 顺序即标签输出顺序
var topics = []topic{
	{tag: "#Bitcoin", keywords: []string{"bitcoin", "btc"}},
	{tag: "#Ethereum", keywords: []string{"ethereum", "eth", "ether"}},
	{tag: "#Solana", keywords: []string{"solana", "sol"}},
	{tag: "#XRP", keywords: []string{"xrp", "ripple"}},
	{tag: "#ETF", keywords: []string{"etf", "etfs"}, note: "Рішення щодо ETF зазвичай впливають на інституційний попит."},
	{tag: "#SEC", keywords: []string{"sec"}, note: "Дії регулятора можуть посилити волатильність ринку."},
	{tag: "#Regulation", keywords: []string{"regulation", "regulators", "regulatory", "mica"}, note: "Регуляторні новини часто впливають на настрої ринку."},
	{tag: "#DeFi", keywords: []string{"defi"}},
	{tag: "#NFT", keywords: []string{"nft", "nfts"}},
	{tag: "#Stablecoins", keywords: []string{"stablecoin", "stablecoins", "usdt", "usdc", "tether"}},
	{tag: "#Security", keywords: []string{"hack", "hacked", "exploit", "breach"}, note: "Перевірте, чи не зачіпає інцидент ваші гаманці чи біржі."},
	{tag: "#Binance", keywords: []string{"binance", "bnb"}},
}

// Tags 返回命中的话题标签，去重并最多 maxTags 个
func Tags(text string) []string {
	set := toSet(words(text))
	var tags []string
	for _, tp := range topics {
		if matchAny(set, tp.keywords) {
			tags = append(tags, tp.tag)
			if len(tags) == maxTags {
				break
			}
		}
	}
	return tags
}

// Note 返回第一个命中话题的背景说明，没有则为空
func Note(text string) string {
	set := toSet(words(text))
	for _, tp := range topics {
		if tp.note != "" && matchAny(set, tp.keywords) {
			return tp.note
		}
	}
	return ""
}

func matchAny(set map[string]struct{}, keys []string) bool {
	for _, k := range keys {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}

func toSet(list []string) map[string]struct{} {
	m := make(map[string]struct{}, len(list))
	for _, s := range list {
		m[s] = struct{}{}
	}
	return m
}
