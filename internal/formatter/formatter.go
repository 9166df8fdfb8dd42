// Package formatter 把待发布内容渲染为 Telegram HTML 消息
package formatter

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/CryptoCourier/internal/collector"
)

// Telegram 对图片说明与纯文本消息的长度限制
const (
	CaptionLimit = 1024
	TextLimit    = 4096

	maxTitleRunes = 256
	dateLayout    = "02.01.2006 15:04"
	footer        = "#криптоновини #CryptoCourier"
)

// Input 是一条已完成增强的新闻
type Input struct {
	Title       string
	Body        string
	Note        string
	Sentiment   string
	Tags        []string
	URL         string
	PublishedAt time.Time
}

// Post 渲染新闻消息；超长时只截断正文，其余部分保持完整
func Post(in Input, loc *time.Location, limit int) string {
	if limit <= 0 {
		limit = TextLimit
	}
	title := truncateRunes(in.Title, maxTitleRunes)

	head, tail := postParts(in, title, loc)
	avail := limit - runeLen(head) - runeLen(tail)
	body := escapeWithin(strings.TrimSpace(in.Body), avail)

	var b strings.Builder
	b.WriteString(head)
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	b.WriteString(tail)
	return b.String()
}

func postParts(in Input, title string, loc *time.Location) (head, tail string) {
	head = "🔔 <b>" + html.EscapeString(title) + "</b>\n\n"

	var t strings.Builder
	if in.Note != "" {
		t.WriteString("💡 " + html.EscapeString(in.Note) + "\n")
	}
	if label := sentimentLabel(in.Sentiment); label != "" {
		t.WriteString(label + "\n")
	}
	if !in.PublishedAt.IsZero() {
		ts := in.PublishedAt
		if loc != nil {
			ts = ts.In(loc)
		}
		t.WriteString("📅 " + ts.Format(dateLayout) + "\n")
	}
	if in.URL != "" {
		t.WriteString(`🔗 <a href="` + html.EscapeString(in.URL) + `">Читати повністю</a>` + "\n")
	}
	t.WriteString("\n")
	if len(in.Tags) > 0 {
		t.WriteString(html.EscapeString(strings.Join(in.Tags, " ")) + " ")
	}
	t.WriteString(footer)
	return head, t.String()
}

func sentimentLabel(s string) string {
	switch s {
	case "bullish":
		return "🟢 Позитивний настрій"
	case "bearish":
		return "🔴 Негативний настрій"
	case "neutral":
		return "⚪ Нейтральний настрій"
	}
	return ""
}

// Prices 渲染行情播报
func Prices(quotes []collector.PriceQuote, now time.Time, loc *time.Location) string {
	if loc != nil {
		now = now.In(loc)
	}
	var b strings.Builder
	b.WriteString("📊 <b>Огляд ринку</b>\n")
	b.WriteString("🕒 " + now.Format(dateLayout) + "\n\n")
	for _, q := range quotes {
		arrow := "🟢"
		sign := "+"
		if q.Change24h < 0 {
			arrow = "🔴"
			sign = ""
		}
		fmt.Fprintf(&b, "• <b>%s</b> %s (%s %s%.2f%%)\n",
			html.EscapeString(CoinSymbol(q.Coin)), FormatUSD(q.Price), arrow, sign, q.Change24h)
	}
	b.WriteString("\n#крипторинок #CryptoCourier")
	return b.String()
}

var coinSymbols = map[string]string{
	"bitcoin":          "BTC",
	"ethereum":         "ETH",
	"solana":           "SOL",
	"ripple":           "XRP",
	"binancecoin":      "BNB",
	"dogecoin":         "DOGE",
	"cardano":          "ADA",
	"the-open-network": "TON",
	"tron":             "TRX",
}

// CoinSymbol 把 CoinGecko id 映射为行情代码，未知 id 直接大写
func CoinSymbol(id string) string {
	if s, ok := coinSymbols[id]; ok {
		return s
	}
	return strings.ToUpper(id)
}

// FormatUSD 输出带千分位的美元价格；小于 1 的价格保留 4 位小数
func FormatUSD(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "$—"
	}
	decimals := 2
	if math.Abs(v) < 1 {
		decimals = 4
	}
	s := strconv.FormatFloat(math.Abs(v), 'f', decimals, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	var grouped strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(c)
	}
	sign := ""
	if v < 0 {
		sign = "-"
	}
	return sign + "$" + grouped.String() + "." + frac
}

// escapeWithin 转义文本并保证结果不超过 avail 个 rune；发生截断时以省略号结尾
func escapeWithin(s string, avail int) string {
	if s == "" || avail <= 0 {
		return ""
	}
	escaped := html.EscapeString(s)
	if runeLen(escaped) <= avail {
		return escaped
	}
	if avail == 1 {
		return "…"
	}

	var b strings.Builder
	n := 0
	for _, r := range s {
		piece := html.EscapeString(string(r))
		pn := runeLen(piece)
		if n+pn > avail-1 {
			break
		}
		b.WriteString(piece)
		n += pn
	}
	return strings.TrimRight(b.String(), " ") + "…"
}

func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit]) + "…"
}

func runeLen(s string) int {
	return len([]rune(s))
}
