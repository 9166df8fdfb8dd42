package formatter

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/LJTian/CryptoCourier/internal/collector"
)

func kyiv(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestPostLayout(t *testing.T) {
	in := Input{
		Title:       "ETF <Approved> & more",
		Body:        "Regulators approved a new ETF today for trading.",
		Note:        "Рішення щодо ETF зазвичай впливають на інституційний попит.",
		Sentiment:   "bullish",
		Tags:        []string{"#ETF", "#Bitcoin"},
		URL:         "https://a.com/1?x=1&y=2",
		PublishedAt: time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC),
	}
	out := Post(in, kyiv(t), TextLimit)

	wants := []string{
		"🔔 <b>ETF &lt;Approved&gt; &amp; more</b>\n\n",
		"Regulators approved a new ETF today for trading.\n\n",
		"💡 Рішення щодо ETF",
		"🟢 Позитивний настрій",
		"📅 17.10.2026 13:00", // 10:00 UTC → 13:00 Kyiv (EEST)
		`<a href="https://a.com/1?x=1&amp;y=2">Читати повністю</a>`,
		"#ETF #Bitcoin #криптоновини #CryptoCourier",
	}
	for _, w := range wants {
		if !strings.Contains(out, w) {
			t.Fatalf("output missing %q:\n%s", w, out)
		}
	}
	if !strings.HasSuffix(out, footer) {
		t.Fatalf("footer should close the message:\n%s", out)
	}
}

func TestPostOmitsEmptyParts(t *testing.T) {
	out := Post(Input{Title: "Only title", URL: "https://a.com"}, nil, 0)
	if strings.Contains(out, "💡") || strings.Contains(out, "📅") || strings.Contains(out, "настрій") {
		t.Fatalf("empty parts should be omitted:\n%s", out)
	}
}

func TestPostTruncatesBodyToLimit(t *testing.T) {
	in := Input{
		Title: "Long story",
		Body:  strings.Repeat("word & ", 500),
		URL:   "https://a.com/long",
		Tags:  []string{"#Bitcoin"},
	}
	out := Post(in, nil, CaptionLimit)
	if n := len([]rune(out)); n > CaptionLimit {
		t.Fatalf("caption has %d runes, limit %d", n, CaptionLimit)
	}
	if !strings.Contains(out, "…") {
		t.Fatalf("truncated body should end with ellipsis")
	}
	if !strings.Contains(out, "Читати повністю") || !strings.HasSuffix(out, footer) {
		t.Fatalf("link and footer must survive truncation:\n%s", out)
	}
	// 不能把实体切成半截
	idx := strings.Index(out, "…")
	if tail := out[max(0, idx-5):idx]; strings.Contains(tail, "&") && !strings.Contains(tail, ";") {
		t.Fatalf("entity cut in half near %q", tail)
	}
}

func TestPrices(t *testing.T) {
	quotes := []collector.PriceQuote{
		{Coin: "bitcoin", Price: 67000.5, Change24h: 2.5},
		{Coin: "dogecoin", Price: 0.1236, Change24h: -3.333},
		{Coin: "newcoin", Price: 1234567, Change24h: 0},
	}
	out := Prices(quotes, time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC), kyiv(t))

	wants := []string{
		"📊 <b>Огляд ринку</b>",
		"🕒 18.10.2026 09:00",
		"• <b>BTC</b> $67,000.50 (🟢 +2.50%)",
		"• <b>DOGE</b> $0.1236 (🔴 -3.33%)",
		"• <b>NEWCOIN</b> $1,234,567.00 (🟢 +0.00%)",
	}
	for _, w := range wants {
		if !strings.Contains(out, w) {
			t.Fatalf("output missing %q:\n%s", w, out)
		}
	}
}

func TestFormatUSD(t *testing.T) {
	cases := map[float64]string{
		0:       "$0.0000",
		999.999: "$1,000.00",
		100:     "$100.00",
		-2500.5: "-$2,500.50",
	}
	for in, want := range cases {
		if got := FormatUSD(in); got != want {
			t.Fatalf("FormatUSD(%v) = %q, want %q", in, got, want)
		}
	}
}
