package processor

import (
	"testing"

	"github.com/LJTian/CryptoCourier/internal/collector"
	"github.com/LJTian/CryptoCourier/internal/state"
)

func TestSanitizeStripsMarkupAndCollapsesSpace(t *testing.T) {
	cases := map[string]string{
		"":                                      "",
		"  plain   text\n\twith  spaces ":        "plain text with spaces",
		"<p>Hello <b>world</b></p>":              "Hello world",
		"<p>one</p><p>two</p>":                   "one two",
		"Bitcoin &amp; Ether &gt; $1T":           "Bitcoin & Ether > $1T",
		"&lt;b&gt;bold&lt;/b&gt; text":           "bold text",
		"<script>alert(1)</script>visible":       "visible",
		"<style>p{color:red}</style> styled  ok": "styled ok",
		"a < b and c":                            "a < b and c",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Fatalf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"<div>ETF <i>Approved</i></div>",
		"&amp;lt;p&amp;gt;nested&amp;lt;/p&amp;gt;",
		"Tom &amp; Jerry",
		"x &lt; y",
		"AT&T rocks",
		"<a href='https://x.com'>link</a>   tail",
		"已经是   中文  文本",
		"Fees &amp;amp;amp;amp;amp; gas",
		"&amp;amp;amp;amp;amp;amp;lt;b&amp;amp;amp;amp;amp;amp;gt;deep",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		if once != twice {
			t.Fatalf("Sanitize not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestSanitizeDecodesDeeplyNestedEntities(t *testing.T) {
	if got := Sanitize("Fees &amp;amp;amp;amp;amp; gas"); got != "Fees & gas" {
		t.Fatalf("Sanitize = %q, want %q", got, "Fees & gas")
	}
}

func TestContentHashDeterministicAndDistinct(t *testing.T) {
	h1a := ContentHash("ETF Approved", "body")
	h1b := ContentHash("ETF Approved", "body")
	h2 := ContentHash("ETF Approved", "other body")

	if h1a != h1b {
		t.Fatalf("ContentHash not deterministic: %q vs %q", h1a, h1b)
	}
	if h1a == h2 {
		t.Fatalf("ContentHash should differ for different bodies: %q", h1a)
	}
	if len(h1a) != 64 {
		t.Fatalf("expected 256-bit hex digest, got %d chars", len(h1a))
	}
}

func etfItem() collector.NewsItem {
	return collector.NewsItem{
		Title: "ETF Approved",
		Body:  "Regulators approved a new ETF today for trading.",
		URL:   "https://a.com/1",
	}
}

func TestEvaluateAcceptsNewItem(t *testing.T) {
	e := NewEngine(Options{})
	st := state.New()

	d := e.Evaluate(etfItem(), st)
	if !d.Accepted {
		t.Fatalf("expected accept, got reason %q", d.Reason)
	}
	want := ContentHash("ETF Approved", "Regulators approved a new ETF today for trading.")
	if d.Identity.Hash != want {
		t.Fatalf("hash = %q, want %q", d.Identity.Hash, want)
	}
	if d.Identity.URL != "https://a.com/1" || d.Identity.Title != "ETF Approved" {
		t.Fatalf("unexpected identity %+v", d.Identity)
	}
	// 判定不应修改状态
	if st.SeenHashes.Len() != 0 || st.PostsToday != 0 {
		t.Fatalf("Evaluate must not mutate state: %+v", st.Summary())
	}
}

func TestEvaluateRejectsHashMatchWithDifferentURL(t *testing.T) {
	e := NewEngine(Options{})
	st := state.New()

	first := e.Evaluate(etfItem(), st)
	st.RecordPublished(first.Identity)

	again := etfItem()
	again.URL = "https://b.com/2"
	d := e.Evaluate(again, st)
	if d.Accepted || d.Reason != ReasonDuplicateHash {
		t.Fatalf("expected duplicate_hash, got accepted=%v reason=%q", d.Accepted, d.Reason)
	}

	// 完全相同的条目再次判定同样被拒绝
	if d := e.Evaluate(etfItem(), st); d.Accepted {
		t.Fatalf("identical item should be rejected after recording")
	}
}

func TestEvaluateEachKeyIndependentlyRejects(t *testing.T) {
	e := NewEngine(Options{})
	st := state.New()
	st.RecordPublished(e.Evaluate(etfItem(), st).Identity)

	urlOnly := collector.NewsItem{Title: "Completely different headline", Body: "Some unrelated body text with enough words here.", URL: "https://a.com/1"}
	if d := e.Evaluate(urlOnly, st); d.Reason != ReasonDuplicateURL {
		t.Fatalf("url-only match: reason = %q", d.Reason)
	}

	titleOnly := collector.NewsItem{Title: "<b>ETF  Approved</b>", Body: "A rewritten body that shares nothing with the first one.", URL: "https://c.com/3"}
	if d := e.Evaluate(titleOnly, st); d.Reason != ReasonDuplicateTitle {
		t.Fatalf("title-only match: reason = %q", d.Reason)
	}
}

func TestEvaluateValidity(t *testing.T) {
	e := NewEngine(Options{})
	st := state.New()

	short := etfItem()
	short.Body = "Short."
	if d := e.Evaluate(short, st); d.Reason != ReasonTooShort {
		t.Fatalf("short body: reason = %q", d.Reason)
	}

	five := etfItem()
	five.Body = "one two three four five"
	if d := e.Evaluate(five, st); d.Reason != ReasonTooShort {
		t.Fatalf("exactly threshold words should be rejected, got %q", d.Reason)
	}

	empty := etfItem()
	empty.Title = "<p> </p>"
	if d := e.Evaluate(empty, st); d.Reason != ReasonEmpty {
		t.Fatalf("empty title: reason = %q", d.Reason)
	}

	custom := NewEngine(Options{MinBodyWords: 1})
	two := etfItem()
	two.Body = "two words"
	if d := custom.Evaluate(two, st); !d.Accepted {
		t.Fatalf("custom threshold should accept two words, got %q", d.Reason)
	}
}

func TestEvaluateBannedDomain(t *testing.T) {
	e := NewEngine(Options{BannedDomains: []string{"PRNewswire.com", " "}})
	st := state.New()

	item := etfItem()
	item.URL = "https://www.prnewswire.com/news/123"
	if d := e.Evaluate(item, st); d.Reason != ReasonBannedDomain {
		t.Fatalf("banned domain: reason = %q", d.Reason)
	}

	// 只匹配主机名，不匹配路径
	item.URL = "https://a.com/prnewswire.com/story"
	if d := e.Evaluate(item, st); !d.Accepted {
		t.Fatalf("path mention should not be banned, got %q", d.Reason)
	}
}
