package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Sanitize 去除 HTML 标签与实体并把连续空白折叠为单个空格。
// 对任意输入满足 Sanitize(Sanitize(x)) == Sanitize(x)。
func Sanitize(s string) string {
	out := collapseSpace(s)
	// 每轮只解码一层实体，可能再露出标签或实体（如 "&amp;lt;b&amp;gt;"），
	// 重复到结果不再变化；每次变化都会让字符串变短，循环必然结束
	for strings.ContainsAny(out, "<&") {
		next := collapseSpace(stripMarkup(out))
		if next == out {
			break
		}
		out = next
	}
	return out
}

func stripMarkup(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style, noscript").Remove()
	// 块级元素之间补空格，避免 "<p>a</p><p>b</p>" 粘成 "ab"
	doc.Find("p, div, br, li, h1, h2, h3, h4, h5, h6, tr").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return doc.Text()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContentHash 对已清洗的标题和正文计算 sha256，十六进制输出
func ContentHash(title, body string) string {
	sum := sha256.Sum256([]byte(title + " " + body))
	return hex.EncodeToString(sum[:])
}

// WordCount 按空白切分计数
func WordCount(s string) int {
	return len(strings.Fields(s))
}
