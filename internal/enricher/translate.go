package enricher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
)

const (
	googleTranslateURL = "https://translate.googleapis.com/translate_a/single"
	myMemoryURL        = "https://api.mymemory.translated.net/get"

	translateMaxResponseBytes = 256 * 1024
	translateMaxLen           = 500
	translateTimeout          = 15 * time.Second
)

// Translator 依次尝试 Google Translate 公开接口 → MyMemory，均失败返回错误
type Translator struct {
	Target      string
	GoogleURL   string
	MyMemoryURL string
	Timeout     time.Duration
	Client      *http.Client
}

func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return text, nil
	}
	if t.target() == "uk" && isMostlyCyrillic(text) {
		return text, nil
	}
	if rs := []rune(text); len(rs) > translateMaxLen {
		text = string(rs[:translateMaxLen])
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = translateTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, gErr := t.viaGoogle(ctx, text)
	if gErr == nil && out != "" {
		return out, nil
	}
	out, mErr := t.viaMyMemory(ctx, text)
	if mErr == nil && out != "" {
		return out, nil
	}
	return "", fmt.Errorf("translate: google: %v; mymemory: %v", gErr, mErr)
}

func (t *Translator) target() string {
	if t.Target == "" {
		return "uk"
	}
	return t.Target
}

// viaGoogle 使用 client=gtx，无需密钥
func (t *Translator) viaGoogle(ctx context.Context, text string) (string, error) {
	base := t.GoogleURL
	if base == "" {
		base = googleTranslateURL
	}
	params := url.Values{
		"client": {"gtx"},
		"sl":     {"auto"},
		"tl":     {t.target()},
		"dt":     {"t"},
		"q":      {text},
	}
	body, err := t.get(ctx, base+"?"+params.Encode())
	if err != nil {
		return "", err
	}

	// 响应格式: [[["译文","原文",...],...],...]
	var raw []any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty response")
	}
	outer, ok := raw[0].([]any)
	if !ok {
		return "", fmt.Errorf("unexpected response shape")
	}
	var result strings.Builder
	for _, seg := range outer {
		pair, ok := seg.([]any)
		if !ok || len(pair) < 1 {
			continue
		}
		if s, ok := pair[0].(string); ok {
			result.WriteString(s)
		}
	}
	return strings.TrimSpace(result.String()), nil
}

func (t *Translator) viaMyMemory(ctx context.Context, text string) (string, error) {
	base := t.MyMemoryURL
	if base == "" {
		base = myMemoryURL
	}
	params := url.Values{
		"langpair": {"en|" + t.target()},
		"q":        {text},
	}
	body, err := t.get(ctx, base+"?"+params.Encode())
	if err != nil {
		return "", err
	}
	var out struct {
		ResponseData struct {
			TranslatedText string `json:"translatedText"`
		} `json:"responseData"`
		ResponseStatus any `json:"responseStatus"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	return strings.TrimSpace(out.ResponseData.TranslatedText), nil
}

func (t *Translator) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, translateMaxResponseBytes))
}

// isMostlyCyrillic 判断文本是否已经是西里尔字母为主，是则无需翻译
func isMostlyCyrillic(s string) bool {
	var cyr, letters int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Cyrillic, r) {
			cyr++
		}
	}
	if letters == 0 {
		return true
	}
	return cyr*2 >= letters
}
