// Package publisher 负责把渲染好的消息投递到 Telegram 频道
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/LJTian/CryptoCourier/internal/logger"
)

const (
	defaultAPIBase      = "https://api.telegram.org"
	defaultInterval     = 2 * time.Second
	defaultTimeout      = 20 * time.Second
	imageCheckTimeout   = 10 * time.Second
	maxRetryAfter       = 30 * time.Second
	maxAPIResponseBytes = 1 << 20
	captionLimit        = 1024
)

// ErrRejected 表示 Telegram 明确拒绝了请求（ok=false）
var ErrRejected = errors.New("telegram rejected request")

// APIError 携带 Telegram 返回的错误码与描述
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

func (e *APIError) Unwrap() error { return ErrRejected }

// Publisher 由 pipeline 依赖，便于测试替换
type Publisher interface {
	Publish(ctx context.Context, dest, text, imageURL string) error
}

type Options struct {
	Token    string
	APIBase  string
	Interval time.Duration // 两次发送之间的最小间隔
	Client   *http.Client
}

type Telegram struct {
	token   string
	apiBase string
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

func NewTelegram(opt Options) *Telegram {
	base := strings.TrimRight(opt.APIBase, "/")
	if base == "" {
		base = defaultAPIBase
	}
	interval := opt.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	client := opt.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Telegram{
		token:   opt.Token,
		apiBase: base,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		log:     logger.Named("publisher"),
	}
}

type sendMessageReq struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendPhotoReq struct {
	ChatID    string `json:"chat_id"`
	Photo     string `json:"photo"`
	Caption   string `json:"caption"`
	ParseMode string `json:"parse_mode"`
}

type apiResp struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Publish 有配图且图片可访问时发图片消息，否则发纯文本。
// 图片消息被 Telegram 拒绝时同样退回纯文本。
func (t *Telegram) Publish(ctx context.Context, dest, text, imageURL string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	if imageURL != "" && len([]rune(text)) <= captionLimit {
		if t.VerifyImage(ctx, imageURL) {
			err := t.call(ctx, "sendPhoto", sendPhotoReq{
				ChatID:    dest,
				Photo:     imageURL,
				Caption:   text,
				ParseMode: "HTML",
			})
			if err == nil {
				return nil
			}
			if !errors.Is(err, ErrRejected) {
				return err
			}
			t.log.Warn().Err(err).Str("image", imageURL).Msg("sendPhoto rejected, falling back to text")
		} else {
			t.log.Debug().Str("image", imageURL).Msg("image not usable, sending text only")
		}
	}

	return t.call(ctx, "sendMessage", sendMessageReq{
		ChatID:    dest,
		Text:      text,
		ParseMode: "HTML",
	})
}

// VerifyImage 确认图片地址返回 200 且 Content-Type 为 image/*
func (t *Telegram) VerifyImage(ctx context.Context, imageURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, imageCheckTimeout)
	defer cancel()

	// 部分 CDN 不支持 HEAD，失败时再用 GET 试一次
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, imageURL, nil)
		if err != nil {
			return false
		}
		req.Header.Set("User-Agent", "Mozilla/5.0")
		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "image/")
		}
	}
	return false
}

// call 发送一次 Bot API 请求；遇到 429 且等待时间合理时重试一次
func (t *Telegram) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		err = t.do(ctx, method, body)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests ||
			apiErr.RetryAfter <= 0 || apiErr.RetryAfter > maxRetryAfter {
			return err
		}
		t.log.Warn().Str("method", method).Dur("retry_after", apiErr.RetryAfter).Msg("telegram rate limited")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(apiErr.RetryAfter):
		}
	}
	return err
}

func (t *Telegram) do(ctx context.Context, method string, body []byte) error {
	endpoint := t.apiBase + "/bot" + t.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// url.Error 会带上含 token 的地址，不直接透出
		if ctx.Err() != nil {
			return fmt.Errorf("telegram %s: %w", method, ctx.Err())
		}
		return fmt.Errorf("telegram %s: request failed: %s", method, redact(err.Error(), t.token))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return fmt.Errorf("telegram %s: read response: %w", method, err)
	}
	var out apiResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("telegram %s: status %d: decode: %w", method, resp.StatusCode, err)
	}
	if !out.OK {
		code := out.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{
			Method:      method,
			Code:        code,
			Description: out.Description,
			RetryAfter:  time.Duration(out.Parameters.RetryAfter) * time.Second,
		}
	}
	return nil
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<token>")
}
