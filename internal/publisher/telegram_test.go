package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorded struct {
	method string
	body   map[string]any
}

// fakeTelegram 记录收到的 Bot API 调用，按方法名返回预设响应
type fakeTelegram struct {
	mu        sync.Mutex
	calls     []recorded
	responses map[string][]string
}

func (f *fakeTelegram) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/botTOKEN/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		method := strings.TrimPrefix(r.URL.Path, "/botTOKEN/")
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.calls = append(f.calls, recorded{method: method, body: body})
		resp := `{"ok":true,"result":{}}`
		if queue := f.responses[method]; len(queue) > 0 {
			resp = queue[0]
			f.responses[method] = queue[1:]
		}
		f.mu.Unlock()

		fmt.Fprint(w, resp)
	}
}

func (f *fakeTelegram) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

func newImageServer(contentType string, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
	}))
}

func newTelegram(apiURL string) *Telegram {
	return NewTelegram(Options{Token: "TOKEN", APIBase: apiURL, Interval: time.Millisecond})
}

func TestPublishTextOnly(t *testing.T) {
	fake := &fakeTelegram{}
	api := httptest.NewServer(fake.handler(t))
	defer api.Close()

	if err := newTelegram(api.URL).Publish(context.Background(), "@channel", "<b>hi</b>", ""); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := fake.methods(); len(got) != 1 || got[0] != "sendMessage" {
		t.Fatalf("calls = %v", got)
	}
	body := fake.calls[0].body
	if body["chat_id"] != "@channel" || body["text"] != "<b>hi</b>" || body["parse_mode"] != "HTML" {
		t.Fatalf("unexpected payload %v", body)
	}
}

func TestPublishWithVerifiedImage(t *testing.T) {
	fake := &fakeTelegram{}
	api := httptest.NewServer(fake.handler(t))
	defer api.Close()
	img := newImageServer("image/jpeg", http.StatusOK)
	defer img.Close()

	if err := newTelegram(api.URL).Publish(context.Background(), "@c", "caption", img.URL+"/a.jpg"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := fake.methods(); len(got) != 1 || got[0] != "sendPhoto" {
		t.Fatalf("calls = %v", got)
	}
	if fake.calls[0].body["photo"] != img.URL+"/a.jpg" || fake.calls[0].body["caption"] != "caption" {
		t.Fatalf("unexpected payload %v", fake.calls[0].body)
	}
}

func TestPublishFallsBackWhenImageUnusable(t *testing.T) {
	cases := map[string]*httptest.Server{
		"html":      newImageServer("text/html", http.StatusOK),
		"not found": newImageServer("image/png", http.StatusNotFound),
	}
	for name, img := range cases {
		fake := &fakeTelegram{}
		api := httptest.NewServer(fake.handler(t))

		err := newTelegram(api.URL).Publish(context.Background(), "@c", "text", img.URL)
		api.Close()
		img.Close()
		if err != nil {
			t.Fatalf("%s: Publish: %v", name, err)
		}
		if got := fake.methods(); len(got) != 1 || got[0] != "sendMessage" {
			t.Fatalf("%s: calls = %v", name, got)
		}
	}
}

func TestPublishFallsBackWhenPhotoRejected(t *testing.T) {
	fake := &fakeTelegram{responses: map[string][]string{
		"sendPhoto": {`{"ok":false,"error_code":400,"description":"Bad Request: wrong file identifier/HTTP URL specified"}`},
	}}
	api := httptest.NewServer(fake.handler(t))
	defer api.Close()
	img := newImageServer("image/png", http.StatusOK)
	defer img.Close()

	if err := newTelegram(api.URL).Publish(context.Background(), "@c", "text", img.URL); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := strings.Join(fake.methods(), ","); got != "sendPhoto,sendMessage" {
		t.Fatalf("calls = %s", got)
	}
}

func TestPublishReportsRejection(t *testing.T) {
	fake := &fakeTelegram{responses: map[string][]string{
		"sendMessage": {`{"ok":false,"error_code":403,"description":"Forbidden: bot is not a member of the channel chat"}`},
	}}
	api := httptest.NewServer(fake.handler(t))
	defer api.Close()

	err := newTelegram(api.URL).Publish(context.Background(), "@c", "text", "")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 403 {
		t.Fatalf("expected APIError 403, got %v", err)
	}
}

func TestPublishRetriesAfterRateLimit(t *testing.T) {
	fake := &fakeTelegram{responses: map[string][]string{
		"sendMessage": {`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 1","parameters":{"retry_after":1}}`},
	}}
	api := httptest.NewServer(fake.handler(t))
	defer api.Close()

	if err := newTelegram(api.URL).Publish(context.Background(), "@c", "text", ""); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := fake.methods(); len(got) != 2 {
		t.Fatalf("expected retry, calls = %v", got)
	}
}

func TestPublishNetworkErrorHidesToken(t *testing.T) {
	api := httptest.NewServer(http.NotFoundHandler())
	url := api.URL
	api.Close()

	err := NewTelegram(Options{Token: "SECRET", APIBase: url, Interval: time.Millisecond}).
		Publish(context.Background(), "@c", "text", "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if strings.Contains(err.Error(), "SECRET") {
		t.Fatalf("token leaked in error: %v", err)
	}
	if errors.Is(err, ErrRejected) {
		t.Fatalf("network error should not be a rejection")
	}
}

func TestPublishHonoursRateLimit(t *testing.T) {
	fake := &fakeTelegram{}
	api := httptest.NewServer(fake.handler(t))
	defer api.Close()

	tg := NewTelegram(Options{Token: "TOKEN", APIBase: api.URL, Interval: 100 * time.Millisecond})
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := tg.Publish(context.Background(), "@c", "text", ""); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Fatalf("three sends finished in %v, limiter not applied", elapsed)
	}
}
