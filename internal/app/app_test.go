package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LJTian/CryptoCourier/internal/collector"
	"github.com/LJTian/CryptoCourier/internal/config"
	"github.com/LJTian/CryptoCourier/internal/pipeline"
	"github.com/LJTian/CryptoCourier/internal/state"
	"github.com/LJTian/CryptoCourier/internal/storage"
)

func TestFetchersPriorityOrder(t *testing.T) {
	cfg := &config.Config{
		RSSFeeds:        []string{"https://a.com/rss", "https://b.com/rss"},
		GNewsAPIKey:     "g",
		CoinStatsAPIKey: "c",
		PerSourceLimit:  7,
	}
	fs := Fetchers(cfg)
	var names []string
	for _, f := range fs {
		names = append(names, f.Name())
	}
	want := []string{"RSS:https://a.com/rss", "RSS:https://b.com/rss", collector.SourceGNews, collector.SourceCoinStats}
	if len(names) != len(want) {
		t.Fatalf("fetchers = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("fetchers = %v, want %v", names, want)
		}
	}
	if rss := fs[0].(*collector.RSSFetcher); rss.Limit != 7 || rss.Timeout != 10*time.Second {
		t.Fatalf("rss fetcher not configured: %+v", rss)
	}
}

type nopPublisher struct{ calls int }

func (n *nopPublisher) Publish(ctx context.Context, dest, text, imageURL string) error {
	n.calls++
	return nil
}

func TestBuildWithFileBackend(t *testing.T) {
	cfg := &config.Config{
		ChannelID:      "@c",
		StateBackend:   "file",
		StateFile:      filepath.Join(t.TempDir(), "state.json"),
		Timezone:       "Europe/Kyiv",
		MaxPostsPerRun: 1,
		MaxPostsPerDay: 10,
	}
	pub := &nopPublisher{}
	a, err := Build(cfg, Overrides{Publisher: pub})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()
	if a.History != nil || a.Redis != nil {
		t.Fatalf("optional storage should be disabled without DSN/REDIS_ADDR")
	}

	// 没有任何数据源时运行一轮不报错
	res, err := a.Pipeline.RunOnce(context.Background())
	if err != nil || res.Published != 0 || pub.calls != 0 {
		t.Fatalf("unexpected run %+v / %v", res, err)
	}
}

func TestBuildRedisBackendRequiresAddr(t *testing.T) {
	cfg := &config.Config{StateBackend: "redis", Timezone: "UTC"}
	if _, err := Build(cfg, Overrides{}); err == nil {
		t.Fatalf("expected error without REDIS_ADDR")
	}
}

type countingStore struct {
	pipeline.StateStore
	saves int
}

func (c *countingStore) Save(ctx context.Context, st *state.State) error {
	c.saves++
	return nil
}

func TestBuildWrapStoreReusesConfiguredBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	cfg := &config.Config{StateBackend: "file", StateFile: path, Timezone: "UTC"}

	var wrapped *countingStore
	a, err := Build(cfg, Overrides{
		Publisher: &nopPublisher{},
		WrapStore: func(s pipeline.StateStore) pipeline.StateStore {
			wrapped = &countingStore{StateStore: s}
			return wrapped
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()
	if wrapped == nil {
		t.Fatalf("WrapStore not applied")
	}
	if _, ok := wrapped.StateStore.(*storage.StateStore); !ok {
		t.Fatalf("wrapped store should be the configured StateStore, got %T", wrapped.StateStore)
	}

	// 首次运行会触发翻转保存，但包装层拦截了写入
	if _, err := a.Pipeline.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if wrapped.saves != 1 {
		t.Fatalf("saves = %d, want 1", wrapped.saves)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("state file should not be written through the wrapper: %v", err)
	}
}

func TestHistoryEnabled(t *testing.T) {
	cfg := &config.Config{PostgresDSN: "postgres://localhost/courier"}
	if !historyEnabled(cfg, Overrides{}) {
		t.Fatalf("history should be enabled when DSN is set")
	}
	if historyEnabled(cfg, Overrides{DisableHistory: true}) {
		t.Fatalf("DisableHistory must win over POSTGRES_DSN")
	}
	if historyEnabled(&config.Config{}, Overrides{}) {
		t.Fatalf("history should stay disabled without DSN")
	}
}
