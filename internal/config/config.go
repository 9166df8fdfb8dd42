package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/LJTian/CryptoCourier/internal/state"
)

// 默认 RSS 源，按优先级排列（与最初的频道机器人保持一致）
var defaultRSSFeeds = []string{
	"https://www.coindesk.com/arc/outboundfeeds/rss/",
	"https://cointelegraph.com/rss",
	"https://decrypt.co/feed",
}

// 新闻稿分发站点默认屏蔽：内容多为软文
var defaultBannedDomains = []string{
	"prnewswire.com",
	"globenewswire.com",
	"businesswire.com",
	"accesswire.com",
}

type Config struct {
	AppPort string

	// 非空时 /api/v1 需要 Basic Auth，存活探针不受影响
	BasicAuthUser string
	BasicAuthPass string

	// Telegram
	BotToken        string
	ChannelID       string
	TelegramAPIBase string
	PublishInterval time.Duration

	// 状态存储：file / redis
	StateBackend string
	StateFile    string
	StateKey     string
	RedisAddr    string
	PostgresDSN  string

	NewsCron  string
	PriceCron string
	Timezone  string

	MaxPostsPerRun int
	MaxPostsPerDay int
	MinBodyWords   int
	SeenLimit      int
	PerSourceLimit int
	FetchTimeout   time.Duration

	RSSFeeds        []string
	BannedDomains   []string
	GNewsAPIKey     string
	MarketAuxAPIKey string
	CoinStatsAPIKey string
	PriceCoins      []string
	ResolveImages   bool

	Translate  bool
	TargetLang string

	LogLevel  string
	LogFormat string
	LogFile   string

	SourcesFile string
}

// Load 读取并校验全部配置，缺少 Telegram 凭据时返回错误
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse 只读取配置与来源文件，不做校验，供 dry-run 等离线场景使用
func Parse() (*Config, error) {
	cfg := &Config{
		AppPort:         getEnv("APP_PORT", getEnv("PORT", "8080")),
		BasicAuthUser:   os.Getenv("APP_BASIC_USER"),
		BasicAuthPass:   os.Getenv("APP_BASIC_PASS"),
		BotToken:        os.Getenv("BOT_TOKEN"),
		ChannelID:       os.Getenv("CHANNEL_ID"),
		TelegramAPIBase: getEnv("TELEGRAM_API_BASE", "https://api.telegram.org"),
		PublishInterval: getEnvDuration("PUBLISH_INTERVAL", 2*time.Second),

		StateBackend: strings.ToLower(getEnv("STATE_BACKEND", "file")),
		StateFile:    getEnv("STATE_FILE", "posted_cache.json"),
		StateKey:     getEnv("STATE_KEY", "cryptocourier:state"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),

		NewsCron:  getEnv("NEWS_CRON", "@every 5m"),
		PriceCron: getEnv("PRICE_CRON", "0 */4 * * *"),
		Timezone:  getEnv("TIMEZONE", "Europe/Kyiv"),

		MaxPostsPerRun: getEnvInt("MAX_POSTS_PER_RUN", state.DefaultMaxPostsPerRun),
		MaxPostsPerDay: getEnvInt("MAX_POSTS_PER_DAY", state.DefaultMaxPostsPerDay),
		MinBodyWords:   getEnvInt("MIN_BODY_WORDS", 5),
		SeenLimit:      getEnvInt("SEEN_LIMIT", 1000),
		PerSourceLimit: getEnvInt("PER_SOURCE_LIMIT", 5),
		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 10*time.Second),

		RSSFeeds:        getEnvList("RSS_FEEDS", defaultRSSFeeds),
		BannedDomains:   getEnvList("BANNED_DOMAINS", defaultBannedDomains),
		GNewsAPIKey:     os.Getenv("GNEWS_API_KEY"),
		MarketAuxAPIKey: os.Getenv("MARKETAUX_API_KEY"),
		CoinStatsAPIKey: os.Getenv("COINSTATS_API_KEY"),
		PriceCoins:      getEnvList("PRICE_COINS", []string{"bitcoin", "ethereum", "solana", "ripple"}),
		ResolveImages:   getEnvBool("RESOLVE_IMAGES", false),

		Translate:  getEnvBool("TRANSLATE", true),
		TargetLang: getEnv("TARGET_LANG", "uk"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		LogFile:   os.Getenv("LOG_FILE"),

		SourcesFile: os.Getenv("SOURCES_FILE"),
	}

	if cfg.SourcesFile != "" {
		sf, err := LoadSourcesFile(cfg.SourcesFile)
		if err != nil {
			return nil, err
		}
		sf.apply(cfg)
	}
	return cfg, nil
}

// Validate 只拦截会让进程无法工作的配置，其余值落回默认
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.ChannelID == "" {
		errs = append(errs, errors.New("CHANNEL_ID is required"))
	}
	if err := c.ValidateOffline(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateOffline 校验除 Telegram 凭据以外的配置
func (c *Config) ValidateOffline() error {
	var errs []error
	switch c.StateBackend {
	case "file":
		if c.StateFile == "" {
			errs = append(errs, errors.New("STATE_FILE must be set when STATE_BACKEND=file"))
		}
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR must be set when STATE_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("STATE_BACKEND must be 'file' or 'redis', got %q", c.StateBackend))
	}
	if c.MaxPostsPerRun <= 0 {
		errs = append(errs, errors.New("MAX_POSTS_PER_RUN must be > 0"))
	}
	if c.MaxPostsPerDay <= 0 {
		errs = append(errs, errors.New("MAX_POSTS_PER_DAY must be > 0"))
	}
	if c.MinBodyWords < 0 {
		errs = append(errs, errors.New("MIN_BODY_WORDS must be >= 0 (0 selects the default of 5)"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

// Location 返回日期翻转所用时区；Validate 之后不会失败
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// getEnvList 读取逗号分隔列表，空项忽略
func getEnvList(key string, def []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
