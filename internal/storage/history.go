package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
	// 列表缓存很短，写入时不做主动失效
	listCacheTTL = time.Minute
)

// Post 是一条已成功发布到频道的新闻，仅用于查询展示，去重不依赖这张表
type Post struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	Hash          string            `gorm:"size:64;uniqueIndex" json:"hash"`
	Title         string            `gorm:"size:512" json:"title"`
	URL           string            `gorm:"size:1024;index" json:"url"`
	Source        string            `gorm:"size:64;index" json:"source"`
	Sentiment     string            `gorm:"size:32" json:"sentiment"`
	PublishedAt   time.Time         `gorm:"index" json:"publishedAt"`
	PublishedDate string            `gorm:"size:10;index" json:"publishedDate"` // 按配置时区的 YYYY-MM-DD
	ExtraData     datatypes.JSONMap `gorm:"type:jsonb" json:"extraData"`

	CreatedAt time.Time `json:"createdAt"`
}

// PostRecord 是 pipeline 在发布成功后交给 History 的数据
type PostRecord struct {
	Hash        string
	Title       string
	URL         string
	Source      string
	Sentiment   string
	Tags        []string
	Note        string
	ImageURL    string
	PublishedAt time.Time
}

// History 保存发布历史（Postgres）并用 Redis 缓存列表查询
type History struct {
	DB    *gorm.DB
	Redis *redis.Client
	loc   *time.Location
}

func NewHistory(dsn string, rdb *redis.Client, loc *time.Location) (*History, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&Post{}, &PriceSnapshot{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &History{DB: db, Redis: rdb, loc: loc}, nil
}

// Record 以内容哈希为幂等键写入一条发布记录
func (h *History) Record(ctx context.Context, rec PostRecord) error {
	if rec.PublishedAt.IsZero() {
		rec.PublishedAt = time.Now()
	}
	extra := datatypes.JSONMap{}
	if len(rec.Tags) > 0 {
		extra["tags"] = rec.Tags
	}
	if rec.Note != "" {
		extra["note"] = toValidUTF8(rec.Note)
	}
	if rec.ImageURL != "" {
		extra["imageUrl"] = rec.ImageURL
	}

	p := &Post{
		Hash:          rec.Hash,
		Title:         truncateRunesDB(toValidUTF8(rec.Title), 512),
		URL:           truncateRunesDB(rec.URL, 1024),
		Source:        truncateRunesDB(rec.Source, 64),
		Sentiment:     rec.Sentiment,
		PublishedAt:   rec.PublishedAt,
		PublishedDate: rec.PublishedAt.In(h.location()).Format("2006-01-02"),
		ExtraData:     extra,
	}
	if err := h.DB.WithContext(ctx).Where("hash = ?", rec.Hash).FirstOrCreate(p).Error; err != nil {
		return fmt.Errorf("record post: %w", err)
	}
	return nil
}

// ListRecent 按发布时间倒序返回最近的记录；date 非空时只返回该日（YYYY-MM-DD）
func (h *History) ListRecent(ctx context.Context, limit int, date string) ([]Post, error) {
	limit = clampLimit(limit)
	cacheKey := listCacheKey(limit, date)

	if h.Redis != nil {
		if bs, err := h.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []Post
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var list []Post
	db := h.DB.WithContext(ctx).Model(&Post{})
	if date != "" {
		db = db.Where("published_date = ?", date)
	}
	if err := db.Order("published_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	if h.Redis != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = h.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}
	return list, nil
}

func (h *History) location() *time.Location {
	if h.loc == nil {
		return time.UTC
	}
	return h.loc
}

func listCacheKey(limit int, date string) string {
	return fmt.Sprintf("courier:posts:%d:%s", limit, date)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// truncateRunesDB 按 rune 数截断，确保不超过字段长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
