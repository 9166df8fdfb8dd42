// Package state 定义跨进程持久化的去重状态：
// 已发布内容的哈希 / URL / 标题三个集合，以及按自然日计数的发布预算。
package state

import "time"

const dateLayout = "2006-01-02"

const (
	DefaultMaxPostsPerRun = 1
	DefaultMaxPostsPerDay = 48
)

// Identity 是一条新闻的三重去重键，任一命中即视为已发布
type Identity struct {
	Hash  string
	URL   string
	Title string
}

// Match 表示 Identity 命中了哪一个集合
type Match string

const (
	MatchNone  Match = ""
	MatchHash  Match = "hash"
	MatchURL   Match = "url"
	MatchTitle Match = "title"
)

// State 由 storage.StateStore 独占加载与保存，只在确认发布成功后修改。
// 同一时刻只允许一轮采集持有它，不做内部加锁。
type State struct {
	SeenHashes  *SeenSet `json:"seenHashes"`
	SeenURLs    *SeenSet `json:"seenUrls"`
	SeenTitles  *SeenSet `json:"seenTitles"`
	CurrentDate string   `json:"currentDate"`
	PostsToday  int      `json:"postsToday"`

	// 旧版机器人只保存 posted_ids（条目 id 或链接），加载时并入 SeenURLs
	LegacyPostedIDs []string `json:"posted_ids,omitempty"`

	// Degraded 表示加载时后端读取失败，内容只是临时的空状态，不能直接覆盖已持久化的数据
	Degraded bool `json:"-"`
}

func New() *State {
	return &State{
		SeenHashes: NewSeenSet(),
		SeenURLs:   NewSeenSet(),
		SeenTitles: NewSeenSet(),
	}
}

// Normalize 补齐缺失字段并迁移旧格式，反序列化后调用
func (s *State) Normalize() {
	if s.SeenHashes == nil {
		s.SeenHashes = NewSeenSet()
	}
	if s.SeenURLs == nil {
		s.SeenURLs = NewSeenSet()
	}
	if s.SeenTitles == nil {
		s.SeenTitles = NewSeenSet()
	}
	for _, id := range s.LegacyPostedIDs {
		s.SeenURLs.Add(id)
	}
	s.LegacyPostedIDs = nil
	if s.PostsToday < 0 {
		s.PostsToday = 0
	}
	if s.CurrentDate != "" {
		if _, err := time.Parse(dateLayout, s.CurrentDate); err != nil {
			s.CurrentDate = ""
			s.PostsToday = 0
		}
	}
}

// Rollover 在 now 所在自然日与 CurrentDate 不同时重置当日计数，返回是否发生了翻转
func (s *State) Rollover(now time.Time) bool {
	today := now.Format(dateLayout)
	if s.CurrentDate == today {
		return false
	}
	s.CurrentDate = today
	s.PostsToday = 0
	return true
}

// Seen 依次检查哈希、URL、标题
func (s *State) Seen(id Identity) Match {
	switch {
	case s.SeenHashes.Has(id.Hash):
		return MatchHash
	case s.SeenURLs.Has(id.URL):
		return MatchURL
	case s.SeenTitles.Has(id.Title):
		return MatchTitle
	}
	return MatchNone
}

// RecordPublished 记录一次确认成功的发布
func (s *State) RecordPublished(id Identity) {
	s.SeenHashes.Add(id.Hash)
	s.SeenURLs.Add(id.URL)
	s.SeenTitles.Add(id.Title)
	s.PostsToday++
}

// Merge 把 persisted 中的记录并入当前状态：persisted 的条目在前（更旧），
// 同一自然日的发布计数相加
func (s *State) Merge(persisted *State) {
	s.SeenHashes = union(persisted.SeenHashes, s.SeenHashes)
	s.SeenURLs = union(persisted.SeenURLs, s.SeenURLs)
	s.SeenTitles = union(persisted.SeenTitles, s.SeenTitles)
	switch {
	case s.CurrentDate == "":
		s.CurrentDate = persisted.CurrentDate
		s.PostsToday = persisted.PostsToday
	case persisted.CurrentDate == s.CurrentDate:
		s.PostsToday += persisted.PostsToday
	}
}

func union(older, newer *SeenSet) *SeenSet {
	out := NewSeenSet(older.Values()...)
	for _, v := range newer.Values() {
		out.Add(v)
	}
	return out
}

// Trim 把三个集合各自限制在最近 max 条
func (s *State) Trim(max int) {
	s.SeenHashes.Trim(max)
	s.SeenURLs.Trim(max)
	s.SeenTitles.Trim(max)
}

// RemainingToday 返回当日剩余发布额度
func (s *State) RemainingToday(maxPerDay int) int {
	if n := maxPerDay - s.PostsToday; n > 0 {
		return n
	}
	return 0
}

// Summary 是对外展示用的只读快照
type Summary struct {
	CurrentDate string `json:"currentDate"`
	PostsToday  int    `json:"postsToday"`
	SeenHashes  int    `json:"seenHashes"`
	SeenURLs    int    `json:"seenUrls"`
	SeenTitles  int    `json:"seenTitles"`
}

func (s *State) Summary() Summary {
	return Summary{
		CurrentDate: s.CurrentDate,
		PostsToday:  s.PostsToday,
		SeenHashes:  s.SeenHashes.Len(),
		SeenURLs:    s.SeenURLs.Len(),
		SeenTitles:  s.SeenTitles.Len(),
	}
}
