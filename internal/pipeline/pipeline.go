// Package pipeline 编排一轮采集：加载状态 → 并发采集 → 逐条判定 → 增强与渲染 → 发布 → 记录。
// 同一时刻只能有一轮 RunOnce 在执行，由 scheduler 的单飞保证，这里不加锁保护 state。
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/LJTian/CryptoCourier/internal/collector"
	"github.com/LJTian/CryptoCourier/internal/enricher"
	"github.com/LJTian/CryptoCourier/internal/formatter"
	"github.com/LJTian/CryptoCourier/internal/logger"
	"github.com/LJTian/CryptoCourier/internal/processor"
	"github.com/LJTian/CryptoCourier/internal/publisher"
	"github.com/LJTian/CryptoCourier/internal/state"
	"github.com/LJTian/CryptoCourier/internal/storage"
)

type StateStore interface {
	Load(ctx context.Context) *state.State
	Save(ctx context.Context, st *state.State) error
}

type Enricher interface {
	Enrich(ctx context.Context, title, body string) enricher.Result
}

type ImageResolver interface {
	Resolve(ctx context.Context, pageURL string) string
}

type HistoryRecorder interface {
	Record(ctx context.Context, rec storage.PostRecord) error
}

// Deps 中 Images 与 History 可为空
type Deps struct {
	Store     StateStore
	Fetchers  []collector.Fetcher
	Engine    *processor.Engine
	Enricher  Enricher
	Publisher publisher.Publisher
	Images    ImageResolver
	History   HistoryRecorder
}

type Options struct {
	ChannelID      string
	MaxPostsPerRun int
	MaxPostsPerDay int
	Location       *time.Location
	// Now 供测试注入时间
	Now func() time.Time
}

// Result 汇总一轮运行
type Result struct {
	Published    int                      `json:"published"`
	Candidates   int                      `json:"candidates"`
	Failed       int                      `json:"failed"`
	SourceErrors int                      `json:"sourceErrors"`
	Rejected     map[processor.Reason]int `json:"rejected"`
	// BudgetExhausted 表示当日额度已用完，本轮未采集
	BudgetExhausted bool `json:"budgetExhausted"`
}

// Snapshot 是供 API 展示的最近一次运行信息
type Snapshot struct {
	State      state.Summary `json:"state"`
	LastRunAt  time.Time     `json:"lastRunAt"`
	LastResult *Result       `json:"lastResult,omitempty"`
	LastError  string        `json:"lastError,omitempty"`
}

type Pipeline struct {
	deps Deps
	opt  Options
	log  *logger.Logger

	mu   sync.RWMutex
	snap Snapshot
}

func New(deps Deps, opt Options) *Pipeline {
	if opt.MaxPostsPerRun <= 0 {
		opt.MaxPostsPerRun = state.DefaultMaxPostsPerRun
	}
	if opt.MaxPostsPerDay <= 0 {
		opt.MaxPostsPerDay = state.DefaultMaxPostsPerDay
	}
	if opt.Location == nil {
		opt.Location = time.UTC
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Pipeline{deps: deps, opt: opt, log: logger.Named("pipeline")}
}

// RunOnce 执行一轮。没有可发布条目不算错误；只有 ctx 被取消时返回错误。
func (p *Pipeline) RunOnce(ctx context.Context) (Result, error) {
	res := Result{Rejected: map[processor.Reason]int{}}
	started := p.opt.Now()

	st := p.deps.Store.Load(ctx)
	rolled := st.Rollover(started.In(p.opt.Location))
	if rolled {
		p.log.Info().Str("date", st.CurrentDate).Msg("new day, daily counter reset")
	}

	limit := min(p.opt.MaxPostsPerRun, st.RemainingToday(p.opt.MaxPostsPerDay))
	if limit <= 0 {
		res.BudgetExhausted = true
		p.log.Info().Int("posts_today", st.PostsToday).Int("max_per_day", p.opt.MaxPostsPerDay).Msg("daily budget exhausted, skipping run")
		if rolled && !st.Degraded {
			_ = p.deps.Store.Save(ctx, st)
		}
		p.record(started, st, &res, nil)
		return res, nil
	}

	results := collector.FetchAll(ctx, p.deps.Fetchers)
	for _, r := range results {
		if r.Err != nil {
			res.SourceErrors++
			p.log.Warn().Err(r.Err).Str("source", r.Source).Msg("fetch failed")
			continue
		}
		p.log.Debug().Str("source", r.Source).Int("items", len(r.Items)).Msg("fetched")
	}
	candidates := collector.Merge(results)
	res.Candidates = len(candidates)

	for _, item := range candidates {
		if ctx.Err() != nil {
			break
		}
		d := p.deps.Engine.Evaluate(item, st)
		if !d.Accepted {
			res.Rejected[d.Reason]++
			p.log.Debug().Str("reason", string(d.Reason)).Str("title", d.Item.Title).Str("url", d.Item.URL).Msg("rejected")
			continue
		}

		if err := p.publish(ctx, d); err != nil {
			res.Failed++
			p.log.Warn().Err(err).Str("title", d.Item.Title).Str("url", d.Item.URL).Msg("publish failed, will retry on a later run")
			continue
		}

		st.RecordPublished(d.Identity)
		res.Published++
		// 每次发布成功立即落盘，进程崩溃也不会重复发布
		_ = p.deps.Store.Save(ctx, st)
		p.log.Info().
			Str("title", d.Item.Title).
			Str("source", d.Item.Source).
			Int("posts_today", st.PostsToday).
			Msg("published")

		if res.Published >= limit {
			break
		}
	}

	// 读取失败得到的临时空状态只在有新发布时保存（由 StateStore 合并），不单独为翻转落盘
	if res.Published == 0 && rolled && !st.Degraded {
		_ = p.deps.Store.Save(ctx, st)
	}

	err := ctx.Err()
	p.record(started, st, &res, err)
	p.log.Info().
		Int("candidates", res.Candidates).
		Int("published", res.Published).
		Int("failed", res.Failed).
		Int("source_errors", res.SourceErrors).
		Dur("took", p.opt.Now().Sub(started)).
		Msg("run finished")
	return res, err
}

// publish 负责增强、渲染与投递；成功后写发布历史（失败只记日志）
func (p *Pipeline) publish(ctx context.Context, d processor.Decision) error {
	item := d.Item
	image := item.ImageURL
	if image == "" && p.deps.Images != nil && item.URL != "" {
		image = p.deps.Images.Resolve(ctx, item.URL)
	}

	en := enricher.Result{Title: item.Title, Body: item.Body}
	if p.deps.Enricher != nil {
		en = p.deps.Enricher.Enrich(ctx, item.Title, item.Body)
	}

	limit := formatter.TextLimit
	if image != "" {
		limit = formatter.CaptionLimit
	}
	text := formatter.Post(formatter.Input{
		Title:       en.Title,
		Body:        en.Body,
		Note:        en.Note,
		Sentiment:   en.Sentiment,
		Tags:        en.Tags,
		URL:         item.URL,
		PublishedAt: item.PublishedAt,
	}, p.opt.Location, limit)

	if err := p.deps.Publisher.Publish(ctx, p.opt.ChannelID, text, image); err != nil {
		return err
	}

	if p.deps.History != nil {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err := p.deps.History.Record(hctx, storage.PostRecord{
			Hash:        d.Identity.Hash,
			Title:       item.Title,
			URL:         item.URL,
			Source:      item.Source,
			Sentiment:   en.Sentiment,
			Tags:        en.Tags,
			Note:        en.Note,
			ImageURL:    image,
			PublishedAt: p.opt.Now(),
		})
		if err != nil {
			p.log.Warn().Err(err).Msg("record history failed")
		}
	}
	return nil
}

func (p *Pipeline) record(at time.Time, st *state.State, res *Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := *res
	p.snap = Snapshot{State: st.Summary(), LastRunAt: at, LastResult: &r}
	if err != nil {
		p.snap.LastError = err.Error()
	}
}

// Snapshot 返回最近一次运行的信息，可与 RunOnce 并发调用
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Job 适配 scheduler：错误只记日志，从不终止进程
func (p *Pipeline) Job(ctx context.Context) {
	if _, err := p.RunOnce(ctx); err != nil {
		p.log.Warn().Err(err).Msg("run interrupted")
	}
}
