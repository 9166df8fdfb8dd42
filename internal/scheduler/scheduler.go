// Package scheduler 基于 robfig/cron 定时触发任务。
// 每个任务都包了 Recover 与 SkipIfStillRunning：任务 panic 不会拖垮进程，
// 上一轮未结束时新的触发直接跳过，因此同一任务永远只有一轮在执行。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LJTian/CryptoCourier/internal/logger"
)

// ErrStopTimeout 表示 Stop 等待在途任务超时
var ErrStopTimeout = errors.New("scheduler: timed out waiting for running jobs")

type entry struct {
	name       string
	job        cron.Job
	runAtStart bool
}

type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	entries []entry
	timers  []*time.Timer

	// StartupDelay 为首轮执行前的延迟，避免与进程启动争抢资源
	StartupDelay time.Duration
}

func New(loc *time.Location, l *logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if l == nil {
		l = logger.Named("scheduler")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:         cron.New(cron.WithLocation(loc), cron.WithLogger(logger.Cron(l))),
		log:          l,
		ctx:          ctx,
		cancel:       cancel,
		StartupDelay: 5 * time.Second,
	}
}

// AddJob 注册一个任务。runAtStart 为 true 时 Start 后会额外执行一次，与定时触发共用单飞保护。
func (s *Scheduler) AddJob(name, spec string, fn func(ctx context.Context), runAtStart bool) error {
	cl := logger.Cron(s.log)
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		s.run(name, fn)
	}))
	if _, err := s.cron.AddJob(spec, job); err != nil {
		return fmt.Errorf("add job %s (%q): %w", name, spec, err)
	}
	s.entries = append(s.entries, entry{name: name, job: job, runAtStart: runAtStart})
	return nil
}

func (s *Scheduler) run(name string, fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	start := time.Now()
	s.log.Info().Str("job", name).Msg("job started")
	fn(s.ctx)
	s.log.Info().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.entries {
		if !e.runAtStart {
			continue
		}
		job := e.job
		t := time.AfterFunc(s.StartupDelay, job.Run)
		s.mu.Lock()
		s.timers = append(s.timers, t)
		s.mu.Unlock()
	}
	s.log.Info().Int("jobs", len(s.entries)).Msg("scheduler started")
}

// Stop 停止触发新任务并取消在途任务的 ctx，然后等待它们收尾（包括不可取消的状态保存）
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	s.stopped = true
	for _, t := range s.timers {
		t.Stop()
	}
	s.mu.Unlock()

	s.cancel()
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}
