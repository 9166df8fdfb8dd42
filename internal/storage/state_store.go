package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LJTian/CryptoCourier/internal/logger"
	"github.com/LJTian/CryptoCourier/internal/state"
)

const (
	DefaultSeenLimit = 1000
	// 保存是不可取消的临界区，但仍需有上限
	saveTimeout = 5 * time.Second
)

var (
	// ErrStateNotFound 表示后端尚无状态，属于首次启动的正常情况
	ErrStateNotFound = errors.New("state not found")
	ErrCorruptState  = errors.New("corrupt state")
	// ErrDegradedState 表示临时空状态无法与已持久化的数据合并，为避免覆盖而放弃写入
	ErrDegradedState = errors.New("state loaded degraded, refusing to overwrite")
)

// Backend 是状态的持久化介质，只负责整块读写字节
type Backend interface {
	Name() string
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// StateStore 负责 state.State 的加载与保存。
// 加载永不失败：缺失或损坏都退回空状态；读取出错时返回标记为 Degraded 的空状态。
// 保存失败只记录日志并返回错误，由调用方决定是否忽略。
type StateStore struct {
	backend Backend
	limit   int
	log     *logger.Logger
}

func NewStateStore(b Backend, limit int) *StateStore {
	if limit <= 0 {
		limit = DefaultSeenLimit
	}
	return &StateStore{backend: b, limit: limit, log: logger.Named("state")}
}

func (s *StateStore) Load(ctx context.Context) *state.State {
	data, err := s.backend.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			s.log.Info().Str("backend", s.backend.Name()).Msg("no saved state, starting empty")
			return state.New()
		}
		s.log.Error().Err(err).Str("backend", s.backend.Name()).Msg("read state failed, using degraded empty state")
		st := state.New()
		st.Degraded = true
		return st
	}

	st, err := decodeState(data)
	if err != nil {
		s.log.Error().Err(err).Str("backend", s.backend.Name()).Msg("load state failed, starting empty")
		return state.New()
	}
	return st
}

// Save 先裁剪再整体覆盖写入；ctx 取消不会打断写入。
// Degraded 状态会先重新读取后端并合并，读取仍失败时不写入。
func (s *StateStore) Save(ctx context.Context, st *state.State) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if st.Degraded {
		if err := s.mergePersisted(ctx, st); err != nil {
			s.log.Error().Err(err).Str("backend", s.backend.Name()).Msg("skip saving degraded state")
			return err
		}
	}

	st.Trim(s.limit)
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		s.log.Error().Err(err).Msg("encode state failed")
		return fmt.Errorf("encode state: %w", err)
	}

	if err := s.backend.Write(ctx, data); err != nil {
		s.log.Error().Err(err).Str("backend", s.backend.Name()).Msg("save state failed")
		return fmt.Errorf("save state to %s: %w", s.backend.Name(), err)
	}
	s.log.Debug().
		Str("backend", s.backend.Name()).
		Int("posts_today", st.PostsToday).
		Int("seen_hashes", st.SeenHashes.Len()).
		Msg("state saved")
	return nil
}

func (s *StateStore) mergePersisted(ctx context.Context, st *state.State) error {
	data, err := s.backend.Read(ctx)
	switch {
	case errors.Is(err, ErrStateNotFound):
	case err != nil:
		return fmt.Errorf("%w: %v", ErrDegradedState, err)
	default:
		persisted, err := decodeState(data)
		if err != nil {
			// 已持久化的数据本身已损坏，没有可保留的内容
			s.log.Warn().Err(err).Str("backend", s.backend.Name()).Msg("persisted state corrupt, overwriting")
			break
		}
		st.Merge(persisted)
	}
	st.Degraded = false
	return nil
}

func decodeState(data []byte) (*state.State, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrCorruptState)
	}
	st := state.New()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	st.Normalize()
	return st, nil
}

// ---------- 文件后端 ----------

// FileBackend 把状态保存为单个 JSON 文件，写入走临时文件 + rename
type FileBackend struct {
	Path string
}

func (f *FileBackend) Name() string {
	return "file:" + f.Path
}

func (f *FileBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrStateNotFound
	}
	return data, err
}

func (f *FileBackend) Write(ctx context.Context, data []byte) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return err
	}
	committed = true
	return nil
}

// ---------- Redis 后端 ----------

// RedisBackend 把状态作为一个字符串键整体读写，SET 本身是原子的
type RedisBackend struct {
	Client *redis.Client
	Key    string
}

func (r *RedisBackend) Name() string {
	return "redis:" + r.Key
}

func (r *RedisBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := r.Client.Get(ctx, r.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	return data, err
}

func (r *RedisBackend) Write(ctx context.Context, data []byte) error {
	return r.Client.Set(ctx, r.Key, data, 0).Err()
}
