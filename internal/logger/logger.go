// Package logger 封装 zerolog：进程级根 logger、按组件派生子 logger，
// 可选通过 lumberjack 写入按大小滚动的日志文件。
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 控制根 logger 的输出
type Options struct {
	Level  string // trace/debug/info/warn/error
	Format string // console / json
	// File 非空时额外写入滚动日志文件
	File       string
	MaxSizeMB  int
	MaxBackups int
	Writer     io.Writer
}

// Logger 目前即 zerolog.Logger
type Logger = zerolog.Logger

var (
	once sync.Once
	root atomic.Pointer[zerolog.Logger]
)

// Init 构建根 logger，仅第一次调用生效
func Init(opt Options) {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339

		var w io.Writer = os.Stdout
		if opt.Writer != nil {
			w = opt.Writer
		}
		if strings.ToLower(opt.Format) != "json" {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		}
		if opt.File != "" {
			maxSize := opt.MaxSizeMB
			if maxSize <= 0 {
				maxSize = 20
			}
			backups := opt.MaxBackups
			if backups <= 0 {
				backups = 3
			}
			// 文件里始终写 JSON，便于后续检索
			w = zerolog.MultiLevelWriter(w, &lumberjack.Logger{
				Filename:   opt.File,
				MaxSize:    maxSize,
				MaxBackups: backups,
				Compress:   true,
			})
		}

		l := zerolog.New(w).Level(ParseLevel(opt.Level)).With().Timestamp().Logger()
		root.Store(&l)
	})
}

// Get 返回根 logger；未初始化时使用默认配置
func Get() *Logger {
	if l := root.Load(); l != nil {
		return l
	}
	Init(Options{Level: "info"})
	return root.Load()
}

// Named 返回带 component 字段的子 logger
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	l := Get().With().Str("component", component).Logger()
	return &l
}

// ParseLevel 解析字符串级别，未知值回退到 info
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
