package logger

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type cronLogger struct {
	l *zerolog.Logger
}

// Cron 把 zerolog 适配为 cron.Logger，供 SkipIfStillRunning / Recover 使用
func Cron(l *Logger) cron.Logger {
	return cronLogger{l: l}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
