package logger

import (
	"os"

	"monetcore/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

const timeFormat = "2006-01-02 15:04:05"

// New 根据配置创建 zerolog 日志实例
// 生产环境且 format=json 时输出 JSON，其余情况使用 console writer
func New(cfg *config.Config, service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = timeFormat
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	var base zerolog.Logger
	if cfg.IsProduction() && cfg.Log.Format == "json" {
		base = zerolog.New(os.Stdout)
	} else {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat})
	}

	return base.
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("environment", cfg.Server.Environment).
		Logger()
}

// Component 派生带 component 字段的子日志
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
