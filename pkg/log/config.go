// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultLogMaxSize = 300 // 日志文件默认最大大小，单位 MB。

	FormatJSON    = "json"
	FormatConsole = "console"
	FormatText    = "text"
)

// FileLogConfig 为文件日志配置，Filename 为空表示不写文件。
type FileLogConfig struct {
	RootPath   string `toml:"rootpath" json:"rootpath" mapstructure:"rootpath"`
	Filename   string `toml:"filename" json:"filename" mapstructure:"filename"`
	MaxSize    int    `toml:"max-size" json:"max-size" mapstructure:"max-size"`       // 单位 MB
	MaxDays    int    `toml:"max-days" json:"max-days" mapstructure:"max-days"`       // 0 表示不按天清理
	MaxBackups int    `toml:"max-backups" json:"max-backups" mapstructure:"max-backups"`
}

// Config 为日志配置，可从 yaml/json/toml 反序列化。
type Config struct {
	// Level 为日志级别，额外接受 trace（等价于 debug）。
	Level string `toml:"level" json:"level" mapstructure:"level"`
	// Format 可选 json、console 或 text（text 与 console 相同）。
	Format string `toml:"format" json:"format" mapstructure:"format"`
	// DisableTimestamp 表示是否禁用日志中的自动时间戳。
	DisableTimestamp bool          `toml:"disable-timestamp" json:"disable-timestamp" mapstructure:"disable-timestamp"`
	Stdout           bool          `toml:"stdout" json:"stdout" mapstructure:"stdout"`
	File             FileLogConfig `toml:"file" json:"file" mapstructure:"file"`
	// Development 为 true 时 DPanic 会触发 panic，并对 Warn 及以上级别记录堆栈。
	Development       bool `toml:"development" json:"development" mapstructure:"development"`
	DisableCaller     bool `toml:"disable-caller" json:"disable-caller" mapstructure:"disable-caller"`
	DisableStacktrace bool `toml:"disable-stacktrace" json:"disable-stacktrace" mapstructure:"disable-stacktrace"`
	// Sampling 以“每秒”为单位限制日志量，具体行为参考 zapcore.NewSampler。
	Sampling *zap.SamplingConfig `toml:"sampling" json:"sampling" mapstructure:"sampling"`
}

// ZapProperties 记录 zap 日志相关的核心信息。
type ZapProperties struct {
	Core   zapcore.Core
	Syncer zapcore.WriteSyncer
	Level  zap.AtomicLevel
}

func newZapEncoder(cfg *Config) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.DisableTimestamp {
		encCfg.TimeKey = zapcore.OmitKey
	}

	switch strings.ToLower(cfg.Format) {
	case FormatJSON:
		return zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
}

func (cfg *Config) buildOptions(errSink zapcore.WriteSyncer) []zap.Option {
	opts := []zap.Option{zap.ErrorOutput(errSink)}

	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	if !cfg.DisableCaller {
		opts = append(opts, zap.AddCaller())
	}

	stackLevel := zap.ErrorLevel
	if cfg.Development {
		stackLevel = zap.WarnLevel
	}
	if !cfg.DisableStacktrace {
		opts = append(opts, zap.AddStacktrace(stackLevel))
	}

	if cfg.Sampling != nil {
		var samplerOpts []zapcore.SamplerOption
		if cfg.Sampling.Hook != nil {
			samplerOpts = append(samplerOpts, zapcore.SamplerHook(cfg.Sampling.Hook))
		}
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewSamplerWithOptions(core, time.Second, cfg.Sampling.Initial, cfg.Sampling.Thereafter, samplerOpts...)
		}))
	}
	return opts
}
