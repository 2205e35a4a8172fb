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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"gopkg.in/natefinch/lumberjack.v2"
)

var _globalL, _globalP, _globalS atomic.Value

// _globalR 中始终存放 *limiterHolder，避免 atomic.Value 存入不同具体类型。
var _globalR atomic.Pointer[limiterHolder]

var _namedRateLimiters sync.Map

// RateLimiter is the minimal interface used by rated logging helpers.
type RateLimiter interface {
	CheckCredit(delta float64) bool
}

// nopRateLimiter never drops logs.
type nopRateLimiter struct{}

func (nopRateLimiter) CheckCredit(delta float64) bool { return true }

type limiterHolder struct {
	RateLimiter
}

func init() {
	l, p := newStdLogger()

	_globalL.Store(l)
	_globalP.Store(p)
	_globalS.Store(l.Sugar())

	_globalR.Store(&limiterHolder{nopRateLimiter{}})
	configureRateLimiterFromEnv()
}

// InitLogger initializes a zap logger writing to stdout and/or a rotated file.
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	var outputs []zapcore.WriteSyncer
	if len(cfg.File.Filename) > 0 {
		lg, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, zapcore.AddSync(lg))
	}
	if cfg.Stdout {
		stdOut, _, err := zap.Open("stdout")
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, stdOut)
	}
	if len(outputs) == 0 {
		outputs = append(outputs, zapcore.AddSync(nopWriter{}))
	}

	levelCfg := *cfg
	if strings.EqualFold(levelCfg.Level, "trace") {
		levelCfg.Level = "debug"
	}
	return InitLoggerWithWriteSyncer(&levelCfg, zap.CombineWriteSyncers(outputs...), opts...)
}

// InitTestLogger 创建输出到 t.Log 的 Logger，zap 内部错误会使测试失败。
// 只使用 cfg.Level，其余输出配置由 zaptest 决定。
func InitTestLogger(t zaptest.TestingT, cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	level := zap.NewAtomicLevel()
	if lv := cfg.Level; lv != "" {
		if strings.EqualFold(lv, "trace") {
			lv = "debug"
		}
		if err := level.UnmarshalText([]byte(lv)); err != nil {
			return nil, nil, fmt.Errorf("initTestLogger UnmarshalText cfg.Level err:%w", err)
		}
	}
	lg := zaptest.NewLogger(t, zaptest.Level(level), zaptest.WrapOptions(opts...))
	return lg, &ZapProperties{
		Core:   lg.Core(),
		Syncer: zapcore.AddSync(nopWriter{}),
		Level:  level,
	}, nil
}

// InitLoggerWithWriteSyncer initializes a zap logger with specified write syncer.
func InitLoggerWithWriteSyncer(cfg *Config, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	level := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, fmt.Errorf("initLoggerWithWriteSyncer UnmarshalText cfg.Level err:%w", err)
		}
	}
	core := zapcore.NewCore(newZapEncoder(cfg), output, level)
	opts = append(cfg.buildOptions(output), opts...)
	lg := zap.New(core, opts...)
	r := &ZapProperties{
		Core:   core,
		Syncer: output,
		Level:  level,
	}
	return lg, r, nil
}

// initFileLog initializes file based logging options.
func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	logPath := filepath.Join(cfg.RootPath, cfg.Filename)
	if st, err := os.Stat(logPath); err == nil {
		if st.IsDir() {
			return nil, errors.New("can't use directory as log file name")
		}
	}
	maxSize := cfg.MaxSize
	if maxSize == 0 {
		maxSize = defaultLogMaxSize
	}

	// use lumberjack to logrotate
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

func newStdLogger() (*zap.Logger, *ZapProperties) {
	conf := &Config{Level: "info", Stdout: true, DisableStacktrace: true}
	lg, r, _ := InitLogger(conf, zap.OnFatal(zapcore.WriteThenPanic))
	return lg, r
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// L returns the global Logger, which can be reconfigured with ReplaceGlobals.
// It's safe for concurrent use.
func L() *zap.Logger {
	return _globalL.Load().(*zap.Logger)
}

// S returns the global SugaredLogger, which can be reconfigured with
// ReplaceGlobals. It's safe for concurrent use.
func S() *zap.SugaredLogger {
	return _globalS.Load().(*zap.SugaredLogger)
}

// R returns the global RateLimiter used by rated logging helpers.
// It always returns a valid limiter; when rate limiting is disabled,
// it falls back to a nop implementation that never drops logs.
func R() RateLimiter {
	if h := _globalR.Load(); h != nil && h.RateLimiter != nil {
		return h.RateLimiter
	}
	return nopRateLimiter{}
}

// ReplaceGlobals replaces the global Logger and SugaredLogger.
// It's safe for concurrent use.
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	_globalL.Store(logger)
	_globalS.Store(logger.Sugar())
	_globalP.Store(props)
}

// Sync flushes any buffered log entries.
func Sync() error {
	if err := L().Sync(); err != nil {
		return err
	}
	return S().Sync()
}

func Level() zap.AtomicLevel {
	return _globalP.Load().(*ZapProperties).Level
}

// configureRateLimiterFromEnv configures the global rate limiter based on SERDE_LOG_RATE_* env vars.
//
//   - SERDE_LOG_RATE_ENABLE: "1"/"true" to enable rate limiting (default false).
//   - SERDE_LOG_RATE_CREDIT_PER_SECOND: float, default 1.0.
//   - SERDE_LOG_RATE_MAX_BALANCE: float, default 60.0.
func configureRateLimiterFromEnv() {
	if !GetenvBool("SERDE_LOG_RATE_ENABLE", false) {
		_globalR.Store(&limiterHolder{nopRateLimiter{}})
		return
	}

	credit := getenvFloat("SERDE_LOG_RATE_CREDIT_PER_SECOND", 1.0)
	maxBalance := getenvFloat("SERDE_LOG_RATE_MAX_BALANCE", 60.0)

	_globalR.Store(&limiterHolder{utils.NewRateLimiter(credit, maxBalance)})
}

// GetenvBool 读取布尔型环境变量，无法识别时返回 def。
func GetenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return def
	}
	return f
}
