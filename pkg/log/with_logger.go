package log

import "go.uber.org/atomic"

var (
	_ WithLogger   = &Binder{}
	_ LoggerBinder = &Binder{}
)

// WithLogger 用于访问组件自身的 Logger。
type WithLogger interface {
	Logger() *MLogger
}

// LoggerBinder 用于为组件注入 Logger。
type LoggerBinder interface {
	SetLogger(logger *MLogger)
}

// Binder 可嵌入到组件中，统一管理组件级 Logger。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

// SetLogger 将 Logger 绑定到 Binder 上。
func (w *Binder) SetLogger(logger *MLogger) {
	w.logger.Store(logger)
}

// Logger 返回已绑定的 Logger，未绑定时退回到全局 Logger。
func (w *Binder) Logger() *MLogger {
	l := w.logger.Load()
	if l == nil {
		return With()
	}
	return l
}
