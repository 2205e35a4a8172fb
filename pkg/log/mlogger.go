// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// MLogger 在 zap.Logger 之上增加按分组限流的日志能力。
type MLogger struct {
	*zap.Logger
	rl atomic.Pointer[utils.ReconfigurableRateLimiter]
}

// With 返回携带额外字段的新 MLogger，不影响原 Logger，限流分组随之继承。
func (l *MLogger) With(fields ...zap.Field) *MLogger {
	nl := &MLogger{
		Logger: l.Logger.With(fields...),
	}
	if rl := l.rl.Load(); rl != nil {
		nl.rl.Store(rl)
	}
	return nl
}

// WithRateGroup 为当前 Logger 绑定一个命名限流器。
// 同名分组共享同一个限流器，后一次调用会更新其参数。
func (l *MLogger) WithRateGroup(groupName string, creditPerSecond, maxBalance float64) *MLogger {
	rl := utils.NewRateLimiter(creditPerSecond, maxBalance)
	actual, loaded := _namedRateLimiters.LoadOrStore(groupName, rl)
	if loaded {
		rl = actual.(*utils.ReconfigurableRateLimiter)
		rl.Update(creditPerSecond, maxBalance)
	}
	l.rl.Store(rl)
	return l
}

func (l *MLogger) r() RateLimiter {
	if rl := l.rl.Load(); rl != nil {
		return rl
	}
	return R()
}

// RatedDebug 在限流通过时以 Debug 级别输出，并返回 true。
func (l *MLogger) RatedDebug(cost float64, msg string, fields ...zap.Field) bool {
	if l.r().CheckCredit(cost) {
		l.WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
		return true
	}
	return false
}

// RatedInfo 在限流通过时以 Info 级别输出，并返回 true。
func (l *MLogger) RatedInfo(cost float64, msg string, fields ...zap.Field) bool {
	if l.r().CheckCredit(cost) {
		l.WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
		return true
	}
	return false
}

// RatedWarn 在限流通过时以 Warn 级别输出，并返回 true。
func (l *MLogger) RatedWarn(cost float64, msg string, fields ...zap.Field) bool {
	if l.r().CheckCredit(cost) {
		l.WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
		return true
	}
	return false
}
