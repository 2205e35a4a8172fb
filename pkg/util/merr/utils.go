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

package merr

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码，nil 返回 0，未知错误统一归为 errUnexpected。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case serdeError:
		return specificErr.code()
	default:
		return errUnexpected.code()
	}
}

func IsRetryableErr(err error) bool {
	if err, ok := err.(serdeError); ok {
		return err.retriable
	}

	return false
}

func GetErrorType(err error) ErrorType {
	if merr, ok := errors.Cause(err).(serdeError); ok {
		return merr.errType
	}

	return SystemError
}

// Kind 返回错误在序列化错误分类中的名称，便于日志与指标打标签。
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.IsAny(err, ErrParameterMissing, ErrParameterInvalid, ErrParameterTooLarge):
		return KindArgument
	case errors.Is(err, ErrSerdeFormat):
		return KindFormat
	case errors.Is(err, ErrSerdeTypeResolution):
		return KindTypeResolution
	case errors.Is(err, ErrSerdeCompressionFormat):
		return KindCompressionFormat
	case errors.Is(err, ErrSerdeEncode):
		return KindEncode
	default:
		return KindUnknown
	}
}

// 参数相关错误封装。
func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	err := wrapFields(ErrParameterMissing,
		value("missing_param", param),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterTooLarge(name string, msg ...string) error {
	err := wrapFields(ErrParameterTooLarge, value("message", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Serde 相关错误封装。

// WrapErrSerdeFormat 将 JSON 引擎返回的语法错误包装为 ErrSerdeFormat，
// 引擎错误信息中的位置描述会原样保留在 desc 中。
func WrapErrSerdeFormat(cause error, msg ...string) error {
	if cause == nil {
		return nil
	}
	err := wrapFieldsWithDesc(ErrSerdeFormat, cause.Error())
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrSerdeFormatMsg 用于由本模块自身检测到的文档结构错误（例如 $type 不是字符串）。
func WrapErrSerdeFormatMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrSerdeFormat, fmt, args...)
}

func WrapErrSerdeTypeResolution(tag string, reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrSerdeTypeResolution, reason, value("type", tag))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSerdeCompressionFormat(algorithm string, cause error, msg ...string) error {
	if cause == nil {
		return nil
	}
	err := wrapFieldsWithDesc(ErrSerdeCompressionFormat, cause.Error(), value("algorithm", algorithm))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSerdeEncode(typ string, cause error, msg ...string) error {
	if cause == nil {
		return nil
	}
	err := wrapFieldsWithDesc(ErrSerdeEncode, cause.Error(), value("type", typ))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrOperationNotSupported(operation string, msg ...string) error {
	err := wrapFields(ErrOperationNotSupported, value("operation", operation))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err serdeError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err serdeError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}
