// Package json 封装项目使用的 JSON 引擎。
//
// 默认引擎为 bytedance/sonic；在 sonic 不适用的环境（或需要与标准库逐字节一致时）
// 可以切换为 json-iterator 的标准库兼容配置。两者对外暴露同一个 API。
package json

import (
	stdjson "encoding/json"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	jsoniter "github.com/json-iterator/go"
)

const (
	EngineSonic    = "sonic"
	EngineJsoniter = "jsoniter"
)

// RawMessage 为原样保留的 JSON 片段，两种引擎都能识别 encoding/json.RawMessage。
type RawMessage = stdjson.RawMessage

// Number 为 UseNumber 打开时数字的解码结果，两种引擎都使用 encoding/json.Number。
type Number = stdjson.Number

// API 为引擎无关的 JSON 编解码接口。
type API interface {
	Marshal(v any) ([]byte, error)
	MarshalIndent(v any, prefix, indent string) ([]byte, error)
	Unmarshal(data []byte, v any) error
	NewEncoder(w io.Writer) Encoder
	Valid(data []byte) bool
}

// Encoder 为流式编码器，SetIndent 的语义与 encoding/json 一致。
type Encoder interface {
	Encode(v any) error
	SetEscapeHTML(on bool)
	SetIndent(prefix, indent string)
}

// Options 为引擎配置。
type Options struct {
	Engine      string
	EscapeHTML  bool
	SortMapKeys bool
	// UseNumber 为 true 时，解码到 any 的数字保留为 json.Number。
	UseNumber bool
}

type sonicAPI struct {
	api sonic.API
}

func (s sonicAPI) Marshal(v any) ([]byte, error) { return s.api.Marshal(v) }

func (s sonicAPI) MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return s.api.MarshalIndent(v, prefix, indent)
}

func (s sonicAPI) Unmarshal(data []byte, v any) error { return s.api.Unmarshal(data, v) }

func (s sonicAPI) NewEncoder(w io.Writer) Encoder { return s.api.NewEncoder(w) }

func (s sonicAPI) Valid(data []byte) bool { return s.api.Valid(data) }

type jsoniterAPI struct {
	api jsoniter.API
}

func (j jsoniterAPI) Marshal(v any) ([]byte, error) { return j.api.Marshal(v) }

func (j jsoniterAPI) MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return j.api.MarshalIndent(v, prefix, indent)
}

func (j jsoniterAPI) Unmarshal(data []byte, v any) error { return j.api.Unmarshal(data, v) }

func (j jsoniterAPI) NewEncoder(w io.Writer) Encoder { return j.api.NewEncoder(w) }

func (j jsoniterAPI) Valid(data []byte) bool { return j.api.Valid(data) }

// New 按 Options 构造一个冻结（不可变、并发安全）的 API。
// Engine 为空时使用 sonic。
func New(opts Options) API {
	switch strings.ToLower(opts.Engine) {
	case EngineJsoniter:
		return jsoniterAPI{api: jsoniter.Config{
			EscapeHTML:             opts.EscapeHTML,
			SortMapKeys:            opts.SortMapKeys,
			UseNumber:              opts.UseNumber,
			ValidateJsonRawMessage: true,
		}.Froze()}
	default:
		return sonicAPI{api: sonic.Config{
			EscapeHTML:       opts.EscapeHTML,
			SortMapKeys:      opts.SortMapKeys,
			UseNumber:        opts.UseNumber,
			CompactMarshaler: true,
			CopyString:       true,
			ValidateString:   true,
		}.Froze()}
	}
}

// IsKnownEngine 判断引擎名称是否受支持（空字符串视为默认引擎）。
func IsKnownEngine(engine string) bool {
	switch strings.ToLower(engine) {
	case "", EngineSonic, EngineJsoniter:
		return true
	default:
		return false
	}
}

var std = New(Options{})

// Marshal 使用默认引擎编码。
func Marshal(v any) ([]byte, error) {
	return std.Marshal(v)
}

// Unmarshal 使用默认引擎解码。
func Unmarshal(data []byte, v any) error {
	return std.Unmarshal(data, v)
}
