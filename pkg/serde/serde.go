// Package serde 提供保留具体类型的 JSON 序列化与压缩。
//
// 每个编码结果都是一个信封文档：
//
//	{"$type":"<类型标签>","$value":<负载>}
//
// 类型标签由 pkg/typereg 的注册表生成与解析，因此即使调用方只给出 any 或接口类型，
// 解码结果仍是编码时的具体类型。字节形式可再经 gzip（默认）或 zstd 压缩。
package serde

import (
	"io"
	"reflect"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/internal/compressor"
	"github.com/lk2023060901/danmu-garden-serde/internal/json"
	"github.com/lk2023060901/danmu-garden-serde/internal/serializer"
	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-serde/pkg/typereg"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// Options 为 Serializer 的构造参数，所有字段均可为空。
type Options struct {
	// Settings 为空时使用 DefaultSettings()。
	Settings *Settings
	// Registry 为空时使用 typereg.Default()。
	Registry *typereg.Registry
	// Compressor 为空时按 Settings.Compression 创建，由 Serializer 负责关闭。
	Compressor compressor.Compressor
	// Logger 为空时使用带 component=serde 字段的全局 Logger。
	Logger *log.MLogger
}

// Serializer 在构造后只持有不可变配置，可被多个 goroutine 并发使用。
type Serializer struct {
	log.Binder

	cfg        config
	api        json.API
	payload    serializer.Serializer
	proto      serializer.ProtoSerializer
	registry   *typereg.Registry
	compressor compressor.Compressor
	// ownsCompressor 为 true 时 Close 会释放压缩器。
	ownsCompressor bool
}

// New 创建 Serializer。
//
// 无论 Settings.TypeNameHandling 取何值，类型信息总是被嵌入。
func New(opts Options) (*Serializer, error) {
	settings := opts.Settings
	if settings == nil {
		settings = DefaultSettings()
	}
	cfg, err := newConfig(settings)
	if err != nil {
		return nil, err
	}

	registry := opts.Registry
	if registry == nil {
		registry = typereg.Default()
	}
	if err := registerCoreTypes(registry); err != nil {
		return nil, err
	}

	comp, owns := opts.Compressor, false
	if comp == nil {
		comp, err = compressor.New(cfg.compression)
		if err != nil {
			return nil, err
		}
		owns = true
	}

	api := json.New(json.Options{
		Engine:      cfg.engine,
		EscapeHTML:  cfg.escapeHTML,
		SortMapKeys: cfg.sortMapKeys,
	})
	// 负载解码保留数字原文，嵌套信封重新编码时不丢精度。
	payloadAPI := json.New(json.Options{
		Engine:      cfg.engine,
		EscapeHTML:  cfg.escapeHTML,
		SortMapKeys: cfg.sortMapKeys,
		UseNumber:   true,
	})
	s := &Serializer{
		cfg:            cfg,
		api:            api,
		payload:        &serializer.JSONSerializer{API: payloadAPI},
		registry:       registry,
		compressor:     comp,
		ownsCompressor: owns,
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.With(log.FieldComponent("serde"))
	}
	s.SetLogger(logger)

	if cfg.overridden() {
		logger.Info("type name handling overridden",
			zap.String("requested", string(cfg.requested)),
			zap.String("effective", string(cfg.typeNames)))
	}
	logger.Debug("serializer created",
		zap.String("engine", cfg.engine),
		zap.String("formatting", string(cfg.formatting)),
		zap.String("compression", comp.Algorithm()),
		zap.Int("registeredTypes", registry.Len()))
	return s, nil
}

var defaultSerializer = sync.OnceValue(func() *Serializer {
	return lo.Must(New(Options{}))
})

// Default 返回使用默认配置与默认注册表的进程级 Serializer。
func Default() *Serializer {
	return defaultSerializer()
}

// Settings 返回生效的配置副本，TypeNameHandling 恒为 TypeNameAll。
func (s *Serializer) Settings() Settings {
	return s.cfg.settings()
}

// Registry 返回 Serializer 使用的类型注册表。
func (s *Serializer) Registry() *typereg.Registry {
	return s.registry
}

// Close 释放由 Serializer 自行创建的压缩器，外部注入的压缩器由调用方负责。
func (s *Serializer) Close() error {
	if !s.ownsCompressor {
		return nil
	}
	if c, ok := s.compressor.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// observe 记录指标，并在失败时输出限流告警日志。
func (s *Serializer) observe(op string, size int, tag string, err error) {
	kind := merr.Kind(err)
	metrics.ObserveOperation(op, size, kind)
	if err == nil {
		return
	}
	s.Logger().RatedWarn(1, "serde operation failed",
		log.FieldOperation(op),
		log.FieldTypeTag(tag),
		zap.String("kind", kind),
		zap.Error(err))
}

// EncodeText 使用构造时的 Formatting 将 v 编码为文本文档。
//
// 与 encoding/json 相同，字符串中的非法 UTF-8 字节编码为 U+FFFD，
// 这类字符串解码后与原值不相等。
func (s *Serializer) EncodeText(v any) (string, error) {
	return s.EncodeTextWith(v, s.cfg.formatting)
}

// EncodeTextWith 与 EncodeText 相同，但使用指定的 Formatting。
func (s *Serializer) EncodeTextWith(v any, f Formatting) (string, error) {
	data, tag, err := s.encode(v, f)
	s.observe(metrics.OpEncodeText, len(data), tag, err)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// EncodeBytes 将 v 编码为 UTF-8（无 BOM）字节，内容与 EncodeText 相同。
func (s *Serializer) EncodeBytes(v any) ([]byte, error) {
	data, tag, err := s.encode(v, s.cfg.formatting)
	s.observe(metrics.OpEncodeBytes, len(data), tag, err)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Decode 解码文本文档。空文本返回 (nil, nil)。
//
// 文档携带类型标签时以标签为准，expected 仅用于校验可赋值性；
// 不携带标签时按 expected 解码。expected 为 nil 表示不做约束。
func (s *Serializer) Decode(text string, expected reflect.Type) (any, error) {
	if text == "" {
		return nil, nil
	}
	v, tag, err := s.decode([]byte(text), expected)
	s.observe(metrics.OpDecode, len(text), tag, err)
	return v, err
}

// DecodeBytes 解码字节文档。data 为 nil 或 expected 为 nil 时返回 merr.ErrParameterMissing；
// 非 nil 的空切片视为空文档，返回 (nil, nil)。
func (s *Serializer) DecodeBytes(data []byte, expected reflect.Type) (any, error) {
	if err := checkDecodeArgs(data, expected); err != nil {
		s.observe(metrics.OpDecodeBytes, -1, "", err)
		return nil, err
	}
	v, tag, err := s.decode(data, expected)
	s.observe(metrics.OpDecodeBytes, len(data), tag, err)
	return v, err
}

// DecodeCompressedBytes 先解压再按 DecodeBytes 解码，参数约定与 DecodeBytes 相同。
func (s *Serializer) DecodeCompressedBytes(data []byte, expected reflect.Type) (any, error) {
	if err := checkDecodeArgs(data, expected); err != nil {
		s.observe(metrics.OpDecodeCompressed, -1, "", err)
		return nil, err
	}
	plain, err := s.Decompress(data)
	if err != nil {
		return nil, err
	}
	v, tag, err := s.decode(plain, expected)
	s.observe(metrics.OpDecodeCompressed, len(data), tag, err)
	return v, err
}

// DecodeBytesMaybeCompressed 按 compressed 选择 DecodeCompressedBytes 或 DecodeBytes。
func (s *Serializer) DecodeBytesMaybeCompressed(data []byte, expected reflect.Type, compressed bool) (any, error) {
	if compressed {
		return s.DecodeCompressedBytes(data, expected)
	}
	return s.DecodeBytes(data, expected)
}

// Compress 压缩 data。data 为 nil 时返回 (nil, nil)。
func (s *Serializer) Compress(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	out, err := s.compressor.Compress(nil, data)
	s.observe(metrics.OpCompress, len(out), "", err)
	if err != nil {
		return nil, err
	}
	metrics.ObserveCompression(len(data), len(out))
	return out, nil
}

// Decompress 解压 data。data 为 nil 时返回 (nil, nil)；
// 非法或截断的输入返回 merr.ErrSerdeCompressionFormat。
func (s *Serializer) Decompress(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	out, err := s.compressor.Decompress(nil, data)
	s.observe(metrics.OpDecompress, len(data), "", err)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

func checkDecodeArgs(data []byte, expected reflect.Type) error {
	if data == nil {
		return merr.WrapErrParameterMissing("bytes")
	}
	if expected == nil {
		return merr.WrapErrParameterMissing("expectedType")
	}
	return nil
}
