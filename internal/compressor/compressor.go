package compressor

import (
	"strings"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// 支持的压缩算法名称。
const (
	AlgorithmGzip = "gzip"
	AlgorithmZstd = "zstd"
	AlgorithmNone = "none"
)

// 压缩级别，具体映射由各算法实现决定。
const (
	LevelOptimal  = "optimal"
	LevelFastest  = "fastest"
	LevelSmallest = "smallest"
	LevelNone     = "none"
)

// Compressor 抽象了“单次压缩/解压”能力。
//
// 设计目标：
//   - 面向序列化结果这类完整内存块，不做流式/增量处理。
//   - 不做全局单例，调用方按需创建具体实现的实例。
//   - Compress 与 Decompress 对任意输入（包括空切片）互为逆运算。
type Compressor interface {
	// Compress 将 src 压缩到 dst。
	//
	// dst 一般可以传入一个可复用的缓冲区（长度可为 0），实现可选择复用其底层容量；
	// 返回值 packet 为压缩后的完整数据。
	Compress(dst, src []byte) (packet []byte, err error)

	// Decompress 将压缩数据 src 解压到 dst。
	//
	// 行为约定与 Compress 对称：src 必须是 Compress 的输出，
	// 否则返回 merr.ErrSerdeCompressionFormat。
	Decompress(dst, src []byte) (plain []byte, err error)

	// Algorithm 返回算法名称，用于日志与指标。
	Algorithm() string
}

// Config 描述压缩器的选择与参数，可由 viper 直接反序列化。
type Config struct {
	// Algorithm 可选 gzip（默认）、zstd 或 none。
	Algorithm string `json:"algorithm" yaml:"algorithm" mapstructure:"algorithm"`
	// Level 可选 optimal（默认）、fastest、smallest 或 none。
	Level string `json:"level" yaml:"level" mapstructure:"level"`
	// Concurrency 仅对 zstd 生效，<= 0 表示使用主机 CPU 核心数。
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
}

// DefaultConfig 返回 gzip + optimal 的默认配置。
func DefaultConfig() Config {
	return Config{
		Algorithm: AlgorithmGzip,
		Level:     LevelOptimal,
	}
}

func (c Config) normalized() Config {
	c.Algorithm = strings.ToLower(strings.TrimSpace(c.Algorithm))
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	if c.Algorithm == "" {
		c.Algorithm = AlgorithmGzip
	}
	if c.Level == "" {
		c.Level = LevelOptimal
	}
	return c
}

// New 按配置创建压缩器。未知算法或级别返回 merr.ErrParameterInvalid。
func New(cfg Config) (Compressor, error) {
	cfg = cfg.normalized()
	switch cfg.Algorithm {
	case AlgorithmGzip:
		return NewGzipCompressorLevel(cfg.Level)
	case AlgorithmZstd:
		level, err := zstdLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		return newZstdCompressor(cfg.Concurrency, level)
	case AlgorithmNone:
		return NopCompressor{}, nil
	default:
		return nil, merr.WrapErrParameterInvalidMsg("unknown compression algorithm %q", cfg.Algorithm)
	}
}

// NopCompressor 是一个空实现：不做任何压缩/解压，直接返回输入内容的副本。
//
// 适用于：
//   - 关闭压缩但保持调用侧逻辑不变
//   - 测试中隔离压缩对结果的影响
type NopCompressor struct{}

func (NopCompressor) Compress(dst []byte, src []byte) ([]byte, error) {
	return nonNil(append(dst[:0], src...)), nil
}

func (NopCompressor) Decompress(dst []byte, src []byte) ([]byte, error) {
	return nonNil(append(dst[:0], src...)), nil
}

func (NopCompressor) Algorithm() string {
	return AlgorithmNone
}

// 编译期断言：确保 NopCompressor 实现了 Compressor 接口。
var _ Compressor = NopCompressor{}

// nonNil 保证空结果以非 nil 的空切片返回，区分“空数据”与“无数据”。
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
