package compressor

import (
	"io"
	"runtime"

	"github.com/klauspost/compress/zstd"
	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// ZstdCompressor 基于 github.com/klauspost/compress/zstd 的压缩实现。
//
// 它持有独立的 encoder/decoder 实例：
//   - 不使用全局单例，避免不同调用方之间的隐式耦合。
//   - EncodeAll/DecodeAll 可并发调用，实例生命周期由调用方通过 Close 结束。
type ZstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// 编译期断言：确保 ZstdCompressor 实现了 Compressor 接口。
var _ Compressor = (*ZstdCompressor)(nil)

// NewZstdCompressor 创建一个 ZstdCompressor，默认并发度为主机 CPU 核心数。
func NewZstdCompressor() (*ZstdCompressor, error) {
	return NewZstdCompressorWithConcurrency(0)
}

// NewZstdCompressorWithConcurrency 创建一个 ZstdCompressor，并允许显式指定 zstd 的并发数。
//
// 参数说明：
//   - concurrency <= 0：使用主机 CPU 核心数（cpuNum()）。
//   - concurrency > 0 ：使用指定并发度。
func NewZstdCompressorWithConcurrency(concurrency int) (*ZstdCompressor, error) {
	return newZstdCompressor(concurrency, zstd.SpeedDefault)
}

func newZstdCompressor(concurrency int, level zstd.EncoderLevel) (*ZstdCompressor, error) {
	if concurrency <= 0 {
		concurrency = cpuNum()
	}

	opts := []zstd.EOption{
		// 空输入也输出一个完整帧，保证 Decompress(Compress([]byte{})) 可逆。
		zstd.WithZeroFrames(true),
		zstd.WithEncoderConcurrency(concurrency),
		zstd.WithEncoderLevel(level),
	}

	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(concurrency))
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &ZstdCompressor{
		enc: enc,
		dec: dec,
	}, nil
}

// zstdLevel 将级别名称映射为 zstd 的编码级别。zstd 没有“不压缩”级别，none 退化为 fastest。
func zstdLevel(level string) (zstd.EncoderLevel, error) {
	switch level {
	case "", LevelOptimal:
		return zstd.SpeedDefault, nil
	case LevelFastest, LevelNone:
		return zstd.SpeedFastest, nil
	case LevelSmallest:
		return zstd.SpeedBestCompression, nil
	default:
		return 0, merr.WrapErrParameterInvalidMsg("unknown zstd level %q", level)
	}
}

// cpuNum 返回逻辑 CPU 数量，gopsutil 获取失败时退回 runtime.NumCPU。
func cpuNum() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Compress 实现 Compressor 接口。
func (c *ZstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	if c == nil || c.enc == nil {
		return nil, zstd.ErrEncoderClosed
	}
	return c.enc.EncodeAll(src, dst[:0]), nil
}

// Decompress 实现 Compressor 接口。
func (c *ZstdCompressor) Decompress(dst, src []byte) ([]byte, error) {
	if c == nil || c.dec == nil {
		return nil, zstd.ErrDecoderClosed
	}
	// 压缩结果至少包含一个帧，空输入不是合法的流。
	if len(src) == 0 {
		return nil, merr.WrapErrSerdeCompressionFormat(AlgorithmZstd, io.ErrUnexpectedEOF)
	}
	out, err := c.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, merr.WrapErrSerdeCompressionFormat(AlgorithmZstd, err)
	}
	return nonNil(out), nil
}

func (c *ZstdCompressor) Algorithm() string {
	return AlgorithmZstd
}

// Close 释放内部 encoder/decoder 持有的资源。
//
// 再次使用已关闭实例将返回 ErrEncoderClosed/ErrDecoderClosed。
func (c *ZstdCompressor) Close() error {
	if c == nil {
		return nil
	}
	var err error
	if c.enc != nil {
		err = c.enc.Close()
		c.enc = nil
	}
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}
	return err
}
