package compressor

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/bytebufferpool"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// GzipCompressor 基于 github.com/klauspost/compress/gzip 的压缩实现。
//
// 与 zstd 不同，gzip 的 writer/reader 在每次调用内创建并在返回前关闭，
// 实例本身只保存压缩级别，可安全并发使用。
type GzipCompressor struct {
	level int
}

// 编译期断言：确保 GzipCompressor 实现了 Compressor 接口。
var _ Compressor = (*GzipCompressor)(nil)

// NewGzipCompressor 创建默认级别（optimal）的 GzipCompressor。
func NewGzipCompressor() *GzipCompressor {
	return &GzipCompressor{level: gzip.DefaultCompression}
}

// NewGzipCompressorLevel 按级别名称创建 GzipCompressor。
func NewGzipCompressorLevel(level string) (*GzipCompressor, error) {
	switch level {
	case "", LevelOptimal:
		return &GzipCompressor{level: gzip.DefaultCompression}, nil
	case LevelFastest:
		return &GzipCompressor{level: gzip.BestSpeed}, nil
	case LevelSmallest:
		return &GzipCompressor{level: gzip.BestCompression}, nil
	case LevelNone:
		return &GzipCompressor{level: gzip.NoCompression}, nil
	default:
		return nil, merr.WrapErrParameterInvalidMsg("unknown gzip level %q", level)
	}
}

// Compress 实现 Compressor 接口。
func (c *GzipCompressor) Compress(dst, src []byte) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := c.writeAll(buf, src); err != nil {
		return nil, err
	}
	return append(dst[:0], buf.B...), nil
}

func (c *GzipCompressor) writeAll(w io.Writer, src []byte) (err error) {
	zw, err := gzip.NewWriterLevel(w, c.level)
	if err != nil {
		return err
	}
	defer func() {
		err = merr.Combine(err, zw.Close())
	}()
	_, err = zw.Write(src)
	return err
}

// Decompress 实现 Compressor 接口。
//
// 非 gzip 数据、截断或校验失败均返回 merr.ErrSerdeCompressionFormat。
func (c *GzipCompressor) Decompress(dst, src []byte) (plain []byte, err error) {
	zr, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, merr.WrapErrSerdeCompressionFormat(AlgorithmGzip, err)
	}
	defer func() {
		if cerr := zr.Close(); cerr != nil && err == nil {
			plain, err = nil, merr.WrapErrSerdeCompressionFormat(AlgorithmGzip, cerr)
		}
	}()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(zr); err != nil {
		return nil, merr.WrapErrSerdeCompressionFormat(AlgorithmGzip, err)
	}
	return nonNil(append(dst[:0], buf.B...)), nil
}

func (c *GzipCompressor) Algorithm() string {
	return AlgorithmGzip
}
