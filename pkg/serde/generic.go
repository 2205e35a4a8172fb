package serde

import (
	"fmt"
	"reflect"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// DecodeAs 以 T 为期望类型解码文本文档。空文本返回 T 的零值。
func DecodeAs[T any](s *Serializer, text string) (T, error) {
	return as[T](s.Decode(text, reflect.TypeFor[T]()))
}

// DecodeBytesAs 以 T 为期望类型解码字节文档。
func DecodeBytesAs[T any](s *Serializer, data []byte) (T, error) {
	return as[T](s.DecodeBytes(data, reflect.TypeFor[T]()))
}

// DecodeCompressedBytesAs 以 T 为期望类型解码压缩后的字节文档。
func DecodeCompressedBytesAs[T any](s *Serializer, data []byte) (T, error) {
	return as[T](s.DecodeCompressedBytes(data, reflect.TypeFor[T]()))
}

// DecodeBytesAsMaybeCompressed 按 compressed 选择 DecodeCompressedBytesAs 或 DecodeBytesAs。
func DecodeBytesAsMaybeCompressed[T any](s *Serializer, data []byte, compressed bool) (T, error) {
	return as[T](s.DecodeBytesMaybeCompressed(data, reflect.TypeFor[T](), compressed))
}

func as[T any](v any, err error) (T, error) {
	var zero T
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, merr.WrapErrParameterInvalid(reflect.TypeFor[T]().String(), fmt.Sprintf("%T", v), "decode")
	}
	return t, nil
}
