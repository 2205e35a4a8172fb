package serde

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lk2023060901/danmu-garden-serde/internal/compressor"
	"github.com/lk2023060901/danmu-garden-serde/internal/json"
	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-serde/pkg/typereg"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

type shape interface {
	Area() float64
}

type square struct {
	Side float64 `json:"side"`
}

func (q square) Area() float64 { return q.Side * q.Side }

type circle struct {
	R float64 `json:"r"`
}

func (c *circle) Area() float64 { return math.Pi * c.R * c.R }

type order struct {
	ID    int64             `json:"id"`
	Items []string          `json:"items"`
	Attrs map[string]string `json:"attrs,omitempty"`
	Note  Any               `json:"note"`
}

type unregistered struct{}

type holder struct {
	Name  string         `json:"name"`
	Shape any            `json:"shape"`
	Meta  map[string]any `json:"meta,omitempty"`
	Next  *holder        `json:"next,omitempty"`
}

func init() {
	typereg.MustRegister("serde.test.Square", square{})
	typereg.MustRegister("serde.test.Circle", circle{})
	typereg.MustRegister("serde.test.Order", order{})
	typereg.MustRegister("serde.test.Holder", holder{})
}

var anyT = reflect.TypeFor[any]()

func boxed[T any](v T, err error) (any, error) {
	return v, err
}

type SerdeSuite struct {
	suite.Suite
	s *Serializer
}

func (s *SerdeSuite) SetupSuite() {
	var err error
	s.s, err = New(Options{})
	s.Require().NoError(err)
}

func (s *SerdeSuite) TearDownSuite() {
	s.NoError(s.s.Close())
}

func (s *SerdeSuite) TestInt() {
	text, err := s.s.EncodeText(int32(32))
	s.Require().NoError(err)
	s.Equal(`{"$type":"int32","$value":32}`, text)

	v, err := s.s.Decode(text, anyT)
	s.Require().NoError(err)
	s.IsType(int32(0), v)
	s.Equal(int32(32), v)
}

func (s *SerdeSuite) TestString() {
	text, err := s.s.EncodeText("test")
	s.Require().NoError(err)
	s.Equal(`{"$type":"string","$value":"test"}`, text)

	v, err := s.s.Decode(text, anyT)
	s.Require().NoError(err)
	s.Equal("test", v)
}

func (s *SerdeSuite) TestList() {
	text, err := s.s.EncodeText([]int{1})
	s.Require().NoError(err)
	s.Equal(`{"$type":"[]int","$value":[1]}`, text)

	v, err := s.s.Decode(text, anyT)
	s.Require().NoError(err)
	s.Equal([]int{1}, v)
}

func (s *SerdeSuite) TestMap() {
	text, err := s.s.EncodeText(map[string]string{"foo": "bar"})
	s.Require().NoError(err)
	s.Equal(`{"$type":"map[string]string","$value":{"foo":"bar"}}`, text)

	v, err := s.s.Decode(text, anyT)
	s.Require().NoError(err)
	m, ok := v.(map[string]string)
	s.Require().True(ok)
	s.Len(m, 1)
	s.Equal("bar", m["foo"])
}

func (s *SerdeSuite) TestObject() {
	text, err := s.s.EncodeText(Object{})
	s.Require().NoError(err)
	s.Equal(`{"$type":"object","$value":{}}`, text)

	v, err := s.s.Decode(text, anyT)
	s.Require().NoError(err)
	s.NotNil(v)
	s.IsType(Object{}, v)
}

func (s *SerdeSuite) TestCompressedMap() {
	data, err := s.s.EncodeBytes(map[string]string{"foo": "bar"})
	s.Require().NoError(err)
	packed, err := s.s.Compress(data)
	s.Require().NoError(err)

	plain, err := s.s.DecodeBytes(data, anyT)
	s.Require().NoError(err)
	unpacked, err := s.s.DecodeCompressedBytes(packed, anyT)
	s.Require().NoError(err)
	s.Equal(plain, unpacked)

	viaFlag, err := s.s.DecodeBytesMaybeCompressed(packed, anyT, true)
	s.Require().NoError(err)
	s.Equal(plain, viaFlag)
	viaFlag, err = s.s.DecodeBytesMaybeCompressed(data, anyT, false)
	s.Require().NoError(err)
	s.Equal(plain, viaFlag)
}

func (s *SerdeSuite) TestRoundTrip() {
	values := []any{
		true,
		int8(-8), int16(16), int64(math.MaxInt64), uint(7), uint8(8), uint64(math.MaxUint64),
		float32(1.5), 2.25,
		"",
		[]string{"a", "b"},
		[3]int{1, 2, 3},
		map[string]int{"a": 1},
		map[int]string{1: "a"},
		[]map[string][]int{{"x": {1, 2}}},
		square{Side: 2},
		&circle{R: 1},
		[]any{int32(1), "x"},
		Object{},
		order{ID: 9, Items: []string{"i"}, Attrs: map[string]string{"k": "v"}, Note: Any{Value: int16(5)}},
		order{ID: 10, Note: Any{Value: []Any{{Value: square{Side: 1}}, {Value: &circle{R: 2}}}}},
	}
	for _, in := range values {
		text, err := s.s.EncodeText(in)
		s.Require().NoError(err, "%T", in)

		out, err := s.s.Decode(text, anyT)
		s.Require().NoError(err, text)
		s.Equal(reflect.TypeOf(in), reflect.TypeOf(out), text)
		s.Equal(in, out, text)
	}
}

func (s *SerdeSuite) TestNestedAnySlots() {
	text, err := s.s.EncodeText([]any{square{Side: 2}})
	s.Require().NoError(err)
	s.Equal(`{"$type":"[]any","$value":[{"$type":"serde.test.Square","$value":{"side":2}}]}`, text)
	v, err := s.s.Decode(text, anyT)
	s.Require().NoError(err)
	s.Equal([]any{square{Side: 2}}, v)

	text, err = s.s.EncodeText(holder{Name: "h", Shape: square{Side: 3}})
	s.Require().NoError(err)
	s.Contains(text, `"shape":{"$type":"serde.test.Square","$value":{"side":3}}`)
	v, err = s.s.Decode(text, anyT)
	s.Require().NoError(err)
	s.Equal(holder{Name: "h", Shape: square{Side: 3}}, v)

	values := []any{
		[]any{square{Side: 1}, &circle{R: 2}, int64(math.MaxInt64), uint8(3), 1.5, "x", true, nil},
		map[string]any{"a": &circle{R: 1}, "b": []any{int32(7), map[string]any{"c": Object{}}}},
		holder{Shape: []square{{Side: 1}}, Meta: map[string]any{"at": int16(4)}},
		holder{Shape: (*circle)(nil), Next: &holder{Shape: holder{Name: "inner", Shape: uint32(9)}}},
		[2]any{int8(1), square{Side: 5}},
		order{ID: 1, Note: Any{Value: []any{square{Side: 6}}}},
	}
	for _, in := range values {
		for _, f := range []Formatting{FormattingNone, FormattingIndented} {
			text, err := s.s.EncodeTextWith(in, f)
			s.Require().NoError(err, "%T", in)

			out, err := s.s.Decode(text, anyT)
			s.Require().NoError(err, text)
			s.Equal(in, out, text)
		}
	}

	// 与 holder 字段形状相同的兄弟类型依靠嵌套标签区分。
	a, err := s.s.EncodeText(holder{Shape: square{Side: 1}})
	s.Require().NoError(err)
	b, err := s.s.EncodeText(holder{Shape: &circle{R: 1}})
	s.Require().NoError(err)
	va, err := s.s.Decode(a, anyT)
	s.Require().NoError(err)
	vb, err := s.s.Decode(b, anyT)
	s.Require().NoError(err)
	s.IsType(square{}, va.(holder).Shape)
	s.IsType(&circle{}, vb.(holder).Shape)
}

func (s *SerdeSuite) TestNestedAnySlotErrors() {
	_, err := s.s.EncodeText([]any{unregistered{}})
	s.ErrorIs(err, merr.ErrSerdeTypeResolution)

	_, err = s.s.EncodeText(holder{Shape: unregistered{}})
	s.ErrorIs(err, merr.ErrSerdeTypeResolution)

	loop := &holder{}
	loop.Shape = loop
	_, err = s.s.EncodeText(loop)
	s.ErrorIs(err, merr.ErrSerdeEncode)

	_, err = s.s.Decode(`{"$type":"[]any","$value":[{"$type":"app.Missing","$value":{}}]}`, anyT)
	s.ErrorIs(err, merr.ErrSerdeTypeResolution)

	for _, doc := range []string{
		`{"$type":"[]any","$value":[{"$type":5}]}`,
		`{"$type":"serde.test.Holder","$value":{"shape":{"$type":"int32","$value":1,"x":0}}}`,
		`{"$type":"[]any","$value":[{"$type":"int8","$value":300}]}`,
	} {
		_, err = s.s.Decode(doc, anyT)
		s.ErrorIs(err, merr.ErrSerdeFormat, doc)
	}

	// 未携带标签的数字仍还原为 float64。
	v, err := s.s.Decode(`{"$type":"serde.test.Holder","$value":{"shape":12}}`, anyT)
	s.Require().NoError(err)
	s.Equal(holder{Shape: float64(12)}, v)
}

func (s *SerdeSuite) TestInterfaceExpected() {
	text, err := s.s.EncodeText(&circle{R: 3})
	s.Require().NoError(err)
	s.Equal(`{"$type":"*serde.test.Circle","$value":{"r":3}}`, text)

	v, err := s.s.Decode(text, reflect.TypeFor[shape]())
	s.Require().NoError(err)
	s.Equal(&circle{R: 3}, v)

	_, err = s.s.Decode(text, reflect.TypeFor[square]())
	s.ErrorIs(err, merr.ErrSerdeTypeResolution)
}

func (s *SerdeSuite) TestTypedNil() {
	text, err := s.s.EncodeText(nil)
	s.Require().NoError(err)
	s.Equal(`{"$type":"nil","$value":null}`, text)
	v, err := s.s.Decode(text, anyT)
	s.NoError(err)
	s.Nil(v)

	text, err = s.s.EncodeText((*circle)(nil))
	s.Require().NoError(err)
	s.Equal(`{"$type":"*serde.test.Circle","$value":null}`, text)
	v, err = s.s.Decode(text, anyT)
	s.NoError(err)
	s.IsType((*circle)(nil), v)
	s.Nil(v)

	v, err = s.s.Decode(`{"$type":"int32"}`, anyT)
	s.NoError(err)
	s.Equal(int32(0), v)
}

func (s *SerdeSuite) TestByteTextEquivalence() {
	indented, err := New(Options{Settings: &Settings{Formatting: FormattingIndented}})
	s.Require().NoError(err)

	for _, ser := range []*Serializer{s.s, indented} {
		for _, in := range []any{int32(32), "test", []int{1}, map[string]string{"foo": "bar"}, Object{}} {
			text, err := ser.EncodeText(in)
			s.Require().NoError(err)
			data, err := ser.EncodeBytes(in)
			s.Require().NoError(err)
			s.Equal([]byte(text), data)
			s.False(bytes.HasPrefix(data, utf8BOM))

			fromText, err := ser.Decode(text, anyT)
			s.Require().NoError(err)
			fromBytes, err := ser.DecodeBytes(data, anyT)
			s.Require().NoError(err)
			s.Equal(fromText, fromBytes)
		}
	}
}

func (s *SerdeSuite) TestIndented() {
	text, err := s.s.EncodeTextWith(map[string]string{"foo": "bar"}, FormattingIndented)
	s.Require().NoError(err)
	s.Contains(text, "\n  \"$type\"")
	s.False(bytes.HasSuffix([]byte(text), []byte("\n")))

	v, err := s.s.Decode(text, anyT)
	s.Require().NoError(err)
	s.Equal(map[string]string{"foo": "bar"}, v)

	_, err = s.s.EncodeTextWith(1, Formatting("pretty"))
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *SerdeSuite) TestAbsent() {
	out, err := s.s.Compress(nil)
	s.NoError(err)
	s.Nil(out)

	out, err = s.s.Decompress(nil)
	s.NoError(err)
	s.Nil(out)

	v, err := s.s.Decode("", reflect.TypeFor[int32]())
	s.NoError(err)
	s.Nil(v)

	v, err = s.s.DecodeBytes([]byte{}, anyT)
	s.NoError(err)
	s.Nil(v)

	v, err = s.s.DecodeBytes([]byte(" \n"), anyT)
	s.NoError(err)
	s.Nil(v)
}

func (s *SerdeSuite) TestArgumentErrors() {
	data := []byte(`{"$type":"int32","$value":1}`)
	cases := map[string]func() (any, error){
		"bytes nil":                    func() (any, error) { return s.s.DecodeBytes(nil, anyT) },
		"type nil":                     func() (any, error) { return s.s.DecodeBytes(data, nil) },
		"compressed bytes nil":         func() (any, error) { return s.s.DecodeCompressedBytes(nil, anyT) },
		"compressed type nil":          func() (any, error) { return s.s.DecodeCompressedBytes(data, nil) },
		"maybe compressed nil":         func() (any, error) { return s.s.DecodeBytesMaybeCompressed(nil, anyT, true) },
		"maybe compressed type nil":    func() (any, error) { return s.s.DecodeBytesMaybeCompressed(data, nil, false) },
		"generic bytes nil":            func() (any, error) { return boxed(DecodeBytesAs[int32](s.s, nil)) },
		"generic compressed nil":       func() (any, error) { return boxed(DecodeCompressedBytesAs[int32](s.s, nil)) },
		"generic maybe compressed nil": func() (any, error) { return boxed(DecodeBytesAsMaybeCompressed[int32](s.s, nil, false)) },
	}
	for name, fn := range cases {
		_, err := fn()
		s.ErrorIs(err, merr.ErrParameterMissing, name)
		s.Equal(merr.KindArgument, merr.Kind(err), name)
	}
}

func (s *SerdeSuite) TestCompressInverse() {
	large := bytes.Repeat([]byte("0123456789abcdef"), (1<<20)/16+1024)
	for name, in := range map[string][]byte{"empty": {}, "single": {'x'}, "large": large} {
		packed, err := s.s.Compress(in)
		s.Require().NoError(err, name)
		s.NotNil(packed, name)

		out, err := s.s.Decompress(packed)
		s.Require().NoError(err, name)
		s.NotNil(out, name)
		s.Equal(in, out, name)
	}
}

func (s *SerdeSuite) TestCorruptCompressed() {
	zs, err := New(Options{Settings: &Settings{Compression: compressor.Config{Algorithm: compressor.AlgorithmZstd}}})
	s.Require().NoError(err)
	defer zs.Close()

	for _, ser := range []*Serializer{s.s, zs} {
		_, err := ser.Decompress([]byte("junk"))
		s.ErrorIs(err, merr.ErrSerdeCompressionFormat)

		_, err = ser.Decompress([]byte{})
		s.ErrorIs(err, merr.ErrSerdeCompressionFormat)

		_, err = ser.DecodeCompressedBytes([]byte("junk"), anyT)
		s.ErrorIs(err, merr.ErrSerdeCompressionFormat)

		_, err = ser.DecodeCompressedBytes([]byte{}, anyT)
		s.ErrorIs(err, merr.ErrSerdeCompressionFormat)
	}
}

func (s *SerdeSuite) TestFormatErrors() {
	for _, doc := range []string{
		`{"$type":"int32","$value":`,
		`{"$type":5,"$value":1}`,
		`{"$type":"","$value":1}`,
		`{"$type":null,"$value":1}`,
		`{"$type":"int32","$value":1,"extra":2}`,
		`{"$type":"int32","$value":"x"}`,
		`{"$type":"int8","$value":300}`,
		`[1,`,
		`"unterminated`,
	} {
		_, err := s.s.Decode(doc, anyT)
		s.ErrorIs(err, merr.ErrSerdeFormat, doc)
		s.Equal(merr.KindFormat, merr.Kind(err), doc)
	}

	_, err := s.s.Decode(`{"$type":"int32","$value":tru}`, anyT)
	s.ErrorIs(err, merr.ErrSerdeFormat)
	s.NotEmpty(err.Error())
}

func (s *SerdeSuite) TestTypeResolutionErrors() {
	_, err := s.s.Decode(`{"$type":"app.Missing","$value":{}}`, anyT)
	s.ErrorIs(err, merr.ErrSerdeTypeResolution)
	s.Contains(err.Error(), "app.Missing")

	_, err = s.s.Decode(`{"$type":"proto:no.such.Message","$value":{}}`, anyT)
	s.ErrorIs(err, merr.ErrSerdeTypeResolution)

	_, err = s.s.EncodeText(unregistered{})
	s.ErrorIs(err, merr.ErrSerdeTypeResolution)

	_, err = s.s.EncodeBytes([]chan int{})
	s.ErrorIs(err, merr.ErrSerdeTypeResolution)

	_, err = s.s.EncodeText(order{Note: Any{Value: unregistered{}}})
	s.Error(err)
}

func (s *SerdeSuite) TestInvalidUTF8() {
	text, err := s.s.EncodeText("a\xffb")
	s.Require().NoError(err)
	s.Equal(`{"$type":"string","$value":"a\ufffdb"}`, text)

	v, err := s.s.Decode(text, anyT)
	s.Require().NoError(err)
	s.Equal("a\uFFFDb", v)
}

func (s *SerdeSuite) TestEncodeError() {
	_, err := s.s.EncodeText(math.NaN())
	s.ErrorIs(err, merr.ErrSerdeEncode)
	s.Equal(merr.KindEncode, merr.Kind(err))
}

func (s *SerdeSuite) TestFallback() {
	v, err := s.s.Decode(`{"foo":"bar"}`, reflect.TypeFor[map[string]string]())
	s.Require().NoError(err)
	s.Equal(map[string]string{"foo": "bar"}, v)

	v, err = s.s.Decode("32", reflect.TypeFor[int32]())
	s.Require().NoError(err)
	s.Equal(int32(32), v)

	v, err = s.s.Decode(`[1,2]`, nil)
	s.Require().NoError(err)
	s.Equal([]any{float64(1), float64(2)}, v)

	v, err = s.s.DecodeBytes([]byte(`{"side":4}`), reflect.TypeFor[square]())
	s.Require().NoError(err)
	s.Equal(square{Side: 4}, v)
}

func (s *SerdeSuite) TestBOM() {
	data, err := s.s.EncodeBytes("test")
	s.Require().NoError(err)
	v, err := s.s.DecodeBytes(append(append([]byte{}, utf8BOM...), data...), anyT)
	s.Require().NoError(err)
	s.Equal("test", v)
}

func (s *SerdeSuite) TestProto() {
	in, err := structpb.NewStruct(map[string]any{"foo": "bar", "n": 2.0})
	s.Require().NoError(err)

	text, err := s.s.EncodeText(in)
	s.Require().NoError(err)
	s.Contains(text, `"$type":"proto:google.protobuf.Struct"`)

	v, err := s.s.Decode(text, reflect.TypeFor[proto.Message]())
	s.Require().NoError(err)
	out, ok := v.(*structpb.Struct)
	s.Require().True(ok)
	s.True(proto.Equal(in, out))

	text, err = s.s.EncodeText((*structpb.Struct)(nil))
	s.Require().NoError(err)
	s.Equal(`{"$type":"proto:google.protobuf.Struct","$value":null}`, text)
	v, err = s.s.Decode(text, anyT)
	s.NoError(err)
	s.IsType((*structpb.Struct)(nil), v)

	v, err = s.s.Decode(`{"fields":{}}`, reflect.TypeFor[*structpb.Struct]())
	s.Require().NoError(err)
	s.IsType(&structpb.Struct{}, v)

	_, err = s.s.Decode(`{"$type":"proto:google.protobuf.Struct","$value":[1]}`, anyT)
	s.ErrorIs(err, merr.ErrSerdeFormat)
}

func (s *SerdeSuite) TestGeneric() {
	text, err := s.s.EncodeText(int32(32))
	s.Require().NoError(err)

	i, err := DecodeAs[int32](s.s, text)
	s.NoError(err)
	s.Equal(int32(32), i)

	a, err := DecodeAs[any](s.s, text)
	s.NoError(err)
	s.Equal(int32(32), a)

	_, err = DecodeAs[string](s.s, text)
	s.ErrorIs(err, merr.ErrSerdeTypeResolution)

	empty, err := DecodeAs[*circle](s.s, "")
	s.NoError(err)
	s.Nil(empty)

	data, err := s.s.EncodeBytes(map[string]string{"foo": "bar"})
	s.Require().NoError(err)
	m, err := DecodeBytesAs[map[string]string](s.s, data)
	s.NoError(err)
	s.Equal("bar", m["foo"])

	packed, err := s.s.Compress(data)
	s.Require().NoError(err)
	m, err = DecodeCompressedBytesAs[map[string]string](s.s, packed)
	s.NoError(err)
	s.Equal("bar", m["foo"])

	for compressed, in := range map[bool][]byte{true: packed, false: data} {
		m, err = DecodeBytesAsMaybeCompressed[map[string]string](s.s, in, compressed)
		s.NoError(err)
		s.Equal("bar", m["foo"])
	}

	sh, err := DecodeAs[shape](s.s, `{"$type":"serde.test.Square","$value":{"side":3}}`)
	s.NoError(err)
	s.Equal(9.0, sh.Area())
}

func (s *SerdeSuite) TestConcurrent() {
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			in := order{ID: int64(i), Items: []string{"x"}, Note: Any{Value: int32(i)}}
			data, err := s.s.EncodeBytes(in)
			if err != nil {
				return err
			}
			packed, err := s.s.Compress(data)
			if err != nil {
				return err
			}
			out, err := DecodeCompressedBytesAs[order](s.s, packed)
			if err != nil {
				return err
			}
			if !reflect.DeepEqual(in, out) {
				return merr.WrapErrParameterInvalid(in, out)
			}
			return nil
		})
	}
	s.NoError(g.Wait())
}

func (s *SerdeSuite) TestMetrics() {
	fail := metrics.SerdeOperations.WithLabelValues(metrics.OpDecodeBytes, metrics.FailLabel)
	argErrs := metrics.SerdeErrors.WithLabelValues(metrics.OpDecodeBytes, merr.KindArgument)
	success := metrics.SerdeOperations.WithLabelValues(metrics.OpEncodeText, metrics.SuccessLabel)
	before := [3]float64{testutil.ToFloat64(fail), testutil.ToFloat64(argErrs), testutil.ToFloat64(success)}

	_, err := s.s.DecodeBytes(nil, anyT)
	s.Error(err)
	_, err = s.s.EncodeText("x")
	s.NoError(err)

	s.Equal(before[0]+1, testutil.ToFloat64(fail))
	s.Equal(before[1]+1, testutil.ToFloat64(argErrs))
	s.Equal(before[2]+1, testutil.ToFloat64(success))
}

func TestSerde(t *testing.T) {
	suite.Run(t, new(SerdeSuite))
}

func TestEngines(t *testing.T) {
	for _, settings := range []*Settings{
		{Engine: json.EngineJsoniter},
		{Engine: json.EngineSonic, SortMapKeys: true, Compression: compressor.Config{Algorithm: compressor.AlgorithmZstd}},
		{Engine: json.EngineJsoniter, Formatting: FormattingIndented, Indent: "\t", Compression: compressor.Config{Algorithm: compressor.AlgorithmNone}},
	} {
		s, err := New(Options{Settings: settings})
		require.NoError(t, err)

		for _, in := range []any{int32(32), "test", []int{1}, map[string]string{"foo": "bar", "a": "b"}, Object{},
			order{ID: 1, Items: []string{"a"}, Note: Any{Value: square{Side: 1}}}} {
			data, err := s.EncodeBytes(in)
			require.NoError(t, err, settings.Engine)
			packed, err := s.Compress(data)
			require.NoError(t, err)

			out, err := s.DecodeCompressedBytes(packed, anyT)
			require.NoError(t, err, string(data))
			assert.Equal(t, in, out, string(data))
		}
		assert.Equal(t, TypeNameAll, s.Settings().TypeNameHandling)
		require.NoError(t, s.Close())
	}
}

func TestTypeNameHandlingOverride(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := &log.MLogger{Logger: zap.New(core)}

	s, err := New(Options{Settings: &Settings{TypeNameHandling: TypeNameNone}, Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, TypeNameAll, s.Settings().TypeNameHandling)
	assert.Same(t, logger, s.Logger())

	text, err := s.EncodeText(int32(1))
	require.NoError(t, err)
	assert.Contains(t, text, `"$type":"int32"`)

	overridden := logs.FilterMessage("type name handling overridden").All()
	require.Len(t, overridden, 1)
	assert.Equal(t, "none", overridden[0].ContextMap()["requested"])
	assert.Equal(t, 1, logs.FilterMessage("serializer created").Len())

	_, err = s.DecodeBytes(nil, anyT)
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("serde operation failed").Len())
}

func TestInvalidSettings(t *testing.T) {
	for name, settings := range map[string]*Settings{
		"formatting":  {Formatting: "pretty"},
		"indent":      {Indent: "ab"},
		"engine":      {Engine: "easyjson"},
		"type names":  {TypeNameHandling: "auto"},
		"compression": {Compression: compressor.Config{Algorithm: "lz4"}},
	} {
		_, err := New(Options{Settings: settings})
		assert.ErrorIs(t, err, merr.ErrParameterInvalid, name)
	}
}

func TestCustomRegistry(t *testing.T) {
	r := typereg.New()
	s, err := New(Options{Registry: r, Compressor: compressor.NopCompressor{}})
	require.NoError(t, err)
	assert.Same(t, r, s.Registry())
	assert.ElementsMatch(t, []string{ObjectTag, AnyTag}, r.Names())

	_, err = s.EncodeText(int32(1))
	assert.ErrorIs(t, err, merr.ErrSerdeTypeResolution)

	text, err := s.EncodeText(Object{})
	require.NoError(t, err)
	v, err := s.Decode(text, anyT)
	require.NoError(t, err)
	assert.Equal(t, Object{}, v)

	packed, err := s.Compress([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(packed))
	assert.NoError(t, s.Close())
}

func TestFactoryDefaults(t *testing.T) {
	type limits struct {
		Max int `json:"max"`
		Min int `json:"min"`
	}
	r := typereg.NewWithBuiltins()
	require.NoError(t, typereg.RegisterFactory(r, "serde.test.Limits", func() *limits { return &limits{Max: 10} }))

	s, err := New(Options{Registry: r})
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Decode(`{"$type":"serde.test.Limits","$value":{"min":1}}`, anyT)
	require.NoError(t, err)
	assert.Equal(t, limits{Max: 10, Min: 1}, v)
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
serde:
  formatting: indented
  engine: jsoniter
  sort-map-keys: true
  type-name-handling: objects
  compression:
    algorithm: zstd
    level: fastest
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	settings, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, FormattingIndented, settings.Formatting)
	assert.Equal(t, json.EngineJsoniter, settings.Engine)
	assert.True(t, settings.SortMapKeys)
	assert.Equal(t, defaultIndent, settings.Indent)
	assert.Equal(t, compressor.Config{Algorithm: compressor.AlgorithmZstd, Level: compressor.LevelFastest}, settings.Compression)

	s, err := New(Options{Settings: settings})
	require.NoError(t, err)
	defer s.Close()
	effective := s.Settings()
	assert.Equal(t, TypeNameAll, effective.TypeNameHandling)
	assert.Equal(t, FormattingIndented, effective.Formatting)

	_, err = LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	defaults, err := SettingsFromConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), defaults)
}

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
	assert.Same(t, typereg.Default(), Default().Registry())
	assert.Equal(t, FormattingNone, Default().Settings().Formatting)
}
