package serde

import (
	"bytes"
	"reflect"

	"github.com/valyala/bytebufferpool"
	"google.golang.org/protobuf/proto"

	"github.com/lk2023060901/danmu-garden-serde/internal/json"
	"github.com/lk2023060901/danmu-garden-serde/pkg/typereg"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

const (
	typeKey  = "$type"
	valueKey = "$value"

	// ObjectTag 为 Object 的类型标签。
	ObjectTag = "object"
	// AnyTag 为 Any 的类型标签。
	AnyTag = "serde.Any"
)

var (
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}

	anyType          = reflect.TypeFor[any]()
	protoMessageType = reflect.TypeFor[proto.Message]()
)

// envelope 为编码文档的外层结构，字段顺序保证 $type 在前。
type envelope struct {
	Type  string `json:"$type"`
	Value any    `json:"$value"`
}

// Object 是不含任何字段的值。它同样携带类型标签：
//
//	{"$type":"object","$value":{}}
//
// 解码得到的是 Object，而不是 nil 或 map。
type Object struct{}

// Any 用于在自定义结构体中保存多态字段。它被编码为一个嵌套信封，
// 解码后 Value 保持原始具体类型。嵌套信封始终使用 Default() 的注册表与配置。
type Any struct {
	Value any
}

func (a Any) MarshalJSON() ([]byte, error) {
	data, _, err := Default().encode(a.Value, FormattingNone)
	return data, err
}

func (a *Any) UnmarshalJSON(data []byte) error {
	v, _, err := Default().decode(data, nil)
	if err != nil {
		return err
	}
	a.Value = v
	return nil
}

func init() {
	if err := registerCoreTypes(typereg.Default()); err != nil {
		panic(err)
	}
}

func registerCoreTypes(r *typereg.Registry) error {
	if err := r.Register(ObjectTag, Object{}); err != nil {
		return err
	}
	return r.Register(AnyTag, Any{})
}

// encode 生成信封文档，返回文档字节与类型标签。
func (s *Serializer) encode(v any, f Formatting) ([]byte, string, error) {
	return s.encodeAt(v, f, 0)
}

// encodeAt 与 encode 相同，depth 为嵌套信封所在的遍历深度。
func (s *Serializer) encodeAt(v any, f Formatting, depth int) ([]byte, string, error) {
	switch f {
	case "", FormattingNone, FormattingIndented:
	default:
		return nil, "", merr.WrapErrParameterInvalidMsg("unknown formatting %q", f)
	}

	tag, err := s.registry.TagOf(reflect.TypeOf(v))
	if err != nil {
		return nil, "", err
	}
	value, err := s.payloadOf(v, depth)
	if err != nil {
		return nil, tag, encodeError(tag, err)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	enc := s.api.NewEncoder(buf)
	enc.SetEscapeHTML(s.cfg.escapeHTML)
	if f == FormattingIndented {
		enc.SetIndent("", s.cfg.indent)
	}
	if err := enc.Encode(envelope{Type: tag, Value: value}); err != nil {
		return nil, tag, encodeError(tag, err)
	}
	// Encoder 会追加换行，文档本身不包含它。
	return bytes.Clone(bytes.TrimSuffix(buf.B, []byte{'\n'})), tag, nil
}

// payloadOf 返回信封 $value 中实际编码的对象：protobuf 消息先经 protojson 编码，
// 其余值中 any 槽位里的非原生值替换为嵌套信封。
func (s *Serializer) payloadOf(v any, depth int) (any, error) {
	if v == nil {
		return nil, nil
	}
	msg, ok := v.(proto.Message)
	if !ok {
		tagged, err := s.tagNested(reflect.ValueOf(v), depth)
		if err != nil {
			return nil, err
		}
		return tagged.Interface(), nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}
	raw, err := s.proto.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// decode 解析文档，返回值与文档中的类型标签（无标签时为空）。
func (s *Serializer) decode(data []byte, expected reflect.Type) (any, string, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(data) == 0 {
		return nil, "", nil
	}
	if data[0] != '{' {
		return s.decodeFallback(data, expected)
	}

	var members map[string]json.RawMessage
	if err := s.api.Unmarshal(data, &members); err != nil {
		return nil, "", merr.WrapErrSerdeFormat(err)
	}
	rawTag, ok := members[typeKey]
	if !ok {
		return s.decodeFallback(data, expected)
	}

	var tag string
	if err := s.api.Unmarshal(rawTag, &tag); err != nil || tag == "" {
		return nil, "", merr.WrapErrSerdeFormatMsg("%s must be a non-empty string, got %s", typeKey, rawTag)
	}
	for k := range members {
		if k != typeKey && k != valueKey {
			return nil, tag, merr.WrapErrSerdeFormatMsg("unexpected member %q in envelope of %s", k, tag)
		}
	}
	v, err := s.decodeEnvelope(tag, members[valueKey], expected)
	return v, tag, err
}

func (s *Serializer) decodeEnvelope(tag string, raw json.RawMessage, expected reflect.Type) (any, error) {
	if tag == typereg.TagNil {
		return nil, nil
	}

	t, err := s.registry.Resolve(tag)
	if err != nil {
		return nil, err
	}
	if expected != nil && !t.AssignableTo(expected) {
		return nil, merr.WrapErrSerdeTypeResolution(tag, "not assignable to "+expected.String())
	}
	if isProtoMessage(t) {
		return s.decodeProto(t, raw)
	}

	ptr, err := s.registry.New(tag)
	if err != nil {
		return nil, err
	}
	if !isNull(raw) {
		if err := s.payload.Unmarshal(raw, ptr.Interface()); err != nil {
			return nil, decodeError(err)
		}
	}
	if err := s.resolveNested(ptr.Elem()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// decodeFallback 处理不带 $type 的文档，直接按 expected 解码。
func (s *Serializer) decodeFallback(data []byte, expected reflect.Type) (any, string, error) {
	if expected == nil {
		expected = anyType
	}
	if isProtoMessage(expected) {
		v, err := s.decodeProto(expected, data)
		return v, "", err
	}
	ptr := reflect.New(expected)
	if err := s.payload.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, "", decodeError(err)
	}
	if err := s.resolveNested(ptr.Elem()); err != nil {
		return nil, "", err
	}
	return ptr.Elem().Interface(), "", nil
}

func (s *Serializer) decodeProto(t reflect.Type, raw json.RawMessage) (any, error) {
	if isNull(raw) {
		return reflect.Zero(t).Interface(), nil
	}
	zero := reflect.Zero(t).Interface().(proto.Message)
	msg := zero.ProtoReflect().Type().New().Interface()
	if err := s.proto.Unmarshal(raw, msg); err != nil {
		return nil, merr.WrapErrSerdeFormat(err)
	}
	return msg, nil
}

func isProtoMessage(t reflect.Type) bool {
	return t.Kind() == reflect.Pointer && t.Implements(protoMessageType)
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// encodeError 保留嵌套信封已分类的错误，其余引擎错误归为 ErrSerdeEncode。
func encodeError(tag string, err error) error {
	if merr.Kind(err) != merr.KindUnknown {
		return err
	}
	return merr.WrapErrSerdeEncode(tag, err)
}

// decodeError 保留嵌套信封已分类的错误，其余引擎错误归为 ErrSerdeFormat。
func decodeError(err error) error {
	if merr.Kind(err) != merr.KindUnknown {
		return err
	}
	return merr.WrapErrSerdeFormat(err)
}
