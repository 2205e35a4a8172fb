package serde

import (
	"encoding"
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-garden-serde/internal/json"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// maxNestedDepth 限制嵌套值的遍历深度，循环引用在到达上限时报错。
const maxNestedDepth = 512

var (
	jsonMarshalerType   = reflect.TypeFor[interface{ MarshalJSON() ([]byte, error) }]()
	jsonUnmarshalerType = reflect.TypeFor[interface{ UnmarshalJSON([]byte) error }]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()

	// slotCache 缓存类型是否可达 any 槽位，键为 reflect.Type。
	slotCache sync.Map
)

// nested 是 any 槽位中的非 JSON 原生值，编码为使用同一 Serializer 的嵌套信封。
type nested struct {
	s     *Serializer
	v     any
	depth int
}

func (n nested) MarshalJSON() ([]byte, error) {
	data, _, err := n.s.encodeAt(n.v, FormattingNone, n.depth)
	return data, err
}

// hasAnySlot 判断从 t 出发能否到达空接口槽位（切片元素、数组元素、map 值或导出字段）。
// 自带 JSON 编解码逻辑的类型与 protobuf 消息不展开。
func hasAnySlot(t reflect.Type) bool {
	if v, ok := slotCache.Load(t); ok {
		return v.(bool)
	}
	found := scanSlots(t, make(map[reflect.Type]struct{}))
	slotCache.Store(t, found)
	return found
}

func scanSlots(t reflect.Type, seen map[reflect.Type]struct{}) bool {
	if _, ok := seen[t]; ok {
		return false
	}
	seen[t] = struct{}{}
	if selfCoded(t) {
		return false
	}
	switch t.Kind() {
	case reflect.Interface:
		return t.NumMethod() == 0
	case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
		return scanSlots(t.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if f := t.Field(i); f.IsExported() && scanSlots(f.Type, seen) {
				return true
			}
		}
	}
	return false
}

func selfCoded(t reflect.Type) bool {
	if t.Kind() == reflect.Interface {
		return false
	}
	pt := reflect.PointerTo(t)
	for _, it := range []reflect.Type{jsonMarshalerType, jsonUnmarshalerType, textMarshalerType, protoMessageType} {
		if t.Implements(it) || pt.Implements(it) {
			return true
		}
	}
	return false
}

// jsonNative 判断值放入 any 后经 JSON 往返是否仍为同一类型。
func jsonNative(t reflect.Type) bool {
	switch t {
	case reflect.TypeFor[bool](), reflect.TypeFor[string](), reflect.TypeFor[float64]():
		return true
	}
	return false
}

// tagNested 返回 v 的副本，其中 any 槽位里的非原生值被替换为嵌套信封。
// 不含 any 槽位的值原样返回。
func (s *Serializer) tagNested(v reflect.Value, depth int) (reflect.Value, error) {
	if !v.IsValid() || !hasAnySlot(v.Type()) {
		return v, nil
	}
	if depth > maxNestedDepth {
		return v, merr.WrapErrSerdeEncode(v.Type().String(), errors.Newf("nesting deeper than %d", maxNestedDepth))
	}
	depth++

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v, nil
		}
		elem := v.Elem()
		switch {
		case jsonNative(elem.Type()):
			return v, nil
		case elem.Type() == reflect.TypeFor[[]any](), elem.Type() == reflect.TypeFor[map[string]any]():
			return s.tagNested(elem, depth)
		}
		if _, err := s.registry.TagOf(elem.Type()); err != nil {
			return v, err
		}
		return reflect.ValueOf(nested{s: s, v: elem.Interface(), depth: depth}), nil

	case reflect.Pointer:
		if v.IsNil() {
			return v, nil
		}
		inner, err := s.tagNested(v.Elem(), depth)
		if err != nil {
			return v, err
		}
		p := reflect.New(v.Type().Elem())
		p.Elem().Set(inner)
		return p, nil

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			f, err := s.tagNested(v.Field(i), depth)
			if err != nil {
				return v, err
			}
			out.Field(i).Set(f)
		}
		return out, nil

	case reflect.Slice:
		if v.IsNil() {
			return v, nil
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		if err := s.tagElems(v, out, depth); err != nil {
			return v, err
		}
		return out, nil

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		if err := s.tagElems(v, out, depth); err != nil {
			return v, err
		}
		return out, nil

	case reflect.Map:
		if v.IsNil() {
			return v, nil
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			e, err := s.tagNested(iter.Value(), depth)
			if err != nil {
				return v, err
			}
			out.SetMapIndex(iter.Key(), e)
		}
		return out, nil
	}
	return v, nil
}

func (s *Serializer) tagElems(src, dst reflect.Value, depth int) error {
	for i := 0; i < src.Len(); i++ {
		e, err := s.tagNested(src.Index(i), depth)
		if err != nil {
			return err
		}
		dst.Index(i).Set(e)
	}
	return nil
}

// resolveNested 就地还原 v 中 any 槽位里的嵌套信封，并把 json.Number 还原为 float64。
// v 必须可寻址。
func (s *Serializer) resolveNested(v reflect.Value) error {
	if !hasAnySlot(v.Type()) {
		return nil
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		switch x := v.Interface().(type) {
		case json.Number:
			f, err := x.Float64()
			if err != nil {
				return merr.WrapErrSerdeFormat(err)
			}
			v.Set(reflect.ValueOf(f))
		case map[string]any:
			if _, ok := x[typeKey]; ok {
				val, err := s.decodeNestedEnvelope(x)
				if err != nil {
					return err
				}
				if val == nil {
					v.Set(reflect.Zero(v.Type()))
				} else {
					v.Set(reflect.ValueOf(val))
				}
				return nil
			}
			return s.resolveNested(reflect.ValueOf(x))
		case []any:
			return s.resolveNested(reflect.ValueOf(x))
		}

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return s.resolveNested(v.Elem())

	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			if err := s.resolveNested(v.Field(i)); err != nil {
				return err
			}
		}

	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := s.resolveNested(v.Index(i)); err != nil {
				return err
			}
		}

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		iter := v.MapRange()
		for iter.Next() {
			e := reflect.New(v.Type().Elem()).Elem()
			e.Set(iter.Value())
			if err := s.resolveNested(e); err != nil {
				return err
			}
			v.SetMapIndex(iter.Key(), e)
		}
	}
	return nil
}

// decodeNestedEnvelope 解码已被引擎解析为 map 的嵌套信封，校验规则与顶层文档相同。
func (s *Serializer) decodeNestedEnvelope(m map[string]any) (any, error) {
	tag, ok := m[typeKey].(string)
	if !ok || tag == "" {
		return nil, merr.WrapErrSerdeFormatMsg("nested %s must be a non-empty string", typeKey)
	}
	for k := range m {
		if k != typeKey && k != valueKey {
			return nil, merr.WrapErrSerdeFormatMsg("unexpected member %q in envelope of %s", k, tag)
		}
	}
	var raw json.RawMessage
	if value, ok := m[valueKey]; ok {
		data, err := s.api.Marshal(value)
		if err != nil {
			return nil, merr.WrapErrSerdeFormat(err)
		}
		raw = data
	}
	return s.decodeEnvelope(tag, raw, nil)
}
