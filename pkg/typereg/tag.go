package typereg

import (
	"reflect"
	"strconv"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

const (
	// TagNil 表示无类型的 nil 值。
	TagNil = "nil"

	protoPrefix = "proto:"
)

var protoMessageType = reflect.TypeFor[proto.Message]()

// TagOf 在默认注册表上计算类型标签。
func TagOf(t reflect.Type) (string, error) {
	return defaultRegistry.TagOf(t)
}

// Resolve 在默认注册表上解析类型标签。
func Resolve(tag string) (reflect.Type, error) {
	return defaultRegistry.Resolve(tag)
}

// TagOf 返回 t 的类型标签。
//
// 规则依次为：nil -> "nil"；已注册类型 -> 注册名；protobuf 消息指针 ->
// "proto:<全名>"；指针/切片/数组/map -> 组合语法；其余类型返回
// merr.ErrSerdeTypeResolution。
func (r *Registry) TagOf(t reflect.Type) (string, error) {
	if t == nil {
		return TagNil, nil
	}
	if e, ok := r.lookupType(t); ok {
		return e.name, nil
	}
	if t.Kind() == reflect.Pointer && t.Implements(protoMessageType) {
		msg := reflect.Zero(t).Interface().(proto.Message)
		return protoPrefix + string(msg.ProtoReflect().Descriptor().FullName()), nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem, err := r.TagOf(t.Elem())
		if err != nil {
			return "", err
		}
		return "*" + elem, nil
	case reflect.Slice:
		elem, err := r.TagOf(t.Elem())
		if err != nil {
			return "", err
		}
		return "[]" + elem, nil
	case reflect.Array:
		elem, err := r.TagOf(t.Elem())
		if err != nil {
			return "", err
		}
		return "[" + strconv.Itoa(t.Len()) + "]" + elem, nil
	case reflect.Map:
		key, err := r.TagOf(t.Key())
		if err != nil {
			return "", err
		}
		elem, err := r.TagOf(t.Elem())
		if err != nil {
			return "", err
		}
		return "map[" + key + "]" + elem, nil
	}
	return "", merr.WrapErrSerdeTypeResolution(t.String(), "type not registered")
}

// Resolve 将类型标签解析为 reflect.Type。
//
// 未注册的名称、非法的 map 键以及无法解析的语法均返回 merr.ErrSerdeTypeResolution。
// "nil" 没有对应类型，同样返回错误，调用方应先行判断。
func (r *Registry) Resolve(tag string) (reflect.Type, error) {
	t, err := r.resolve(tag)
	if err != nil {
		return nil, merr.WrapErrSerdeTypeResolution(tag, err.Error())
	}
	return t, nil
}

// resolveError 只携带原因，由 Resolve 统一包装成带完整标签的错误。
type resolveError string

func (e resolveError) Error() string { return string(e) }

func (r *Registry) resolve(tag string) (reflect.Type, error) {
	switch {
	case tag == "":
		return nil, resolveError("empty type tag")
	case tag == TagNil:
		return nil, resolveError("nil has no type")
	case strings.HasPrefix(tag, protoPrefix):
		return resolveProto(tag[len(protoPrefix):])
	case strings.HasPrefix(tag, "*"):
		elem, err := r.resolve(tag[1:])
		if err != nil {
			return nil, err
		}
		return reflect.PointerTo(elem), nil
	case strings.HasPrefix(tag, "[]"):
		elem, err := r.resolve(tag[2:])
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil
	case strings.HasPrefix(tag, "["):
		end := strings.IndexByte(tag, ']')
		if end < 0 {
			return nil, resolveError("unterminated array length in " + strconv.Quote(tag))
		}
		n, err := strconv.Atoi(tag[1:end])
		if err != nil || n < 0 {
			return nil, resolveError("invalid array length in " + strconv.Quote(tag))
		}
		elem, err := r.resolve(tag[end+1:])
		if err != nil {
			return nil, err
		}
		return reflect.ArrayOf(n, elem), nil
	case strings.HasPrefix(tag, "map["):
		return r.resolveMap(tag)
	}

	if e, ok := r.lookupName(tag); ok {
		return e.typ, nil
	}
	return nil, resolveError("type " + strconv.Quote(tag) + " not registered")
}

// resolveMap 解析 map[K]V，K 自身可以包含方括号（例如 map[[2]int]string）。
func (r *Registry) resolveMap(tag string) (reflect.Type, error) {
	depth := 1
	for i := len("map["); i < len(tag); i++ {
		switch tag[i] {
		case '[':
			depth++
		case ']':
			depth--
		}
		if depth > 0 {
			continue
		}
		key, err := r.resolve(tag[len("map["):i])
		if err != nil {
			return nil, err
		}
		if !key.Comparable() {
			return nil, resolveError("invalid map key type " + key.String())
		}
		elem, err := r.resolve(tag[i+1:])
		if err != nil {
			return nil, err
		}
		return reflect.MapOf(key, elem), nil
	}
	return nil, resolveError("unterminated map key in " + strconv.Quote(tag))
}

func resolveProto(name string) (reflect.Type, error) {
	mt, err := protoregistry.GlobalTypes.FindMessageByName(protoreflect.FullName(name))
	if err != nil {
		return nil, resolveError("protobuf message " + strconv.Quote(name) + ": " + err.Error())
	}
	return reflect.TypeOf(mt.Zero().Interface()), nil
}

// New 按标签构造一个新实例，返回指向它的指针（reflect.Value，Kind 为 Pointer）。
//
// 已注册的命名类型使用其工厂函数；组合类型与 protobuf 消息使用 reflect.New。
func (r *Registry) New(tag string) (reflect.Value, error) {
	if e, ok := r.lookupName(tag); ok {
		return e.factory(), nil
	}
	t, err := r.Resolve(tag)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.New(t), nil
}
