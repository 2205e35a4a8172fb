package typereg

import (
	"reflect"
	"time"
)

// 内建标签与 Go 的类型写法保持一致。
var builtins = map[string]reflect.Type{
	"bool":          reflect.TypeFor[bool](),
	"int":           reflect.TypeFor[int](),
	"int8":          reflect.TypeFor[int8](),
	"int16":         reflect.TypeFor[int16](),
	"int32":         reflect.TypeFor[int32](),
	"int64":         reflect.TypeFor[int64](),
	"uint":          reflect.TypeFor[uint](),
	"uint8":         reflect.TypeFor[uint8](),
	"uint16":        reflect.TypeFor[uint16](),
	"uint32":        reflect.TypeFor[uint32](),
	"uint64":        reflect.TypeFor[uint64](),
	"float32":       reflect.TypeFor[float32](),
	"float64":       reflect.TypeFor[float64](),
	"string":        reflect.TypeFor[string](),
	"any":           reflect.TypeFor[any](),
	"time.Time":     reflect.TypeFor[time.Time](),
	"time.Duration": reflect.TypeFor[time.Duration](),
}

// aliases 只用于解析，TagOf 始终输出规范名称。
var aliases = map[string]reflect.Type{
	"byte":        reflect.TypeFor[byte](),
	"rune":        reflect.TypeFor[rune](),
	"interface{}": reflect.TypeFor[any](),
}

func registerBuiltins(r *Registry) {
	for name, t := range builtins {
		if err := r.RegisterType(name, t); err != nil {
			panic(err)
		}
	}
}
