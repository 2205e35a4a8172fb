// Package typereg 维护“类型标签 <-> Go 类型”的显式注册表。
//
// 序列化时用 TagOf 为值的具体类型生成稳定标签，反序列化时用 Resolve/New
// 由标签还原类型并构造实例。命名类型必须预先注册；指针、切片、数组与 map
// 由标签语法组合得到，无需注册；protobuf 消息经 protoregistry 解析。
package typereg

import (
	"reflect"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/samber/lo"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// entry 为一条注册记录。
type entry struct {
	name    string
	typ     reflect.Type
	factory func() reflect.Value
}

// Registry 是并发安全的类型注册表。零值不可用，请使用 New/NewWithBuiltins。
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*entry
	byType map[reflect.Type]*entry
}

// New 创建一个空注册表。
func New() *Registry {
	return &Registry{
		byName: make(map[string]*entry),
		byType: make(map[reflect.Type]*entry),
	}
}

// NewWithBuiltins 创建一个预置了内建标量类型的注册表。
func NewWithBuiltins() *Registry {
	r := New()
	registerBuiltins(r)
	return r
}

var defaultRegistry = NewWithBuiltins()

// Default 返回进程级默认注册表。
func Default() *Registry {
	return defaultRegistry
}

// Register 在默认注册表中注册类型，见 (*Registry).Register。
func Register(name string, sample any) error {
	return defaultRegistry.Register(name, sample)
}

// MustRegister 与 Register 相同，失败时 panic，适合在 init 中使用。
func MustRegister(name string, sample any) {
	if err := Register(name, sample); err != nil {
		panic(err)
	}
}

// Register 以 sample 的类型注册 name。sample 为指针时注册其元素类型，
// 因此 Register("app.Order", &Order{}) 与 Register("app.Order", Order{}) 等价。
func (r *Registry) Register(name string, sample any) error {
	if sample == nil {
		return merr.WrapErrParameterMissing("sample", "register "+name)
	}
	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return r.RegisterType(name, t)
}

// RegisterType 直接注册 reflect.Type。
func (r *Registry) RegisterType(name string, t reflect.Type) error {
	if t == nil {
		return merr.WrapErrParameterMissing("type", "register "+name)
	}
	return r.add(name, t, func() reflect.Value { return reflect.New(t) })
}

// RegisterFactory 注册 T 并指定构造函数，反序列化时在工厂返回的实例上填充字段，
// 可用于为缺省字段提供默认值。
func RegisterFactory[T any](r *Registry, name string, factory func() *T) error {
	if factory == nil {
		return merr.WrapErrParameterMissing("factory", "register "+name)
	}
	t := reflect.TypeFor[T]()
	return r.add(name, t, func() reflect.Value {
		if v := factory(); v != nil {
			return reflect.ValueOf(v)
		}
		return reflect.New(t)
	})
}

func (r *Registry) add(name string, t reflect.Type, factory func() reflect.Value) error {
	if err := validateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byName[name]; ok {
		if e.typ == t {
			return nil
		}
		return merr.WrapErrParameterInvalidMsg("tag %q already registered for %s", name, e.typ)
	}
	if e, ok := r.byType[t]; ok {
		return merr.WrapErrParameterInvalidMsg("type %s already registered as %q", t, e.name)
	}
	e := &entry{name: name, typ: t, factory: factory}
	r.byName[name] = e
	r.byType[t] = e
	return nil
}

func validateName(name string) error {
	switch {
	case name == "":
		return merr.WrapErrParameterMissing("name", "register type")
	case name == TagNil:
		return merr.WrapErrParameterInvalidMsg("tag %q is reserved", name)
	case strings.HasPrefix(name, protoPrefix):
		return merr.WrapErrParameterInvalidMsg("tag %q uses the reserved %q prefix", name, protoPrefix)
	case strings.ContainsAny(name, "*[]"):
		return merr.WrapErrParameterInvalidMsg("tag %q must not contain '*', '[' or ']'", name)
	case strings.IndexFunc(name, unicode.IsSpace) >= 0:
		return merr.WrapErrParameterInvalidMsg("tag %q must not contain whitespace", name)
	}
	return nil
}

func (r *Registry) lookupType(t reflect.Type) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byType[t]
	return e, ok
}

func (r *Registry) lookupName(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byName[name]; ok {
		return e, true
	}
	if alias, ok := aliases[name]; ok {
		e, ok := r.byType[alias]
		return e, ok
	}
	return nil, false
}

// Names 返回已注册的标签，按字典序排列。
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := lo.Keys(r.byName)
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Len 返回已注册的类型数量。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
