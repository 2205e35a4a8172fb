package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameOperation = "op"
	FieldNameTypeTag   = "type"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldOperation 返回一个包含操作名（encode/decode/compress 等）的 zap 字段。
func FieldOperation(op string) zap.Field {
	return zap.String(FieldNameOperation, op)
}

// FieldTypeTag 返回一个包含类型标签的 zap 字段。
func FieldTypeTag(tag string) zap.Field {
	return zap.String(FieldNameTypeTag, tag)
}
