package serializer

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// ProtoSerializer 使用 protojson 编解码 protobuf 消息。
//
// 注意：传入/传出的对象必须实现 proto.Message。
type ProtoSerializer struct {
	MarshalOptions   protojson.MarshalOptions
	UnmarshalOptions protojson.UnmarshalOptions
}

// 编译期断言：确保 ProtoSerializer 实现了 Serializer 接口。
var _ Serializer = (*ProtoSerializer)(nil)

func (s ProtoSerializer) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("serializer: ProtoSerializer requires proto.Message, got %T", v)
	}
	return s.MarshalOptions.Marshal(msg)
}

func (s ProtoSerializer) Unmarshal(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("serializer: ProtoSerializer requires proto.Message, got %T", v)
	}
	return s.UnmarshalOptions.Unmarshal(data, msg)
}

func (s ProtoSerializer) Name() string {
	return "protojson"
}
