package serializer

import (
	"github.com/lk2023060901/danmu-garden-serde/internal/json"
)

// JSONSerializer 使用 internal/json 的引擎（sonic 或 json-iterator）编解码。
type JSONSerializer struct {
	API json.API
}

// 编译期断言：确保 JSONSerializer 实现了 Serializer 接口。
var _ Serializer = (*JSONSerializer)(nil)

// NewJSONSerializer 按引擎配置创建 JSONSerializer。
func NewJSONSerializer(opts json.Options) *JSONSerializer {
	return &JSONSerializer{API: json.New(opts)}
}

func (s *JSONSerializer) api() json.API {
	if s == nil || s.API == nil {
		return json.New(json.Options{})
	}
	return s.API
}

func (s *JSONSerializer) Marshal(v any) ([]byte, error) {
	return s.api().Marshal(v)
}

func (s *JSONSerializer) Unmarshal(data []byte, v any) error {
	return s.api().Unmarshal(data, v)
}

func (s *JSONSerializer) Name() string {
	return "json"
}
