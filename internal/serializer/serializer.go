package serializer

// Serializer 抽象了“负载对象 <-> JSON 字节”的编解码能力。
//
// 信封（$type/$value）之内的负载由具体实现负责：普通 Go 值走 JSON 引擎，
// protobuf 消息走 protojson，以保留 oneof/Any/枚举名等 proto 语义。
type Serializer interface {
	// Marshal 将对象编码为 JSON 字节。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将 JSON 字节解码到目标对象，v 必须为非 nil 指针（或 proto.Message）。
	Unmarshal(data []byte, v any) error

	// Name 返回实现名称，用于日志与指标。
	Name() string
}
