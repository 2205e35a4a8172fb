package viper

import (
	"path/filepath"
	"strings"

	spfviper "github.com/spf13/viper"
)

// EnvPrefix 为环境变量覆盖配置时使用的前缀，例如 SERDE_SERDE_ENGINE 覆盖 serde.engine。
const EnvPrefix = "SERDE"

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config，已开启带 EnvPrefix 前缀的环境变量覆盖。
// 在调用 Unmarshal/UnmarshalKey 之前通常需要先调用 LoadFile 加载配置文件。
func New() *Config {
	v := spfviper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &Config{
		v: v,
	}
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中。
// 文件类型通过扩展名（.yaml/.yml/.json）推断。
func (c *Config) LoadFile(path string) error {
	if c.v == nil {
		c.v = spfviper.New()
	}

	c.v.SetConfigFile(path)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		c.v.SetConfigType("yaml")
	case ".json":
		c.v.SetConfigType("json")
	default:
		// 让 viper 自行推断类型，或在读取时返回清晰的错误信息。
	}

	return c.v.ReadInConfig()
}

// SetDefault 为 key 设置默认值，优先级低于配置文件与环境变量。
func (c *Config) SetDefault(key string, value any) {
	if c.v == nil {
		c.v = spfviper.New()
	}
	c.v.SetDefault(key, value)
}

// IsSet 判断 key 是否在任一来源中被设置。
func (c *Config) IsSet(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.IsSet(key)
}

// GetString 返回 key 对应的字符串值。
func (c *Config) GetString(key string) string {
	if c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst any) error {
	if c.v == nil {
		return nil
	}
	return c.v.Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) UnmarshalKey(key string, dst any) error {
	if c.v == nil {
		return nil
	}
	return c.v.UnmarshalKey(key, dst)
}
