package serde

import (
	"strings"

	"github.com/lk2023060901/danmu-garden-serde/internal/compressor"
	"github.com/lk2023060901/danmu-garden-serde/internal/json"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/viper"
)

// Formatting 控制文本输出是否缩进。
type Formatting string

const (
	FormattingNone     Formatting = "none"
	FormattingIndented Formatting = "indented"
)

// TypeNameHandling 描述类型信息的嵌入策略。
//
// 该字段仅为兼容配置文件而保留：Serializer 始终按 TypeNameAll 嵌入类型信息，
// 请求其他取值只会在构造时记录一条日志。
type TypeNameHandling string

const (
	TypeNameNone    TypeNameHandling = "none"
	TypeNameObjects TypeNameHandling = "objects"
	TypeNameAll     TypeNameHandling = "all"
)

const defaultIndent = "  "

// Settings 为 Serializer 的可选配置，可从 yaml/json 的 serde 小节读取。
type Settings struct {
	Formatting       Formatting        `json:"formatting" yaml:"formatting" mapstructure:"formatting"`
	Indent           string            `json:"indent" yaml:"indent" mapstructure:"indent"`
	EscapeHTML       bool              `json:"escape-html" yaml:"escape-html" mapstructure:"escape-html"`
	SortMapKeys      bool              `json:"sort-map-keys" yaml:"sort-map-keys" mapstructure:"sort-map-keys"`
	Engine           string            `json:"engine" yaml:"engine" mapstructure:"engine"`
	TypeNameHandling TypeNameHandling  `json:"type-name-handling" yaml:"type-name-handling" mapstructure:"type-name-handling"`
	Compression      compressor.Config `json:"compression" yaml:"compression" mapstructure:"compression"`
}

// DefaultSettings 返回默认配置：紧凑输出、sonic 引擎、gzip optimal 压缩。
func DefaultSettings() *Settings {
	return &Settings{
		Formatting:       FormattingNone,
		Indent:           defaultIndent,
		Engine:           json.EngineSonic,
		TypeNameHandling: TypeNameAll,
		Compression:      compressor.DefaultConfig(),
	}
}

// LoadSettings 从 YAML/JSON 文件的 serde 小节读取配置，未出现的字段保持默认值。
func LoadSettings(path string) (*Settings, error) {
	cfg := viper.New()
	if err := cfg.LoadFile(path); err != nil {
		return nil, err
	}
	return SettingsFromConfig(cfg)
}

// SettingsFromConfig 从已加载的配置中读取 serde 小节。
func SettingsFromConfig(cfg *viper.Config) (*Settings, error) {
	s := DefaultSettings()
	if cfg == nil {
		return s, nil
	}
	if err := cfg.UnmarshalKey("serde", s); err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("invalid serde settings: %s", err.Error())
	}
	return s, nil
}

// config 是构造时由 Settings 计算出的不可变配置，构造后不再修改。
type config struct {
	formatting  Formatting
	indent      string
	escapeHTML  bool
	sortMapKeys bool
	engine      string
	compression compressor.Config

	// typeNames 固定为 TypeNameAll，与 Settings 中的取值无关。
	typeNames TypeNameHandling
	// requested 记录调用方请求的策略，仅用于日志。
	requested TypeNameHandling
}

func newConfig(s *Settings) (config, error) {
	cfg := config{
		formatting:  Formatting(strings.ToLower(string(s.Formatting))),
		indent:      s.Indent,
		escapeHTML:  s.EscapeHTML,
		sortMapKeys: s.SortMapKeys,
		engine:      strings.ToLower(s.Engine),
		compression: s.Compression,
		typeNames:   TypeNameAll,
		requested:   TypeNameHandling(strings.ToLower(string(s.TypeNameHandling))),
	}

	switch cfg.formatting {
	case "":
		cfg.formatting = FormattingNone
	case FormattingNone, FormattingIndented:
	default:
		return config{}, merr.WrapErrParameterInvalidMsg("unknown formatting %q", s.Formatting)
	}
	if cfg.indent == "" {
		cfg.indent = defaultIndent
	}
	if strings.TrimSpace(cfg.indent) != "" {
		return config{}, merr.WrapErrParameterInvalidMsg("indent must be whitespace, got %q", s.Indent)
	}

	if cfg.engine == "" {
		cfg.engine = json.EngineSonic
	}
	if !json.IsKnownEngine(cfg.engine) {
		return config{}, merr.WrapErrParameterInvalidMsg("unknown json engine %q", s.Engine)
	}

	switch cfg.requested {
	case "", TypeNameNone, TypeNameObjects, TypeNameAll:
	default:
		return config{}, merr.WrapErrParameterInvalidMsg("unknown type name handling %q", s.TypeNameHandling)
	}
	return cfg, nil
}

// overridden 表示调用方请求了较弱的类型策略而被强制覆盖。
func (c config) overridden() bool {
	return c.requested != "" && c.requested != c.typeNames
}

// settings 将生效配置还原为 Settings，TypeNameHandling 为实际生效的值。
func (c config) settings() Settings {
	return Settings{
		Formatting:       c.formatting,
		Indent:           c.indent,
		EscapeHTML:       c.escapeHTML,
		SortMapKeys:      c.sortMapKeys,
		Engine:           c.engine,
		TypeNameHandling: c.typeNames,
		Compression:      c.compression,
	}
}
