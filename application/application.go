package application

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	zlog "github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde"
	zviper "github.com/lk2023060901/danmu-garden-serde/pkg/util/viper"
)

const defaultConfigPath = "./config.yaml"

// Application is the runtime container for a serde program.
// It owns configuration, loggers and the configured Serializer.
type Application struct {
	cfg        *zviper.Config
	loggers    map[string]*zlog.MLogger
	serializer *serde.Serializer
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Run parses os.Args and initializes the application, see RunWithArgs.
func (a *Application) Run() error {
	return a.RunWithArgs(os.Args[1:])
}

// RunWithArgs loads the configuration file using the following priority:
//  1. Default: ./config.yaml (optional, skipped when absent)
//  2. Env: SERDE_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
//
// It then configures logging, registers metrics and builds the Serializer
// from the "serde" section.
func (a *Application) RunWithArgs(args []string) error {
	cfg, err := a.loadConfig(args)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}
	metrics.RegisterSerdeMetrics(metrics.GetRegisterer())

	return a.initSerializer()
}

// Config returns the loaded configuration.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Serializer returns the Serializer built by Run, nil before Run succeeds.
func (a *Application) Serializer() *serde.Serializer {
	return a.serializer
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.With(zlog.FieldModule(name))
}

// Close releases the Serializer and flushes loggers.
func (a *Application) Close() error {
	var err error
	if a.serializer != nil {
		err = a.serializer.Close()
	}
	for _, lg := range a.loggers {
		_ = lg.Sync()
	}
	return err
}

// loadConfig resolves config file path and loads it via viper wrapper.
func (a *Application) loadConfig(args []string) (*zviper.Config, error) {
	configPath := defaultConfigPath
	explicit := false

	if envPath := os.Getenv("SERDE_CONFIG_FILE_PATH"); envPath != "" {
		configPath = envPath
		explicit = true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			explicit = true
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			val := strings.TrimPrefix(arg, "--config=")
			if val != "" {
				configPath = val
				explicit = true
			}
			continue
		}
	}

	cfg := zviper.New()
	if !explicit {
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
	}
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}

	return cfg, nil
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	return a.initModuleLoggersFromConfig()
}

// initGlobalLoggerFromEnv configures the process-wide logger based on SERDE_LOG_* env vars.
//
//   - SERDE_LOG_ENABLE: "1"/"true" to enable outputs; others treated as disabled.
//   - SERDE_LOG_LEVEL: log level (default "info").
//   - SERDE_LOG_STDOUT: whether to log to stdout (default false).
//   - SERDE_LOG_FILE_DIR: log directory.
//   - SERDE_LOG_FILE: log file name (empty means no file).
//   - SERDE_LOG_FORMAT: log format ("text" or "json", default "text").
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := zlog.GetenvBool("SERDE_LOG_ENABLE", false)

	cfg := &zlog.Config{
		Level:  getenvDefault("SERDE_LOG_LEVEL", "info"),
		Format: getenvDefault("SERDE_LOG_FORMAT", zlog.FormatText),
		Stdout: zlog.GetenvBool("SERDE_LOG_STDOUT", false),
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("SERDE_LOG_FILE_DIR", ""),
			Filename: getenvDefault("SERDE_LOG_FILE", ""),
		},
	}

	// When not enabled, direct all outputs to a discarded sink.
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig creates named loggers from config under "logging" key.
//
// Example:
//
//	logging:
//	  serde:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: serde.log
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil {
		return nil
	}

	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}

	return nil
}

// initSerializer builds the Serializer from the "serde" config section.
func (a *Application) initSerializer() error {
	settings, err := serde.SettingsFromConfig(a.cfg)
	if err != nil {
		return err
	}
	logger := a.Logger("serde")
	s, err := serde.New(serde.Options{Settings: settings, Logger: logger})
	if err != nil {
		return fmt.Errorf("init serializer: %w", err)
	}
	a.serializer = s
	logger.Info("serializer ready",
		zap.String("engine", settings.Engine),
		zap.String("compression", settings.Compression.Algorithm))
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}
