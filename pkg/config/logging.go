package config

import (
	"fmt"
	"os"
	"strings"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig selects the log encoder and minimum level
type LoggingConfig struct {
	Format string `yaml:"logFormat" env:"LOG_FORMAT" env-default:"console"`
	Level  string `yaml:"logLevel" env:"LOG_LEVEL" env-default:"info"`
}

var logFormats = map[string]bool{"json": true, "console": true, "logfmt": true}

// Validate normalizes format and level to lower case and rejects unknown values
func (c *LoggingConfig) Validate() error {
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if !logFormats[c.Format] {
		return fmt.Errorf("logFormat must be 'json', 'console', or 'logfmt', got '%s'", c.Format)
	}

	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	if _, err := c.level(); err != nil {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error, got '%s'", c.Level)
	}

	return nil
}

func (c *LoggingConfig) level() (zapcore.Level, error) {
	switch c.Level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown level %q", c.Level)
}

// NewLogger builds a zap logger named after the service
func (c *LoggingConfig) NewLogger(service string) (*zap.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}

	var logger *zap.Logger
	switch c.Format {
	case "logfmt":
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "ts"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

		core := zapcore.NewCore(
			zaplogfmt.NewEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		)
		logger = zap.New(core, zap.AddCaller())
	case "json":
		zapConfig := zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(level)
		if logger, err = zapConfig.Build(); err != nil {
			return nil, fmt.Errorf("failed to build json logger: %w", err)
		}
	default:
		zapConfig := zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(level)
		if logger, err = zapConfig.Build(); err != nil {
			return nil, fmt.Errorf("failed to build console logger: %w", err)
		}
	}

	if service != "" {
		logger = logger.Named(service)
	}
	return logger, nil
}
