package logger

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationConfig controls lumberjack rotation for file outputs
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable" toml:"enable"`
	Filename   string `mapstructure:"filename" toml:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" toml:"compress"`
}

// Config describes where and how a root Logger writes
type Config struct {
	Level    string         `mapstructure:"level" toml:"level"`
	Format   string         `mapstructure:"format" toml:"format"`
	Outputs  []string       `mapstructure:"outputs" toml:"outputs"`
	Prefix   string         `mapstructure:"prefix" toml:"prefix"`
	Rotation RotationConfig `mapstructure:"rotation" toml:"rotation"`
}

// DefaultConfig logs at info level to stderr
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Format:  "console",
		Outputs: []string{"stderr"},
	}
}

// FromConfig builds a root Logger from c. Outputs may be "stdout", "stderr" or file
// paths; file outputs are rotated when c.Rotation.Enable is set.
func FromConfig(c Config) (Logger, error) {
	level, err := ParseLogLevel(c.Level)
	if err != nil {
		return nil, err
	}
	state := &levelState{zl: zap.NewAtomicLevel()}
	state.set(level)
	encoder := newEncoder(strings.ToLower(c.Format))

	outputs := c.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	var cores []zapcore.Core
	for _, out := range outputs {
		ws, err := openOutput(out, c)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, ws, state.zl))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel))
	return newZapLogger(z, c.Prefix, state), nil
}

func openOutput(out string, c Config) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(out) {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	if c.Rotation.Enable {
		filename := out
		if strings.TrimSpace(c.Rotation.Filename) != "" {
			filename = c.Rotation.Filename
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   filename,
			MaxSize:    max(c.Rotation.MaxSizeMB, 10),
			MaxBackups: max(c.Rotation.MaxBackups, 1),
			MaxAge:     max(c.Rotation.MaxAgeDays, 7),
			Compress:   c.Rotation.Compress,
		}), nil
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(f), nil
}
