// Package logger builds the zap logger shared by the server and the reaper.
//
// Environment:
//
//	LOG_LEVEL=debug|info|warn|error (default info)
//	LOG_FILE=./logs/app.log, or LOG_DIR=./logs to write logs/app.log
//	LOG_MAX_SIZE_MB=100 LOG_MAX_BACKUPS=7 LOG_MAX_DAYS=14 LOG_COMPRESS=true
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log entries go.  The zero value logs JSON at info
// level to stdout.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxDays    int
	Compress   bool
	// Out replaces stdout when set; tests use it to capture output.
	Out io.Writer
}

// OptionsFromEnv reads Options from the LOG_* variables.
func OptionsFromEnv() Options {
	file := strings.TrimSpace(os.Getenv("LOG_FILE"))
	if dir := strings.TrimSpace(os.Getenv("LOG_DIR")); file == "" && dir != "" {
		file = filepath.Join(dir, "app.log")
	}
	return Options{
		Level:      os.Getenv("LOG_LEVEL"),
		File:       file,
		MaxSizeMB:  getenvInt("LOG_MAX_SIZE_MB", 100),
		MaxBackups: getenvInt("LOG_MAX_BACKUPS", 7),
		MaxDays:    getenvInt("LOG_MAX_DAYS", 14),
		Compress:   getenvBool("LOG_COMPRESS", true),
	}
}

// New builds a logger from opts.  A rotating file sink is added when
// opts.File is set; if its directory cannot be created the logger falls
// back to the console sink only.
func New(opts Options) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.MessageKey = "msg"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	level := zap.NewAtomicLevelAt(ParseLevel(opts.Level))
	enc := zapcore.NewJSONEncoder(encoderConfig)

	var out zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	if opts.Out != nil {
		out = zapcore.AddSync(opts.Out)
	}
	cores := []zapcore.Core{zapcore.NewCore(enc, out, level)}

	if opts.File != "" {
		dir := filepath.Dir(opts.File)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "warning: failed to create log directory %s: %v\n", dir, err)
		} else {
			lw := &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxDays,
				Compress:   opts.Compress,
			}
			cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(lw), level))
		}
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}
