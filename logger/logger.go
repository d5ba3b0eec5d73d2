// Package logger wraps zap for structured logging.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log      *zap.Logger
	once     sync.Once
	logFile  = "facet.log" // Default log file
	logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// SetLogPath overrides the log file location. Call it before the first
// InitLogger or GetLogger.
func SetLogPath(path string) {
	logFile = path
}

// SetLevel adjusts the log level by name ("debug", "info", "warn", "error").
// Unknown names keep the current level.
func SetLevel(name string) {
	if parsed, err := zapcore.ParseLevel(name); err == nil {
		logLevel.SetLevel(parsed)
	}
}

// InitLogger initializes the Zap logger with structured logging.
func InitLogger() {
	once.Do(func() {
		// Configure file logging
		fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		file, _ := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		fileCore := zapcore.NewCore(fileEncoder, zapcore.AddSync(file), logLevel)

		// Configure console logging
		consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), logLevel)

		// Combine both outputs (console + file)
		core := zapcore.NewTee(consoleCore, fileCore)

		log = zap.New(core, zap.AddCaller())
	})
}

// GetLogger provides access to the initialized logger.
func GetLogger() *zap.Logger {
	if log == nil {
		InitLogger()
	}
	return log
}

// Sync ensures buffered logs are written before the application exits.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

// ResetLogger drops the current logger so the next InitLogger starts fresh.
// Meant for tests that point the log file somewhere else.
func ResetLogger() {
	Sync()
	log = nil
	once = sync.Once{}
}
