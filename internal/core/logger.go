package core

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init initializes zap's global logger
// After calling this, we use zap.L() directly.
// An empty level keeps the config default; logFile, when set, is added as an
// extra output path next to stderr.
func Init(pretty bool, level string, logFile string) error {
	var config zap.Config

	if pretty {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		config.Level = zap.NewAtomicLevelAt(parsed)
	}

	if logFile != "" {
		config.OutputPaths = append(config.OutputPaths, logFile)
	}

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	zap.ReplaceGlobals(logger)
	return nil
}

// LogTaskExecution logs a task invocation using zap's global logger.
// A non-zero return code is the tool's own verdict and is logged at warn level;
// err is reserved for runs the wrapper could not carry out.
func LogTaskExecution(taskName string, duration float64, returnCode int, err error) {
	fields := []zap.Field{
		zap.String("task", taskName),
		zap.Float64("duration_seconds", duration),
		zap.Int("return_code", returnCode),
		zap.Bool("success", err == nil && returnCode == 0),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		zap.L().Error("Task invocation failed", fields...)
		return
	}

	if returnCode != 0 {
		zap.L().Warn("Task completed with non-zero return code", fields...)
		return
	}

	zap.L().Info("Task completed successfully", fields...)
}

// LogRequest logs an MCP request using zap's global logger
func LogRequest(method string, duration float64, err error) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.Float64("duration_seconds", duration),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		zap.L().Error("Request failed", fields...)
		return
	}

	zap.L().Info("Request completed successfully", fields...)
}

// LogPanicRecovery logs a recovered panic together with the stack that produced it
func LogPanicRecovery(component string, r any) {
	zap.L().Error("Panic recovered",
		zap.String("component", component),
		zap.Any("panic_value", r),
		zap.ByteString("stack", debug.Stack()))
}

// LogDeferredError runs fn and logs its error, if any. Meant for defer statements
// where the error has nowhere else to go (Close, RemoveAll, ...).
func LogDeferredError(fn func() error) {
	if err := fn(); err != nil {
		zap.L().Error("Deferred error", zap.Error(err), zap.Stack("stack"))
	}
}
