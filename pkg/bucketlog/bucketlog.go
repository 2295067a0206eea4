// Package bucketlog is the logging collaborator the bucket pipeline calls
// out to (spec.md §6: "a logging sink (level, component, message)"). The
// pipeline itself never decides how logs are formatted or where they go;
// it only ever calls Logger.Log with a level, a component name, and a
// message. The default Logger is silent so importing this package never
// produces output a caller didn't ask for.
package bucketlog

import "go.uber.org/zap"

// Level mirrors the severities a Bucket collaborator plausibly needs;
// kept small and pipeline-specific rather than re-exporting zapcore.Level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is the collaborator interface spec.md §6 describes. Components
// that want to log (pkg/tlsbucket, for handshake/verification/
// renegotiation events, and pkg/pipelinecfg's Watcher, for reload events)
// hold one of these, defaulting to Nop.
type Logger interface {
	Log(level Level, component, message string)
}

// Nop discards everything. It is the zero value every bucket-pipeline
// component is constructed with; callers opt into real logging via
// the component's SetLogger or its constructor's logger argument.
type Nop struct{}

func (Nop) Log(Level, string, string) {}

// Zap adapts a *zap.Logger to the Logger interface.
type Zap struct {
	L *zap.Logger
}

// NewZap wraps an existing *zap.Logger.
func NewZap(l *zap.Logger) Zap {
	return Zap{L: l}
}

func (z Zap) Log(level Level, component, message string) {
	if z.L == nil {
		return
	}
	fields := []zap.Field{zap.String("component", component)}
	switch level {
	case LevelDebug:
		z.L.Debug(message, fields...)
	case LevelInfo:
		z.L.Info(message, fields...)
	case LevelWarn:
		z.L.Warn(message, fields...)
	case LevelError:
		z.L.Error(message, fields...)
	default:
		z.L.Info(message, fields...)
	}
}
