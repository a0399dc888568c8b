package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a key/value logger backed by zap. Values whose key names a
// credential are masked before they reach the core.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a development (console) or production (JSON) logger. An
// unparsable level falls back to info.
func New(mode, level string) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if m := strings.ToLower(mode); m == "prod" || m == "production" {
		cfg = zap.NewProductionConfig()
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: z.Sugar()}, nil
}

func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() { _ = l.sugar.Sync() }

func (l *Logger) Debug(msg string, kv ...any) { l.sugar.Debugw(msg, mask(kv)...) }
func (l *Logger) Info(msg string, kv ...any) { l.sugar.Infow(msg, mask(kv)...) }
func (l *Logger) Warn(msg string, kv ...any) { l.sugar.Warnw(msg, mask(kv)...) }
func (l *Logger) Error(msg string, kv ...any) { l.sugar.Errorw(msg, mask(kv)...) }

// With returns a child logger carrying kv on every entry.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{sugar: l.sugar.With(mask(kv)...)}
}

var credentialKeys = []string{"api_key", "apikey", "authorization", "token", "secret", "password"}

func mask(kv []any) []any {
	out := make([]any, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(key)
		for _, c := range credentialKeys {
			if strings.Contains(lower, c) {
				out[i+1] = "[REDACTED]"
				break
			}
		}
	}
	return out
}
