package logsvc

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
)

// NewZap builds the process logger.
// level: debug, info, warn or error (default info). format: json or console (default json).
func NewZap(conf *core.Config) (*zap.Logger, error) {
	var level zapcore.Level
	switch conf.Log.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if conf.Log.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.OutputPaths = []string{"stdout"}
		zc.ErrorOutputPaths = []string{"stderr"}
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	base, err := zc.Build()
	if err != nil {
		return nil, err
	}
	base = base.With(zap.String("service_name", conf.AppName), zap.String("env", conf.Env))
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		base = base.With(zap.String("hostname", hostname))
	}
	return base, nil
}

// ZapLogger adapts a zap.Logger to core.Logger.
type ZapLogger struct {
	z *zap.Logger
}

var _ core.Logger = (*ZapLogger)(nil)

func NewZapLogger(z *zap.Logger) *ZapLogger {
	return &ZapLogger{z: z}
}

// NewNopLogger discards everything.
func NewNopLogger() *ZapLogger {
	return &ZapLogger{z: zap.NewNop()}
}

func (l ZapLogger) Zap() *zap.Logger { return l.z }

// expected fmt: error, map[string]interface{}, user.User
func fields(args []interface{}) []zap.Field {
	flds := make([]zap.Field, 0, len(args))
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
		case error:
			flds = append(flds, zap.Error(v))
		case map[string]interface{}:
			for k, val := range v {
				flds = append(flds, zap.Any(k, val))
			}
		case user.User:
			flds = append(flds, zap.String("user_id", v.ID), zap.String("user_email", v.Email))
		default:
			flds = append(flds, zap.Any("arg", v))
		}
	}
	return flds
}

func (l ZapLogger) Debug(msg string, args ...interface{}) { l.z.Debug(msg, fields(args)...) }

func (l ZapLogger) Info(msg string, args ...interface{}) { l.z.Info(msg, fields(args)...) }

func (l ZapLogger) Warn(msg string, args ...interface{}) { l.z.Warn(msg, fields(args)...) }

func (l ZapLogger) Error(msg string, args ...interface{}) { l.z.Error(msg, fields(args)...) }

func (l ZapLogger) Fatal(msg string, args ...interface{}) { l.z.Fatal(msg, fields(args)...) }
