package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/tasklet-runtime/config"
	"github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/resource"
)

// NewLogger builds a zap logger for cfg. Output goes to stderr so program
// output on stdout stays clean.
func NewLogger(cfg config.Log) (*zap.Logger, error) {
	lvl, err := cfg.ZapLevel()
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	l, err := zc.Build()
	if err != nil {
		return nil, errors.Config("build logger", err)
	}
	return l, nil
}

// eventLogger reports resource lifecycle events at debug level.
type eventLogger struct {
	logger *zap.Logger
}

func (o *eventLogger) OnResourceEvent(e resource.Event) {
	if ce := o.logger.Check(zap.DebugLevel, "resource "+e.Type.String()); ce != nil {
		fields := []zap.Field{
			zap.Stringer("kind", e.Kind),
			zap.Uint64("descriptor", e.Handle.Descriptor()),
		}
		if e.Err != nil {
			fields = append(fields, zap.Error(e.Err))
		}
		ce.Write(fields...)
	}
}
