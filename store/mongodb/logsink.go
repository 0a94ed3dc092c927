package mongodb

import (
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// logSink forwards driver log messages to zap. The driver reports level 0
// for info and higher values for debug.
type logSink struct {
	logger *zap.SugaredLogger
}

// NewLogSink adapts a zap logger to the driver's options.LogSink.
func NewLogSink(logger *zap.Logger) options.LogSink {
	return &logSink{logger: logger.Named("mongo").Sugar()}
}

func (s *logSink) Info(level int, message string, keysAndValues ...interface{}) {
	if level > 0 {
		s.logger.Debugw(message, keysAndValues...)
		return
	}
	s.logger.Infow(message, keysAndValues...)
}

func (s *logSink) Error(err error, message string, keysAndValues ...interface{}) {
	s.logger.Errorw(message, append(keysAndValues, "error", err)...)
}
