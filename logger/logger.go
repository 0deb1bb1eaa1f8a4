package logger

import "go.uber.org/zap"

// Log is the default driver logger.
var Log *zap.SugaredLogger

func init() {
	logger, _ := zap.NewDevelopment()
	Log = logger.Sugar()
}

// Named returns a child of the default logger with the given name.
func Named(name string) *zap.SugaredLogger {
	return Log.Named(name)
}
