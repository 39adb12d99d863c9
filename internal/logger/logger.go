package logger

import (
	"os"

	"go.uber.org/zap"
)

// New builds the process-wide sugared logger. LOG_MODE=dev switches to the
// human-readable development encoder.
func New() *zap.SugaredLogger {
	var l *zap.Logger
	var err error
	if os.Getenv("LOG_MODE") == "dev" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return l.Sugar()
}
