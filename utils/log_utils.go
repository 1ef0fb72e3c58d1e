package utils

import (
	"fmt"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

var sugar = zap.NewNop().Sugar()

// SetLogger routes the helpers below through the application logger.
func SetLogger(logger *zap.Logger) {
	sugar = logger.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func caller(skip int) string {
	_, file, line, _ := runtime.Caller(skip)
	fileAsPaths := strings.Split(file, "/")
	return fmt.Sprintf("%s:%d", fileAsPaths[len(fileAsPaths)-1], line)
}

// LogInfo example:
//
// LogInfo("store at %s", path)
//
func LogInfo(msg string, vars ...interface{}) {
	sugar.Infow(fmt.Sprintf(msg, vars...), "at", caller(2))
}

// LogError logs err when it is not nil.
func LogError(err error) {
	if err == nil {
		return
	}
	sugar.Errorw(err.Error(), "at", caller(2))
}

// LogFatal logs err and exits.
func LogFatal(err error) {
	sugar.Fatalw(err.Error(), "at", caller(2))
}
