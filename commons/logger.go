package commons

import (
	"strings"

	"github.com/labstack/gommon/log"
)

var Logger = newLogger()

// InitLogger re-reads LOG_LEVEL, which may only be set after an
// --env-file has been loaded.
func InitLogger() {
	Logger.SetLevel(parseLevel(GetEnv("LOG_LEVEL")))
}

func newLogger() *log.Logger {
	logger := log.New("towebp")
	logger.SetLevel(parseLevel(GetEnv("LOG_LEVEL")))
	logger.SetHeader("${time_rfc3339} ${level} ${short_file}:${line} -")
	return logger
}

func parseLevel(level string) log.Lvl {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return log.DEBUG
	case "INFO":
		return log.INFO
	case "WARN":
		return log.WARN
	case "ERROR":
		return log.ERROR
	case "OFF":
		return log.OFF
	default:
		return log.INFO
	}
}
