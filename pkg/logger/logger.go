package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger and installs it as the logrus standard logger, so
// packages logging through logrus directly share its settings. Unknown
// levels fall back to info; format is "json" or "text".
func New(level, format string) *logrus.Logger {
	log := logrus.StandardLogger()
	log.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
