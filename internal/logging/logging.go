// Package logging configures the package loggers of the command line tools.
package logging

import (
	"io"
	"os"

	"github.com/op/go-logging"
)

// EnvLevel names the environment variable that overrides the log level.
const EnvLevel = "IMGIO_LOGLEVEL"

const format = "%{level:.1s}%{time:0102 15:04:05.999999} %{module} %{shortfile}] %{message}"

// Configure sends log records to w at INFO, or DEBUG when verbose is set.
// A level named in IMGIO_LOGLEVEL (DEBUG, INFO, WARNING, ERROR) wins over
// both.
func Configure(w io.Writer, verbose bool) {
	level := logging.INFO
	if verbose {
		level = logging.DEBUG
	}
	if env := os.Getenv(EnvLevel); env != "" {
		if l, err := logging.LogLevel(env); err == nil {
			level = l
		}
	}
	backend := logging.NewLogBackend(w, "", 0)
	formatted := logging.NewBackendFormatter(backend, logging.MustStringFormatter(format))
	logging.SetBackend(formatted).SetLevel(level, "")
}
