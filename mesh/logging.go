package mesh

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the package logger, creating it on first use.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "meshalign",
		})
		logger.SetLevel(log.InfoLevel)
	})
	return logger
}

// SetLogOutput redirects the package logger, mainly for tests.
func SetLogOutput(w io.Writer) {
	Logger().SetOutput(w)
}

// SetLogLevel sets the package log level from its name
// (debug, info, warn, error). An empty name keeps the current level.
func SetLogLevel(name string) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	lvl, err := log.ParseLevel(strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	Logger().SetLevel(lvl)
	return nil
}
