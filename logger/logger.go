package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
)

// Configure sets the level and format of the standard logrus logger. An
// unknown level or format falls back to info / text and is reported.
func Configure(level, format string) error {
	var errs []string

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if strings.TrimSpace(level) == "" {
		lvl, err = logrus.InfoLevel, nil
	}
	if err != nil {
		lvl = logrus.InfoLevel
		errs = append(errs, fmt.Sprintf("unknown log level %q", level))
	}
	logrus.SetLevel(lvl)

	var formatter logrus.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		formatter = &logrus.JSONFormatter{TimestampFormat: time.RFC3339}
	case "", "text":
	default:
		errs = append(errs, fmt.Sprintf("unknown log format %q", format))
	}
	logrus.SetFormatter(formatter)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// SetOutput redirects log output.
func SetOutput(w io.Writer) {
	logrus.SetOutput(w)
}

// OpenFile directs log output to path, appending to an existing file. The
// caller closes the returned file.
func OpenFile(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	SetOutput(file)
	return file, nil
}

// WarningsOnly drops entries below warn level and writes the rest to w.
// The configured level still applies.
func WarningsOnly(w io.Writer) {
	SetOutput(io.Discard)
	logrus.AddHook(&writer.Hook{
		Writer: w,
		LogLevels: []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
			logrus.WarnLevel,
		},
	})
}
