// Package logger builds the zerolog logger shared by the sync engine components.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

// Output formats accepted by [LogBuild.Format].
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type LogBuild struct {
	writer io.Writer
	path   string
	level  string
	format string
}

type LogData struct {
	LogFile *os.File
	Logger  zerolog.Logger
}

func New() *LogBuild {
	return &LogBuild{level: "info", format: FormatJSON}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// Level sets the minimum level by name (trace, debug, info, warn, error).
func (build *LogBuild) Level(level string) *LogBuild {
	if level != "" {
		build.level = level
	}
	return build
}

// Format selects json or console output.
func (build *LogBuild) Format(format string) *LogBuild {
	if format != "" {
		build.format = format
	}
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	level, err := zerolog.ParseLevel(strings.ToLower(build.level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", build.level, err)
	}

	logData = new(LogData)
	var writer io.Writer = os.Stdout
	if build.writer != nil {
		writer = build.writer
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		writer = zerolog.SyncWriter(logData.LogFile)
	}

	switch build.format {
	case FormatJSON:
	case FormatConsole:
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05.000"}
	default:
		return nil, fmt.Errorf("unknown log format %q", build.format)
	}

	logData.Logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return logData, nil
}

// Close releases the log file, if any.
func (data *LogData) Close() error {
	if data.LogFile == nil {
		return nil
	}
	return data.LogFile.Close()
}
