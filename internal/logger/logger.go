package logger

import (
	"io"
	"os"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// DefaultLogLevel is the default log level
	DefaultLogLevel = zerolog.InfoLevel

	LogFileName = "migration-auditor.log"

	timeFormat = time.RFC3339
)

// DefaultLogWriter is the default log io.Writer implementor
var DefaultLogWriter = os.Stderr

// Logger is a logger struct that we can Rotate
type Logger struct {
	*zerolog.Logger
	writer io.Writer
}

// NewSubLogger creates a sub Logger of the parent one, with the same writer
func NewSubLogger(parentLogger *Logger, childComponentName string, childComponent string) *Logger {
	subLogger := parentLogger.With().Str(childComponentName, childComponent).Logger()
	return &Logger{
		Logger: &subLogger,
		writer: parentLogger.writer,
	}
}

// NewLogger creates a New Logger
func NewLogger(logger *zerolog.Logger, writer io.Writer) *Logger {
	ret := &Logger{
		Logger: logger,
		writer: writer,
	}
	ret.Rotate()
	return ret
}

// NewDefaultLogger creates a new Logger with default log writer and level
func NewDefaultLogger() *Logger {
	logger := zerolog.New(DefaultLogWriter).Level(DefaultLogLevel).With().Timestamp().Logger()
	return &Logger{
		Logger: &logger,
		writer: DefaultLogWriter,
	}
}

// NewDebugLogger creates a new Logger with default log writer with debug level
func NewDebugLogger() *Logger {
	logger := zerolog.New(DefaultLogWriter).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	return &Logger{
		Logger: &logger,
		writer: DefaultLogWriter,
	}
}

// NewFromPath creates a console-formatted Logger that writes to `logPath`,
// which is “stdout”, “stderr”, or a directory to hold a rotating log file.
func NewFromPath(logPath string, level zerolog.Level) (*Logger, error) {
	writer, err := getLogWriter(logPath)
	if err != nil {
		return nil, err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        writer,
		TimeFormat: timeFormat,
	}

	l := zerolog.New(consoleWriter).Level(level).With().Timestamp().Logger()
	return NewLogger(&l, writer), nil
}

// Writer returns the Logger’s underlying writer.
func (l *Logger) Writer() io.Writer {
	return l.writer
}

// Rotate will rotate the underlying Logger writer iff it is a *lumberjack.Logger
func (l *Logger) Rotate() {
	switch w := l.writer.(type) {
	case *lumberjack.Logger:
		_ = w.Rotate()
	}
}

// NewRotatingWriter creates a new io.Writer with an underlying lumberjack.Logger
func NewRotatingWriter(dirPath string) (io.Writer, error) {
	err := os.MkdirAll(dirPath, 0744)
	if err != nil {
		return nil, err
	}

	return &lumberjack.Logger{
		Filename: path.Join(dirPath, LogFileName),
	}, nil
}

func getLogWriter(logPath string) (io.Writer, error) {
	switch logPath {
	case "stdout":
		return zerolog.SyncWriter(os.Stdout), nil
	case "stderr":
		return zerolog.SyncWriter(os.Stderr), nil
	}

	w, err := NewRotatingWriter(logPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open logPath %#q", logPath)
	}

	return w, nil
}
