package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger provides structured debug logging for webtest components.
// All components of one process write JSON lines to a shared
// session-specific file in ~/.webtest/logs/.
type Logger struct {
	sessionID string
	component string
	file      *os.File
	zl        zerolog.Logger
	logPath   string
	closeOnce sync.Once
}

var (
	// Global session ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	initOnce sync.Once
	initErr  error
	dirMu    sync.Mutex
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// SetLogDirectory overrides the log directory. It must be called before the
// first logger is created to take effect.
func SetLogDirectory(dir string) {
	dirMu.Lock()
	defer dirMu.Unlock()
	logDir = dir
}

// initLogDirectory resolves and creates the log directory once per process.
func initLogDirectory() error {
	initOnce.Do(func() {
		dirMu.Lock()
		defer dirMu.Unlock()

		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".webtest", "logs")
		}
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
		}
	})
	return initErr
}

// SetLevel maps a verbosity name (quiet, normal, verbose, debug) onto the
// global zerolog level.
func SetLevel(verbosity string) error {
	switch verbosity {
	case "quiet":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "normal", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "verbose", "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		return fmt.Errorf("invalid verbosity: %s", verbosity)
	}
	return nil
}

// NewLogger returns a logger tagged with component.
// The logger writes to <log dir>/<session-id>-webtest.log
//
// When the file cannot be opened the returned logger writes to stderr and the
// error is returned alongside it, so callers may treat it as a warning.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-webtest.log", sessID))

	// Multiple components append to the same file.
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		sessionID: sessID,
		component: component,
		file:      file,
		zl:        newZerolog(zerolog.SyncWriter(file), component, sessID),
		logPath:   logPath,
	}, nil
}

// newFallbackLogger writes to stderr.
func newFallbackLogger(component string, err error) *Logger {
	sessID := getSessionID()
	zl := newZerolog(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}, component, sessID)
	zl.Warn().Err(err).Msg("failed to initialize file logging, falling back to stderr")

	return &Logger{
		sessionID: sessID,
		component: component,
		zl:        zl,
	}
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() *Logger {
	return &Logger{component: "nop", zl: zerolog.Nop()}
}

func newZerolog(w io.Writer, component, sessID string) zerolog.Logger {
	return zerolog.New(w).With().
		Timestamp().
		Str("component", component).
		Str("session", sessID).
		Logger()
}

// With returns a child logger that adds a field to every entry.
func (l *Logger) With(key, value string) *Logger {
	child := &Logger{
		sessionID: l.sessionID,
		component: l.component,
		logPath:   l.logPath,
		zl:        l.zl.With().Str(key, value).Logger(),
	}
	// The child never owns the file; Close on it is a no-op.
	child.closeOnce.Do(func() {})
	return child
}

// Zerolog exposes the underlying structured logger.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.zl.Debug().Msgf(format, v...)
}

func (l *Logger) Infof(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	l.zl.Warn().Msgf(format, v...)
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.zl.Error().Msgf(format, v...)
}

// Writer is the raw destination, the log file or stderr.
func (l *Logger) Writer() io.Writer {
	if l.file != nil {
		return l.file
	}
	return os.Stderr
}

// SessionID is the process-wide id shared by every logger.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath is empty for the stderr fallback.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close releases the log file. Repeated calls return nil.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetSessionID returns the process-wide session id.
func GetSessionID() string {
	return getSessionID()
}

// GetLogDirectory creates the log directory if needed and returns it.
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
