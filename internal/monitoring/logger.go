package monitoring

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// LogFileName is the name of the rotating log file inside the log directory.
const LogFileName = "walkpal.log"

// OpenLogFile returns a size-rotated log writer in dir. The wearable host
// runs unattended for days, so old logs are compressed and pruned.
func OpenLogFile(dir string) (io.WriteCloser, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, LogFileName),
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
		LocalTime:  true,
	}, nil
}

// TeeStandardLog sends the standard logger to both stderr and w.
func TeeStandardLog(w io.Writer) {
	log.SetOutput(io.MultiWriter(os.Stderr, w))
}
