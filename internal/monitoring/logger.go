// Package monitoring holds the process-wide diagnostic logger and the
// Prometheus collectors for detection runs, fetches and ingestion.
package monitoring

import "log"

// Logf is the package-level diagnostic logger used by the engine, the store
// and the server. It defaults to log.Printf and may be replaced with
// SetLogger; tests usually mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that tags every line with "[prefix] " and
// forwards to whatever Logf is at call time.
func Prefixed(prefix string) func(format string, v ...interface{}) {
	tag := "[" + prefix + "] "
	return func(format string, v ...interface{}) {
		Logf(tag+format, v...)
	}
}
