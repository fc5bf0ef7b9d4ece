// Package monitoring owns the process-level logging setup: the event log
// file and the routing of each package's ops, diag and trace streams.
package monitoring

import "log"

// Logf is the process logger. It defaults to log.Printf and is pointed at
// the event log by OpenEventLog.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the process logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
