package monitoring

import (
	"fmt"
	"io"
	"log"

	"github.com/banshee-data/groundspeed/internal/fsutil"
	"github.com/banshee-data/groundspeed/internal/pipeline"
	"github.com/banshee-data/groundspeed/internal/sensordump"
	"github.com/banshee-data/groundspeed/internal/speed"
	"github.com/banshee-data/groundspeed/internal/worker"
)

// EventLog tees log output to the console and an append-only file.
type EventLog struct {
	w    io.Writer
	file io.WriteCloser
}

// OpenEventLog opens path for appending on fsys. console may be nil.
func OpenEventLog(fsys fsutil.FileSystem, path string, console io.Writer) (*EventLog, error) {
	f, err := fsys.OpenAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	var w io.Writer = f
	if console != nil {
		w = io.MultiWriter(console, f)
	}
	return &EventLog{w: w, file: f}, nil
}

// Writer returns the tee.
func (l *EventLog) Writer() io.Writer { return l.w }

// Close closes the file. The console is left open.
func (l *EventLog) Close() error { return l.file.Close() }

// ConfigureStreams routes Logf and the ops and diag streams of every
// package to w. The trace stream is routed only when verbose is set.
// Passing a nil w silences everything.
func ConfigureStreams(w io.Writer, verbose bool) {
	var trace io.Writer
	if verbose {
		trace = w
	}
	if w == nil {
		SetLogger(nil)
	} else {
		SetLogger(log.New(w, "", log.LstdFlags|log.Lmicroseconds).Printf)
	}
	worker.SetLogWriters(w, w, trace)
	speed.SetLogWriters(w, w, trace)
	pipeline.SetLogWriters(w, w, trace)
	sensordump.SetLogWriters(w, w, trace)
}
