// Package sensordump captures auxiliary sensor output alongside the camera
// frames. The capture loop calls Record once per interval; each call takes
// whatever the sensor has sent since the last one and appends it, with a
// timestamp, to the dump file.
package sensordump

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/groundspeed/internal/timeutil"
)

// DefaultFileName is the dump file created in the data directory.
const DefaultFileName = "sensors.log"

// DefaultReadTimeout bounds how long one Record call waits for sensor data.
const DefaultReadTimeout = 100 * time.Millisecond

// Nop is a recorder for runs without a sensor attached.
type Nop struct{}

func (Nop) Record() error { return nil }
func (Nop) Close() error  { return nil }

// Port is the subset of serial.Port the recorder needs.
type Port interface {
	io.ReadCloser
	SetReadTimeout(t time.Duration) error
}

// SerialRecorder drains a sensor port into a writer.
type SerialRecorder struct {
	port  Port
	out   io.Writer
	clock timeutil.Clock
	buf   []byte
}

// Open opens the serial port at path and returns a recorder writing to out.
func Open(path string, opts PortOptions, out io.Writer, clock timeutil.Clock) (*SerialRecorder, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open sensor port %s: %w", path, err)
	}
	rec, err := NewSerialRecorder(port, out, clock)
	if err != nil {
		port.Close()
		return nil, err
	}
	diagf("opened %s at %d baud", path, mode.BaudRate)
	return rec, nil
}

// NewSerialRecorder wraps an already open port.
func NewSerialRecorder(port Port, out io.Writer, clock timeutil.Clock) (*SerialRecorder, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &SerialRecorder{
		port:  port,
		out:   out,
		clock: clock,
		buf:   make([]byte, 4096),
	}, nil
}

// Record reads one buffer of pending sensor output and writes it as one
// line per sensor line, each prefixed with the capture time. A read that
// times out with no data writes nothing.
func (r *SerialRecorder) Record() error {
	n, err := r.port.Read(r.buf)
	if err != nil && err != io.EOF {
		opsf("read: %v", err)
		return fmt.Errorf("read sensor port: %w", err)
	}
	tracef("read %d bytes", n)
	if n == 0 {
		return nil
	}

	stamp := r.clock.Now().UTC().Format(time.RFC3339Nano)
	var out bytes.Buffer
	for _, line := range bytes.Split(r.buf[:n], []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		fmt.Fprintf(&out, "%s %s\n", stamp, line)
	}
	if out.Len() == 0 {
		return nil
	}
	if _, err := r.out.Write(out.Bytes()); err != nil {
		opsf("write: %v", err)
		return fmt.Errorf("write sensor dump: %w", err)
	}
	return nil
}

// Close releases the port.
func (r *SerialRecorder) Close() error {
	diagf("closing port")
	return r.port.Close()
}
