// Package vision implements the camera and frame matcher on top of OpenCV
// via gocv.
package vision

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// Camera captures still frames from a video device.
type Camera struct {
	vc  *gocv.VideoCapture
	buf gocv.Mat
}

// OpenCamera opens the video device with the given index.
func OpenCamera(device int) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", device, err)
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	return &Camera{vc: vc, buf: gocv.NewMat()}, nil
}

// Capture grabs the current frame and writes it to path. The image format
// follows the file extension.
func (c *Camera) Capture(path string) error {
	if ok := c.vc.Read(&c.buf); !ok || c.buf.Empty() {
		return errors.New("camera returned no frame")
	}
	if !gocv.IMWrite(path, c.buf) {
		return fmt.Errorf("write frame %s", path)
	}
	return nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.buf.Close()
	return c.vc.Close()
}
