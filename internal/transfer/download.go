package transfer

import (
	"fmt"
	"io"
)

// Download collects Expected bytes of chunked binary data into a writer.
type Download struct {
	Expected int64
	Received int64

	dst io.Writer
}

// NewDownload prepares a download of expected bytes into dst.
func NewDownload(dst io.Writer, expected int64) *Download {
	return &Download{Expected: expected, dst: dst}
}

// Write stores one chunk and reports whether the download is complete.
func (d *Download) Write(chunk []byte) (bool, error) {
	if d.Received+int64(len(chunk)) > d.Expected {
		return false, fmt.Errorf("%w: %d + %d > %d", ErrOverflow, d.Received, len(chunk), d.Expected)
	}
	if _, err := d.dst.Write(chunk); err != nil {
		return false, fmt.Errorf("transfer: write chunk: %w", err)
	}
	d.Received += int64(len(chunk))
	return d.Complete(), nil
}

// Complete reports whether every expected byte arrived.
func (d *Download) Complete() bool {
	return d.Received == d.Expected
}

// Progress returns the fraction received in [0, 1].
func (d *Download) Progress() float64 {
	if d.Expected <= 0 {
		return 1
	}
	return float64(d.Received) / float64(d.Expected)
}
