package link

import (
	"bytes"

	"github.com/muurk/fluxusb/internal/protocol"
)

// Recorder is an in-memory link writer that keeps everything written to it.
type Recorder struct {
	buf bytes.Buffer

	// Err, when set, fails every Write.
	Err error
	// MaxWrite, when positive, caps the bytes accepted per Write.
	MaxWrite int
	// Writes counts Write calls.
	Writes int
}

func (r *Recorder) Write(p []byte) (int, error) {
	r.Writes++
	if r.Err != nil {
		return 0, r.Err
	}
	if r.MaxWrite > 0 && len(p) > r.MaxWrite {
		p = p[:r.MaxWrite]
	}
	return r.buf.Write(p)
}

// Bytes returns everything written since the last Reset.
func (r *Recorder) Bytes() []byte { return r.buf.Bytes() }

// Len returns the number of bytes written since the last Reset.
func (r *Recorder) Len() int { return r.buf.Len() }

// Reset discards the recorded bytes.
func (r *Recorder) Reset() { r.buf.Reset() }

// Frames decodes the recorded bytes. Resync markers are skipped and filler
// frames are kept.
func (r *Recorder) Frames() []protocol.Frame {
	dec := protocol.NewDecoder(protocol.MaxFrameSize + 1)
	data := r.buf.Bytes()
	var frames []protocol.Frame
	for {
		n, _ := dec.Write(data)
		data = data[n:]
		for {
			f, ok, err := dec.Next(protocol.ModeHandshake)
			if err != nil || !ok {
				break
			}
			frames = append(frames, f)
		}
		if len(data) == 0 || n == 0 {
			return frames
		}
	}
}

// Take returns the decoded frames without fillers and resets the recorder.
func (r *Recorder) Take() []protocol.Frame {
	all := r.Frames()
	r.Reset()
	frames := all[:0]
	for _, f := range all {
		if !protocol.IsFiller(f) {
			frames = append(frames, f)
		}
	}
	return frames
}
