package handlers

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/muurk/fluxusb/internal/channel"
	"github.com/muurk/fluxusb/internal/logging"
	"github.com/muurk/fluxusb/internal/protocol"
	"github.com/muurk/fluxusb/internal/transfer"
	"go.uber.org/zap"
)

// Robot moves job files between the client and the spool directory.
//
//	upload   {name, size}  client streams size bytes as binary chunks
//	download {name}        device replies {size} then streams the file
//	list                   {files: [...]}
//	delete   {name}
//
// One transfer per direction may be active at a time.
type Robot struct {
	s     channel.Sender
	spool string

	in     *transfer.Download
	inFile *os.File
	inName string

	out     *transfer.Upload
	outFile *os.File
}

// NewRobot creates a robot channel handler spooling into dir.
func NewRobot(s channel.Sender, dir string) (*Robot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("robot: spool: %w", err)
	}
	return &Robot{s: s, spool: dir}, nil
}

func (r *Robot) OnPayload(rec protocol.Record) error {
	cmd, _ := rec.String("cmd")
	switch cmd {
	case "upload":
		return r.startUpload(rec)
	case "download":
		return r.startDownload(rec)
	case "list":
		return r.list()
	case "delete":
		name, valid := spoolName(rec)
		if !valid {
			return fail(r.s, CodeBadParams, "name")
		}
		if err := os.Remove(filepath.Join(r.spool, name)); err != nil {
			if os.IsNotExist(err) {
				return fail(r.s, CodeNotFound, name)
			}
			return fail(r.s, CodeSubsystem, name)
		}
		return ok(r.s, cmd, map[string]any{"name": name})
	default:
		return fail(r.s, CodeNotSupport, cmd)
	}
}

// startUpload prepares to receive a file from the client.
func (r *Robot) startUpload(rec protocol.Record) error {
	if r.in != nil {
		return fail(r.s, CodeBusy, "upload")
	}
	name, valid := spoolName(rec)
	size, hasSize := rec.Int("size")
	if !valid || !hasSize || size < 0 {
		return fail(r.s, CodeBadParams, "name", "size")
	}

	f, err := os.Create(filepath.Join(r.spool, name+".part"))
	if err != nil {
		logging.Warn("Robot spool create failed", zap.String("name", name), zap.Error(err))
		return fail(r.s, CodeSubsystem, name)
	}
	r.in = transfer.NewDownload(f, size)
	r.inFile = f
	r.inName = name

	if err := ok(r.s, "upload", map[string]any{"name": name, "ready": true}); err != nil {
		return err
	}
	if size == 0 {
		return r.finishUpload()
	}
	return nil
}

func (r *Robot) OnBinary(chunk []byte) error {
	if r.in == nil {
		return fail(r.s, CodeUnexpectedData)
	}
	complete, err := r.in.Write(chunk)
	if err != nil {
		logging.Warn("Robot upload aborted", zap.String("name", r.inName), zap.Error(err))
		name := r.inName
		r.abortUpload()
		return fail(r.s, CodeSubsystem, name)
	}
	if complete {
		return r.finishUpload()
	}
	return nil
}

func (r *Robot) finishUpload() error {
	name, received := r.inName, r.in.Received
	part := r.inFile.Name()
	err := r.inFile.Close()
	if err == nil {
		err = os.Rename(part, filepath.Join(r.spool, name))
	}
	r.in, r.inFile, r.inName = nil, nil, ""
	if err != nil {
		os.Remove(part)
		return fail(r.s, CodeSubsystem, name)
	}
	return ok(r.s, "upload", map[string]any{"name": name, "received": received})
}

func (r *Robot) abortUpload() {
	if r.inFile != nil {
		r.inFile.Close()
		os.Remove(r.inFile.Name())
	}
	r.in, r.inFile, r.inName = nil, nil, ""
}

// startDownload streams a spooled file to the client.
func (r *Robot) startDownload(rec protocol.Record) error {
	if r.out != nil {
		return fail(r.s, CodeBusy, "download")
	}
	name, valid := spoolName(rec)
	if !valid {
		return fail(r.s, CodeBadParams, "name")
	}
	f, err := os.Open(filepath.Join(r.spool, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fail(r.s, CodeNotFound, name)
		}
		return fail(r.s, CodeSubsystem, name)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fail(r.s, CodeSubsystem, name)
	}

	if err := ok(r.s, "download", map[string]any{"name": name, "size": info.Size()}); err != nil {
		f.Close()
		return err
	}
	r.outFile = f
	r.out = transfer.NewUpload(f, info.Size(), r.s.SendBinary, func(err error) {
		if err != nil {
			logging.Warn("Robot download failed", zap.String("name", name), zap.Error(err))
		}
		r.closeDownload()
	})
	return r.out.Start()
}

func (r *Robot) OnBinaryAck() error {
	if r.out == nil {
		return transfer.ErrUnexpectedAck
	}
	return r.out.OnAck()
}

func (r *Robot) closeDownload() {
	if r.outFile != nil {
		r.outFile.Close()
	}
	r.out, r.outFile = nil, nil
}

func (r *Robot) list() error {
	entries, err := os.ReadDir(r.spool)
	if err != nil {
		return fail(r.s, CodeSubsystem, "list")
	}
	files := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) != ".part" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return ok(r.s, "list", map[string]any{"files": files})
}

func (r *Robot) Close() error {
	r.abortUpload()
	r.closeDownload()
	return nil
}

// spoolName returns a name that stays inside the spool directory.
func spoolName(rec protocol.Record) (string, bool) {
	name, _ := rec.String("name")
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || filepath.Ext(name) == ".part" {
		return "", false
	}
	return name, true
}
