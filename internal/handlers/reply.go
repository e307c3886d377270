package handlers

import "github.com/muurk/fluxusb/internal/channel"

// Error codes carried in error replies.
const (
	CodeNotSupport     = "NOT_SUPPORT"
	CodeBadParams      = "BAD_PARAMS"
	CodeBusy           = "RESOURCE_BUSY"
	CodeNotFound       = "NOT_FOUND"
	CodeSubsystem      = "SUBSYSTEM_ERROR"
	CodeUnexpectedData = "UNEXPECTED_DATA"
)

func ok(s channel.Sender, cmd string, fields map[string]any) error {
	reply := map[string]any{"status": "ok", "cmd": cmd}
	for k, v := range fields {
		reply[k] = v
	}
	return s.SendObject(reply)
}

func fail(s channel.Sender, codes ...string) error {
	return s.SendObject(map[string]any{"status": "error", "error": codes})
}
