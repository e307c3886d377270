package channel

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned by ParseKind for an unsupported type string.
var ErrUnknownKind = errors.New("channel: unknown kind")

// Kind selects which handler implementation backs a channel.
type Kind int

const (
	KindRobot Kind = iota
	KindCamera
	KindConfig
)

// ParseKind maps the control request "type" field to a Kind.
// An empty string selects KindRobot.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "robot":
		return KindRobot, nil
	case "camera":
		return KindCamera, nil
	case "config":
		return KindConfig, nil
	default:
		return KindRobot, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

func (k Kind) String() string {
	switch k {
	case KindRobot:
		return "robot"
	case KindCamera:
		return "camera"
	case KindConfig:
		return "config"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}
