//go:build unix

package client

import "golang.org/x/sys/unix"

const noctty = unix.O_NOCTTY
