//go:build !unix

package server

import (
	"context"
	"errors"
)

// USB is unavailable on this platform.
type USB struct {
	path string
}

// NewUSB creates a USB transport that always fails to serve.
func NewUSB(_ *Server, path string) *USB {
	return &USB{path: path}
}

// Name implements Transport.
func (u *USB) Name() string { return "usb" }

// Serve implements Transport.
func (u *USB) Serve(context.Context) error {
	return errors.New("usb: gadget serial devices need a unix host")
}
