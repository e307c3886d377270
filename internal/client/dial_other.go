//go:build !unix

package client

const noctty = 0
