//go:build !linux

package serial

import "errors"

// Open is only implemented on linux.
func Open(path string, baud int) (*Port, error) {
	return nil, errors.New("serial: not supported on this platform")
}

// Port is a placeholder on non-linux platforms.
type Port struct{}
