package neuropacs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCredential = errors.New("invalid API key")
	ErrTransport         = errors.New("remote call failed")
	ErrKeyJobMismatch    = errors.New("API key incompatible with job")
	ErrNotConnected      = errors.New("not connected to the analysis service")
)

const keyMismatchMarker = "API key incompatible"

// remoteError classifies an error message returned by the service.
func remoteError(op, msg string) error {
	if strings.Contains(msg, keyMismatchMarker) {
		return fmt.Errorf("%s: %w: %s", op, ErrKeyJobMismatch, msg)
	}
	return fmt.Errorf("%s: %w: %s", op, ErrTransport, msg)
}
