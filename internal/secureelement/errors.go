package secureelement

import "errors"

// Domain-specific errors for secure element operations.
var (
	// ErrNotPresent is returned when the element cannot be found.
	ErrNotPresent = errors.New("secureelement: not present")

	// ErrEmptySlot is returned when a slot holds no key.
	ErrEmptySlot = errors.New("secureelement: slot is empty")

	// ErrInvalidSlot is returned for a negative slot number.
	ErrInvalidSlot = errors.New("secureelement: invalid slot")

	// ErrUnsupportedKey is returned when a slot holds a key that cannot sign.
	ErrUnsupportedKey = errors.New("secureelement: unsupported key type")

	// ErrInvalidCertificate is returned when the device certificate cannot be parsed.
	ErrInvalidCertificate = errors.New("secureelement: invalid certificate")

	// ErrCertificateMismatch is returned when the certificate was not issued
	// for the slot's key.
	ErrCertificateMismatch = errors.New("secureelement: certificate does not match slot key")
)
