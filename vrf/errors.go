package vrf

import (
	"errors"
	"fmt"
)

// Failure kinds reported by the decoders. All of them are scoped to the
// resource being decoded; callers test for them using errors.Is.
var (
	// ErrMalformedContainer signals a directory or payload inconsistent
	// with the size of the buffer
	ErrMalformedContainer = errors.New("malformed container")
	// ErrUnsupportedVersion signals an unknown payload version
	ErrUnsupportedVersion = errors.New("unsupported version")
	// ErrUnknownFieldType signals a schema type tag without decoder
	ErrUnknownFieldType = errors.New("unknown field type")
	// ErrUnsupportedPixelFormat signals a texture format without decoder
	ErrUnsupportedPixelFormat = errors.New("unsupported pixel format")
	// ErrAssetNotFound signals a referenced asset which could not be
	// resolved. It is recoverable: callers decide about substitutes.
	ErrAssetNotFound = errors.New("asset not found")
)

// Malformed tags err as ErrMalformedContainer while keeping the original
// error in the chain. Errors already carrying one of the failure kinds
// are returned unchanged.
func Malformed(err error) error {
	if err == nil || classified(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrMalformedContainer, err)
}

func classified(err error) bool {
	for _, kind := range []error{
		ErrMalformedContainer,
		ErrUnsupportedVersion,
		ErrUnknownFieldType,
		ErrUnsupportedPixelFormat,
		ErrAssetNotFound,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
