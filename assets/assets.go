// Package assets resolves asset names to their bytes
package assets

import (
	"fmt"
	"path"
	"strings"

	"github.com/Luzifer/vrf-extract/vrf"
)

type (
	// Resolver loads the bytes of a named asset. Assets which do not exist
	// yield an error wrapping vrf.ErrAssetNotFound.
	Resolver interface {
		Resolve(name string) ([]byte, error)
	}

	// ResolverFunc adapts a function to the Resolver interface
	ResolverFunc func(name string) ([]byte, error)

	// MapResolver serves assets from memory, keyed by normalized name
	MapResolver map[string][]byte
)

// Resolve implements Resolver
func (f ResolverFunc) Resolve(name string) ([]byte, error) { return f(name) }

// Resolve implements Resolver
func (m MapResolver) Resolve(name string) ([]byte, error) {
	key, err := Normalize(name)
	if err != nil {
		return nil, err
	}

	data, ok := m[key]
	if !ok {
		return nil, NotFound(name)
	}
	return data, nil
}

// NotFound creates the error returned for a missing asset
func NotFound(name string) error {
	return fmt.Errorf("%w: %s", vrf.ErrAssetNotFound, name)
}

// Normalize converts an asset name as stored in resources into a clean
// slash separated relative path
func Normalize(name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")

	if clean == "" || clean == "." {
		return "", fmt.Errorf("%w: empty name %q", vrf.ErrAssetNotFound, name)
	}

	return clean, nil
}
