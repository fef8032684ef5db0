package main

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/HugoSmits86/nativewebp"
	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/Luzifer/vrf-extract/vrf"
	"github.com/Luzifer/vrf-extract/vtex"
)

type (
	dumpEncoder  func(w io.Writer, v any) error
	imageEncoder func(w io.Writer, img image.Image) error
)

var (
	dumpEncoders = map[string]dumpEncoder{
		"cbor": func(w io.Writer, v any) error { return cbor.NewEncoder(w).Encode(v) },

		"json": func(w io.Writer, v any) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},

		"yaml": func(w io.Writer, v any) error {
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2) //nolint:mnd
			if err := enc.Encode(v); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	imageEncoders = map[string]imageEncoder{
		"png":  png.Encode,
		"webp": func(w io.Writer, img image.Image) error { return nativewebp.Encode(w, img, nil) },
	}
)

// writeFile creates path including its parent directories and fills it
// through the write function
func writeFile(path string, write func(io.Writer) error) (err error) {
	if err = os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	f, err := os.Create(path) //#nosec:G304 // Intended to create files at given location
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing file: %w", cerr)
		}
	}()

	if err = write(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

func blockDocument(res *vrf.Resource) []map[string]any {
	out := make([]map[string]any, 0, len(res.Blocks))
	for _, b := range res.Blocks {
		out = append(out, map[string]any{
			"kind":   b.Kind,
			"offset": b.Offset,
			"size":   b.Size,
		})
	}
	return out
}

func headerDocument(h *vtex.Header) map[string]any {
	extra := make(map[string]int, len(h.ExtraData))
	for tag, data := range h.ExtraData {
		extra[tag.String()] = len(data)
	}

	return map[string]any{
		"version":      h.Version,
		"flags":        h.Flags.String(),
		"reflectivity": h.Reflectivity[:],
		"width":        h.Width,
		"height":       h.Height,
		"true_height":  h.TrueHeight,
		"depth":        h.Depth,
		"format":       h.Format.String(),
		"mip_count":    h.MipCount,
		"picmip0_res":  h.Picmip0Res,
		"extra_data":   extra,
	}
}
