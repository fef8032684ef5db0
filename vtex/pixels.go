package vtex

import (
	"fmt"
	"image"
	"math"

	"github.com/x448/float16"

	"github.com/Luzifer/vrf-extract/cursor"
	"github.com/Luzifer/vrf-extract/vrf"
)

// Special dependency flagging YCoCg encoded DXT5 payloads
const (
	YCoCgCompilerIdentifier = "CompileTexture"
	YCoCgDependency         = "Texture Compiler Version Image YCoCg Conversion"
)

const pixelsPayloadKey = "vtex:pixels"

// Channel sizes of the float formats
const (
	halfBytes  = 2
	floatBytes = 4
)

// Options controls DecodePixels
type Options struct {
	// YCoCg reverts the YCoCg transform of DXT5 payloads
	YCoCg bool
}

// IsYCoCg reports whether the edit info of the resource flags the DXT5
// payload as YCoCg encoded
func IsYCoCg(res *vrf.Resource) (bool, error) {
	info, err := res.EditInfo()
	if err != nil {
		return false, err
	}
	return info.HasSpecialDependency(YCoCgCompilerIdentifier, YCoCgDependency), nil
}

// Decode returns header and full resolution image of the texture
// resource. Both are cached on the resource and must not be modified.
func Decode(res *vrf.Resource) (*Header, image.Image, error) {
	h, err := DecodeHeader(res)
	if err != nil {
		return nil, nil, err
	}

	v, err := res.Payload(pixelsPayloadKey, func() (any, error) {
		var opts Options
		if h.Format == FormatDXT5 {
			yCoCg, err := IsYCoCg(res)
			if err != nil {
				return nil, err
			}
			opts.YCoCg = yCoCg
		}

		c, err := res.Cursor().Window(h.DataOffset, len(res.Bytes())-h.DataOffset)
		if err != nil {
			return nil, vrf.Malformed(fmt.Errorf("opening pixel payload: %w", err))
		}

		return DecodePixels(h, c, opts)
	})
	if err != nil {
		return h, nil, err
	}

	return h, v.(image.Image), nil //nolint:forcetypeassert // only type stored under this key
}

// DecodePixels decodes the full resolution image of the payload starting
// at the cursor position. Only the first slice of volume textures is
// decoded.
func DecodePixels(h *Header, c *cursor.Cursor, opts Options) (img image.Image, err error) {
	w, ht := int(h.Width), int(h.Height)

	switch h.Format {
	case FormatRGBA8888:
		if err = SkipRawMips(c, w, ht, int(h.MipCount)); err == nil {
			img, err = readRGBA8888(c, w, ht)
		}

	case FormatRGBA16161616F:
		img, err = readFloatPixels(c, w, ht, halfBytes, readHalf)

	case FormatRGBA32323232F:
		img, err = readFloatPixels(c, w, ht, floatBytes, (*cursor.Cursor).Float32)

	case FormatDXT1:
		var nrgba *image.NRGBA
		if err = SkipCompressedMips(c, w, ht, int(h.MipCount), BlockBytesDXT1); err == nil {
			nrgba, err = DecompressDXT1(c, w, ht)
		}
		img = cropped(nrgba, h)

	case FormatDXT5:
		var nrgba *image.NRGBA
		if err = SkipCompressedMips(c, w, ht, int(h.MipCount), BlockBytesDXT5); err == nil {
			nrgba, err = DecompressDXT5(c, w, ht, opts.YCoCg)
		}
		img = cropped(nrgba, h)

	case FormatPNG, FormatJPEGRGBA8888, FormatPNGRGBA8888:
		img, err = decodeEmbedded(c)

	default:
		return nil, fmt.Errorf("%w: %s", vrf.ErrUnsupportedPixelFormat, h.Format)
	}

	if err != nil {
		return nil, vrf.Malformed(fmt.Errorf("decoding %s pixels: %w", h.Format, err))
	}

	return img, nil
}

// cropped removes the rows below TrueHeight. A TrueHeight of 0 means
// the texture was not padded and keeps its full height.
func cropped(img *image.NRGBA, h *Header) image.Image {
	if img == nil {
		return nil
	}

	if h.TrueHeight == 0 || h.TrueHeight >= h.Height {
		return img
	}

	out := image.NewNRGBA(image.Rect(0, 0, int(h.Width), int(h.TrueHeight)))
	copy(out.Pix, img.Pix[:len(out.Pix)])
	return out
}

// readRGBA8888 reads little-endian 32 bit pixels holding R in the lowest
// and A in the highest byte
func readRGBA8888(c *cursor.Cursor, w, h int) (*image.NRGBA, error) {
	if w*h*4 > c.Remaining() {
		return nil, fmt.Errorf("%dx%d pixels exceed payload of %d bytes: %w", w, h, c.Remaining(), cursor.ErrOutOfBounds)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			raw, err := c.Uint32()
			if err != nil {
				return nil, err
			}

			off := img.PixOffset(x, y)
			img.Pix[off+0] = uint8(raw)       //#nosec:G115 // byte extraction
			img.Pix[off+1] = uint8(raw >> 8)  //#nosec:G115 // byte extraction
			img.Pix[off+2] = uint8(raw >> 16) //#nosec:G115 // byte extraction
			img.Pix[off+3] = uint8(raw >> 24) //#nosec:G115 // byte extraction
		}
	}

	return img, nil
}

func readHalf(c *cursor.Cursor) (float32, error) {
	v, err := c.Uint16()
	return float16.Frombits(v).Float32(), err
}

// floatChannel maps a float channel onto 0..255 by scaling with 255.
// Values outside 0..1 are clamped and NaN becomes 0, the raw value is
// never truncated to an integer.
func floatChannel(v float32) uint8 {
	f := float64(v) * 0xff
	switch {
	case math.IsNaN(f), f <= 0:
		return 0
	case f >= 0xff:
		return 0xff
	default:
		return uint8(f)
	}
}

// readFloatPixels reads four float channels (R, G, B, A) per pixel. The
// payload stores the last pixel first, so the image is filled from the
// bottom right corner backwards.
func readFloatPixels(c *cursor.Cursor, w, h, size int, read func(*cursor.Cursor) (float32, error)) (*image.NRGBA, error) {
	if w*h*4*size > c.Remaining() {
		return nil, fmt.Errorf("%dx%d pixels exceed payload of %d bytes: %w", w, h, c.Remaining(), cursor.ErrOutOfBounds)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := h - 1; y >= 0; y-- {
		for x := w - 1; x >= 0; x-- {
			off := img.PixOffset(x, y)

			for ch := 0; ch < 4; ch++ {
				v, err := read(c)
				if err != nil {
					return nil, fmt.Errorf("reading pixel %d,%d: %w", x, y, err)
				}
				img.Pix[off+ch] = floatChannel(v)
			}
		}
	}

	return img, nil
}
