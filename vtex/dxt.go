package vtex

import (
	"fmt"
	"image"

	"github.com/mauserzjeh/dxt"

	"github.com/Luzifer/vrf-extract/cursor"
)

const blockDim = 4

type rgba [4]uint8

func clampByte(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 0xff:
		return 0xff
	default:
		return uint8(v) //#nosec:G115 // range checked
	}
}

// fromYCoCg reverts the YCoCg transform applied before compression: Co
// is stored in red, Cg in green, the scale in blue and luma in alpha
func fromYCoCg(p rgba) rgba {
	scale := int(p[2]>>3) + 1 //nolint:mnd
	co := (int(p[0]) - 128) / scale
	cg := (int(p[1]) - 128) / scale
	y := int(p[3])

	return rgba{
		clampByte(y + co - cg),
		clampByte(y + cg),
		clampByte(y - co - cg),
		0xff,
	}
}

// blockPayload returns the bytes of all blocks covering width x height
func blockPayload(c *cursor.Cursor, width, height, blockBytes int) ([]byte, error) {
	n := ceilDiv(width, blockDim) * ceilDiv(height, blockDim) * blockBytes
	if n > c.Remaining() {
		return nil, fmt.Errorf("%d block bytes at 0x%x exceed payload of %d bytes: %w", n, c.Pos(), c.Remaining(), cursor.ErrOutOfBounds)
	}
	return c.ReadBytes(n)
}

type blockDecoder func(data []byte, width, height uint) ([]byte, error)

// decompress cuts the blocks covering width x height out of c and
// hands them to the block decoder
func decompress(c *cursor.Cursor, width, height, blockBytes int, decode blockDecoder) (*image.NRGBA, error) {
	data, err := blockPayload(c, width, height, blockBytes)
	if err != nil {
		return nil, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	if len(img.Pix) == 0 {
		return img, nil
	}

	pix, err := decode(data, uint(width), uint(height)) //#nosec:G115 // dimensions are uint16 values
	if err != nil {
		return nil, fmt.Errorf("decompressing blocks: %w", err)
	}
	if len(pix) != len(img.Pix) {
		return nil, fmt.Errorf("decompressed %d bytes for %dx%d pixels", len(pix), width, height)
	}

	copy(img.Pix, pix)
	return img, nil
}

// DecompressDXT1 decodes width x height pixels of DXT1 blocks read from c
func DecompressDXT1(c *cursor.Cursor, width, height int) (*image.NRGBA, error) {
	return decompress(c, width, height, BlockBytesDXT1, dxt.DecodeDXT1)
}

// DecompressDXT5 decodes width x height pixels of DXT5 blocks read from
// c. With yCoCg set the decoded colors are converted back from YCoCg.
func DecompressDXT5(c *cursor.Cursor, width, height int, yCoCg bool) (*image.NRGBA, error) {
	img, err := decompress(c, width, height, BlockBytesDXT5, dxt.DecodeDXT5)
	if err != nil || !yCoCg {
		return img, err
	}

	for off := 0; off < len(img.Pix); off += 4 {
		var p rgba
		copy(p[:], img.Pix[off:off+4])
		p = fromYCoCg(p)
		copy(img.Pix[off:off+4], p[:])
	}

	return img, nil
}
