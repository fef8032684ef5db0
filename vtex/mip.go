package vtex

import (
	"fmt"

	"github.com/Luzifer/vrf-extract/cursor"
)

// Bytes per 4x4 block of the compressed formats
const (
	BlockBytesDXT1 = 8
	BlockBytesDXT5 = 16
)

// maxShift caps reduction divisors, beyond it every u16 dimension is
// reduced to its minimum already
const maxShift = 30

func ceilDiv(v, d int) int { return (v + d - 1) / d }

func reduction(shift int) int { return 1 << min(max(shift, 0), maxShift) }

// RawMipSize returns the byte length of the stored mip level at reduction
// step j (j >= 2) of an uncompressed 32 bit payload: ceil(h/2^(j-1)) rows
// of floor(4*w/2^(j-1)) bytes
func RawMipSize(width, height, j int) int {
	div := reduction(j - 1)
	return ceilDiv(height, div) * (4 * width / div) //nolint:mnd
}

// CompressedMipSize returns the byte length of the stored mip level at
// reduction step j (j >= 2) of a block compressed payload:
// ceil(w/2^(j+1)) x ceil(h/2^(j+1)) blocks of blockBytes each
func CompressedMipSize(width, height, j, blockBytes int) int {
	div := reduction(j + 1)
	return ceilDiv(width, div) * ceilDiv(height, div) * blockBytes
}

// SkipRawMips advances c past all levels coarser than the full resolution
// level, which is stored last
func SkipRawMips(c *cursor.Cursor, width, height, mipCount int) error {
	for j := mipCount; j > 1; j-- {
		if err := c.Skip(RawMipSize(width, height, j)); err != nil {
			return fmt.Errorf("skipping mip level %d: %w", j, err)
		}
	}
	return nil
}

// SkipCompressedMips advances c past all levels coarser than the full
// resolution level, which is stored last
func SkipCompressedMips(c *cursor.Cursor, width, height, mipCount, blockBytes int) error {
	for j := mipCount; j > 1; j-- {
		if err := c.Skip(CompressedMipSize(width, height, j, blockBytes)); err != nil {
			return fmt.Errorf("skipping mip level %d: %w", j, err)
		}
	}
	return nil
}
