// Package vtex decodes texture resources: the texture header stored in
// the DATA block and the pixel payload following it
package vtex

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Luzifer/vrf-extract/cursor"
	"github.com/Luzifer/vrf-extract/vrf"
)

const (
	supportedVersion    = 1
	extraDataEntrySize  = 12
	extraDataFieldsSize = 8
	trueHeightMinSize   = 8
	headerPayloadKey    = "vtex:header"
)

// Header is the decoded texture header
type Header struct {
	Version      uint16
	Flags        Flags
	Reflectivity [4]float32
	Width        uint16
	Height       uint16
	// TrueHeight is the unpadded height, equal to Height unless a
	// FILL_TO_POWER_OF_TWO chunk is present
	TrueHeight uint16
	Depth      uint16
	Format     Format
	MipCount   uint8
	Picmip0Res uint32

	ExtraData map[ExtraDataTag][]byte

	// DataOffset is the absolute position of the pixel payload: the end
	// of the block holding the header
	DataOffset int

	extraOrder []ExtraDataTag
}

// DecodeHeader returns the texture header stored in the DATA block of the
// resource. The result is cached on the resource.
func DecodeHeader(res *vrf.Resource) (*Header, error) {
	v, err := res.Payload(headerPayloadKey, func() (any, error) {
		b, ok := res.Block(vrf.BlockData)
		if !ok {
			return nil, fmt.Errorf("%w: no %s block", vrf.ErrMalformedContainer, vrf.BlockData)
		}
		return DecodeHeaderBlock(res, b)
	})
	if err != nil {
		return nil, err
	}

	return v.(*Header), nil //nolint:forcetypeassert // only type stored under this key
}

// DecodeHeaderBlock decodes a texture header from the start of the given
// block
func DecodeHeaderBlock(res *vrf.Resource, b vrf.Block) (*Header, error) {
	c, err := res.BlockCursor(b)
	if err != nil {
		return nil, err
	}

	h, err := readHeader(c)
	if err != nil {
		return nil, vrf.Malformed(fmt.Errorf("reading texture header: %w", err))
	}

	h.DataOffset = b.End()
	return h, nil
}

//nolint:gocyclo // sequential field reads
func readHeader(c *cursor.Cursor) (h *Header, err error) {
	h = &Header{ExtraData: map[ExtraDataTag][]byte{}}

	if h.Version, err = c.Uint16(); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}

	if h.Version != supportedVersion {
		return nil, fmt.Errorf("%w: texture version %d", vrf.ErrUnsupportedVersion, h.Version)
	}

	flags, err := c.Uint16()
	if err != nil {
		return nil, fmt.Errorf("reading flags: %w", err)
	}
	h.Flags = Flags(flags)

	for i := range h.Reflectivity {
		if h.Reflectivity[i], err = c.Float32(); err != nil {
			return nil, fmt.Errorf("reading reflectivity: %w", err)
		}
	}

	if h.Width, err = c.Uint16(); err != nil {
		return nil, fmt.Errorf("reading width: %w", err)
	}
	if h.Height, err = c.Uint16(); err != nil {
		return nil, fmt.Errorf("reading height: %w", err)
	}
	h.TrueHeight = h.Height

	if h.Depth, err = c.Uint16(); err != nil {
		return nil, fmt.Errorf("reading depth: %w", err)
	}

	format, err := c.Uint8()
	if err != nil {
		return nil, fmt.Errorf("reading format: %w", err)
	}
	h.Format = Format(format)

	if h.MipCount, err = c.Uint8(); err != nil {
		return nil, fmt.Errorf("reading mip count: %w", err)
	}
	if h.Picmip0Res, err = c.Uint32(); err != nil {
		return nil, fmt.Errorf("reading picmip resolution: %w", err)
	}

	extraOffset, err := c.Uint32()
	if err != nil {
		return nil, fmt.Errorf("reading extra data offset: %w", err)
	}
	extraCount, err := c.Uint32()
	if err != nil {
		return nil, fmt.Errorf("reading extra data count: %w", err)
	}

	if extraCount == 0 {
		return h, nil
	}

	// The offset is relative to its own field, both fields were consumed
	if err = c.Skip(int(extraOffset) - extraDataFieldsSize); err != nil {
		return nil, fmt.Errorf("seeking extra data directory: %w", err)
	}

	if int(extraCount) > c.Remaining()/extraDataEntrySize {
		return nil, fmt.Errorf("%d extra data entries at 0x%x exceed block: %w", extraCount, c.Pos(), cursor.ErrOutOfBounds)
	}

	for i := uint32(0); i < extraCount; i++ {
		if err = h.readExtraData(c); err != nil {
			return nil, fmt.Errorf("reading extra data entry %d: %w", i, err)
		}
	}

	return h, nil
}

// readExtraData reads one directory entry and its chunk. The cursor ends
// up just after the entry, whether the chunk read succeeds or not.
func (h *Header) readExtraData(c *cursor.Cursor) error {
	raw, err := c.Uint32()
	if err != nil {
		return err
	}
	tag := ExtraDataTag(raw)

	rel, err := c.Uint32()
	if err != nil {
		return err
	}

	size, err := c.Uint32()
	if err != nil {
		return err
	}

	if _, ok := h.ExtraData[tag]; ok {
		return fmt.Errorf("duplicate chunk %s", tag)
	}

	// Stored offset is biased by the two fields following it
	chunkPos := c.Pos() + int(rel) - extraDataFieldsSize

	var data []byte
	if err = c.At(chunkPos, func(c *cursor.Cursor) (err error) {
		data, err = c.ReadBytes(int(size))
		return err
	}); err != nil {
		return fmt.Errorf("reading chunk %s: %w", tag, err)
	}

	if tag == ExtraFillToPowerOfTwo {
		if len(data) < trueHeightMinSize {
			return fmt.Errorf("chunk %s has %d bytes, need %d", tag, len(data), trueHeightMinSize)
		}
		h.TrueHeight = uint16(binary.LittleEndian.Uint32(data[4:8])) //#nosec:G115 // truncation matches the stored height width
	}

	h.ExtraData[tag] = data
	h.extraOrder = append(h.extraOrder, tag)
	return nil
}

// IsCompressed reports whether the payload is block compressed
func (h *Header) IsCompressed() bool {
	return h.Format == FormatDXT1 || h.Format == FormatDXT5
}

func (h *Header) String() string {
	var b strings.Builder

	line := func(key, format string, args ...any) {
		fmt.Fprintf(&b, "%-12s = "+format+"\n", append([]any{key}, args...)...)
	}

	line("VTEX Version", "%d", h.Version)
	line("Width", "%d", h.Width)
	line("Height", "%d", h.Height)
	line("TrueHeight", "%d", h.TrueHeight)
	line("Depth", "%d", h.Depth)
	line("Reflectivity", "( %.6f, %.6f, %.6f, %.6f )", h.Reflectivity[0], h.Reflectivity[1], h.Reflectivity[2], h.Reflectivity[3])
	line("NumMipLevels", "%d", h.MipCount)
	line("Picmip0Res", "%d", h.Picmip0Res)
	line("Format", "%d (VTEX_FORMAT_%s)", uint8(h.Format), h.Format)
	line("Flags", "0x%08X", uint16(h.Flags))

	for _, n := range flagNames {
		if h.Flags.Has(n.flag) {
			fmt.Fprintf(&b, "%-12s | 0x%08X = VTEX_FLAG_%s\n", "", uint16(n.flag), n.name)
		}
	}

	line("Extra Data", "%d entries:", len(h.ExtraData))
	for i, tag := range h.extraOrder {
		fmt.Fprintf(&b, "%-12s   [ Entry %d: VTEX_EXTRA_DATA_%s - %d bytes ]\n", "", i, tag, len(h.ExtraData[tag]))
	}

	return b.String()
}
