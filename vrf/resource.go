// Package vrf contains a reader for compiled resource files: a header
// followed by a directory of typed, offset-addressed blocks
package vrf

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Luzifer/vrf-extract/cursor"
)

const (
	headerSize             = 16
	blockEntrySize         = 12
	supportedHeaderVersion = 12
)

// Block kinds consumed by the decoders in this module
const (
	BlockData         = "DATA"
	BlockEditInfo     = "REDI"
	BlockExternalRefs = "RERL"
	BlockIntrospect   = "NTRO"
)

type (
	// Block is one typed payload region of the resource
	Block struct {
		Kind   string
		Offset uint32
		Size   uint32
	}

	// Resource holds the buffer of one resource file and its parsed block
	// directory. The buffer is never modified, a Resource can be shared
	// between goroutines; every decode creates its own cursor.
	Resource struct {
		FileSize      uint32
		HeaderVersion uint16
		Version       uint16

		// Blocks in the order declared in the directory
		Blocks []Block

		buf    []byte
		byKind map[string]int

		payloadLock sync.Mutex
		payloads    map[string]*payload
	}

	payload struct {
		once  sync.Once
		value any
		err   error
	}
)

// End returns the absolute offset just past the block
func (b Block) End() int { return int(b.Offset) + int(b.Size) }

func (b Block) String() string {
	return fmt.Sprintf("%s @ 0x%x (%d bytes)", b.Kind, b.Offset, b.Size)
}

// Decode parses the header and block directory of the given buffer. The
// buffer is retained and must not be modified afterwards.
func Decode(buf []byte) (*Resource, error) {
	c := cursor.New(buf)

	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes are too short for a header", ErrMalformedContainer, len(buf))
	}

	r := &Resource{
		buf:      buf,
		byKind:   map[string]int{},
		payloads: map[string]*payload{},
	}

	var err error
	if r.FileSize, err = c.Uint32(); err != nil {
		return nil, Malformed(fmt.Errorf("reading file size: %w", err))
	}
	if r.HeaderVersion, err = c.Uint16(); err != nil {
		return nil, Malformed(fmt.Errorf("reading header version: %w", err))
	}
	if r.Version, err = c.Uint16(); err != nil {
		return nil, Malformed(fmt.Errorf("reading version: %w", err))
	}

	// Sanity checks
	if r.HeaderVersion != supportedHeaderVersion {
		return nil, fmt.Errorf("%w: unexpected header version %d", ErrMalformedContainer, r.HeaderVersion)
	}

	if int(r.FileSize) > len(buf) {
		return nil, fmt.Errorf("%w: declared file size %d exceeds buffer of %d bytes", ErrMalformedContainer, r.FileSize, len(buf))
	}

	// The table offset is relative to its own field, zero is valid here
	field := c.Pos()
	rel, err := c.Uint32()
	if err != nil {
		return nil, Malformed(fmt.Errorf("reading block offset: %w", err))
	}
	tablePos := field + int(rel)

	count, err := c.Uint32()
	if err != nil {
		return nil, Malformed(fmt.Errorf("reading block count: %w", err))
	}

	if int(count) > len(buf)/blockEntrySize || !c.Contains(tablePos, int(count)*blockEntrySize) {
		return nil, fmt.Errorf("%w: block table of %d entries at 0x%x exceeds buffer", ErrMalformedContainer, count, tablePos)
	}

	if err = c.Seek(tablePos); err != nil {
		return nil, Malformed(err)
	}

	for i := uint32(0); i < count; i++ {
		b, err := readBlockEntry(c)
		if err != nil {
			return nil, Malformed(fmt.Errorf("reading block entry %d: %w", i, err))
		}

		if b.End() > len(buf) {
			return nil, fmt.Errorf("%w: block %s exceeds buffer of %d bytes", ErrMalformedContainer, b, len(buf))
		}

		if _, ok := r.byKind[b.Kind]; ok {
			return nil, fmt.Errorf("%w: duplicate block %q", ErrMalformedContainer, b.Kind)
		}

		r.byKind[b.Kind] = len(r.Blocks)
		r.Blocks = append(r.Blocks, b)
	}

	if err = checkOverlap(r.Blocks); err != nil {
		return nil, err
	}

	return r, nil
}

func readBlockEntry(c *cursor.Cursor) (b Block, err error) {
	if b.Kind, err = c.Tag(); err != nil {
		return b, fmt.Errorf("reading kind: %w", err)
	}

	// Offsets point relative to the field holding them
	field := c.Pos()
	rel, err := c.Uint32()
	if err != nil {
		return b, fmt.Errorf("reading offset: %w", err)
	}

	if b.Size, err = c.Uint32(); err != nil {
		return b, fmt.Errorf("reading size: %w", err)
	}

	b.Offset = uint32(field) + rel //#nosec:G115 // field is bound by the buffer size
	if b.Offset < rel {
		return b, fmt.Errorf("offset of %s overflows", b.Kind)
	}

	return b, nil
}

// checkOverlap rejects blocks sharing bytes. Empty blocks cover no bytes
// and are accepted at any offset inside the buffer.
func checkOverlap(blocks []Block) error {
	sorted := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if b.Size > 0 {
			sorted = append(sorted, b)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].End() > int(sorted[i].Offset) {
			return fmt.Errorf("%w: block %s overlaps %s", ErrMalformedContainer, sorted[i-1], sorted[i])
		}
	}

	return nil
}

// Block returns the block of the given kind. Absence is not an error,
// callers decide whether the block is mandatory.
func (r *Resource) Block(kind string) (Block, bool) {
	idx, ok := r.byKind[kind]
	if !ok {
		return Block{}, false
	}
	return r.Blocks[idx], true
}

// Bytes returns the underlying buffer. It must not be modified.
func (r *Resource) Bytes() []byte { return r.buf }

// Cursor creates a new cursor over the whole buffer
func (r *Resource) Cursor() *cursor.Cursor { return cursor.New(r.buf) }

// BlockCursor creates a new cursor restricted to the byte range of b
func (r *Resource) BlockCursor(b Block) (*cursor.Cursor, error) {
	c, err := cursor.New(r.buf).Window(int(b.Offset), int(b.Size))
	if err != nil {
		return nil, Malformed(fmt.Errorf("opening block %s: %w", b.Kind, err))
	}
	return c, nil
}

// Payload returns the decoded payload stored under key, running decode
// on first access. The result, including a failure, is kept for the
// lifetime of the resource. decode may request payloads of other keys.
func (r *Resource) Payload(key string, decode func() (any, error)) (any, error) {
	r.payloadLock.Lock()
	p, ok := r.payloads[key]
	if !ok {
		p = &payload{}
		r.payloads[key] = p
	}
	r.payloadLock.Unlock()

	p.once.Do(func() { p.value, p.err = decode() })
	return p.value, p.err
}
