package vrf

import (
	"fmt"

	"github.com/Luzifer/vrf-extract/cursor"
)

const externalRefEntrySize = 16

type (
	// ExternalRef names another resource this one depends on
	ExternalRef struct {
		ID   uint64
		Name string
	}

	// ExternalRefs is the decoded RERL block
	ExternalRefs struct {
		Refs []ExternalRef

		byID map[uint64]int
	}
)

// Lookup returns the reference with the given id
func (e *ExternalRefs) Lookup(id uint64) (ExternalRef, bool) {
	if e == nil {
		return ExternalRef{}, false
	}

	idx, ok := e.byID[id]
	if !ok {
		return ExternalRef{}, false
	}
	return e.Refs[idx], true
}

// ExternalRefs returns the decoded RERL block. A resource without such
// block yields an empty list.
func (r *Resource) ExternalRefs() (*ExternalRefs, error) {
	v, err := r.Payload(BlockExternalRefs, func() (any, error) {
		b, ok := r.Block(BlockExternalRefs)
		if !ok {
			return &ExternalRefs{byID: map[uint64]int{}}, nil
		}

		c, err := r.BlockCursor(b)
		if err != nil {
			return nil, err
		}

		refs, err := readExternalRefs(c)
		if err != nil {
			return nil, Malformed(fmt.Errorf("reading external references: %w", err))
		}
		return refs, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*ExternalRefs), nil //nolint:forcetypeassert // only type stored under this key
}

func readExternalRefs(c *cursor.Cursor) (*ExternalRefs, error) {
	out := &ExternalRefs{byID: map[uint64]int{}}

	start, ok, err := c.Offset()
	if err != nil {
		return nil, fmt.Errorf("reading offset: %w", err)
	}

	count, err := c.Uint32()
	if err != nil {
		return nil, fmt.Errorf("reading count: %w", err)
	}

	if !ok || count == 0 {
		return out, nil
	}

	if int(count) > c.End()/externalRefEntrySize || !c.Contains(start, int(count)*externalRefEntrySize) {
		return nil, fmt.Errorf("%d entries at 0x%x exceed block: %w", count, start, cursor.ErrOutOfBounds)
	}

	if err = c.Seek(start); err != nil {
		return nil, err
	}

	for i := uint32(0); i < count; i++ {
		var ref ExternalRef

		if ref.ID, err = c.Uint64(); err != nil {
			return nil, fmt.Errorf("reading id of entry %d: %w", i, err)
		}

		if ref.Name, err = c.StringAt(); err != nil {
			return nil, fmt.Errorf("reading name of entry %d: %w", i, err)
		}

		if err = c.Skip(4); err != nil { //nolint:mnd // reserved
			return nil, err
		}

		out.byID[ref.ID] = len(out.Refs)
		out.Refs = append(out.Refs, ref)
	}

	return out, nil
}
