package vrf

import (
	"fmt"

	"github.com/Luzifer/vrf-extract/cursor"
)

// EditInfoSection indexes the struct lists of the REDI block
type EditInfoSection int

// Sections of the REDI block in wire order
const (
	InputDependencies EditInfoSection = iota
	AdditionalInputDependencies
	ArgumentDependencies
	SpecialDependencies
	CustomDependencies
	AdditionalRelatedFiles
	ChildResourceList
	ExtraIntData
	ExtraFloatData
	ExtraStringData

	editInfoSectionCount
)

const specialDependencyEntrySize = 16

type (
	// SpecialDependency records a compiler step which influenced the
	// compiled payload
	SpecialDependency struct {
		String             string
		CompilerIdentifier string
		Fingerprint        uint32
		UserData           uint32
	}

	// EditInfo is the decoded REDI block. Only the special dependencies
	// are decoded, the other sections report their entry count.
	EditInfo struct {
		Counts              [editInfoSectionCount]uint32
		SpecialDependencies []SpecialDependency
	}
)

// HasSpecialDependency reports whether a special dependency with the
// given compiler identifier and string is present
func (e *EditInfo) HasSpecialDependency(compilerIdentifier, str string) bool {
	if e == nil {
		return false
	}

	for _, d := range e.SpecialDependencies {
		if d.CompilerIdentifier == compilerIdentifier && d.String == str {
			return true
		}
	}
	return false
}

// EditInfo returns the decoded REDI block. A resource without such block
// yields an empty edit info.
func (r *Resource) EditInfo() (*EditInfo, error) {
	v, err := r.Payload(BlockEditInfo, func() (any, error) {
		b, ok := r.Block(BlockEditInfo)
		if !ok {
			return &EditInfo{}, nil
		}

		c, err := r.BlockCursor(b)
		if err != nil {
			return nil, err
		}

		info, err := readEditInfo(c)
		if err != nil {
			return nil, Malformed(fmt.Errorf("reading edit info: %w", err))
		}
		return info, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*EditInfo), nil //nolint:forcetypeassert // only type stored under this key
}

func readEditInfo(c *cursor.Cursor) (*EditInfo, error) {
	var (
		info    = &EditInfo{}
		offsets [editInfoSectionCount]int
	)

	for i := EditInfoSection(0); i < editInfoSectionCount; i++ {
		pos, _, err := c.Offset()
		if err != nil {
			return nil, fmt.Errorf("reading offset of section %d: %w", i, err)
		}

		if info.Counts[i], err = c.Uint32(); err != nil {
			return nil, fmt.Errorf("reading count of section %d: %w", i, err)
		}
		offsets[i] = pos
	}

	count := int(info.Counts[SpecialDependencies])
	if count == 0 {
		return info, nil
	}

	start := offsets[SpecialDependencies]
	if count > c.End()/specialDependencyEntrySize || !c.Contains(start, count*specialDependencyEntrySize) {
		return nil, fmt.Errorf("%d special dependencies at 0x%x exceed block: %w", count, start, cursor.ErrOutOfBounds)
	}

	if err := c.Seek(start); err != nil {
		return nil, err
	}

	for i := 0; i < count; i++ {
		var (
			d   SpecialDependency
			err error
		)

		if d.String, err = c.StringAt(); err != nil {
			return nil, fmt.Errorf("reading string of special dependency %d: %w", i, err)
		}
		if d.CompilerIdentifier, err = c.StringAt(); err != nil {
			return nil, fmt.Errorf("reading compiler identifier of special dependency %d: %w", i, err)
		}
		if d.Fingerprint, err = c.Uint32(); err != nil {
			return nil, fmt.Errorf("reading fingerprint of special dependency %d: %w", i, err)
		}
		if d.UserData, err = c.Uint32(); err != nil {
			return nil, fmt.Errorf("reading user data of special dependency %d: %w", i, err)
		}

		info.SpecialDependencies = append(info.SpecialDependencies, d)
	}

	return info, nil
}
