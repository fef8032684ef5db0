package vrftest

import "fmt"

type (
	// ExternalRef is one entry of the RERL block
	ExternalRef struct {
		ID   uint64
		Name string
	}

	// SpecialDependency is one special dependency of the REDI block
	SpecialDependency struct {
		String             string
		CompilerIdentifier string
	}

	// Field describes a schema field of the NTRO block
	Field struct {
		Name         string
		Type         int16
		TypeData     uint32
		Offset       int16
		Count        int16
		Indirections []byte
	}

	// Struct describes a schema struct of the NTRO block
	Struct struct {
		ID       uint32
		Name     string
		DiskSize uint16
		BaseID   uint32
		Fields   []Field
	}

	// ExtraData is one extra data chunk of a texture header
	ExtraData struct {
		Tag  uint32
		Data []byte
	}

	// Texture describes the header written into the DATA block of a
	// texture resource
	Texture struct {
		Version      uint16
		Flags        uint16
		Reflectivity [4]float32
		Width        uint16
		Height       uint16
		Depth        uint16
		Format       uint8
		MipCount     uint8
		Picmip0Res   uint32
		ExtraData    []ExtraData
	}
)

// ExternalRefsBlock builds a RERL payload
func ExternalRefsBlock(refs ...ExternalRef) []byte {
	w := NewWriter()

	if len(refs) == 0 {
		w.U32(0)
		w.U32(0)
		return w.Bytes()
	}

	w.Ref("entries")
	w.U32(uint32(len(refs))) //#nosec:G115

	w.Mark("entries")
	for i, r := range refs {
		w.U64(r.ID)
		w.Ref(fmt.Sprintf("name%d", i))
		w.U32(0)
	}

	for i, r := range refs {
		w.CString(fmt.Sprintf("name%d", i), r.Name)
	}

	return w.Bytes()
}

// EditInfoBlock builds a REDI payload carrying only special dependencies
func EditInfoBlock(deps ...SpecialDependency) []byte {
	const (
		sections       = 10
		specialSection = 3
	)

	w := NewWriter()

	for i := 0; i < sections; i++ {
		if i == specialSection && len(deps) > 0 {
			w.Ref("special")
			w.U32(uint32(len(deps))) //#nosec:G115
			continue
		}
		w.U32(0)
		w.U32(0)
	}

	w.Mark("special")
	for i := range deps {
		w.Ref(fmt.Sprintf("str%d", i))
		w.Ref(fmt.Sprintf("cid%d", i))
		w.U32(0)
		w.U32(0)
	}

	for i, d := range deps {
		w.CString(fmt.Sprintf("str%d", i), d.String)
		w.CString(fmt.Sprintf("cid%d", i), d.CompilerIdentifier)
	}

	return w.Bytes()
}

// IntrospectionBlock builds a NTRO payload describing the given structs.
// The first struct is the root of the DATA block.
func IntrospectionBlock(structs ...Struct) []byte {
	w := NewWriter()

	w.U32(4) //nolint:mnd // introspection version
	w.Ref("structs")
	w.U32(uint32(len(structs))) //#nosec:G115
	w.U32(0)
	w.U32(0)

	w.Mark("structs")
	for si, s := range structs {
		w.U32(4) //nolint:mnd
		w.U32(s.ID)
		w.Ref(fmt.Sprintf("sname%d", si))
		w.U32(0)
		w.I32(0)
		w.U16(s.DiskSize)
		w.U16(4) //nolint:mnd
		w.U32(s.BaseID)
		if len(s.Fields) > 0 {
			w.Ref(fmt.Sprintf("fields%d", si))
		} else {
			w.U32(0)
		}
		w.U32(uint32(len(s.Fields))) //#nosec:G115
		w.U32(0)
	}

	for si, s := range structs {
		w.Mark(fmt.Sprintf("fields%d", si))
		for fi, f := range s.Fields {
			w.Ref(fmt.Sprintf("fname%d.%d", si, fi))
			w.I16(f.Count)
			w.I16(f.Offset)
			if len(f.Indirections) > 0 {
				w.Ref(fmt.Sprintf("ind%d.%d", si, fi))
			} else {
				w.U32(0)
			}
			w.U32(uint32(len(f.Indirections))) //#nosec:G115
			w.U32(f.TypeData)
			w.I16(f.Type)
			w.U16(0)
		}
	}

	for si, s := range structs {
		w.CString(fmt.Sprintf("sname%d", si), s.Name)
		for fi, f := range s.Fields {
			w.CString(fmt.Sprintf("fname%d.%d", si, fi), f.Name)
			if len(f.Indirections) > 0 {
				w.Mark(fmt.Sprintf("ind%d.%d", si, fi))
				w.Raw(f.Indirections)
			}
		}
	}

	return w.Bytes()
}

// Bytes builds the texture header including the extra data directory and
// chunk payloads
func (t Texture) Bytes() []byte {
	w := NewWriter()

	w.U16(t.Version)
	w.U16(t.Flags)
	for _, r := range t.Reflectivity {
		w.F32(r)
	}
	w.U16(t.Width)
	w.U16(t.Height)
	w.U16(t.Depth)
	w.U8(t.Format)
	w.U8(t.MipCount)
	w.U32(t.Picmip0Res)

	if len(t.ExtraData) == 0 {
		w.U32(0)
		w.U32(0)
		return w.Bytes()
	}

	w.Ref("extra")
	w.U32(uint32(len(t.ExtraData))) //#nosec:G115

	w.Mark("extra")
	for i, e := range t.ExtraData {
		w.U32(e.Tag)
		w.Ref(fmt.Sprintf("chunk%d", i))
		w.U32(uint32(len(e.Data))) //#nosec:G115
	}

	for i, e := range t.ExtraData {
		w.Mark(fmt.Sprintf("chunk%d", i))
		w.Raw(e.Data)
	}

	return w.Bytes()
}
