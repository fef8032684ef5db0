// Package ntro decodes schema-described records: the NTRO block of a
// resource describes structs and their fields, the DATA block holds one
// instance of the first described struct
package ntro

import (
	"fmt"

	"github.com/Luzifer/vrf-extract/cursor"
	"github.com/Luzifer/vrf-extract/vrf"
)

const (
	schemaHeaderSize = 20
	structEntrySize  = 40
	fieldEntrySize   = 24
)

// FieldType is the type tag of a schema field
type FieldType int16

// Known field types
const (
	TypeStruct            FieldType = 1
	TypeEnum              FieldType = 2
	TypeExternalReference FieldType = 3
	TypeString4           FieldType = 4
	TypeSByte             FieldType = 10
	TypeByte              FieldType = 11
	TypeInt16             FieldType = 12
	TypeUInt16            FieldType = 13
	TypeInt32             FieldType = 14
	TypeUInt32            FieldType = 15
	TypeInt64             FieldType = 16
	TypeUInt64            FieldType = 17
	TypeFloat             FieldType = 18
	TypeVector            FieldType = 22
	TypeQuaternion        FieldType = 25
	TypeFltx4             FieldType = 27
	TypeVector4D          FieldType = 28
	TypeBoolean           FieldType = 30
	TypeString            FieldType = 31
	TypeMatrix3x4         FieldType = 33
	TypeMatrix3x4a        FieldType = 36
	TypeCTransform        FieldType = 40
	TypeVector4D44        FieldType = 44
)

var fieldTypeNames = map[FieldType]string{
	TypeStruct:            "Struct",
	TypeEnum:              "Enum",
	TypeExternalReference: "ExternalReference",
	TypeString4:           "String4",
	TypeSByte:             "SByte",
	TypeByte:              "Byte",
	TypeInt16:             "Int16",
	TypeUInt16:            "UInt16",
	TypeInt32:             "Int32",
	TypeUInt32:            "UInt32",
	TypeInt64:             "Int64",
	TypeUInt64:            "UInt64",
	TypeFloat:             "Float",
	TypeVector:            "Vector",
	TypeQuaternion:        "Quaternion",
	TypeFltx4:             "Fltx4",
	TypeVector4D:          "Vector4D",
	TypeBoolean:           "Boolean",
	TypeString:            "String",
	TypeMatrix3x4:         "Matrix3x4",
	TypeMatrix3x4a:        "Matrix3x4a",
	TypeCTransform:        "CTransform",
	TypeVector4D44:        "Vector4D_44",
}

func (t FieldType) String() string {
	if n, ok := fieldTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("FieldType(%d)", int16(t))
}

// Indirection describes how a field reaches its value
type Indirection byte

// Known indirections
const (
	IndirectionPointer Indirection = 3
	IndirectionArray   Indirection = 4
)

type (
	// Field is one field of a struct definition
	Field struct {
		Name string
		// Count > 0 marks an inline fixed-size array
		Count        int16
		Offset       int16
		Indirections []Indirection
		// TypeData holds the struct id for TypeStruct fields
		TypeData uint32
		Type     FieldType
	}

	// StructDef is one struct definition of the schema
	StructDef struct {
		IntrospectionVersion uint32
		ID                   uint32
		Name                 string
		DiskCRC              uint32
		UserVersion          int32
		DiskSize             uint16
		Alignment            uint16
		BaseStructID         uint32
		Fields               []Field
		Flags                uint32
	}

	// Schema is the decoded NTRO block
	Schema struct {
		Version   uint32
		Structs   []*StructDef
		EnumCount uint32

		byID map[uint32]*StructDef
	}
)

// Struct returns the definition with the given id
func (s *Schema) Struct(id uint32) (*StructDef, bool) {
	def, ok := s.byID[id]
	return def, ok
}

// Root returns the definition of the record stored in the DATA block
func (s *Schema) Root() (*StructDef, bool) {
	if len(s.Structs) == 0 {
		return nil, false
	}
	return s.Structs[0], true
}

// ReadSchema returns the decoded NTRO block of the resource
func ReadSchema(res *vrf.Resource) (*Schema, error) {
	v, err := res.Payload(vrf.BlockIntrospect, func() (any, error) {
		b, ok := res.Block(vrf.BlockIntrospect)
		if !ok {
			return nil, fmt.Errorf("%w: no %s block", vrf.ErrMalformedContainer, vrf.BlockIntrospect)
		}

		c, err := res.BlockCursor(b)
		if err != nil {
			return nil, err
		}

		s, err := readSchema(c)
		if err != nil {
			return nil, vrf.Malformed(fmt.Errorf("reading schema: %w", err))
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Schema), nil //nolint:forcetypeassert // only type stored under this key
}

func readSchema(c *cursor.Cursor) (s *Schema, err error) {
	s = &Schema{byID: map[uint32]*StructDef{}}

	if c.Remaining() < schemaHeaderSize {
		return nil, fmt.Errorf("%d bytes are too short for a schema header: %w", c.Remaining(), cursor.ErrOutOfBounds)
	}

	if s.Version, err = c.Uint32(); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}

	structPos, _, err := c.Offset()
	if err != nil {
		return nil, fmt.Errorf("reading struct offset: %w", err)
	}

	count, err := c.Uint32()
	if err != nil {
		return nil, fmt.Errorf("reading struct count: %w", err)
	}

	if _, _, err = c.Offset(); err != nil {
		return nil, fmt.Errorf("reading enum offset: %w", err)
	}
	if s.EnumCount, err = c.Uint32(); err != nil {
		return nil, fmt.Errorf("reading enum count: %w", err)
	}

	if count == 0 {
		return s, nil
	}

	if int(count) > c.End()/structEntrySize || !c.Contains(structPos, int(count)*structEntrySize) {
		return nil, fmt.Errorf("%d structs at 0x%x exceed block: %w", count, structPos, cursor.ErrOutOfBounds)
	}

	if err = c.Seek(structPos); err != nil {
		return nil, err
	}

	for i := uint32(0); i < count; i++ {
		def, err := readStructDef(c)
		if err != nil {
			return nil, fmt.Errorf("reading struct %d: %w", i, err)
		}

		if _, ok := s.byID[def.ID]; ok {
			return nil, fmt.Errorf("duplicate struct id 0x%x (%s)", def.ID, def.Name)
		}

		s.byID[def.ID] = def
		s.Structs = append(s.Structs, def)
	}

	return s, nil
}

func readStructDef(c *cursor.Cursor) (def *StructDef, err error) {
	def = &StructDef{}

	if def.IntrospectionVersion, err = c.Uint32(); err != nil {
		return nil, err
	}
	if def.ID, err = c.Uint32(); err != nil {
		return nil, err
	}
	if def.Name, err = c.StringAt(); err != nil {
		return nil, fmt.Errorf("reading name: %w", err)
	}
	if def.DiskCRC, err = c.Uint32(); err != nil {
		return nil, err
	}
	if def.UserVersion, err = c.Int32(); err != nil {
		return nil, err
	}
	if def.DiskSize, err = c.Uint16(); err != nil {
		return nil, err
	}
	if def.Alignment, err = c.Uint16(); err != nil {
		return nil, err
	}
	if def.BaseStructID, err = c.Uint32(); err != nil {
		return nil, err
	}

	fieldPos, _, err := c.Offset()
	if err != nil {
		return nil, err
	}

	count, err := c.Uint32()
	if err != nil {
		return nil, err
	}

	if def.Flags, err = c.Uint32(); err != nil {
		return nil, err
	}

	if count == 0 {
		return def, nil
	}

	if int(count) > c.End()/fieldEntrySize || !c.Contains(fieldPos, int(count)*fieldEntrySize) {
		return nil, fmt.Errorf("%d fields of %s at 0x%x exceed block: %w", count, def.Name, fieldPos, cursor.ErrOutOfBounds)
	}

	err = c.At(fieldPos, func(c *cursor.Cursor) error {
		for i := uint32(0); i < count; i++ {
			f, err := readField(c)
			if err != nil {
				return fmt.Errorf("reading field %d of %s: %w", i, def.Name, err)
			}
			def.Fields = append(def.Fields, f)
		}
		return nil
	})

	return def, err
}

func readField(c *cursor.Cursor) (f Field, err error) {
	if f.Name, err = c.StringAt(); err != nil {
		return f, fmt.Errorf("reading name: %w", err)
	}
	if f.Count, err = c.Int16(); err != nil {
		return f, err
	}
	if f.Offset, err = c.Int16(); err != nil {
		return f, err
	}

	indPos, _, err := c.Offset()
	if err != nil {
		return f, err
	}

	indCount, err := c.Uint32()
	if err != nil {
		return f, err
	}

	if f.TypeData, err = c.Uint32(); err != nil {
		return f, err
	}

	t, err := c.Int16()
	if err != nil {
		return f, err
	}
	f.Type = FieldType(t)

	if err = c.Skip(2); err != nil { //nolint:mnd // padding
		return f, err
	}

	if indCount == 0 {
		return f, nil
	}

	err = c.At(indPos, func(c *cursor.Cursor) error {
		raw, err := c.ReadBytes(int(indCount))
		if err != nil {
			return fmt.Errorf("reading %d indirections of %s: %w", indCount, f.Name, err)
		}

		for _, b := range raw {
			f.Indirections = append(f.Indirections, Indirection(b))
		}
		return nil
	})

	return f, err
}
