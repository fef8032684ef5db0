package ntro

import (
	"fmt"

	"github.com/Luzifer/vrf-extract/cursor"
	"github.com/Luzifer/vrf-extract/vrf"
)

// maxDepth bounds struct nesting and pointer chains so cyclic schemas
// or data cannot recurse endlessly
const maxDepth = 64

// elementBudgetFactor bounds the number of decoded array elements to a
// multiple of the block size. Arrays sharing their target bytes count
// once per reference.
const elementBudgetFactor = 4

const payloadKey = "ntro:" + vrf.BlockData

type (
	fieldDecoder struct {
		size int
		read func(d *decoder) (Value, error)
	}

	decoder struct {
		schema *Schema
		refs   *vrf.ExternalRefs
		c      *cursor.Cursor
		depth  int
		budget int
	}
)

var fieldDecoders = map[FieldType]fieldDecoder{
	TypeEnum:              {4, readUint32Value},
	TypeExternalReference: {8, readExternalReference},
	TypeString4:           {4, readStringValue},
	TypeString:            {4, readStringValue},
	TypeSByte:             {1, readInt(func(c *cursor.Cursor) (int64, error) { v, err := c.Int8(); return int64(v), err })},
	TypeByte:              {1, readInt(func(c *cursor.Cursor) (int64, error) { v, err := c.Uint8(); return int64(v), err })},
	TypeInt16:             {2, readInt(func(c *cursor.Cursor) (int64, error) { v, err := c.Int16(); return int64(v), err })},
	TypeUInt16:            {2, readInt(func(c *cursor.Cursor) (int64, error) { v, err := c.Uint16(); return int64(v), err })},
	TypeInt32:             {4, readInt(func(c *cursor.Cursor) (int64, error) { v, err := c.Int32(); return int64(v), err })},
	TypeUInt32:            {4, readUint32Value},
	TypeInt64:             {8, readInt((*cursor.Cursor).Int64)},
	TypeUInt64:            {8, readInt(func(c *cursor.Cursor) (int64, error) { v, err := c.Uint64(); return int64(v), err })}, //#nosec:G115 // kept as bit pattern
	TypeFloat:             {4, readFloatValue},
	TypeVector:            {12, readVectors(1, 3)},
	TypeQuaternion:        {16, readVectors(1, 4)},
	TypeFltx4:             {16, readVectors(1, 4)},
	TypeVector4D:          {16, readVectors(1, 4)},
	TypeVector4D44:        {16, readVectors(1, 4)},
	TypeBoolean:           {1, readBoolValue},
	TypeMatrix3x4:         {48, readVectors(3, 4)},
	TypeMatrix3x4a:        {48, readVectors(3, 4)},
	TypeCTransform:        {32, readVectors(2, 4)},
}

// Decode returns the record stored in the DATA block of the resource. The
// result is cached on the resource and must not be modified.
func Decode(res *vrf.Resource) (*Struct, error) {
	v, err := res.Payload(payloadKey, func() (any, error) {
		b, ok := res.Block(vrf.BlockData)
		if !ok {
			return nil, fmt.Errorf("%w: no %s block", vrf.ErrMalformedContainer, vrf.BlockData)
		}
		return DecodeBlock(res, b)
	})
	if err != nil {
		return nil, err
	}

	return v.(*Struct), nil //nolint:forcetypeassert // only type stored under this key
}

// DecodeBlock decodes the root struct of the resource schema from the
// start of the given block
func DecodeBlock(res *vrf.Resource, b vrf.Block) (*Struct, error) {
	schema, err := ReadSchema(res)
	if err != nil {
		return nil, err
	}

	root, ok := schema.Root()
	if !ok {
		return nil, fmt.Errorf("%w: schema does not describe any struct", vrf.ErrMalformedContainer)
	}

	refs, err := res.ExternalRefs()
	if err != nil {
		return nil, err
	}

	c, err := res.BlockCursor(b)
	if err != nil {
		return nil, err
	}

	d := &decoder{schema: schema, refs: refs, c: c, budget: (c.End() - c.Start()) * elementBudgetFactor}

	s, err := d.readStruct(root, c.Start())
	if err != nil {
		return nil, vrf.Malformed(fmt.Errorf("decoding %s: %w", root.Name, err))
	}

	return s, nil
}

func (d *decoder) enter() (func(), error) {
	if d.depth >= maxDepth {
		return nil, fmt.Errorf("nesting exceeds %d levels", maxDepth)
	}
	d.depth++
	return func() { d.depth-- }, nil
}

func (d *decoder) readStruct(def *StructDef, origin int) (*Struct, error) {
	leave, err := d.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	s := NewStruct(def.Name)
	if err = d.readFields(s, def, origin); err != nil {
		return nil, err
	}
	return s, nil
}

// readFields adds the fields of def and its base structs to s. Base
// struct fields come first and share the origin of the derived struct.
func (d *decoder) readFields(s *Struct, def *StructDef, origin int) error {
	if def.BaseStructID != 0 {
		base, ok := d.schema.Struct(def.BaseStructID)
		if !ok {
			return fmt.Errorf("base struct 0x%x of %s not in schema", def.BaseStructID, def.Name)
		}

		leave, err := d.enter()
		if err != nil {
			return err
		}
		err = d.readFields(s, base, origin)
		leave()
		if err != nil {
			return err
		}
	}

	for _, f := range def.Fields {
		v, err := d.readField(f, origin+int(f.Offset))
		if err != nil {
			return fmt.Errorf("field %s.%s: %w", def.Name, f.Name, err)
		}

		if err = s.Add(f.Name, v); err != nil {
			return err
		}
	}

	return nil
}

func (d *decoder) readField(f Field, pos int) (Value, error) {
	if len(f.Indirections) > 0 {
		return d.readIndirect(f, f.Indirections, pos)
	}

	if f.Count > 0 {
		return d.readSequence(f, pos, int(f.Count))
	}

	return d.readValue(f, pos)
}

// readIndirect follows the first indirection at pos and continues with
// the remaining ones at the target
func (d *decoder) readIndirect(f Field, levels []Indirection, pos int) (v Value, err error) {
	if len(levels) == 0 {
		return d.readValue(f, pos)
	}

	leave, err := d.enter()
	if err != nil {
		return v, err
	}
	defer leave()

	err = d.c.At(pos, func(c *cursor.Cursor) error {
		target, ok, err := c.Offset()
		if err != nil {
			return err
		}

		switch levels[0] {
		case IndirectionPointer:
			if !ok {
				v = Value{Kind: KindNull, Type: f.Type}
				return nil
			}
			v, err = d.readIndirect(f, levels[1:], target)
			return err

		case IndirectionArray:
			count, err := c.Uint32()
			if err != nil {
				return err
			}
			if count == 0 {
				v = Value{Kind: KindArray, Type: f.Type, Array: []Value{}}
				return nil
			}

			elem := f
			elem.Indirections = levels[1:]
			v, err = d.readSequence(elem, target, int(count))
			return err

		default:
			return fmt.Errorf("unknown indirection %d", levels[0])
		}
	})

	return v, err
}

// readSequence reads count consecutive elements starting at pos. The
// whole range is checked against the block and the element budget before
// reading.
func (d *decoder) readSequence(f Field, pos, count int) (Value, error) {
	size, err := d.elementSize(f)
	if err != nil {
		return Value{}, err
	}

	window := d.c.End() - d.c.Start()
	if count > window || (size > 0 && !d.c.Contains(pos, count*size)) {
		return Value{}, fmt.Errorf("%d elements of %d bytes at 0x%x exceed block: %w", count, size, pos, cursor.ErrOutOfBounds)
	}

	if count > d.budget {
		return Value{}, fmt.Errorf("%d elements at 0x%x exceed remaining element budget of %d", count, pos, d.budget)
	}
	d.budget -= count

	elem := f
	elem.Count = 0

	out := Value{Kind: KindArray, Type: f.Type, Array: make([]Value, 0, count)}
	for i := 0; i < count; i++ {
		v, err := d.readField(elem, pos+i*size)
		if err != nil {
			return Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		out.Array = append(out.Array, v)
	}

	return out, nil
}

// elementSize returns the stride of one array element of f
func (d *decoder) elementSize(f Field) (int, error) {
	if len(f.Indirections) > 0 {
		switch f.Indirections[0] {
		case IndirectionPointer:
			return 4, nil //nolint:mnd
		case IndirectionArray:
			return 8, nil //nolint:mnd
		default:
			return 0, fmt.Errorf("unknown indirection %d", f.Indirections[0])
		}
	}

	if f.Type == TypeStruct {
		def, ok := d.schema.Struct(f.TypeData)
		if !ok {
			return 0, fmt.Errorf("struct 0x%x not in schema", f.TypeData)
		}
		return int(def.DiskSize), nil
	}

	fd, ok := fieldDecoders[f.Type]
	if !ok {
		return 0, fmt.Errorf("%w: %s", vrf.ErrUnknownFieldType, f.Type)
	}
	return fd.size, nil
}

func (d *decoder) readValue(f Field, pos int) (v Value, err error) {
	if f.Type == TypeStruct {
		def, ok := d.schema.Struct(f.TypeData)
		if !ok {
			return v, fmt.Errorf("struct 0x%x not in schema", f.TypeData)
		}

		if !d.c.Contains(pos, int(def.DiskSize)) {
			return v, fmt.Errorf("struct %s at 0x%x exceeds block: %w", def.Name, pos, cursor.ErrOutOfBounds)
		}

		s, err := d.readStruct(def, pos)
		if err != nil {
			return v, err
		}
		return Value{Kind: KindStruct, Type: TypeStruct, Struct: s}, nil
	}

	fd, ok := fieldDecoders[f.Type]
	if !ok {
		return v, fmt.Errorf("%w: %s", vrf.ErrUnknownFieldType, f.Type)
	}

	err = d.c.At(pos, func(*cursor.Cursor) (err error) {
		v, err = fd.read(d)
		return err
	})
	v.Type = f.Type

	return v, err
}

func readInt(fn func(c *cursor.Cursor) (int64, error)) func(d *decoder) (Value, error) {
	return func(d *decoder) (Value, error) {
		v, err := fn(d.c)
		return Value{Kind: KindInt, Int: v}, err
	}
}

func readUint32Value(d *decoder) (Value, error) {
	v, err := d.c.Uint32()
	return Value{Kind: KindInt, Int: int64(v)}, err
}

func readFloatValue(d *decoder) (Value, error) {
	v, err := d.c.Float32()
	return Value{Kind: KindFloat, Float: v}, err
}

func readBoolValue(d *decoder) (Value, error) {
	v, err := d.c.Uint8()
	return Value{Kind: KindBool, Bool: v != 0}, err
}

func readStringValue(d *decoder) (Value, error) {
	s, err := d.c.StringAt()
	return Value{Kind: KindString, String: s}, err
}

func readExternalReference(d *decoder) (Value, error) {
	id, err := d.c.Uint64()
	if err != nil {
		return Value{}, err
	}

	ref := ResourceRef{ID: id}
	if r, ok := d.refs.Lookup(id); ok {
		ref.Name = r.Name
	}

	return Value{Kind: KindResourceRef, Ref: ref}, nil
}

// readVectors reads rows of components floats. A single row yields a
// Vector4, multiple rows an array of Vector4.
func readVectors(rows, components int) func(d *decoder) (Value, error) {
	return func(d *decoder) (Value, error) {
		vecs := make([]Value, 0, rows)

		for r := 0; r < rows; r++ {
			var f [4]float32
			for i := 0; i < components; i++ {
				v, err := d.c.Float32()
				if err != nil {
					return Value{}, err
				}
				f[i] = v
			}
			vecs = append(vecs, Value{Kind: KindVector4, Vector: Vector4{X: f[0], Y: f[1], Z: f[2], W: f[3]}})
		}

		if rows == 1 {
			return vecs[0], nil
		}
		return Value{Kind: KindArray, Array: vecs}, nil
	}
}
