package ntro

import "fmt"

// Kind is the variant held by a Value
type Kind uint8

// Value variants
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindVector4
	KindStruct
	KindArray
	KindResourceRef
)

var kindNames = [...]string{"Null", "Bool", "Int", "Float", "String", "Vector4", "Struct", "Array", "ResourceRef"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

type (
	// Vector4 holds four float components. Three component vectors are
	// stored with W=0.
	Vector4 struct {
		X, Y, Z, W float32
	}

	// ResourceRef points to another resource by id. Name is empty when the
	// id is not listed in the external reference block.
	ResourceRef struct {
		ID   uint64
		Name string
	}

	// Value is one decoded node of the record tree. Only the member
	// belonging to Kind is set.
	Value struct {
		Kind Kind
		// Type is the schema type the value was decoded from
		Type FieldType

		Bool   bool
		Int    int64
		Float  float32
		String string
		Vector Vector4
		Struct *Struct
		Array  []Value
		Ref    ResourceRef
	}

	// Member is one named field of a Struct
	Member struct {
		Name  string
		Value Value
	}

	// Struct is a decoded record with fields in schema order
	Struct struct {
		Name   string
		Fields []Member

		index map[string]int
	}
)

// NewStruct creates an empty struct with the given schema name
func NewStruct(name string) *Struct {
	return &Struct{Name: name, index: map[string]int{}}
}

// Add appends a field. Field names are unique within a struct.
func (s *Struct) Add(name string, v Value) error {
	if _, ok := s.index[name]; ok {
		return fmt.Errorf("duplicate field %q in %s", name, s.Name)
	}

	s.index[name] = len(s.Fields)
	s.Fields = append(s.Fields, Member{Name: name, Value: v})
	return nil
}

// Get returns the field with the given name
func (s *Struct) Get(name string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}

	idx, ok := s.index[name]
	if !ok {
		return Value{}, false
	}
	return s.Fields[idx].Value, true
}

// Interface converts the struct into a map for generic encoders
func (s *Struct) Interface() map[string]any {
	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Name] = f.Value.Interface()
	}
	return out
}

// AsString returns the string held by the value
func (v Value) AsString() (string, bool) { return v.String, v.Kind == KindString }

// AsInt returns the integer held by the value
func (v Value) AsInt() (int64, bool) { return v.Int, v.Kind == KindInt }

// AsFloat returns the float held by the value
func (v Value) AsFloat() (float32, bool) { return v.Float, v.Kind == KindFloat }

// AsVector returns the vector held by the value
func (v Value) AsVector() (Vector4, bool) { return v.Vector, v.Kind == KindVector4 }

// AsStruct returns the struct held by the value
func (v Value) AsStruct() (*Struct, bool) { return v.Struct, v.Kind == KindStruct }

// AsArray returns the elements held by the value
func (v Value) AsArray() ([]Value, bool) { return v.Array, v.Kind == KindArray }

// AsRef returns the resource reference held by the value
func (v Value) AsRef() (ResourceRef, bool) { return v.Ref, v.Kind == KindResourceRef }

// Interface converts the value into plain Go types: nil, bool, int64 or
// uint64, float32, string, []float32, map[string]any, []any
func (v Value) Interface() any {
	switch v.Kind {
	case KindBool:
		return v.Bool

	case KindInt:
		if v.Type == TypeUInt64 {
			return uint64(v.Int) //#nosec:G115 // stored as bit pattern
		}
		return v.Int

	case KindFloat:
		return v.Float

	case KindString:
		return v.String

	case KindVector4:
		return []float32{v.Vector.X, v.Vector.Y, v.Vector.Z, v.Vector.W}

	case KindStruct:
		return v.Struct.Interface()

	case KindArray:
		out := make([]any, len(v.Array))
		for i := range v.Array {
			out[i] = v.Array[i].Interface()
		}
		return out

	case KindResourceRef:
		return map[string]any{"id": v.Ref.ID, "name": v.Ref.Name}

	default:
		return nil
	}
}
