// Package material maps decoded material records onto a Material and
// loads the textures they reference
package material

import (
	"fmt"

	"github.com/Luzifer/vrf-extract/ntro"
	"github.com/Luzifer/vrf-extract/vrf"
)

// Material is the consumer view of a material record. Parameter keys are
// kept as stored in the record.
type Material struct {
	Name       string
	ShaderName string

	IntParams     map[string]int64
	FloatParams   map[string]float32
	VectorParams  map[string]ntro.Vector4
	TextureParams map[string]ntro.ResourceRef

	IntAttributes    map[string]int64
	FloatAttributes  map[string]float32
	VectorAttributes map[string]ntro.Vector4
	StringAttributes map[string]string
}

// FromStruct reads the material fields from a decoded record. Name and
// shader name are required, parameter collections missing in the record
// are left empty.
func FromStruct(s *ntro.Struct) (m *Material, err error) {
	m = &Material{}

	if m.Name, err = requiredString(s, "m_materialName"); err != nil {
		return nil, err
	}
	if m.ShaderName, err = requiredString(s, "m_shaderName"); err != nil {
		return nil, err
	}

	if m.IntParams, err = collect(s, "m_intParams", "m_nValue", ntro.Value.AsInt); err != nil {
		return nil, err
	}
	if m.FloatParams, err = collect(s, "m_floatParams", "m_flValue", ntro.Value.AsFloat); err != nil {
		return nil, err
	}
	if m.VectorParams, err = collect(s, "m_vectorParams", "m_value", ntro.Value.AsVector); err != nil {
		return nil, err
	}
	if m.TextureParams, err = collect(s, "m_textureParams", "m_pValue", ntro.Value.AsRef); err != nil {
		return nil, err
	}

	if m.IntAttributes, err = collect(s, "m_intAttributes", "m_nValue", ntro.Value.AsInt); err != nil {
		return nil, err
	}
	if m.FloatAttributes, err = collect(s, "m_floatAttributes", "m_flValue", ntro.Value.AsFloat); err != nil {
		return nil, err
	}
	if m.VectorAttributes, err = collect(s, "m_vectorAttributes", "m_value", ntro.Value.AsVector); err != nil {
		return nil, err
	}
	if m.StringAttributes, err = collect(s, "m_stringAttributes", "m_value", ntro.Value.AsString); err != nil {
		return nil, err
	}

	return m, nil
}

func requiredString(s *ntro.Struct, field string) (string, error) {
	v, ok := s.Get(field)
	if !ok {
		return "", fmt.Errorf("%w: material record lacks %s", vrf.ErrMalformedContainer, field)
	}

	str, ok := v.AsString()
	if !ok {
		return "", fmt.Errorf("%w: %s holds %s, expected String", vrf.ErrMalformedContainer, field, v.Kind)
	}
	return str, nil
}

// collect reads an array of (m_name, valueField) structs into a map
func collect[T any](s *ntro.Struct, field, valueField string, as func(ntro.Value) (T, bool)) (map[string]T, error) {
	out := map[string]T{}

	v, ok := s.Get(field)
	if !ok || v.Kind == ntro.KindNull {
		return out, nil
	}

	entries, ok := v.AsArray()
	if !ok {
		return nil, fmt.Errorf("%w: %s holds %s, expected Array", vrf.ErrMalformedContainer, field, v.Kind)
	}

	for i, e := range entries {
		entry, ok := e.AsStruct()
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] holds %s, expected Struct", vrf.ErrMalformedContainer, field, i, e.Kind)
		}

		name, err := requiredString(entry, "m_name")
		if err != nil {
			return nil, fmt.Errorf("reading %s[%d]: %w", field, i, err)
		}

		raw, ok := entry.Get(valueField)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] lacks %s", vrf.ErrMalformedContainer, field, i, valueField)
		}

		value, ok := as(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d].%s holds %s", vrf.ErrMalformedContainer, field, i, valueField, raw.Kind)
		}

		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q in %s", vrf.ErrMalformedContainer, name, field)
		}
		out[name] = value
	}

	return out, nil
}
