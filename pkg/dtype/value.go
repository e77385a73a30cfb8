package dtype

import "math"

// Value is a mutable instance of a [Descriptor]'s shape: a tree mirroring
// the type it was constructed from. Primitives hold a raw numeric payload,
// arrays hold child Values, composites hold a field name to child Value
// map. Unions additionally track which field is currently active.
type Value struct {
	Desc *Descriptor

	raw uint64 // primitive payload: zero-extended uint, two's complement int, or IEEE bits

	elements []*Value // array

	fields map[string]*Value // composite
	active string           // composite+union only; "" means unresolved
}

// NewValue builds a default-initialized Value tree for desc: primitives
// start at numeric zero, static arrays are pre-populated with MaxSize
// default elements, dynamic arrays start empty, and composite fields are
// all default-initialized recursively. A union's active field is left
// unresolved until the first read or write.
func NewValue(desc *Descriptor) *Value {
	v := &Value{Desc: desc}
	switch desc.Kind {
	case KindArray:
		if desc.ArrayMode == ArrayStatic {
			v.elements = make([]*Value, desc.MaxSize)
			for i := range v.elements {
				v.elements[i] = NewValue(desc.ElementType)
			}
		}
	case KindComposite:
		v.fields = make(map[string]*Value, len(desc.Fields))
		for _, f := range desc.Fields {
			v.fields[f.Name] = NewValue(f.Type)
		}
	}
	return v
}

// --- primitive accessors ---

// SetBool sets a primitive-bool value.
func (v *Value) SetBool(b bool) error {
	if v.Desc.Kind != KindPrimitive || v.Desc.PrimKind != PrimitiveBool {
		return ErrTypeMismatch
	}
	if b {
		v.raw = 1
	} else {
		v.raw = 0
	}
	return nil
}

// GetBool returns a primitive-bool value.
func (v *Value) GetBool() (bool, error) {
	if v.Desc.Kind != KindPrimitive || v.Desc.PrimKind != PrimitiveBool {
		return false, ErrTypeMismatch
	}
	return v.raw != 0, nil
}

// SetUint sets a primitive-uint value, applying the descriptor's cast
// mode.
func (v *Value) SetUint(u uint64) error {
	if v.Desc.Kind != KindPrimitive || v.Desc.PrimKind != PrimitiveUint {
		return ErrTypeMismatch
	}
	v.raw = CastUint(v.Desc, u)
	return nil
}

// GetUint returns a primitive-uint value.
func (v *Value) GetUint() (uint64, error) {
	if v.Desc.Kind != KindPrimitive || v.Desc.PrimKind != PrimitiveUint {
		return 0, ErrTypeMismatch
	}
	return v.raw, nil
}

// SetInt sets a primitive-int value, applying the descriptor's cast mode.
func (v *Value) SetInt(i int64) error {
	if v.Desc.Kind != KindPrimitive || v.Desc.PrimKind != PrimitiveInt {
		return ErrTypeMismatch
	}
	cast := CastInt(v.Desc, i)
	v.raw = uint64(cast) & maskFor(v.Desc.BitLen)
	return nil
}

// GetInt returns a primitive-int value, sign-extended from the
// descriptor's bit width.
func (v *Value) GetInt() (int64, error) {
	if v.Desc.Kind != KindPrimitive || v.Desc.PrimKind != PrimitiveInt {
		return 0, ErrTypeMismatch
	}
	return signExtend(v.raw, v.Desc.BitLen), nil
}

// SetFloat sets a primitive-float value, applying the descriptor's cast
// mode. The raw payload is stored as IEEE-754 bits at the descriptor's
// width (16, 32 or 64).
func (v *Value) SetFloat(f float64) error {
	if v.Desc.Kind != KindPrimitive || v.Desc.PrimKind != PrimitiveFloat {
		return ErrTypeMismatch
	}
	cast := CastFloat(v.Desc, f)
	switch v.Desc.BitLen {
	case 16:
		v.raw = uint64(Float32ToFloat16Bits(float32(cast)))
	case 32:
		v.raw = uint64(math.Float32bits(float32(cast)))
	default:
		v.raw = math.Float64bits(cast)
	}
	return nil
}

// GetFloat returns a primitive-float value as a float64.
func (v *Value) GetFloat() (float64, error) {
	if v.Desc.Kind != KindPrimitive || v.Desc.PrimKind != PrimitiveFloat {
		return 0, ErrTypeMismatch
	}
	switch v.Desc.BitLen {
	case 16:
		return float64(Float16BitsToFloat32(uint16(v.raw))), nil
	case 32:
		return float64(math.Float32frombits(uint32(v.raw))), nil
	default:
		return math.Float64frombits(v.raw), nil
	}
}

// RawBits returns a primitive Value's stored payload exactly as packed
// on the wire (already cast by the last Set call), for use by the
// serialization engine.
func (v *Value) RawBits() (uint64, error) {
	if v.Desc.Kind != KindPrimitive {
		return 0, ErrTypeMismatch
	}
	return v.raw, nil
}

// SetRawBits sets a primitive Value's payload directly from bits already
// decoded off the wire, bypassing cast. Used by the serialization engine
// when unpacking.
func (v *Value) SetRawBits(raw uint64) error {
	if v.Desc.Kind != KindPrimitive {
		return ErrTypeMismatch
	}
	v.raw = raw
	return nil
}

// --- array accessors ---

// Len returns the number of elements currently held by an array value.
func (v *Value) Len() (int, error) {
	if v.Desc.Kind != KindArray {
		return 0, ErrNotArray
	}
	return len(v.elements), nil
}

// Index returns the child Value at position i of an array value.
func (v *Value) Index(i int) (*Value, error) {
	if v.Desc.Kind != KindArray {
		return nil, ErrNotArray
	}
	if i < 0 || i >= len(v.elements) {
		return nil, ErrArrayBounds
	}
	return v.elements[i], nil
}

// Append grows a dynamic array value by one element, defaulting it to
// child's descriptor, and returns it. It fails once the array already
// holds MaxSize elements.
func (v *Value) Append() (*Value, error) {
	if v.Desc.Kind != KindArray || v.Desc.ArrayMode != ArrayDynamic {
		return nil, ErrNotArray
	}
	if len(v.elements) >= v.Desc.MaxSize {
		return nil, ErrArrayBounds
	}
	child := NewValue(v.Desc.ElementType)
	v.elements = append(v.elements, child)
	return child, nil
}

// Elements returns the backing slice of a static array's child values,
// for direct in-place population by the serialization engine when
// unpacking. Callers must not resize the returned slice.
func (v *Value) Elements() []*Value {
	return v.elements
}

// AppendValue appends an already-constructed child to a dynamic array
// value, enforcing the descriptor's MaxSize. It is the engine-facing
// counterpart of Append, used when unpacking a value decoded off the
// wire rather than default-initialized.
func (v *Value) AppendValue(child *Value) error {
	if v.Desc.Kind != KindArray || v.Desc.ArrayMode != ArrayDynamic {
		return ErrNotArray
	}
	if len(v.elements) >= v.Desc.MaxSize {
		return ErrArrayBounds
	}
	v.elements = append(v.elements, child)
	return nil
}

// SetField installs an already-constructed child under name on a
// composite value, bypassing the union active-field invariant. It is the
// engine-facing counterpart of Field, used when unpacking a value
// decoded off the wire.
func (v *Value) SetField(name string, child *Value) error {
	if v.Desc.Kind != KindComposite {
		return ErrNotComposite
	}
	if _, ok := v.fields[name]; !ok {
		return ErrUnknownField
	}
	v.fields[name] = child
	return nil
}

// SetString overwrites a string-like dynamic array (7- or 8-bit unsigned
// elements) from the UTF-8 bytes of s, one byte per element.
func (v *Value) SetString(s string) error {
	if v.Desc.Kind != KindArray || !v.Desc.StringLike {
		return ErrTypeMismatch
	}
	data := []byte(s)
	if v.Desc.ArrayMode == ArrayStatic && len(data) != v.Desc.MaxSize {
		return ErrArrayBounds
	}
	if v.Desc.ArrayMode == ArrayDynamic && len(data) > v.Desc.MaxSize {
		return ErrArrayBounds
	}
	elements := make([]*Value, len(data))
	for i, b := range data {
		e := NewValue(v.Desc.ElementType)
		_ = e.SetUint(uint64(b))
		elements[i] = e
	}
	v.elements = elements
	return nil
}

// GetString reads a string-like array value back out as a string.
func (v *Value) GetString() (string, error) {
	if v.Desc.Kind != KindArray || !v.Desc.StringLike {
		return "", ErrTypeMismatch
	}
	buf := make([]byte, len(v.elements))
	for i, e := range v.elements {
		u, err := e.GetUint()
		if err != nil {
			return "", err
		}
		buf[i] = byte(u)
	}
	return string(buf), nil
}

// --- composite accessors ---

// Field returns the named field of a composite value. For a union, the
// first field ever accessed (read or write) becomes the active member;
// subsequent access to any other field name fails with
// ErrInvalidFieldAccess until SetActive switches it.
func (v *Value) Field(name string) (*Value, error) {
	if v.Desc.Kind != KindComposite {
		return nil, ErrNotComposite
	}
	child, ok := v.fields[name]
	if !ok {
		return nil, ErrUnknownField
	}
	if !v.Desc.Union {
		return child, nil
	}
	if v.active == "" {
		v.active = name
	} else if v.active != name {
		return nil, ErrInvalidFieldAccess
	}
	return child, nil
}

// SetActive switches a union composite's active field, resetting that
// field to its default value. It is the explicit equivalent of writing
// through Field for the first time.
func (v *Value) SetActive(name string) (*Value, error) {
	if v.Desc.Kind != KindComposite || !v.Desc.Union {
		return nil, ErrNotComposite
	}
	fieldDesc, ok := v.fields[name]
	if !ok {
		return nil, ErrUnknownField
	}
	v.active = name
	fresh := NewValue(fieldDesc.Desc)
	v.fields[name] = fresh
	return fresh, nil
}

// MarkActive sets a union composite's active field without touching the
// stored child value, for use by the serialization engine after it has
// already installed the decoded child via SetField.
func (v *Value) MarkActive(name string) error {
	if v.Desc.Kind != KindComposite || !v.Desc.Union {
		return ErrNotComposite
	}
	if _, ok := v.fields[name]; !ok {
		return ErrUnknownField
	}
	v.active = name
	return nil
}

// ActiveField returns the name of a union composite's active field, or
// "" if none has been resolved yet.
func (v *Value) ActiveField() string {
	return v.active
}

// Equal reports whether two Values carry the same descriptor shape and
// payload, recursing through arrays and composites. It is intended for
// round-trip tests, not general-purpose use.
func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}
	if v.Desc.Kind != other.Desc.Kind {
		return false
	}
	switch v.Desc.Kind {
	case KindVoid:
		return true
	case KindPrimitive:
		return v.raw == other.raw
	case KindArray:
		if len(v.elements) != len(other.elements) {
			return false
		}
		for i := range v.elements {
			if !v.elements[i].Equal(other.elements[i]) {
				return false
			}
		}
		return true
	default:
		if v.Desc.Union && v.active != other.active {
			return false
		}
		for name, child := range v.fields {
			oc, ok := other.fields[name]
			if !ok || !child.Equal(oc) {
				return false
			}
		}
		return true
	}
}
