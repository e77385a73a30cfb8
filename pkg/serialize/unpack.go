package serialize

import (
	"github.com/uavcan-go/govcan/internal/bitstream"
	"github.com/uavcan-go/govcan/pkg/dtype"
)

// Unpack parses data against desc, treating desc as the outermost type of
// the transfer so a trailing dynamic array of byte-or-wider elements is
// read without a length prefix: its count is inferred from the number of
// bits remaining in data.
func Unpack(data []byte, desc *dtype.Descriptor) (*dtype.Value, error) {
	r := bitstream.NewReader(data, len(data)*8)
	return unpackValue(r, desc, true)
}

func unpackValue(r *bitstream.Reader, desc *dtype.Descriptor, tail bool) (*dtype.Value, error) {
	switch desc.Kind {
	case dtype.KindVoid:
		if _, err := r.Get(desc.BitLen); err != nil {
			return nil, err
		}
		return dtype.NewValue(desc), nil
	case dtype.KindPrimitive:
		bitlen := desc.BitLen
		var raw uint64
		if bitlen%8 == 0 {
			le, err := r.GetBytes(bitlen)
			if err != nil {
				return nil, err
			}
			raw = bitstream.Uint64FromBEBytes(bitstream.BEFromLEBits(le, bitlen))
		} else {
			var err error
			raw, err = r.Get(bitlen)
			if err != nil {
				return nil, err
			}
		}
		v := dtype.NewValue(desc)
		if err := v.SetRawBits(raw); err != nil {
			return nil, err
		}
		return v, nil
	case dtype.KindArray:
		return unpackArray(r, desc, tail)
	default:
		return unpackComposite(r, desc, tail)
	}
}

func unpackArray(r *bitstream.Reader, desc *dtype.Descriptor, tail bool) (*dtype.Value, error) {
	v := dtype.NewValue(desc)

	var n int
	switch {
	case desc.ArrayMode == dtype.ArrayStatic:
		n = desc.MaxSize
	case tail:
		width, ok := fixedElementBits(desc.ElementType)
		if !ok {
			return nil, ErrUnsupportedTailElement
		}
		if width == 0 {
			n = 0
		} else {
			n = r.Remaining() / width
		}
		if n > desc.MaxSize {
			n = desc.MaxSize
		}
	default:
		lenBits := lengthFieldBits(desc.MaxSize)
		raw, err := r.Get(lenBits)
		if err != nil {
			return nil, err
		}
		if int(raw) > desc.MaxSize {
			return nil, ErrArrayLengthExceedsMax
		}
		n = int(raw)
	}

	if desc.ArrayMode == dtype.ArrayStatic {
		for i := 0; i < n; i++ {
			e, err := unpackValue(r, desc.ElementType, false)
			if err != nil {
				return nil, err
			}
			v.Elements()[i] = e
		}
		return v, nil
	}

	for i := 0; i < n; i++ {
		e, err := unpackValue(r, desc.ElementType, false)
		if err != nil {
			return nil, err
		}
		if err := v.AppendValue(e); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func unpackComposite(r *bitstream.Reader, desc *dtype.Descriptor, tail bool) (*dtype.Value, error) {
	v := dtype.NewValue(desc)

	if desc.Union {
		tagLen := dtype.UnionTagLen(len(desc.Fields))
		tag, err := r.Get(tagLen)
		if err != nil {
			return nil, err
		}
		if int(tag) >= len(desc.Fields) {
			return nil, ErrUnionTagOutOfRange
		}
		field := desc.Fields[tag]
		child, err := unpackValue(r, field.Type, tail)
		if err != nil {
			return nil, err
		}
		if err := v.SetField(field.Name, child); err != nil {
			return nil, err
		}
		if err := v.MarkActive(field.Name); err != nil {
			return nil, err
		}
		return v, nil
	}

	for i, f := range desc.Fields {
		isLast := i == len(desc.Fields)-1
		childTail := tail && isLast && dtype.TailOptimized(f.Type, i, len(desc.Fields))
		child, err := unpackValue(r, f.Type, childTail)
		if err != nil {
			return nil, err
		}
		if err := v.SetField(f.Name, child); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// fixedElementBits returns the statically known per-element bit width of
// a tail-array element type: void and primitive elements qualify,
// composites and nested arrays do not (tail optimization is only
// supported for the common byte/primitive-array case).
func fixedElementBits(desc *dtype.Descriptor) (int, bool) {
	switch desc.Kind {
	case dtype.KindVoid, dtype.KindPrimitive:
		return desc.BitLen, true
	default:
		return 0, false
	}
}
