package serialize

import (
	"github.com/uavcan-go/govcan/internal/bitstream"
	"github.com/uavcan-go/govcan/pkg/dtype"
)

// Pack renders v to its bit-packed wire representation. v's own type is
// treated as the outermost type of the transfer, so a trailing dynamic
// array of byte-or-wider elements is tail-array optimized (its length
// field is omitted; the decoder infers the count from the frame's own
// length instead).
func Pack(v *dtype.Value) ([]byte, error) {
	w := &bitstream.Writer{}
	if err := packValue(w, v, true); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func packValue(w *bitstream.Writer, v *dtype.Value, tail bool) error {
	switch v.Desc.Kind {
	case dtype.KindVoid:
		w.Put(v.Desc.BitLen, 0)
		return nil
	case dtype.KindPrimitive:
		raw, err := v.RawBits()
		if err != nil {
			return err
		}
		bitlen := v.Desc.BitLen
		if bitlen%8 == 0 {
			be := bitstream.BEBytesFromUint64(raw, bitlen/8)
			w.PutBytes(bitlen, bitstream.LEFromBEBits(be, bitlen))
		} else {
			w.Put(bitlen, raw)
		}
		return nil
	case dtype.KindArray:
		return packArray(w, v, tail)
	default:
		return packComposite(w, v, tail)
	}
}

func packArray(w *bitstream.Writer, v *dtype.Value, tail bool) error {
	n, err := v.Len()
	if err != nil {
		return err
	}
	if v.Desc.ArrayMode == dtype.ArrayDynamic && !tail {
		lenBits := lengthFieldBits(v.Desc.MaxSize)
		w.Put(lenBits, uint64(n))
	}
	for i := 0; i < n; i++ {
		e, err := v.Index(i)
		if err != nil {
			return err
		}
		if err := packValue(w, e, false); err != nil {
			return err
		}
	}
	return nil
}

func packComposite(w *bitstream.Writer, v *dtype.Value, tail bool) error {
	if v.Desc.Union {
		idx := 0
		for i, f := range v.Desc.Fields {
			if f.Name == v.ActiveField() {
				idx = i
				break
			}
		}
		tagLen := dtype.UnionTagLen(len(v.Desc.Fields))
		w.Put(tagLen, uint64(idx))
		active, err := v.Field(v.Desc.Fields[idx].Name)
		if err != nil {
			return err
		}
		return packValue(w, active, tail)
	}
	for i, f := range v.Desc.Fields {
		child, err := v.Field(f.Name)
		if err != nil {
			return err
		}
		isLast := i == len(v.Desc.Fields)-1
		childTail := tail && isLast && dtype.TailOptimized(f.Type, i, len(v.Desc.Fields))
		if err := packValue(w, child, childTail); err != nil {
			return err
		}
	}
	return nil
}

// lengthFieldBits is the bit width of a dynamic array's length prefix:
// ceil(log2(maxSize)) or 1, whichever is greater.
func lengthFieldBits(maxSize int) int {
	bits := 0
	for (1 << bits) < maxSize {
		bits++
	}
	if bits == 0 {
		bits = 1
	}
	return bits
}
