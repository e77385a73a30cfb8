package bitstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutGetRoundTrip(t *testing.T) {
	w := &Writer{}
	w.Put(5, 0x1A)
	w.Put(3, 0x5)
	w.Put(16, 0x1234)
	data := w.Bytes()
	assert.Equal(t, 24, w.Len())

	r := NewReader(data, w.Len())
	v1, err := r.Get(5)
	assert.NoError(t, err)
	assert.EqualValues(t, 0x1A&0x1F, v1)
	v2, err := r.Get(3)
	assert.NoError(t, err)
	assert.EqualValues(t, 0x5, v2)
	v3, err := r.Get(16)
	assert.NoError(t, err)
	assert.EqualValues(t, 0x1234, v3)
}

func TestGetShortBufferError(t *testing.T) {
	w := &Writer{}
	w.Put(4, 0xF)
	r := NewReader(w.Bytes(), w.Len())
	_, err := r.Get(5)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestLEFromBERoundTrip(t *testing.T) {
	be := []byte{0x12, 0x34}
	le := LEFromBEBits(be, 16)
	assert.Equal(t, []byte{0x34, 0x12}, le)
	assert.Equal(t, be, BEFromLEBits(le, 16))
}

func TestPutBytesSpliceMatchesPut(t *testing.T) {
	inner := &Writer{}
	inner.Put(13, 0x1555)
	outer := &Writer{}
	outer.Put(3, 0x5)
	outer.PutBytes(13, inner.Bytes())

	direct := &Writer{}
	direct.Put(3, 0x5)
	direct.Put(13, 0x1555)

	assert.Equal(t, direct.Bytes(), outer.Bytes())
}
