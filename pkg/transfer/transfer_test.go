package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS1SingleFrameMessage(t *testing.T) {
	payload := make([]byte, 7)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	tr := &Transfer{
		Priority: 16, TransferID: 5, SourceNodeID: 42,
		SubjectID: 341, Payload: payload,
	}
	frames, err := tr.ToFrames(8)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	want := uint32(16)<<24 | uint32(341)<<8 | 42
	assert.Equal(t, want, frames[0].ID)
	assert.Len(t, frames[0].Data, 8)
	assert.Equal(t, byte(0xC5), frames[0].Data[7])

	back, err := FromFrames(frames, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, back.Payload)
	assert.EqualValues(t, 5, back.TransferID)
	assert.EqualValues(t, 42, back.SourceNodeID)
	assert.EqualValues(t, 341, back.SubjectID)
}

func TestMultiFramePayloadRoundTrip(t *testing.T) {
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}
	tr := &Transfer{
		Priority: 4, TransferID: 1, SourceNodeID: 7,
		SubjectID: 100, Payload: payload, BaseCRC: 0xFFFF,
	}
	frames, err := tr.ToFrames(8)
	require.NoError(t, err)
	// 2-byte CRC + 20 payload = 22 bytes / 7-byte chunks = 4 frames (7,7,7,1)
	require.Len(t, frames, 4)
	assert.Len(t, frames[0].Data, 8)
	assert.Len(t, frames[1].Data, 8)
	assert.Len(t, frames[2].Data, 8)
	assert.Len(t, frames[3].Data, 2)

	toggles := make([]bool, len(frames))
	for i, f := range frames {
		sot, eot, toggle, tid := ParseTailByte(f.TailByte())
		assert.EqualValues(t, 1, tid)
		assert.Equal(t, i == 0, sot)
		assert.Equal(t, i == len(frames)-1, eot)
		toggles[i] = toggle
	}
	assert.Equal(t, []bool{false, true, false, true}, toggles)

	back, err := FromFrames(frames, 0xFFFF)
	require.NoError(t, err)
	assert.Equal(t, payload, back.Payload)
}

func TestCRCBitFlipRejected(t *testing.T) {
	payload := make([]byte, 20)
	tr := &Transfer{Priority: 4, TransferID: 1, SourceNodeID: 7, SubjectID: 100, Payload: payload, BaseCRC: 0}
	frames, err := tr.ToFrames(8)
	require.NoError(t, err)

	// flip a bit in the middle frame's data (not the tail byte)
	frames[1].Data[0] ^= 0x01

	_, err = FromFrames(frames, 0)
	require.Error(t, err)
	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, te, ErrCRCMismatch)
}

func TestMultipleOf7PayloadLastFrameExactly7(t *testing.T) {
	payload := make([]byte, 12) // 2 (crc) + 12 = 14 = two 7-byte chunks exactly
	tr := &Transfer{Priority: 1, TransferID: 2, SourceNodeID: 1, SubjectID: 1, Payload: payload, BaseCRC: 0}
	frames, err := tr.ToFrames(8)
	require.NoError(t, err)
	// 2 + 12 = 14 bytes = two 7-byte frames exactly
	require.Len(t, frames, 2)
	assert.Len(t, frames[0].Data, 8)
	assert.Len(t, frames[1].Data, 8)
}

func TestToggleStartsAtZero(t *testing.T) {
	payload := make([]byte, 1)
	tr := &Transfer{Priority: 1, TransferID: 0, SourceNodeID: 1, SubjectID: 1, Payload: payload}
	frames, err := tr.ToFrames(8)
	require.NoError(t, err)
	_, _, toggle, _ := ParseTailByte(frames[0].TailByte())
	assert.False(t, toggle)
}

func TestReassemblyBasic(t *testing.T) {
	payload := make([]byte, 20)
	tr := &Transfer{Priority: 1, TransferID: 3, SourceNodeID: 1, SubjectID: 1, Payload: payload}
	frames, err := tr.ToFrames(8)
	require.NoError(t, err)

	m := NewManager(time.Second)
	now := time.Now()
	var complete []Frame
	for _, f := range frames {
		got, done := m.ReceiveFrame(f, now)
		if done {
			complete = got
		}
	}
	require.NotNil(t, complete)
	assert.Len(t, complete, len(frames))
}

func TestReassemblyDropsMidTransferFrameWithoutBucket(t *testing.T) {
	payload := make([]byte, 20)
	tr := &Transfer{Priority: 1, TransferID: 3, SourceNodeID: 1, SubjectID: 1, Payload: payload}
	frames, err := tr.ToFrames(8)
	require.NoError(t, err)

	m := NewManager(time.Second)
	now := time.Now()
	// feed frame 1 (no SOT) before frame 0: must be dropped, no bucket created
	_, done := m.ReceiveFrame(frames[1], now)
	assert.False(t, done)
	assert.Equal(t, 0, m.Pending())
}

func TestReassemblyTimeoutReapsBucket(t *testing.T) {
	payload := make([]byte, 20)
	tr := &Transfer{Priority: 1, TransferID: 3, SourceNodeID: 1, SubjectID: 1, Payload: payload}
	frames, err := tr.ToFrames(8)
	require.NoError(t, err)

	m := NewManager(time.Second)
	base := time.Now()
	_, done := m.ReceiveFrame(frames[0], base)
	require.False(t, done)
	assert.Equal(t, 1, m.Pending())

	removed := m.Sweep(base.Add(1100 * time.Millisecond))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, m.Pending())

	// the late EOT frame now finds no bucket and is dropped
	_, done = m.ReceiveFrame(frames[len(frames)-1], base.Add(1100*time.Millisecond))
	assert.False(t, done)
}
