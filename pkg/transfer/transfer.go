package transfer

import (
	"time"

	"github.com/uavcan-go/govcan/internal/crc"
	"github.com/uavcan-go/govcan/pkg/canid"
)

// Kind distinguishes the three transfer categories; a Kind together with
// a node-id is enough to pick the CAN-ID layout to build.
type Kind uint8

const (
	KindMessage Kind = iota
	KindServiceRequest
	KindServiceResponse
)

// Transfer is the reassembled or about-to-be-fragmented logical unit:
// one complete message or one side of a service exchange.
type Transfer struct {
	Priority     uint8 // 0..31
	TransferID   uint8 // 0..31
	SourceNodeID uint8 // 0..127; 0 = anonymous
	DestNodeID   *uint8 // services only; 1..127

	Kind          Kind
	Discriminator uint16 // anonymous messages only, 14 bits

	DataTypeID uint64 // resolves the type descriptor; independent of wire routing
	SubjectID  uint16 // wire routing for messages, 0..8191
	ServiceID  uint8  // wire routing for services, 0..255

	Payload []byte
	BaseCRC uint16 // CRC-16 seed for this transfer's data type

	MonotonicTS time.Duration
	RealTS      time.Time
}

// canID builds the 29-bit identifier this transfer is carried under.
func (t *Transfer) canID() (uint32, error) {
	switch t.Kind {
	case KindServiceRequest, KindServiceResponse:
		if t.DestNodeID == nil {
			return 0, ErrUnknownCANID
		}
		svc := canid.ServiceCANID{
			Priority:  t.Priority,
			IsRequest: t.Kind == KindServiceRequest,
			ServiceID: t.ServiceID,
			DestID:    *t.DestNodeID,
			SourceID:  t.SourceNodeID,
		}
		return svc.Encode(), nil
	default:
		if t.SourceNodeID == 0 {
			anon := canid.AnonymousMessageCANID{
				Priority:      t.Priority,
				Discriminator: t.Discriminator,
				DataTypeLow:   uint8(t.DataTypeID & 0x3),
			}
			return anon.Encode(), nil
		}
		msg := canid.MessageCANID{
			Priority:  t.Priority,
			SubjectID: t.SubjectID,
			SourceID:  t.SourceNodeID,
		}
		return msg.Encode(), nil
	}
}

// ToFrames fragments t into wire-legal frames. maxDataFieldLength is 8
// for classic CAN or up to 64 for CAN-FD; the per-frame chunk size is
// maxDataFieldLength-1 (one byte reserved for the tail byte).
func (t *Transfer) ToFrames(maxDataFieldLength int) ([]Frame, error) {
	id, err := t.canID()
	if err != nil {
		return nil, err
	}
	chunkSize := maxDataFieldLength - 1

	body := t.Payload
	if len(t.Payload) > chunkSize {
		sum := crc.Of(t.BaseCRC, t.Payload)
		body = make([]byte, 2+len(t.Payload))
		body[0] = byte(sum) // little-endian: low byte first
		body[1] = byte(sum >> 8)
		copy(body[2:], t.Payload)
	}

	nFrames := 1
	if len(body) > chunkSize {
		nFrames = (len(body) + chunkSize - 1) / chunkSize
	}

	frames := make([]Frame, nFrames)
	toggle := false
	for i := 0; i < nFrames; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(body) {
			end = len(body)
		}
		chunk := body[start:end]

		data := make([]byte, len(chunk)+1)
		copy(data, chunk)
		data[len(data)-1] = MakeTailByte(i == 0, i == nFrames-1, toggle, t.TransferID)

		frames[i] = Frame{ID: id, Data: data}
		toggle = !toggle
	}
	return frames, nil
}

// FromFrames validates and reassembles a single transfer's frame group
// (already grouped and ordered by arrival) back into a Transfer. baseCRC
// is the data type's CRC-16 seed, supplied by the caller since the
// transfer layer does not resolve type descriptors itself.
func FromFrames(frames []Frame, baseCRC uint16) (*Transfer, error) {
	if len(frames) == 0 {
		return nil, &TransferError{Reason: ErrEmptyFrameList}
	}

	parsed, ok := canid.Parse(frames[0].ID)
	if !ok {
		return nil, &TransferError{Reason: ErrUnknownCANID}
	}

	_, _, _, firstTID := ParseTailByte(frames[0].TailByte())
	expectToggle := false
	for i, f := range frames {
		sot, eot, toggle, tid := ParseTailByte(f.TailByte())
		if tid != firstTID {
			return nil, &TransferError{Reason: ErrTransferIDMismatch}
		}
		if i == 0 && !sot {
			return nil, &TransferError{Reason: ErrMissingSOT}
		}
		if i != 0 && sot {
			return nil, &TransferError{Reason: ErrUnexpectedSOT}
		}
		if i == len(frames)-1 && !eot {
			return nil, &TransferError{Reason: ErrMissingEOT}
		}
		if i != len(frames)-1 && eot {
			return nil, &TransferError{Reason: ErrUnexpectedEOT}
		}
		if toggle != expectToggle {
			return nil, &TransferError{Reason: ErrToggleMismatch}
		}
		expectToggle = !expectToggle
	}

	body := make([]byte, 0)
	for _, f := range frames {
		body = append(body, f.Chunk()...)
	}

	payload := body
	if len(frames) > 1 {
		if len(body) < 2 {
			return nil, &TransferError{Reason: ErrShortMultiFrame}
		}
		want := uint16(body[0]) | uint16(body[1])<<8
		payload = body[2:]
		got := crc.Of(baseCRC, payload)
		if got != want {
			return nil, &TransferError{Reason: ErrCRCMismatch}
		}
	}

	t := &Transfer{
		Priority:    priorityOf(parsed),
		TransferID:  firstTID,
		Payload:     payload,
		BaseCRC:     baseCRC,
		MonotonicTS: frames[len(frames)-1].Monotonic,
		RealTS:      frames[len(frames)-1].Real,
	}

	switch parsed.Role {
	case canid.RoleMessage:
		t.Kind = KindMessage
		t.SourceNodeID = parsed.Message.SourceID
		t.SubjectID = parsed.Message.SubjectID
	case canid.RoleAnonymousMessage:
		t.Kind = KindMessage
		t.SourceNodeID = 0
		t.Discriminator = parsed.Anon.Discriminator
		t.DataTypeID = uint64(parsed.Anon.DataTypeLow)
	case canid.RoleService:
		if parsed.Service.IsRequest {
			t.Kind = KindServiceRequest
		} else {
			t.Kind = KindServiceResponse
		}
		t.SourceNodeID = parsed.Service.SourceID
		dest := parsed.Service.DestID
		t.DestNodeID = &dest
		t.ServiceID = parsed.Service.ServiceID
	}
	return t, nil
}

func priorityOf(c canid.CANID) uint8 {
	switch c.Role {
	case canid.RoleMessage:
		return c.Message.Priority
	case canid.RoleAnonymousMessage:
		return c.Anon.Priority
	default:
		return c.Service.Priority
	}
}
