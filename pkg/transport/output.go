package transport

import (
	"time"

	"github.com/uavcan-go/govcan/pkg/dtype"
	"github.com/uavcan-go/govcan/pkg/media"
	"github.com/uavcan-go/govcan/pkg/serialize"
	"github.com/uavcan-go/govcan/pkg/session"
	"github.com/uavcan-go/govcan/pkg/transfer"
)

// OutputSession is a broadcast (message) or unicast (one side of a
// service exchange) output, bound to one type descriptor at creation.
type OutputSession struct {
	transport *Transport
	spec      session.DataSpecifier
	dest      *uint8 // nil for a broadcast message
	desc      *dtype.Descriptor
	kind      transfer.Kind
	finalize  func()

	loopbackC chan transfer.Frame
}

func newOutputSession(t *Transport, spec session.DataSpecifier, dest *uint8, desc *dtype.Descriptor, kind transfer.Kind, finalize func()) *OutputSession {
	return &OutputSession{
		transport: t,
		spec:      spec,
		dest:      dest,
		desc:      desc,
		kind:      kind,
		finalize:  finalize,
		loopbackC: make(chan transfer.Frame, 4),
	}
}

// DataSpecifier implements session.OutputSession.
func (s *OutputSession) DataSpecifier() session.DataSpecifier { return s.spec }

// Send packs v, fragments it, and transmits it as one transfer under
// priority and transferID (masked to the 5-bit modulo). The media lock is
// held for the whole transfer's frame emission, so another Send on a
// different session can never interleave its frames with this one's on
// the wire. Frames already handed to the media when deadline elapses are
// not retracted.
func (s *OutputSession) Send(deadline time.Time, v *dtype.Value, priority uint8, transferID uint8) error {
	nodeID, ok := s.transport.LocalNodeID()
	if !ok {
		return ErrInvalidConfiguration
	}

	payload, err := serialize.Pack(v)
	if err != nil {
		return err
	}

	t := &transfer.Transfer{
		Priority:     priority & 0x1F,
		TransferID:   transferID & 0x1F,
		SourceNodeID: nodeID,
		Kind:         s.kind,
		Payload:      payload,
		BaseCRC:      s.desc.BaseCRC,
		DataTypeID:   s.desc.DataTypeID,
	}
	if s.spec.IsService {
		dest := *s.dest
		t.DestNodeID = &dest
		t.ServiceID = s.spec.ServiceID
	} else {
		t.SubjectID = s.spec.SubjectID
	}

	frames, err := t.ToFrames(s.transport.media.MaxDataFieldLength())
	if err != nil {
		return err
	}

	s.transport.mediaMu.Lock()
	defer s.transport.mediaMu.Unlock()

	if !deadline.IsZero() && time.Now().After(deadline) {
		return ErrTimeout
	}
	mediaFrames := make([]media.Frame, len(frames))
	for i, f := range frames {
		mediaFrames[i] = media.Frame{ID: f.ID, Data: f.Data}
	}
	return s.transport.media.Send(mediaFrames, deadline)
}

// Loopback returns the channel a media's echoed-back frames for this
// session arrive on, when the driver supports loopback (S4). Frames sent
// while nothing is draining this channel are dropped, not blocked on.
func (s *OutputSession) Loopback() <-chan transfer.Frame { return s.loopbackC }

func (s *OutputSession) receiveLoopback(f transfer.Frame) {
	select {
	case s.loopbackC <- f:
	default:
		s.transport.log.Debug("loopback channel full, dropping frame", "subject_or_service", s.spec)
	}
}

// Close removes this session from the output registry.
func (s *OutputSession) Close() error {
	s.finalize()
	return nil
}
