package transport

import (
	"context"
	"sync"
	"time"

	"github.com/uavcan-go/govcan/pkg/dtype"
	"github.com/uavcan-go/govcan/pkg/serialize"
	"github.com/uavcan-go/govcan/pkg/session"
	"github.com/uavcan-go/govcan/pkg/transfer"
)

// Received is one fully reassembled and deserialized inbound transfer.
type Received struct {
	Value        *dtype.Value
	SourceNodeID uint8
	TransferID   uint8
	Priority     uint8
	MonotonicTS  time.Duration
	RealTS       time.Time
}

// InputSession is one subscription to a subject or one side of a
// service, selective (bound to a source node-id) or promiscuous. It owns
// its own reassembly state, so an unrelated subscription's malformed
// traffic can never stall it.
type InputSession struct {
	transport *Transport
	spec      session.DataSpecifier
	source    int // session.PromiscuousSource, or 0..127
	desc      *dtype.Descriptor

	reassembly *transfer.Manager

	mu       sync.Mutex
	closed   bool
	deliverC chan *Received
}

func newInputSession(t *Transport, spec session.DataSpecifier, source int, desc *dtype.Descriptor) *InputSession {
	return &InputSession{
		transport:  t,
		spec:       spec,
		source:     source,
		desc:       desc,
		reassembly: transfer.NewManager(0),
		deliverC:   make(chan *Received, 16),
	}
}

// DataSpecifier implements session.InputSession.
func (s *InputSession) DataSpecifier() session.DataSpecifier { return s.spec }

// Receive blocks until a complete transfer arrives, ctx is done, or the
// session is closed.
func (s *InputSession) Receive(ctx context.Context) (*Received, error) {
	select {
	case r, ok := <-s.deliverC:
		if !ok {
			return nil, ErrSessionClosed
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// deliver feeds one inbound frame into this session's reassembly state,
// pushing a deserialized Received on the delivery channel once a frame
// group completes. Reassembly/CRC/tail-byte errors are logged and
// dropped, never surfaced to the caller, per the transfer layer's error
// handling contract.
func (s *InputSession) deliver(f transfer.Frame, now time.Time) {
	frames, complete := s.reassembly.ReceiveFrame(f, now)
	if !complete {
		return
	}

	baseCRC := uint16(0)
	if s.desc != nil {
		baseCRC = s.desc.BaseCRC
	}
	tr, err := transfer.FromFrames(frames, baseCRC)
	if err != nil {
		s.transport.log.Debug("dropping malformed transfer", "err", err, "subject_or_service", s.spec)
		return
	}

	var value *dtype.Value
	if s.desc != nil {
		value, err = serialize.Unpack(tr.Payload, s.desc)
		if err != nil {
			s.transport.log.Debug("dropping transfer with undecodable payload", "err", err)
			return
		}
	}

	r := &Received{
		Value:        value,
		SourceNodeID: tr.SourceNodeID,
		TransferID:   tr.TransferID,
		Priority:     tr.Priority,
		MonotonicTS:  tr.MonotonicTS,
		RealTS:       tr.RealTS,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.deliverC <- r:
	default:
		s.transport.log.Warn("input session delivery channel full, dropping transfer", "subject_or_service", s.spec)
	}
}

// Close removes this session from the transport's dispatch table and
// input list; subsequent Receive calls return ErrSessionClosed. closed
// and the deliverC close are guarded by s.mu so a deliver racing a
// concurrent Close (frame reception runs on the media driver's own
// goroutine, not necessarily the consumer's) drops the frame instead of
// sending on a closed channel.
func (s *InputSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.deliverC)
	s.mu.Unlock()

	s.transport.removeInputSession(s)
	return nil
}
