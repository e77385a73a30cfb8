package transport

import (
	"log/slog"
	"sync"
	"time"

	"github.com/uavcan-go/govcan/pkg/media"
	"github.com/uavcan-go/govcan/pkg/session"
)

// ProtocolParameters summarizes the transport's fixed protocol-level
// constants, exposed to callers that need to size buffers or pick
// transfer-ids.
type ProtocolParameters struct {
	TransferIDModulo      int
	MaxNodeIDs            int
	SingleFramePayloadLen int
}

// Transport is the façade wiring the CAN-ID codec, frame/transfer layer,
// serialization engine, and session router to one media.Media driver.
// Its methods are not safe for concurrent use from multiple goroutines
// beyond what's explicitly documented (the media lock and the session
// registries' own internal locking): the nominal scheduling model is a
// single-threaded cooperative executor pumping media callbacks and timers.
type Transport struct {
	log   *slog.Logger
	media media.Media

	mu          sync.Mutex
	localNodeID *uint8
	outputs     *session.OutputRegistry
	inputs      *session.InputTable
	inputList   []*InputSession // every live input session, for sweep and filter enumeration

	mediaMu sync.Mutex // held for the duration of one transfer's frame emission

	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
}

// New wires a Transport around m, registers its frame handler, and
// starts the periodic reassembly-timeout sweep.
func New(m media.Media, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	t := &Transport{
		log:       log.With("component", "transport"),
		media:     m,
		outputs:   session.NewOutputRegistry(),
		inputs:    session.NewInputTable(),
		sweepStop: make(chan struct{}),
	}
	m.SetReceivedFramesHandler(t.onFrame)
	t.sweepWG.Add(1)
	go t.sweepLoop()
	return t
}

// SetLocalNodeID assigns the transport's local node-id exactly once.
func (t *Transport) SetLocalNodeID(n uint8) error {
	if n > session.NumNodeIDs-1 {
		return ErrInvalidConfiguration
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.localNodeID != nil {
		return ErrInvalidConfiguration
	}
	t.localNodeID = &n
	if err := t.media.EnableAutomaticRetransmission(); err != nil {
		return err
	}
	return t.reconfigureAcceptanceFilters()
}

// LocalNodeID returns the assigned local node-id, if any.
func (t *Transport) LocalNodeID() (uint8, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.localNodeID == nil {
		return 0, false
	}
	return *t.localNodeID, true
}

// reconfigureAcceptanceFilters narrows the media's hardware/kernel
// filters to the subjects and services this transport currently has
// sessions for, plus (once assigned) unicast service traffic addressed
// to the local node-id. Called under t.mu.
func (t *Transport) reconfigureAcceptanceFilters() error {
	seen := make(map[session.DataSpecifier]bool)
	filters := make([]media.AcceptanceFilter, 0, len(t.inputList))
	for _, s := range t.inputList {
		spec := s.DataSpecifier()
		if seen[spec] {
			continue
		}
		seen[spec] = true
		f := acceptanceFilterFor(spec)
		if spec.IsService && t.localNodeID != nil {
			f.ID |= uint32(*t.localNodeID) << 7
			f.Mask |= 0x7F << 7
		}
		filters = append(filters, f)
	}
	return t.media.ConfigureAcceptanceFilters(filters)
}

// acceptanceFilterFor builds a mask that matches any node-id on the
// given data-specifier: the message/service flag and the subject-id or
// service-id fixed, everything else don't-care. A single-subject/service
// filter is deliberately loose (node-id bits unmasked) since per-source
// selectivity is enforced by the session dispatch table, not the media
// filter.
func acceptanceFilterFor(spec session.DataSpecifier) media.AcceptanceFilter {
	if !spec.IsService {
		return media.AcceptanceFilter{
			ID:   uint32(spec.SubjectID) << 8,
			Mask: 1<<23 | 0x1FFF<<8,
		}
	}
	return media.AcceptanceFilter{
		ID:   1<<23 | uint32(spec.ServiceID)<<14,
		Mask: 1<<23 | 0xFF<<14,
	}
}

// ProtocolParameters returns the transport's fixed protocol constants.
func (t *Transport) ProtocolParameters() ProtocolParameters {
	return ProtocolParameters{
		TransferIDModulo:      32,
		MaxNodeIDs:            session.NumNodeIDs,
		SingleFramePayloadLen: t.media.MaxDataFieldLength() - 1,
	}
}

// Close closes the media, which cascades to frame delivery; any session
// still open will simply stop receiving new transfers.
func (t *Transport) Close() error {
	close(t.sweepStop)
	t.sweepWG.Wait()
	return t.media.Close()
}

func (t *Transport) sweepLoop() {
	defer t.sweepWG.Done()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-t.sweepStop:
			return
		case now := <-ticker.C:
			t.mu.Lock()
			sessions := make([]*InputSession, len(t.inputList))
			copy(sessions, t.inputList)
			t.mu.Unlock()
			for _, s := range sessions {
				s.reassembly.Sweep(now)
			}
		}
	}
}
