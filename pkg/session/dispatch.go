package session

import "sync"

// Dispatch table dimensions. NumSubjects and NumServices come from the
// wire field widths (13-bit subject-id, 8-bit service-id); the service
// dimension is doubled because the client side (which receives
// responses) and the server side (which receives requests) occupy
// distinct slots. NumNodeIDs+1 reserves one extra column
// for the promiscuous ("no source filter") slot.
const (
	NumSubjects = 8192
	NumServices = 256
	NumNodeIDs  = 128

	dim1Size = NumSubjects + NumServices*2
	dim2Size = NumNodeIDs + 1

	// TableSize is the total slot count: (8192 + 2*256) * 129 = 1,122,816,
	// matching the spec's "~1.17M entries" sizing note.
	TableSize = dim1Size * dim2Size

	// PromiscuousSource is the sentinel source-node-id representing "no
	// filter" (dim2's extra slot).
	PromiscuousSource = -1
)

// DispatchIndex computes the dense table slot for (spec, sourceNodeID).
// sourceNodeID is PromiscuousSource (-1) for a promiscuous registration
// or lookup, 0..127 for a selective one.
func DispatchIndex(spec DataSpecifier, sourceNodeID int) int {
	var dim1 int
	switch {
	case !spec.IsService:
		dim1 = int(spec.SubjectID)
	case spec.Role == RoleClient:
		dim1 = NumSubjects + int(spec.ServiceID)
	default:
		dim1 = NumSubjects + NumServices + int(spec.ServiceID)
	}

	dim2 := NumNodeIDs // the promiscuous column
	if sourceNodeID != PromiscuousSource {
		dim2 = sourceNodeID
	}
	return dim1*dim2Size + dim2
}

// InputSession is the minimal shape the dispatch table needs from a
// transport-layer input session.
type InputSession interface {
	DataSpecifier() DataSpecifier
}

// InputTable is the input half of the session router: a dense,
// precomputed array giving O(1) dispatch from a parsed data-specifier
// and source node-id to the zero, one, or two sessions subscribed to it.
type InputTable struct {
	mu    sync.Mutex
	slots []InputSession
}

// NewInputTable allocates a fully populated (empty) dispatch table.
func NewInputTable() *InputTable {
	return &InputTable{slots: make([]InputSession, TableSize)}
}

// Set installs s at the slot for (spec, sourceNodeID), overwriting
// whatever was there. sourceNodeID is PromiscuousSource for a
// promiscuous input.
func (t *InputTable) Set(spec DataSpecifier, sourceNodeID int, s InputSession) {
	idx := DispatchIndex(spec, sourceNodeID)
	t.mu.Lock()
	t.slots[idx] = s
	t.mu.Unlock()
}

// Get returns the session installed at the slot for (spec, sourceNodeID),
// if any, without performing the two-slot promiscuous+selective merge
// Dispatch does. Used to make session creation idempotent.
func (t *InputTable) Get(spec DataSpecifier, sourceNodeID int) (InputSession, bool) {
	idx := DispatchIndex(spec, sourceNodeID)
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slots[idx]
	return s, s != nil
}

// Clear empties the slot for (spec, sourceNodeID).
func (t *InputTable) Clear(spec DataSpecifier, sourceNodeID int) {
	idx := DispatchIndex(spec, sourceNodeID)
	t.mu.Lock()
	t.slots[idx] = nil
	t.mu.Unlock()
}

// Dispatch returns every session that should receive a frame from
// sourceNodeID on spec: the exact-source slot and the promiscuous slot,
// in that order, omitting whichever is empty. Both may be populated;
// both receive.
func (t *InputTable) Dispatch(spec DataSpecifier, sourceNodeID uint8) []InputSession {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []InputSession
	if s := t.slots[DispatchIndex(spec, int(sourceNodeID))]; s != nil {
		out = append(out, s)
	}
	if s := t.slots[DispatchIndex(spec, PromiscuousSource)]; s != nil {
		out = append(out, s)
	}
	return out
}
