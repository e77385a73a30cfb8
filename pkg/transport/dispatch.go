package transport

import (
	"time"

	"github.com/uavcan-go/govcan/pkg/canid"
	"github.com/uavcan-go/govcan/pkg/dtype"
	"github.com/uavcan-go/govcan/pkg/media"
	"github.com/uavcan-go/govcan/pkg/session"
	"github.com/uavcan-go/govcan/pkg/transfer"
)

// onFrame is the media's synchronous reception callback: it never
// blocks or suspends, matching the single cooperative-executor model the
// whole façade is built around.
func (t *Transport) onFrame(f media.Frame) {
	parsed, ok := canid.Parse(f.ID)
	if !ok {
		return
	}

	tf := transfer.Frame{ID: f.ID, Data: f.Data, Monotonic: f.Monotonic, Real: f.Real, Loopback: f.Loopback}

	if f.Loopback {
		t.handleLoopbackFrame(parsed, tf)
		return
	}

	localNodeID, haveLocal := t.LocalNodeID()
	spec, source, ok := dataSpecifierAndSource(parsed, localNodeID, haveLocal)
	if !ok {
		return
	}

	now := time.Now()
	for _, is := range t.inputs.Dispatch(spec, source) {
		if s, ok := is.(*InputSession); ok {
			s.deliver(tf, now)
		}
	}
}

// dataSpecifierAndSource converts a parsed identifier into the
// data-specifier and source node-id the input dispatch table is keyed
// by. Anonymous messages carry no subject-id and are not routable to an
// ordinary input session, so they are dropped here (node-id allocation
// is outside this transport's scope). A service frame not addressed to
// the local node-id is dropped once a local node-id has been assigned.
func dataSpecifierAndSource(parsed canid.CANID, localNodeID uint8, haveLocal bool) (session.DataSpecifier, uint8, bool) {
	switch parsed.Role {
	case canid.RoleMessage:
		return session.MessageDataSpecifier(parsed.Message.SubjectID), parsed.Message.SourceID, true
	case canid.RoleService:
		if haveLocal && parsed.Service.DestID != localNodeID {
			return session.DataSpecifier{}, 0, false
		}
		role := session.RoleServer
		if !parsed.Service.IsRequest {
			role = session.RoleClient
		}
		return session.ServiceDataSpecifier(parsed.Service.ServiceID, role), parsed.Service.SourceID, true
	default:
		return session.DataSpecifier{}, 0, false
	}
}

// handleLoopbackFrame routes a media-echoed outbound frame back to the
// output session that sent it. A frame with no matching session is
// expected (the sender may have since closed it) and is logged at info
// level rather than treated as an error.
func (t *Transport) handleLoopbackFrame(parsed canid.CANID, f transfer.Frame) {
	key, ok := outputKeyFor(parsed)
	if !ok {
		return
	}
	found, ok := t.outputs.Lookup(key)
	if !ok {
		t.log.Info("loopback frame has no matching output session", "can_id", f.ID)
		return
	}
	if out, ok := found.(*OutputSession); ok {
		out.receiveLoopback(f)
	}
}

// outputKeyFor rebuilds the registry key an output session was created
// under from a frame it (or one like it) produced.
func outputKeyFor(parsed canid.CANID) (session.OutputKey, bool) {
	switch parsed.Role {
	case canid.RoleMessage:
		return session.BroadcastKey(session.MessageDataSpecifier(parsed.Message.SubjectID)), true
	case canid.RoleService:
		role := session.RoleClient
		if !parsed.Service.IsRequest {
			role = session.RoleServer
		}
		spec := session.ServiceDataSpecifier(parsed.Service.ServiceID, role)
		return session.UnicastKey(spec, parsed.Service.DestID), true
	default:
		return session.OutputKey{}, false
	}
}

// GetBroadcastOutput returns (creating if needed) the broadcast output
// session for a message subject, bound to desc for the lifetime of the
// session. Repeat calls with an equal spec return the same session.
func (t *Transport) GetBroadcastOutput(spec session.DataSpecifier, desc *dtype.Descriptor) (*OutputSession, error) {
	if spec.IsService {
		return nil, ErrInvalidConfiguration
	}
	s := t.outputs.GetOrCreate(session.BroadcastKey(spec), func(finalize func()) session.OutputSession {
		return newOutputSession(t, spec, nil, desc, transfer.KindMessage, finalize)
	})
	return s.(*OutputSession), nil
}

// GetUnicastOutput returns (creating if needed) the output session for
// one side of a service exchange addressed to dest, bound to desc.
// spec.Role selects request (client) or response (server) framing.
func (t *Transport) GetUnicastOutput(spec session.DataSpecifier, dest uint8, desc *dtype.Descriptor) (*OutputSession, error) {
	if !spec.IsService {
		return nil, ErrInvalidConfiguration
	}
	kind := transfer.KindServiceRequest
	if spec.Role == session.RoleServer {
		kind = transfer.KindServiceResponse
	}
	d := dest
	s := t.outputs.GetOrCreate(session.UnicastKey(spec, dest), func(finalize func()) session.OutputSession {
		return newOutputSession(t, spec, &d, desc, kind, finalize)
	})
	return s.(*OutputSession), nil
}

// GetPromiscuousInput returns (creating if needed) an input session that
// receives spec's traffic from any source node-id.
func (t *Transport) GetPromiscuousInput(spec session.DataSpecifier, desc *dtype.Descriptor) (*InputSession, error) {
	return t.registerInput(spec, session.PromiscuousSource, desc)
}

// GetSelectiveInput returns (creating if needed) an input session that
// receives spec's traffic only from source. It coexists with a
// promiscuous input on the same spec (S3): both are dispatched to.
func (t *Transport) GetSelectiveInput(spec session.DataSpecifier, source uint8, desc *dtype.Descriptor) (*InputSession, error) {
	return t.registerInput(spec, int(source), desc)
}

func (t *Transport) registerInput(spec session.DataSpecifier, source int, desc *dtype.Descriptor) (*InputSession, error) {
	t.mu.Lock()
	if existing, ok := t.inputs.Get(spec, source); ok {
		t.mu.Unlock()
		is, ok := existing.(*InputSession)
		if !ok {
			return nil, ErrInvalidConfiguration
		}
		return is, nil
	}

	s := newInputSession(t, spec, source, desc)
	t.inputs.Set(spec, source, s)
	t.inputList = append(t.inputList, s)
	err := t.reconfigureAcceptanceFilters()
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// removeInputSession drops s from the dispatch table and bookkeeping
// list, called from InputSession.Close.
func (t *Transport) removeInputSession(s *InputSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputs.Clear(s.spec, s.source)
	for i, existing := range t.inputList {
		if existing == s {
			t.inputList = append(t.inputList[:i], t.inputList[i+1:]...)
			break
		}
	}
	_ = t.reconfigureAcceptanceFilters()
}
