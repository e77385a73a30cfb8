package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/uavcan-go/govcan/pkg/dtype"
	"github.com/uavcan-go/govcan/pkg/media"
	"github.com/uavcan-go/govcan/pkg/serialize"
	"github.com/uavcan-go/govcan/pkg/session"
)

// loopbackMedia is an in-process media.Media that echoes every sent
// frame straight back to its own handler with Loopback set, used to
// drive the transport façade end-to-end without real hardware.
type loopbackMedia struct {
	mu       sync.Mutex
	handler  media.ReceivedFramesHandler
	maxLen   int
	sent     []media.Frame
	filters  []media.AcceptanceFilter
	autoRetr bool
}

func newLoopbackMedia(maxLen int) *loopbackMedia {
	return &loopbackMedia{maxLen: maxLen}
}

func (m *loopbackMedia) MaxDataFieldLength() int { return m.maxLen }

func (m *loopbackMedia) SetReceivedFramesHandler(h media.ReceivedFramesHandler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

func (m *loopbackMedia) Send(frames []media.Frame, deadline time.Time) error {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	for _, f := range frames {
		m.mu.Lock()
		m.sent = append(m.sent, f)
		m.mu.Unlock()
		if handler != nil {
			echo := f
			echo.Loopback = true
			handler(echo)
		}
	}
	return nil
}

func (m *loopbackMedia) EnableAutomaticRetransmission() error {
	m.autoRetr = true
	return nil
}

func (m *loopbackMedia) ConfigureAcceptanceFilters(filters []media.AcceptanceFilter) error {
	m.mu.Lock()
	m.filters = filters
	m.mu.Unlock()
	return nil
}

func (m *loopbackMedia) Close() error { return nil }

// deliver lets a test inject a frame as if it arrived from the bus (not
// a loopback of our own send).
func (m *loopbackMedia) deliver(f media.Frame) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler != nil {
		handler(f)
	}
}

func u8Desc() *dtype.Descriptor {
	return dtype.Primitive(dtype.PrimitiveUint, 8, dtype.CastSaturated, dtype.Range{Min: 0, Max: 255})
}

func simpleMessageDescriptor() *dtype.Descriptor {
	return dtype.Message("test.Simple", 1, 0x0000, 0, false, []dtype.Field{
		{Name: "value", Type: u8Desc()},
	})
}

func TestLoopbackDeliversToOutputSession(t *testing.T) {
	m := newLoopbackMedia(8)
	tr := New(m, nil)
	defer tr.Close()

	if err := tr.SetLocalNodeID(10); err != nil {
		t.Fatalf("SetLocalNodeID: %v", err)
	}

	desc := simpleMessageDescriptor()
	spec := session.MessageDataSpecifier(100)
	out, err := tr.GetBroadcastOutput(spec, desc)
	if err != nil {
		t.Fatalf("GetBroadcastOutput: %v", err)
	}

	v := dtype.NewValue(desc)
	field, _ := v.Field("value")
	_ = field.SetUint(42)

	if err := out.Send(time.Time{}, v, 16, 5); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case f := <-out.Loopback():
		if !f.Loopback {
			t.Fatalf("expected loopback flag set")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for loopback frame")
	}
}

func TestSelectiveAndPromiscuousInputCoexist(t *testing.T) {
	m := newLoopbackMedia(8)
	tr := New(m, nil)
	defer tr.Close()

	if err := tr.SetLocalNodeID(10); err != nil {
		t.Fatalf("SetLocalNodeID: %v", err)
	}

	desc := simpleMessageDescriptor()
	spec := session.MessageDataSpecifier(200)

	selective, err := tr.GetSelectiveInput(spec, 7, desc)
	if err != nil {
		t.Fatalf("GetSelectiveInput: %v", err)
	}
	promiscuous, err := tr.GetPromiscuousInput(spec, desc)
	if err != nil {
		t.Fatalf("GetPromiscuousInput: %v", err)
	}

	// frame from node 7: both sessions should receive it.
	id := uint32(16)<<24 | uint32(200)<<8 | 7
	v := dtype.NewValue(desc)
	field, _ := v.Field("value")
	_ = field.SetUint(9)
	payload, err := serialize.Pack(v)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	tail := byte(0xC0) // SOT+EOT, toggle 0, tid 0
	data := append(append([]byte{}, payload...), tail)
	m.deliver(media.Frame{ID: id, Data: data, Real: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := selective.Receive(ctx); err != nil {
		t.Fatalf("selective Receive: %v", err)
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if _, err := promiscuous.Receive(ctx2); err != nil {
		t.Fatalf("promiscuous Receive: %v", err)
	}
}
