// Package socketcan implements media.Media over a Linux SocketCAN
// interface using github.com/brutella/can. Adapted from gocanopen's
// SocketcanBus wrapper: same Connect-goroutine/Subscribe/Handle shape,
// generalized from an 11-bit classic-CAN-only frame to this transport's
// 29-bit extended identifiers.
package socketcan

import (
	"errors"
	"fmt"
	"time"

	sockcan "github.com/brutella/can"
	"golang.org/x/sys/unix"

	"github.com/uavcan-go/govcan/pkg/media"
)

func init() {
	media.RegisterDriver("socketcan", New)
}

// canEFFFlag marks an identifier as 29-bit extended on the wire, per the
// Linux SocketCAN ABI (unix.CAN_EFF_FLAG); every frame this transport
// builds is extended, since the 29-bit CAN-ID layout requires it.
const canEFFFlag = unix.CAN_EFF_FLAG

// Bus adapts a brutella/can socketcan interface to media.Media.
type Bus struct {
	bus     *sockcan.Bus
	handler media.ReceivedFramesHandler
}

// New opens the named SocketCAN interface (e.g. "can0" or "vcan0").
func New(name string) (media.Media, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, fmt.Errorf("socketcan: open %s: %w", name, err)
	}
	b := &Bus{bus: bus}
	go bus.ConnectAndPublish()
	return b, nil
}

// MaxDataFieldLength reports the classic-CAN frame limit; brutella/can
// only exposes classic (non-FD) sockets.
func (b *Bus) MaxDataFieldLength() int { return 8 }

func (b *Bus) SetReceivedFramesHandler(handler media.ReceivedFramesHandler) {
	b.handler = handler
	b.bus.Subscribe(b)
}

// Handle implements brutella/can's frame-reception interface.
func (b *Bus) Handle(frame sockcan.Frame) {
	if b.handler == nil {
		return
	}
	id := frame.ID &^ canEFFFlag
	b.handler(media.Frame{
		ID:   id,
		Data: append([]byte(nil), frame.Data[:frame.Length]...),
		Real: time.Now(),
	})
}

func (b *Bus) Send(frames []media.Frame, deadline time.Time) error {
	for _, f := range frames {
		if len(f.Data) > 8 {
			return errors.New("socketcan: frame payload exceeds classic CAN's 8 bytes")
		}
		var data [8]byte
		copy(data[:], f.Data)
		err := b.bus.Publish(sockcan.Frame{
			ID:     f.ID | canEFFFlag,
			Length: uint8(len(f.Data)),
			Data:   data,
		})
		if err != nil {
			return fmt.Errorf("socketcan: send: %w", err)
		}
	}
	return nil
}

func (b *Bus) EnableAutomaticRetransmission() error { return nil }

func (b *Bus) ConfigureAcceptanceFilters(filters []media.AcceptanceFilter) error {
	// brutella/can does not expose kernel-level filter configuration;
	// filtering happens at the transport's dispatch layer instead.
	return nil
}

func (b *Bus) Close() error {
	return b.bus.Disconnect()
}
