// Package virtualcan implements media.Media over a TCP connection to a
// virtual CAN broker, for development and testing without real CAN
// hardware. Adapted from the gocanopen virtual bus client: same
// length-prefixed binary.Write/Read wire framing and reception
// goroutine shape, generalized from an 11-bit CANopen frame to the
// 29-bit identifier and up-to-64-byte payload this transport uses.
package virtualcan

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/uavcan-go/govcan/pkg/media"
)

func init() {
	media.RegisterDriver("virtual", New)
	media.RegisterDriver("virtualcan", New)
}

// wireFrame is the fixed-size binary.Write/Read representation of a
// frame exchanged with the broker: a 29-bit identifier (stored in a
// uint32), a data length, and a 64-byte payload buffer (CAN-FD sized,
// zero-padded beyond Len).
type wireFrame struct {
	ID  uint32
	Len uint8
	_   [3]byte // padding to keep the struct's binary size 4-byte aligned
	Data [64]byte
}

// Bus is a TCP-backed virtual CAN media driver.
type Bus struct {
	logger  *slog.Logger
	channel string

	mu       sync.Mutex
	conn     net.Conn
	handler  media.ReceivedFramesHandler
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool

	receiveOwn bool
	maxLen     int
}

// New dials channel (e.g. "localhost:18000") and returns a Bus ready to
// register a received-frames handler and send.
func New(channel string) (media.Media, error) {
	conn, err := net.Dial("tcp", channel)
	if err != nil {
		return nil, fmt.Errorf("virtualcan: dial %s: %w", channel, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	return &Bus{
		logger:   slog.Default().With("media", "virtualcan", "channel", channel),
		channel:  channel,
		conn:     conn,
		stopChan: make(chan struct{}),
		maxLen:   64,
	}, nil
}

// SetReceiveOwn makes Send hand every frame it writes back to this bus's
// own handler, marked as a loopback frame.
func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.mu.Lock()
	b.receiveOwn = receiveOwn
	b.mu.Unlock()
}

func (b *Bus) MaxDataFieldLength() int { return b.maxLen }

func (b *Bus) SetReceivedFramesHandler(handler media.ReceivedFramesHandler) {
	b.mu.Lock()
	b.handler = handler
	alreadyRunning := b.running
	if !alreadyRunning {
		b.running = true
		b.wg.Add(1)
	}
	b.mu.Unlock()

	if !alreadyRunning {
		go b.receiveLoop()
	}
}

func (b *Bus) Send(frames []media.Frame, deadline time.Time) error {
	b.mu.Lock()
	conn := b.conn
	receiveOwn := b.receiveOwn
	handler := b.handler
	b.mu.Unlock()

	if conn == nil {
		return errors.New("virtualcan: no active connection")
	}
	for _, f := range frames {
		wf := toWireFrame(f)
		buf, err := serializeFrame(wf)
		if err != nil {
			return err
		}
		if !deadline.IsZero() {
			_ = conn.SetWriteDeadline(deadline)
		}
		if _, err := conn.Write(buf); err != nil {
			return fmt.Errorf("virtualcan: send: %w", err)
		}
		if receiveOwn && handler != nil {
			loop := f
			loop.Loopback = true
			handler(loop)
		}
	}
	return nil
}

func (b *Bus) EnableAutomaticRetransmission() error { return nil }

func (b *Bus) ConfigureAcceptanceFilters([]media.AcceptanceFilter) error {
	// the broker forwards every frame to every client; filtering happens
	// at the transport's dispatch layer instead.
	return nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	running := b.running
	conn := b.conn
	b.mu.Unlock()

	if running {
		close(b.stopChan)
		b.wg.Wait()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (b *Bus) receiveLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopChan:
			return
		default:
		}

		f, err := b.recv()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			b.logger.Error("receive loop stopped", "err", err)
			return
		}
		b.mu.Lock()
		handler := b.handler
		b.mu.Unlock()
		if handler != nil {
			handler(f)
		}
	}
}

func (b *Bus) recv() (media.Frame, error) {
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	header := make([]byte, 4)
	if _, err := readFull(b.conn, header); err != nil {
		return media.Frame{}, err
	}
	length := binary.BigEndian.Uint32(header)
	body := make([]byte, length)
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := readFull(b.conn, body); err != nil {
		return media.Frame{}, err
	}
	wf, err := deserializeFrame(body)
	if err != nil {
		return media.Frame{}, err
	}
	return media.Frame{
		ID:        wf.ID,
		Data:      append([]byte(nil), wf.Data[:wf.Len]...),
		Monotonic: time.Duration(0),
		Real:      time.Now(),
	}, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func toWireFrame(f media.Frame) wireFrame {
	var wf wireFrame
	wf.ID = f.ID
	wf.Len = uint8(len(f.Data))
	copy(wf.Data[:], f.Data)
	return wf
}

func serializeFrame(wf wireFrame) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, wf); err != nil {
		return nil, err
	}
	body := buf.Bytes()
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

func deserializeFrame(body []byte) (wireFrame, error) {
	var wf wireFrame
	err := binary.Read(bytes.NewReader(body), binary.BigEndian, &wf)
	return wf, err
}
