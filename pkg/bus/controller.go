// Package bus drives one or many Dynamixel servos over a shared
// half-duplex serial line: blocking request/response with a per-byte
// receive deadline, timeout-based presence detection, and the broadcast
// sync-read / sync-write fan-out.
//
// A Controller owns its transport endpoints and clock exclusively; one
// operation is in flight at a time. Callers that share a controller across
// goroutines must serialize access themselves; the core takes no locks.
package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/dynaflow/dynaflow/pkg/motors"
	protocol "github.com/dynaflow/dynaflow/pkg/protocol/v2"
)

// DefaultTimeout bounds the gap between consecutive received bytes.
// Servos interleave processing latency between bytes, so the deadline
// restarts at every byte rather than spanning the whole packet.
const DefaultTimeout = 10 * time.Millisecond

// Controller is the protocol engine for one serial bus.
type Controller struct {
	rx      Receiver
	tx      Transmitter
	clock   Clock
	timeout time.Duration
}

// New creates a controller over the given endpoints with DefaultTimeout.
func New(rx Receiver, tx Transmitter, clock Clock) *Controller {
	return &Controller{rx: rx, tx: tx, clock: clock, timeout: DefaultTimeout}
}

// SetTimeout replaces the per-byte receive deadline.
func (c *Controller) SetTimeout(d time.Duration) { c.timeout = d }

// Ping probes id for presence. A servo that answers within the timeout
// budget yields true; silence yields (false, nil): absence is not an
// error. Malformed or error-flagged replies are surfaced.
func (c *Controller) Ping(id uint8) (bool, error) {
	c.send(protocol.Ping(id))
	if _, err := c.receive(); err != nil {
		if errors.Is(err, protocol.ErrTimeout) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Scan pings every id in the half-open range [from, to) in ascending order
// and returns the ids that answered. Any non-timeout failure aborts the
// scan.
func (c *Controller) Scan(from, to uint8) ([]uint8, error) {
	var found []uint8
	for id := from; id < to; id++ {
		ok, err := c.Ping(id)
		if err != nil {
			return nil, fmt.Errorf("scan aborted at id %d: %w", id, err)
		}
		if ok {
			found = append(found, id)
		}
	}
	return found, nil
}

// Read fetches reg from the servo at id.
func (c *Controller) Read(id uint8, reg motors.Register) (uint16, error) {
	if err := checkWidth(reg); err != nil {
		return 0, err
	}
	c.send(protocol.Read(id, reg.Address(), reg.Width()))
	status, err := c.receive()
	if err != nil {
		return 0, err
	}
	return decodeValue(reg, status.Params)
}

// Write stores value into reg on the servo at id and waits for the
// acknowledging status packet. The ack's parameter payload is ignored;
// its error byte is surfaced.
func (c *Controller) Write(id uint8, reg motors.Register, value uint16) error {
	frame, err := protocol.Write(id, reg.Address(), reg.Width(), value)
	if err != nil {
		return err
	}
	c.send(frame)
	_, err = c.receive()
	return err
}

// FactoryReset restores the servo at id to factory defaults and waits for
// the acknowledging status packet.
func (c *Controller) FactoryReset(id uint8) error {
	c.send(protocol.Reset(id))
	_, err := c.receive()
	return err
}

// Reading is one servo's answer to a sync-read.
type Reading struct {
	ID    uint8
	Value uint16
}

// SyncRead broadcasts one sync-read of reg and collects the per-servo
// replies, pairing them positionally with ids. A reply slot that fails for
// any reason, timeout included, is dropped silently so one missing servo
// cannot stall the bounded-delay replies behind it; compare len(result)
// with len(ids) to detect gaps. Servos answer in ascending-id order
// regardless of the request ordering, so pass ids in ascending order to
// keep the positional pairing honest.
func (c *Controller) SyncRead(ids []uint8, reg motors.Register) ([]Reading, error) {
	if err := checkWidth(reg); err != nil {
		return nil, err
	}
	c.send(protocol.SyncRead(ids, reg.Address(), reg.Width()))

	readings := make([]Reading, 0, len(ids))
	for _, id := range ids {
		status, err := c.receive()
		if err != nil {
			continue
		}
		value, err := decodeValue(reg, status.Params)
		if err != nil {
			continue
		}
		readings = append(readings, Reading{ID: id, Value: value})
	}
	return readings, nil
}

// SyncWrite broadcasts one sync-write placing each assignment's value into
// reg. Broadcast writes are silent by protocol; no reply is expected or
// consumed.
func (c *Controller) SyncWrite(reg motors.Register, assignments []protocol.SyncAssignment) error {
	frame, err := protocol.SyncWrite(reg.Address(), reg.Width(), assignments)
	if err != nil {
		return err
	}
	c.send(frame)
	return nil
}

// send pushes the frame one byte at a time and flushes, so the reply
// window begins after the last byte on the wire. Write errors are
// discarded: the transport contract states writes cannot fail.
func (c *Controller) send(frame []byte) {
	for _, b := range frame {
		_ = c.tx.Write(b)
	}
	_ = c.tx.Flush()
}

// receive reads one status packet in two phases, the 7-byte header and then
// the declared body, each byte under its own deadline. A non-zero status
// error byte surfaces as StatusError alongside the parsed packet.
func (c *Controller) receive() (protocol.Status, error) {
	frame := make([]byte, protocol.HeaderSize)
	for i := range frame {
		b, err := c.readByte()
		if err != nil {
			return protocol.Status{}, err
		}
		frame[i] = b
	}
	header, err := protocol.DecodeHeader(frame)
	if err != nil {
		return protocol.Status{}, err
	}
	for i := 0; i < int(header.Length); i++ {
		b, err := c.readByte()
		if err != nil {
			return protocol.Status{}, err
		}
		frame = append(frame, b)
	}
	status, err := protocol.DecodeStatus(frame)
	if err != nil {
		return protocol.Status{}, err
	}
	if status.Code != 0 {
		return status, protocol.StatusError(status.Code)
	}
	return status, nil
}

// readByte polls the receiver until a byte arrives or the deadline passes.
// The deadline restarts here, per byte, not per packet.
func (c *Controller) readByte() (byte, error) {
	t0 := c.clock.Now()
	for {
		b, ok, err := c.rx.TryRead()
		if err != nil {
			return 0, fmt.Errorf("serial read failed: %w", err)
		}
		if ok {
			return b, nil
		}
		if c.clock.Now().Sub(t0) > c.timeout {
			return 0, protocol.ErrTimeout
		}
	}
}

func checkWidth(reg motors.Register) error {
	if w := reg.Width(); w != 1 && w != 2 {
		return fmt.Errorf("%w: %d bytes", protocol.ErrUnsupportedRegister, w)
	}
	return nil
}

func decodeValue(reg motors.Register, params []byte) (uint16, error) {
	if len(params) != int(reg.Width()) {
		return 0, fmt.Errorf("%w: %d parameter bytes for a %d-byte register",
			protocol.ErrParsing, len(params), reg.Width())
	}
	switch reg.Width() {
	case 1:
		return uint16(params[0]), nil
	case 2:
		return uint16(params[0]) | uint16(params[1])<<8, nil
	default:
		return 0, protocol.ErrUnsupportedRegister
	}
}
