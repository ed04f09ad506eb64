// Package hal owns shared access to the servo bus. The protocol engine in
// pkg/bus is single-owner by design; this layer adds the mutual exclusion
// that lets the HTTP API and the monitor share one half-duplex line, plus
// register-name resolution against the configured motor catalog.
package hal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dynaflow/dynaflow/internal/metrics"
	"github.com/dynaflow/dynaflow/pkg/bus"
	"github.com/dynaflow/dynaflow/pkg/motors"
	protocol "github.com/dynaflow/dynaflow/pkg/protocol/v2"
)

// ErrUnknownRegister reports a register name absent from the catalog.
var ErrUnknownRegister = errors.New("unknown register")

// InputResetter discards unread receive bytes. After a failed receive the
// tail of an aborted reply may still sit in the input buffer; dropping it
// lets the next frame start clean.
type InputResetter interface {
	ResetInput() error
}

// Bus serializes access to one bus controller.
type Bus struct {
	mu      sync.Mutex
	ctrl    *bus.Controller
	reset   InputResetter
	catalog motors.Catalog
	stats   *metrics.Metrics
}

// NewBus wraps ctrl. reset may be nil when the transport cannot drop its
// input buffer (mocks, loopbacks).
func NewBus(ctrl *bus.Controller, reset InputResetter, catalog motors.Catalog) *Bus {
	return &Bus{ctrl: ctrl, reset: reset, catalog: catalog}
}

// SetMetrics attaches a collector for per-operation counters.
func (b *Bus) SetMetrics(m *metrics.Metrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = m
}

// SetTimeout adjusts the per-byte receive deadline (config hot reload).
func (b *Bus) SetTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctrl.SetTimeout(d)
}

// Catalog returns the active motor catalog.
func (b *Bus) Catalog() motors.Catalog {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.catalog
}

// SetCatalog swaps the active motor catalog (config hot reload).
func (b *Bus) SetCatalog(c motors.Catalog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalog = c
}

// Register resolves a register name against the active catalog.
func (b *Bus) Register(name string) (motors.Register, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.register(name)
}

func (b *Bus) register(name string) (motors.Register, error) {
	reg, ok := b.catalog.Lookup(name)
	if !ok {
		return motors.Register{}, fmt.Errorf("%w: %q", ErrUnknownRegister, name)
	}
	return reg, nil
}

// Ping probes one servo.
func (b *Bus) Ping(id uint8) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ok, err := b.ctrl.Ping(id)
	return ok, b.recover(err)
}

// Scan sweeps the half-open id range [from, to).
func (b *Bus) Scan(from, to uint8) ([]uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	found, err := b.ctrl.Scan(from, to)
	return found, b.recover(err)
}

// ReadRegister reads a named register from one servo.
func (b *Bus) ReadRegister(id uint8, name string) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	reg, err := b.register(name)
	if err != nil {
		return 0, err
	}
	value, err := b.ctrl.Read(id, reg)
	return value, b.recover(err)
}

// WriteRegister writes a named register on one servo.
func (b *Bus) WriteRegister(id uint8, name string, value uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	reg, err := b.register(name)
	if err != nil {
		return err
	}
	return b.recover(b.ctrl.Write(id, reg, value))
}

// SyncRead broadcasts one sync-read of a named register.
func (b *Bus) SyncRead(ids []uint8, name string) ([]bus.Reading, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	reg, err := b.register(name)
	if err != nil {
		return nil, err
	}
	readings, err := b.ctrl.SyncRead(ids, reg)
	return readings, b.recover(err)
}

// SyncWrite broadcasts one sync-write of a named register.
func (b *Bus) SyncWrite(name string, assignments []protocol.SyncAssignment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	reg, err := b.register(name)
	if err != nil {
		return err
	}
	return b.recover(b.ctrl.SyncWrite(reg, assignments))
}

// FactoryReset restores one servo to factory defaults.
func (b *Bus) FactoryReset(id uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recover(b.ctrl.FactoryReset(id))
}

// recover records the operation outcome, then drops leftover input after a
// mid-frame failure so a partial reply cannot poison the next operation.
// Timeouts leave nothing behind worth clearing; width violations never
// touched the wire.
func (b *Bus) recover(err error) error {
	if b.stats != nil {
		b.stats.RecordOperation()
		var statusErr protocol.StatusError
		switch {
		case err == nil:
		case errors.Is(err, protocol.ErrTimeout):
			b.stats.RecordTimeout()
		case errors.Is(err, protocol.ErrInvalidChecksum):
			b.stats.RecordChecksumError()
		case errors.Is(err, protocol.ErrParsing):
			b.stats.RecordParseError()
		case errors.As(err, &statusErr):
			b.stats.RecordStatusError()
		}
	}
	if err == nil || b.reset == nil {
		return err
	}
	if errors.Is(err, protocol.ErrTimeout) || errors.Is(err, protocol.ErrUnsupportedRegister) {
		return err
	}
	if resetErr := b.reset.ResetInput(); resetErr != nil {
		return fmt.Errorf("%w (input reset also failed: %v)", err, resetErr)
	}
	return err
}
