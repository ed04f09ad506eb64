package hal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynaflow/dynaflow/internal/metrics"
	"github.com/dynaflow/dynaflow/pkg/bus"
	"github.com/dynaflow/dynaflow/pkg/motors"
	protocol "github.com/dynaflow/dynaflow/pkg/protocol/v2"
)

// fakeLine scripts the receive side, records the transmit side and doubles
// as the clock so timeouts are deterministic.
type fakeLine struct {
	now        time.Time
	rx         []byte
	written    []byte
	resetCalls int
}

func (f *fakeLine) Now() time.Time { return f.now }

func (f *fakeLine) TryRead() (byte, bool, error) {
	if len(f.rx) == 0 {
		f.now = f.now.Add(time.Millisecond)
		return 0, false, nil
	}
	b := f.rx[0]
	f.rx = f.rx[1:]
	return b, true, nil
}

func (f *fakeLine) Write(b byte) error {
	f.written = append(f.written, b)
	return nil
}

func (f *fakeLine) Flush() error { return nil }

func (f *fakeLine) ResetInput() error {
	f.resetCalls++
	f.rx = nil
	return nil
}

func (f *fakeLine) queueStatus(id uint8, code byte, params ...byte) {
	length := len(params) + 4
	frame := []byte{0xFF, 0xFF, 0xFD, 0x00, id, byte(length), byte(length >> 8), protocol.InstStatus, code}
	frame = append(frame, params...)
	crc := protocol.Checksum(frame)
	f.rx = append(f.rx, append(frame, byte(crc), byte(crc>>8))...)
}

func newTestBus() (*Bus, *fakeLine, *metrics.Metrics) {
	line := &fakeLine{now: time.Unix(0, 0)}
	ctrl := bus.New(line, line, line)
	stats := metrics.NewMetrics()
	b := NewBus(ctrl, line, motors.XL320)
	b.SetMetrics(stats)
	return b, line, stats
}

func TestBus_ReadRegisterByName(t *testing.T) {
	b, line, stats := newTestBus()
	line.queueStatus(1, 0, 0x64, 0x02)

	value, err := b.ReadRegister(1, "present_position")
	require.NoError(t, err)
	assert.Equal(t, uint16(612), value)
	assert.Equal(t, int64(1), stats.Snapshot().TotalOperations)
}

func TestBus_UnknownRegisterSkipsWire(t *testing.T) {
	b, line, _ := newTestBus()

	_, err := b.ReadRegister(1, "warp_drive")
	assert.ErrorIs(t, err, ErrUnknownRegister)
	assert.Empty(t, line.written)
}

func TestBus_CorruptReplyResetsInput(t *testing.T) {
	b, line, stats := newTestBus()
	line.queueStatus(1, 0, 0x64, 0x02)
	line.rx[9] ^= 0xFF // corrupt a parameter byte

	_, err := b.ReadRegister(1, "present_position")
	assert.ErrorIs(t, err, protocol.ErrInvalidChecksum)
	assert.Equal(t, 1, line.resetCalls)
	assert.Equal(t, int64(1), stats.Snapshot().ChecksumErrors)
}

func TestBus_TimeoutLeavesInputAlone(t *testing.T) {
	b, line, stats := newTestBus()

	_, err := b.ReadRegister(1, "present_position")
	assert.ErrorIs(t, err, protocol.ErrTimeout)
	assert.Zero(t, line.resetCalls)
	assert.Equal(t, int64(1), stats.Snapshot().Timeouts)
}

func TestBus_PingAbsentCountsNoFailure(t *testing.T) {
	b, line, stats := newTestBus()

	present, err := b.Ping(7)
	require.NoError(t, err)
	assert.False(t, present)
	assert.Zero(t, line.resetCalls)

	snap := stats.Snapshot()
	assert.Equal(t, int64(1), snap.TotalOperations)
	assert.Equal(t, int64(0), snap.Timeouts)
}

func TestBus_SetCatalog(t *testing.T) {
	b, line, _ := newTestBus()
	b.SetCatalog(motors.Catalog{"only": motors.Reg(0x10, 1)})

	_, err := b.ReadRegister(1, "present_position")
	assert.ErrorIs(t, err, ErrUnknownRegister)

	line.queueStatus(1, 0, 0x2A)
	value, err := b.ReadRegister(1, "only")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2A), value)
}
