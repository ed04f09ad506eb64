package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusFrame builds a synthetic, CRC-correct status frame.
func statusFrame(id uint8, code byte, params ...byte) []byte {
	length := len(params) + 4 // marker + error byte + 2 CRC bytes
	frame := []byte{0xFF, 0xFF, 0xFD, 0x00, id, byte(length), byte(length >> 8), InstStatus, code}
	frame = append(frame, params...)
	crc := Checksum(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

func TestEncodeInstructionRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		id          uint8
		instruction uint8
		params      []byte
	}{
		{"ping, no params", 1, InstPing, nil},
		{"read, four params", 7, InstRead, []byte{0x25, 0x00, 0x02, 0x00}},
		{"broadcast sync write", BroadcastID, InstSyncWrite, []byte{0x1E, 0x00, 0x02, 0x00, 0x01, 0x00, 0x02}},
		{"max id", 253, InstWrite, []byte{0x18, 0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := EncodeInstruction(tt.id, tt.instruction, tt.params)

			header, err := DecodeHeader(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.id, header.ID)
			assert.Equal(t, uint16(len(tt.params)+3), header.Length)
			assert.Equal(t, HeaderSize+int(header.Length), len(frame))

			crc := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
			assert.Equal(t, Checksum(frame[:len(frame)-2]), crc)
		})
	}
}

func TestInstructionFixtures(t *testing.T) {
	t.Run("ping", func(t *testing.T) {
		assert.Equal(t,
			[]byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x03, 0x00, 0x01, 0x19, 0x4E},
			Ping(1))
	})

	t.Run("read present position", func(t *testing.T) {
		assert.Equal(t,
			[]byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x07, 0x00, 0x02, 0x25, 0x00, 0x02, 0x00, 0x2D, 0x95},
			Read(1, 0x0025, 2))
	})

	t.Run("write goal position", func(t *testing.T) {
		frame, err := Write(1, 0x001E, 2, 512)
		require.NoError(t, err)
		assert.Equal(t,
			[]byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x09, 0x00, 0x03, 0x1E, 0x00, 0x02, 0x00, 0x00, 0x02, 0x81, 0x11},
			frame)
	})

	t.Run("write single byte", func(t *testing.T) {
		frame, err := Write(1, 0x0018, 1, 1)
		require.NoError(t, err)
		assert.Equal(t,
			[]byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x08, 0x00, 0x03, 0x18, 0x00, 0x01, 0x00, 0x01, 0xBD, 0x2C},
			frame)
	})

	t.Run("reset", func(t *testing.T) {
		assert.Equal(t,
			[]byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x03, 0x00, 0x06, 0x08, 0xCE},
			Reset(1))
	})

	t.Run("sync read", func(t *testing.T) {
		assert.Equal(t,
			[]byte{0xFF, 0xFF, 0xFD, 0x00, 0xFE, 0x0A, 0x00, 0x82, 0x25, 0x00, 0x02, 0x00, 0x01, 0x02, 0x03, 0x29, 0x46},
			SyncRead([]uint8{1, 2, 3}, 0x0025, 2))
	})

	t.Run("sync write", func(t *testing.T) {
		frame, err := SyncWrite(0x001E, 2, []SyncAssignment{{ID: 1, Value: 512}, {ID: 2, Value: 296}})
		require.NoError(t, err)
		assert.Equal(t,
			[]byte{0xFF, 0xFF, 0xFD, 0x00, 0xFE, 0x0B, 0x00, 0x83, 0x1E, 0x00, 0x01, 0x00, 0x02, 0x02, 0x28, 0x01, 0x22, 0xC5},
			frame)
	})
}

func TestWriteRejectsBadWidth(t *testing.T) {
	for _, width := range []uint16{0, 3, 4} {
		_, err := Write(1, 0x0010, width, 42)
		assert.ErrorIs(t, err, ErrUnsupportedRegister, "width %d", width)

		_, err = SyncWrite(0x0010, width, []SyncAssignment{{ID: 1, Value: 42}})
		assert.ErrorIs(t, err, ErrUnsupportedRegister, "width %d", width)
	}
}

func TestDecodeStatusFixed(t *testing.T) {
	// FF FF FD 00 2A 06 00 55 00 00 17 04 F2: id 42, no error, two params.
	status, err := DecodeStatus([]byte{0xFF, 0xFF, 0xFD, 0x00, 0x2A, 0x06, 0x00, 0x55, 0x00, 0x00, 0x17, 0x04, 0xF2})
	require.NoError(t, err)
	assert.Equal(t, uint8(42), status.ID)
	assert.Equal(t, uint16(6), status.Length)
	assert.Equal(t, byte(0), status.Code)
	assert.Equal(t, []byte{0x00, 0x17}, status.Params)
}

func TestDecodeStatusRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		id     uint8
		code   byte
		params []byte
	}{
		{"no error, empty params", 1, 0x00, nil},
		{"no error, two params", 42, 0x00, []byte{0x64, 0x02}},
		{"overheat alert", 3, 0x04, nil},
		{"alert flag set", 9, 0x84, []byte{0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := DecodeStatus(statusFrame(tt.id, tt.code, tt.params...))
			require.NoError(t, err)
			assert.Equal(t, tt.id, status.ID)
			assert.Equal(t, tt.code, status.Code)
			assert.Equal(t, uint16(len(tt.params)+4), status.Length)
			if len(tt.params) == 0 {
				assert.Empty(t, status.Params)
			} else {
				assert.Equal(t, tt.params, status.Params)
			}
		})
	}
}

func TestDecodeStatusRejectsMalformedFrames(t *testing.T) {
	good := statusFrame(1, 0, 0x64, 0x02)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{
			name:   "truncated below minimum",
			mutate: func(b []byte) []byte { return b[:10] },
			want:   ErrParsing,
		},
		{
			name: "bad magic",
			mutate: func(b []byte) []byte {
				b[2] = 0xFE
				return b
			},
			want: ErrParsing,
		},
		{
			name: "declared length does not cover frame",
			mutate: func(b []byte) []byte {
				b[5]++
				return b
			},
			want: ErrParsing,
		},
		{
			name: "marker is not a status packet",
			mutate: func(b []byte) []byte {
				b[7] = InstRead
				return b
			},
			want: ErrParsing,
		},
		{
			name: "corrupted parameter byte",
			mutate: func(b []byte) []byte {
				b[9] ^= 0x01
				return b
			},
			want: ErrInvalidChecksum,
		},
		{
			name: "corrupted trailing crc",
			mutate: func(b []byte) []byte {
				b[len(b)-1] ^= 0x80
				return b
			},
			want: ErrInvalidChecksum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := tt.mutate(append([]byte(nil), good...))
			_, err := DecodeStatus(frame)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// Flipping any single bit of a verified frame must be caught, either by the
// checksum or by the structural checks ahead of it.
func TestDecodeStatusBitFlipSensitivity(t *testing.T) {
	good := statusFrame(42, 0, 0x00, 0x17)
	_, err := DecodeStatus(good)
	require.NoError(t, err)

	for i := range good {
		for bit := 0; bit < 8; bit++ {
			frame := append([]byte(nil), good...)
			frame[i] ^= 1 << bit
			_, err := DecodeStatus(frame)
			assert.Error(t, err, "flipping byte %d bit %d went unnoticed", i, bit)
		}
	}
}
