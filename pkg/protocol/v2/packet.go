// Package protocol implements the Dynamixel protocol 2.0 wire format:
// instruction packet construction, status packet parsing and the
// CRC-16/BUYPASS frame checksum.
//
// An instruction frame is
//
//	FF FF FD 00 ID LEN_L LEN_H INST [param ...] CRC_L CRC_H
//
// and a status frame is
//
//	FF FF FD 00 ID LEN_L LEN_H 55 ERR [param ...] CRC_L CRC_H
//
// where LEN counts everything from the instruction/status marker through
// the CRC pair. All functions here are pure; transport and timing live in
// pkg/bus.
package protocol

import "fmt"

// Instruction opcodes.
const (
	InstPing      = 0x01
	InstRead      = 0x02
	InstWrite     = 0x03
	InstReset     = 0x06
	InstStatus    = 0x55
	InstSyncRead  = 0x82
	InstSyncWrite = 0x83
)

// BroadcastID addresses every servo on the bus. It is a protocol constant
// and is only ever used for sync-read and sync-write.
const BroadcastID = 0xFE

// HeaderSize is the fixed prefix of every frame: magic(4) + id(1) + length(2).
const HeaderSize = 7

// minStatusSize is the smallest legal status frame:
// header(7) + marker(1) + error(1) + crc(2).
const minStatusSize = 11

// EncodeInstruction serializes a full instruction frame for id. Parameters
// pass through untouched; their interpretation is the caller's concern.
func EncodeInstruction(id uint8, instruction uint8, params []byte) []byte {
	length := len(params) + 3 // instruction byte + 2 CRC bytes
	frame := make([]byte, 0, HeaderSize+length)
	frame = append(frame, 0xFF, 0xFF, 0xFD, 0x00, id, byte(length), byte(length>>8), instruction)
	frame = append(frame, params...)
	crc := Checksum(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

// Ping builds a ping instruction for id.
func Ping(id uint8) []byte {
	return EncodeInstruction(id, InstPing, nil)
}

// Reset builds a factory-reset instruction for id.
func Reset(id uint8) []byte {
	return EncodeInstruction(id, InstReset, nil)
}

// Read builds a read instruction for width bytes at addr.
func Read(id uint8, addr, width uint16) []byte {
	return EncodeInstruction(id, InstRead, []byte{
		byte(addr), byte(addr >> 8), byte(width), byte(width >> 8),
	})
}

// Write builds a write instruction placing value at addr, encoded
// little-endian over width bytes after the address and width fields.
// Widths outside {1,2} are rejected before anything reaches the wire.
func Write(id uint8, addr, width uint16, value uint16) ([]byte, error) {
	params, err := appendValue([]byte{
		byte(addr), byte(addr >> 8), byte(width), byte(width >> 8),
	}, width, value)
	if err != nil {
		return nil, err
	}
	return EncodeInstruction(id, InstWrite, params), nil
}

// SyncRead builds a broadcast sync-read of width bytes at addr for each id,
// in the given order. Each addressed servo answers with its own status
// frame; the bus delivers them in ascending-id order.
func SyncRead(ids []uint8, addr, width uint16) []byte {
	params := make([]byte, 0, 4+len(ids))
	params = append(params, byte(addr), byte(addr>>8), byte(width), byte(width>>8))
	params = append(params, ids...)
	return EncodeInstruction(BroadcastID, InstSyncRead, params)
}

// SyncAssignment is one (id, value) pair of a sync-write.
type SyncAssignment struct {
	ID    uint8
	Value uint16
}

// SyncWrite builds a broadcast sync-write placing each assignment's value at
// addr. Broadcast writes are silent by protocol; no status follows.
func SyncWrite(addr, width uint16, assignments []SyncAssignment) ([]byte, error) {
	params := make([]byte, 0, 2+len(assignments)*3)
	params = append(params, byte(addr), byte(addr>>8))
	for _, a := range assignments {
		var err error
		params, err = appendValue(append(params, a.ID), width, a.Value)
		if err != nil {
			return nil, err
		}
	}
	return EncodeInstruction(BroadcastID, InstSyncWrite, params), nil
}

func appendValue(params []byte, width uint16, value uint16) ([]byte, error) {
	switch width {
	case 1:
		return append(params, byte(value)), nil
	case 2:
		return append(params, byte(value), byte(value>>8)), nil
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrUnsupportedRegister, width)
	}
}

// Header is the decoded fixed prefix of a frame.
type Header struct {
	ID uint8
	// Length is the declared byte count from the instruction/status marker
	// through the trailing CRC pair.
	Length uint16
}

// DecodeHeader parses the 7-byte frame prefix.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header truncated at %d bytes", ErrParsing, len(b))
	}
	if b[0] != 0xFF || b[1] != 0xFF || b[2] != 0xFD || b[3] != 0x00 {
		return Header{}, fmt.Errorf("%w: bad magic % X", ErrParsing, b[:4])
	}
	return Header{
		ID:     b[4],
		Length: uint16(b[5]) | uint16(b[6])<<8,
	}, nil
}

// Status is a parsed status packet. Code is the raw wire error byte;
// zero means the servo reported no error.
type Status struct {
	ID     uint8
	Length uint16
	Code   byte
	Params []byte
}

// DecodeStatus parses and verifies a complete status frame.
//
// Structural violations (truncation, bad magic, length mismatch, wrong
// marker) return ErrParsing; a frame that holds together but fails the CRC
// returns ErrInvalidChecksum. The servo-reported error byte is carried in
// Status.Code, not turned into an error here.
func DecodeStatus(b []byte) (Status, error) {
	if len(b) < minStatusSize {
		return Status{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrParsing, len(b), minStatusSize)
	}
	header, err := DecodeHeader(b)
	if err != nil {
		return Status{}, err
	}
	if len(b) != HeaderSize+int(header.Length) {
		return Status{}, fmt.Errorf("%w: declared length %d, frame holds %d",
			ErrParsing, header.Length, len(b)-HeaderSize)
	}
	if b[7] != InstStatus {
		return Status{}, fmt.Errorf("%w: marker 0x%02X is not a status packet", ErrParsing, b[7])
	}
	want := uint16(b[len(b)-2]) | uint16(b[len(b)-1])<<8
	if got := Checksum(b[:len(b)-2]); got != want {
		return Status{}, fmt.Errorf("%w: computed %04X, frame carries %04X", ErrInvalidChecksum, got, want)
	}
	return Status{
		ID:     header.ID,
		Length: header.Length,
		Code:   b[8],
		Params: b[9 : len(b)-2],
	}, nil
}
