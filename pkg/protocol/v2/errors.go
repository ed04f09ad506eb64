package protocol

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the codec and the bus engine. Callers match
// them with errors.Is; StatusError is matched with errors.As.
var (
	// ErrParsing reports a structural violation of a status frame: bad
	// magic, bad declared length, wrong marker, or truncation.
	ErrParsing = errors.New("dynamixel: malformed status frame")

	// ErrInvalidChecksum reports a CRC mismatch on a complete-looking frame.
	ErrInvalidChecksum = errors.New("dynamixel: status checksum mismatch")

	// ErrUnsupportedRegister reports a register width outside {1,2}.
	ErrUnsupportedRegister = errors.New("dynamixel: unsupported register width")

	// ErrTimeout reports that the per-byte receive deadline elapsed.
	ErrTimeout = errors.New("dynamixel: receive timeout")
)

// StatusError is the non-zero error byte of a well-formed status packet.
// The servo sets it when an instruction was received but could not be
// honored (instruction error, data range, access violation, hardware alert).
type StatusError byte

// Alert is the hardware-alert flag a servo ORs into the error byte when a
// fault condition (overheat, overload, input voltage) is latched alongside
// the instruction result.
const Alert = 0x80

var statusErrorNames = map[byte]string{
	0x01: "result fail",
	0x02: "instruction error",
	0x03: "crc mismatch",
	0x04: "data range error",
	0x05: "data length error",
	0x06: "data limit error",
	0x07: "access error",
}

func (e StatusError) Error() string {
	code := byte(e) &^ Alert
	name, ok := statusErrorNames[code]
	if !ok {
		name = "unknown error"
	}
	if byte(e)&Alert != 0 {
		return fmt.Sprintf("dynamixel: servo reported %s (0x%02X, hardware alert)", name, byte(e))
	}
	return fmt.Sprintf("dynamixel: servo reported %s (0x%02X)", name, byte(e))
}

// Code returns the raw error byte as transmitted on the wire.
func (e StatusError) Code() byte { return byte(e) }
