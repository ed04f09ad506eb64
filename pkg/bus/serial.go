package bus

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// pollInterval bounds how long a TryRead blocks inside the OS driver
// before reporting "no byte yet". It must stay well under any usable
// controller timeout so the per-byte deadline keeps its resolution.
const pollInterval = time.Millisecond

// SerialPort adapts a go.bug.st/serial port to the controller's Receiver
// and Transmitter contracts. Dynamixel buses run 8N1.
type SerialPort struct {
	port serial.Port
	buf  [1]byte
}

// OpenSerial opens device at the given baud rate.
func OpenSerial(device string, baudRate int) (*SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(pollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", device, err)
	}

	return &SerialPort{port: port}, nil
}

// TryRead fetches one byte if the line holds one within pollInterval.
func (s *SerialPort) TryRead() (byte, bool, error) {
	n, err := s.port.Read(s.buf[:])
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	return s.buf[0], true, nil
}

// Write pushes one byte onto the line.
func (s *SerialPort) Write(b byte) error {
	_, err := s.port.Write([]byte{b})
	return err
}

// Flush blocks until the transmit buffer has drained onto the wire.
func (s *SerialPort) Flush() error {
	return s.port.Drain()
}

// ResetInput discards any unread receive bytes. Useful after a failed
// receive, when the trailing bytes of an aborted reply may still sit in
// the input buffer and would poison the next frame.
func (s *SerialPort) ResetInput() error {
	return s.port.ResetInputBuffer()
}

// Close releases the port.
func (s *SerialPort) Close() error {
	return s.port.Close()
}
