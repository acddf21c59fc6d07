package sftp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrShortPacket indicates a packet body ended before its declared fields.
var ErrShortPacket = errors.New("packet too short")

// ErrTooLarge indicates a frame length above the negotiated maximum.
var ErrTooLarge = errors.New("packet too large")

// MaxPacketSize bounds incoming frames. SFTP clients chunk reads and writes
// well below this; anything larger is a broken or hostile peer.
const MaxPacketSize = 1 << 20

// ReadFrame reads one "uint32 length | byte type | payload" frame from r.
func ReadFrame(r io.Reader) (typ byte, payload []byte, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return 0, nil, ErrShortPacket
	}
	if length > MaxPacketSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return body[0], body[1:], nil
}

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, typ byte, payload []byte) error {
	frame := make([]byte, 0, 5+len(payload))
	frame = binary.BigEndian.AppendUint32(frame, uint32(1+len(payload)))
	frame = append(frame, typ)
	frame = append(frame, payload...)
	_, err := w.Write(frame)
	return err
}

// Marshal helpers. All integers are big-endian; strings are length-prefixed.

func appendUint32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

func appendUint64(b []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(b, v)
}

func appendString(b []byte, s string) []byte {
	b = appendUint32(b, uint32(len(s)))
	return append(b, s...)
}

func appendBytes(b, p []byte) []byte {
	b = appendUint32(b, uint32(len(p)))
	return append(b, p...)
}

// Unmarshal helpers. Each consumes from the front of b and returns the rest.

func parseUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, ErrShortPacket
	}
	return binary.BigEndian.Uint32(b), b[4:], nil
}

func parseUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, ErrShortPacket
	}
	return binary.BigEndian.Uint64(b), b[8:], nil
}

func parseString(b []byte) (string, []byte, error) {
	n, b, err := parseUint32(b)
	if err != nil {
		return "", nil, err
	}
	if uint64(n) > uint64(len(b)) {
		return "", nil, ErrShortPacket
	}
	return string(b[:n]), b[n:], nil
}

func parseBytes(b []byte) ([]byte, []byte, error) {
	n, b, err := parseUint32(b)
	if err != nil {
		return nil, nil, err
	}
	if uint64(n) > uint64(len(b)) {
		return nil, nil, ErrShortPacket
	}
	return b[:n], b[n:], nil
}

// RequestID extracts the request id every client packet except INIT starts
// with, so errors can be answered even when the body does not parse.
func RequestID(payload []byte) (uint32, bool) {
	if len(payload) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(payload), true
}
