package sftp

import (
	"encoding/binary"
	"fmt"
)

// Handle encoding: handles are opaque 4-byte big-endian strings on the wire.

// EncodeHandle renders a handle value as its wire string.
func EncodeHandle(h uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], h)
	return string(b[:])
}

// DecodeHandle parses a wire handle string.
func DecodeHandle(s string) (uint32, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("invalid handle length %d", len(s))
	}
	return binary.BigEndian.Uint32([]byte(s)), nil
}

// Request packets. Each Parse* consumes the packet payload (everything after
// the type byte). Trailing bytes are ignored, matching the lenient reads of
// common client implementations.

// InitPacket is the client's protocol handshake.
type InitPacket struct {
	Version uint32
}

// ParseInit decodes an SSH_FXP_INIT payload.
func ParseInit(b []byte) (InitPacket, error) {
	version, _, err := parseUint32(b)
	if err != nil {
		return InitPacket{}, err
	}
	return InitPacket{Version: version}, nil
}

// OpenPacket asks to open a file.
type OpenPacket struct {
	ID     uint32
	Path   string
	Pflags uint32
	Attrs  Attrs
}

// ParseOpen decodes an SSH_FXP_OPEN payload.
func ParseOpen(b []byte) (OpenPacket, error) {
	var p OpenPacket
	var err error
	if p.ID, b, err = parseUint32(b); err != nil {
		return p, err
	}
	if p.Path, b, err = parseString(b); err != nil {
		return p, err
	}
	if p.Pflags, b, err = parseUint32(b); err != nil {
		return p, err
	}
	if p.Attrs, _, err = parseAttrs(b); err != nil {
		return p, err
	}
	return p, nil
}

// HandlePacket covers the requests that carry just a handle: CLOSE, READDIR,
// FSTAT.
type HandlePacket struct {
	ID     uint32
	Handle string
}

// ParseHandlePacket decodes a handle-only request payload.
func ParseHandlePacket(b []byte) (HandlePacket, error) {
	var p HandlePacket
	var err error
	if p.ID, b, err = parseUint32(b); err != nil {
		return p, err
	}
	if p.Handle, _, err = parseString(b); err != nil {
		return p, err
	}
	return p, nil
}

// ReadPacket asks for a ranged read from an open file.
type ReadPacket struct {
	ID     uint32
	Handle string
	Offset uint64
	Length uint32
}

// ParseRead decodes an SSH_FXP_READ payload.
func ParseRead(b []byte) (ReadPacket, error) {
	var p ReadPacket
	var err error
	if p.ID, b, err = parseUint32(b); err != nil {
		return p, err
	}
	if p.Handle, b, err = parseString(b); err != nil {
		return p, err
	}
	if p.Offset, b, err = parseUint64(b); err != nil {
		return p, err
	}
	if p.Length, _, err = parseUint32(b); err != nil {
		return p, err
	}
	return p, nil
}

// WritePacket carries a chunk of upload data.
type WritePacket struct {
	ID     uint32
	Handle string
	Offset uint64
	Data   []byte
}

// ParseWrite decodes an SSH_FXP_WRITE payload.
func ParseWrite(b []byte) (WritePacket, error) {
	var p WritePacket
	var err error
	if p.ID, b, err = parseUint32(b); err != nil {
		return p, err
	}
	if p.Handle, b, err = parseString(b); err != nil {
		return p, err
	}
	if p.Offset, b, err = parseUint64(b); err != nil {
		return p, err
	}
	if p.Data, _, err = parseBytes(b); err != nil {
		return p, err
	}
	return p, nil
}

// PathPacket covers the requests that carry just a path: OPENDIR, REMOVE,
// RMDIR, STAT, LSTAT, REALPATH, and MKDIR (whose trailing attrs we ignore;
// MKDIR is always refused).
type PathPacket struct {
	ID   uint32
	Path string
}

// ParsePathPacket decodes a path-only request payload.
func ParsePathPacket(b []byte) (PathPacket, error) {
	var p PathPacket
	var err error
	if p.ID, b, err = parseUint32(b); err != nil {
		return p, err
	}
	if p.Path, _, err = parseString(b); err != nil {
		return p, err
	}
	return p, nil
}

// RenamePacket asks to rename a file.
type RenamePacket struct {
	ID      uint32
	OldPath string
	NewPath string
}

// ParseRename decodes an SSH_FXP_RENAME payload.
func ParseRename(b []byte) (RenamePacket, error) {
	var p RenamePacket
	var err error
	if p.ID, b, err = parseUint32(b); err != nil {
		return p, err
	}
	if p.OldPath, b, err = parseString(b); err != nil {
		return p, err
	}
	if p.NewPath, _, err = parseString(b); err != nil {
		return p, err
	}
	return p, nil
}

// Reply packets. Each Marshal* returns the payload for WriteFrame.

// MarshalVersion builds the SSH_FXP_VERSION payload (no extensions).
func MarshalVersion(version uint32) []byte {
	return appendUint32(nil, version)
}

// MarshalStatus builds an SSH_FXP_STATUS payload. An empty msg falls back to
// the default message for the code.
func MarshalStatus(id, code uint32, msg string) []byte {
	if msg == "" {
		msg = StatusMessage(code)
	}
	b := appendUint32(nil, id)
	b = appendUint32(b, code)
	b = appendString(b, msg)
	b = appendString(b, "en")
	return b
}

// MarshalHandle builds an SSH_FXP_HANDLE payload.
func MarshalHandle(id uint32, handle uint32) []byte {
	b := appendUint32(nil, id)
	b = appendString(b, EncodeHandle(handle))
	return b
}

// MarshalData builds an SSH_FXP_DATA payload.
func MarshalData(id uint32, data []byte) []byte {
	b := appendUint32(nil, id)
	b = appendBytes(b, data)
	return b
}

// NameEntry is one row in an SSH_FXP_NAME reply.
type NameEntry struct {
	Name     string
	LongName string
	Attrs    Attrs
}

// MarshalName builds an SSH_FXP_NAME payload.
func MarshalName(id uint32, entries []NameEntry) []byte {
	b := appendUint32(nil, id)
	b = appendUint32(b, uint32(len(entries)))
	for _, e := range entries {
		b = appendString(b, e.Name)
		b = appendString(b, e.LongName)
		b = appendAttrs(b, e.Attrs)
	}
	return b
}

// MarshalAttrs builds an SSH_FXP_ATTRS payload.
func MarshalAttrs(id uint32, a Attrs) []byte {
	b := appendUint32(nil, id)
	b = appendAttrs(b, a)
	return b
}
