// Package sftp implements the SFTP version 3 wire protocol as served over
// an SSH subsystem channel: frame I/O, request parsing, reply construction,
// attribute encoding, and status mapping.
//
// See https://tools.ietf.org/html/draft-ietf-secsh-filexfer-02 for the
// protocol draft this version of the protocol follows.
package sftp

// ProtocolVersion is the SFTP protocol version this server speaks.
const ProtocolVersion = 3

// Packet types.
const (
	PacketTypeInit          = 1
	PacketTypeVersion       = 2
	PacketTypeOpen          = 3
	PacketTypeClose         = 4
	PacketTypeRead          = 5
	PacketTypeWrite         = 6
	PacketTypeLstat         = 7
	PacketTypeFstat         = 8
	PacketTypeSetstat       = 9
	PacketTypeFsetstat      = 10
	PacketTypeOpendir       = 11
	PacketTypeReaddir       = 12
	PacketTypeRemove        = 13
	PacketTypeMkdir         = 14
	PacketTypeRmdir         = 15
	PacketTypeRealpath      = 16
	PacketTypeStat          = 17
	PacketTypeRename        = 18
	PacketTypeReadlink      = 19
	PacketTypeSymlink       = 20
	PacketTypeStatus        = 101
	PacketTypeHandle        = 102
	PacketTypeData          = 103
	PacketTypeName          = 104
	PacketTypeAttrs         = 105
	PacketTypeExtended      = 200
	PacketTypeExtendedReply = 201
)

// Status codes.
const (
	StatusOK               = 0
	StatusEOF              = 1
	StatusNoSuchFile       = 2
	StatusPermissionDenied = 3
	StatusFailure          = 4
	StatusBadMessage       = 5
	StatusNoConnection     = 6
	StatusConnectionLost   = 7
	StatusOpUnsupported    = 8
)

// Open flags (pflags bitmask in SSH_FXP_OPEN).
const (
	OpenFlagRead     = 0x00000001
	OpenFlagWrite    = 0x00000002
	OpenFlagAppend   = 0x00000004
	OpenFlagCreate   = 0x00000008
	OpenFlagTruncate = 0x00000010
	OpenFlagExclude  = 0x00000020
)

// Attribute presence flags.
const (
	AttrFlagSize        = 0x00000001
	AttrFlagUIDGID      = 0x00000002
	AttrFlagPermissions = 0x00000004
	AttrFlagACModTime   = 0x00000008
	AttrFlagExtended    = 0x80000000
)

var packetTypeNames = map[byte]string{
	PacketTypeInit:          "INIT",
	PacketTypeVersion:       "VERSION",
	PacketTypeOpen:          "OPEN",
	PacketTypeClose:         "CLOSE",
	PacketTypeRead:          "READ",
	PacketTypeWrite:         "WRITE",
	PacketTypeLstat:         "LSTAT",
	PacketTypeFstat:         "FSTAT",
	PacketTypeSetstat:       "SETSTAT",
	PacketTypeFsetstat:      "FSETSTAT",
	PacketTypeOpendir:       "OPENDIR",
	PacketTypeReaddir:       "READDIR",
	PacketTypeRemove:        "REMOVE",
	PacketTypeMkdir:         "MKDIR",
	PacketTypeRmdir:         "RMDIR",
	PacketTypeRealpath:      "REALPATH",
	PacketTypeStat:          "STAT",
	PacketTypeRename:        "RENAME",
	PacketTypeReadlink:      "READLINK",
	PacketTypeSymlink:       "SYMLINK",
	PacketTypeStatus:        "STATUS",
	PacketTypeHandle:        "HANDLE",
	PacketTypeData:          "DATA",
	PacketTypeName:          "NAME",
	PacketTypeAttrs:         "ATTRS",
	PacketTypeExtended:      "EXTENDED",
	PacketTypeExtendedReply: "EXTENDED_REPLY",
}

// TypeName returns the protocol name of a packet type for logging.
func TypeName(t byte) string {
	if name, ok := packetTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

var statusNames = map[uint32]string{
	StatusOK:               "OK",
	StatusEOF:              "EOF",
	StatusNoSuchFile:       "No such file",
	StatusPermissionDenied: "Permission denied",
	StatusFailure:          "Failure",
	StatusBadMessage:       "Bad message",
	StatusNoConnection:     "No connection",
	StatusConnectionLost:   "Connection lost",
	StatusOpUnsupported:    "Operation unsupported",
}

// StatusMessage returns the default human-readable message for a status code.
func StatusMessage(code uint32) string {
	if msg, ok := statusNames[code]; ok {
		return msg
	}
	return "Unknown status"
}
