package sftp

import (
	"io/fs"
	"time"
)

// Default permission bits shown to clients. The store has no permissions;
// these are cosmetic.
const (
	FileMode = 0o644
	DirMode  = 0o755
)

// S_IFMT bits for the permissions field.
const (
	modeRegular   = 0o100000
	modeDirectory = 0o040000
)

// Attrs is the SFTP v3 attribute block.
type Attrs struct {
	// Size is the file size in bytes.
	Size uint64

	// UID and GID are reported as-is; the store has no ownership.
	UID uint32
	GID uint32

	// Permissions holds the mode bits including the file type.
	Permissions uint32

	// Atime and Mtime are Unix seconds.
	Atime uint32
	Mtime uint32
}

// FileAttrs builds the attributes for a regular file.
func FileAttrs(size int64, modTime time.Time) Attrs {
	return Attrs{
		Size:        uint64(size),
		Permissions: modeRegular | FileMode,
		Atime:       unixSeconds(modTime),
		Mtime:       unixSeconds(modTime),
	}
}

// DirAttrs builds the attributes for a directory.
func DirAttrs(modTime time.Time) Attrs {
	return Attrs{
		Permissions: modeDirectory | DirMode,
		Atime:       unixSeconds(modTime),
		Mtime:       unixSeconds(modTime),
	}
}

// IsDir reports whether the permissions mark a directory.
func (a Attrs) IsDir() bool {
	return a.Permissions&modeDirectory != 0
}

// Mode returns the fs.FileMode equivalent of the permissions field.
func (a Attrs) Mode() fs.FileMode {
	mode := fs.FileMode(a.Permissions & 0o777)
	if a.IsDir() {
		mode |= fs.ModeDir
	}
	return mode
}

// ModTime returns the modification time.
func (a Attrs) ModTime() time.Time {
	return time.Unix(int64(a.Mtime), 0)
}

// appendAttrs encodes the full v3 attribute block with all basic fields
// present.
func appendAttrs(b []byte, a Attrs) []byte {
	b = appendUint32(b, AttrFlagSize|AttrFlagUIDGID|AttrFlagPermissions|AttrFlagACModTime)
	b = appendUint64(b, a.Size)
	b = appendUint32(b, a.UID)
	b = appendUint32(b, a.GID)
	b = appendUint32(b, a.Permissions)
	b = appendUint32(b, a.Atime)
	b = appendUint32(b, a.Mtime)
	return b
}

// parseAttrs decodes an attribute block, tolerating any combination of
// presence flags. Extended attributes are skipped.
func parseAttrs(b []byte) (Attrs, []byte, error) {
	var a Attrs
	flags, b, err := parseUint32(b)
	if err != nil {
		return a, nil, err
	}
	if flags&AttrFlagSize != 0 {
		if a.Size, b, err = parseUint64(b); err != nil {
			return a, nil, err
		}
	}
	if flags&AttrFlagUIDGID != 0 {
		if a.UID, b, err = parseUint32(b); err != nil {
			return a, nil, err
		}
		if a.GID, b, err = parseUint32(b); err != nil {
			return a, nil, err
		}
	}
	if flags&AttrFlagPermissions != 0 {
		if a.Permissions, b, err = parseUint32(b); err != nil {
			return a, nil, err
		}
	}
	if flags&AttrFlagACModTime != 0 {
		if a.Atime, b, err = parseUint32(b); err != nil {
			return a, nil, err
		}
		if a.Mtime, b, err = parseUint32(b); err != nil {
			return a, nil, err
		}
	}
	if flags&AttrFlagExtended != 0 {
		count, rest, err := parseUint32(b)
		if err != nil {
			return a, nil, err
		}
		b = rest
		for i := uint32(0); i < count; i++ {
			if _, b, err = parseString(b); err != nil {
				return a, nil, err
			}
			if _, b, err = parseString(b); err != nil {
				return a, nil, err
			}
		}
	}
	return a, b, nil
}

func unixSeconds(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}
	return uint32(t.Unix())
}
