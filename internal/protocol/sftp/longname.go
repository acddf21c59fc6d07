package sftp

import (
	"fmt"
	"time"
)

// FormatLongname renders the ls-style long name carried in SSH_FXP_NAME
// entries:
//
//	drw-rw-rw-    1 user user 0 01/15/2024 10:30:00 ledgers
//	-rw-rw-rw-    1 user user 1024 01/15/2024 10:30:00 jan.pdf
//
// Clients display this but must not parse it.
func FormatLongname(name string, isDir bool, size int64, modTime time.Time, owner string) string {
	kind := "-"
	if isDir {
		kind = "d"
	}
	if modTime.IsZero() {
		modTime = time.Now()
	}
	return fmt.Sprintf("%srw-rw-rw-    1 %s %s %d %s %s %s",
		kind,
		owner,
		owner,
		size,
		modTime.Format("01/02/2006"),
		modTime.Format("15:04:05"),
		name,
	)
}
