package namespace

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/paperdrop/paperdrop/pkg/store"
)

// Entry is one visible name inside a directory.
type Entry struct {
	// Name is the display name, a single path segment.
	Name string

	// IsDir reports whether the entry is shown as a directory.
	IsDir bool

	// Size is the object size; 0 for directories.
	Size int64

	// ModTime is the last-modified time shown to the client.
	ModTime time.Time
}

// BuildEntries materializes the names that live immediately under prefix
// from a flat listing of keys sharing that prefix. It is a pure function of
// its inputs.
//
// Per key: the legacy root marker "/.dir" is ignored; "prefix/<name>" is a
// file; "prefix/<name>/.directory" is an explicit directory; any deeper key
// "prefix/<name>/..." infers the directory <name>. Names are de-duplicated
// and directory classification wins over file. Entries come back sorted by
// name.
func BuildEntries(prefix string, objects []store.ObjectInfo) []Entry {
	prefix = strings.TrimSuffix(prefix, "/")

	byName := make(map[string]Entry)
	for _, obj := range objects {
		rel, ok := relativeTo(obj.Key, prefix)
		if !ok || rel == "" {
			continue
		}
		segments := strings.Split(rel, "/")

		switch {
		case rel == legacyMarkerName:
			// Legacy marker, ignore.

		case len(segments) == 1:
			if segments[0] == MarkerName {
				// Marker for the prefix itself, not an entry under it.
				continue
			}
			name := segments[0]
			if existing, seen := byName[name]; !seen || !existing.IsDir {
				byName[name] = Entry{
					Name:    name,
					Size:    obj.Size,
					ModTime: obj.LastModified,
				}
			}

		case len(segments) == 2 && segments[1] == MarkerName:
			byName[segments[0]] = Entry{
				Name:    segments[0],
				IsDir:   true,
				ModTime: obj.LastModified,
			}

		default:
			// Deeper content infers a directory at the top segment. Keep an
			// explicit marker's timestamp if one was already seen.
			name := segments[0]
			if existing, seen := byName[name]; !seen || !existing.IsDir {
				byName[name] = Entry{
					Name:    name,
					IsDir:   true,
					ModTime: obj.LastModified,
				}
			}
		}
	}

	entries := make([]Entry, 0, len(byName))
	for _, e := range byName {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// SyntheticRoot returns the fixed view of "/": the user's name and the two
// aliased directories, regardless of what a listing would say.
func SyntheticRoot(username string, now time.Time) []Entry {
	return []Entry{
		{Name: username, IsDir: true, ModTime: now},
		{Name: LedgersDir, IsDir: true, ModTime: now},
		{Name: InvoicesDir, IsDir: true, ModTime: now},
	}
}

// Classify decides what a key is, given a listing of all keys sharing it as
// a prefix (as STAT does). It returns the entry and true when the key names
// a file or a directory, and false when nothing matches.
//
// A key with an exact match in the listing is a file unless directory
// evidence also exists ("key/.directory", legacy "key/.dir", or any deeper
// key), in which case the directory classification wins.
func Classify(key string, objects []store.ObjectInfo) (Entry, bool) {
	key = strings.TrimSuffix(key, "/")
	name := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		name = key[i+1:]
	}

	var file *store.ObjectInfo
	var dir *store.ObjectInfo
	for i := range objects {
		obj := &objects[i]
		if obj.Key == key {
			file = obj
			continue
		}
		if rel, ok := relativeTo(obj.Key, key); ok && rel != "" {
			if dir == nil || rel == MarkerName || rel == legacyMarkerName {
				dir = obj
			}
		}
	}

	switch {
	case dir != nil:
		return Entry{Name: name, IsDir: true, ModTime: dir.LastModified}, true
	case file != nil:
		return Entry{Name: name, Size: file.Size, ModTime: file.LastModified}, true
	default:
		return Entry{}, false
	}
}

// relativeTo returns the part of key below prefix ("" for the key equal to
// the prefix), and false when the key is not inside the prefix. A key that
// merely shares the prefix as a string ("users/alice2" under "users/alice")
// does not match.
func relativeTo(key, prefix string) (string, bool) {
	if key == prefix {
		return "", true
	}
	if prefix == "" {
		return key, true
	}
	if strings.HasPrefix(key, prefix+"/") {
		return key[len(prefix)+1:], true
	}
	return "", false
}

// UploadClock tracks when the most recent upload anywhere completed. The
// store's listings are eventually consistent, so directory reads issued soon
// after any PUT wait briefly and list again. One clock is shared by every
// session on purpose: an upload in one session must delay listings in all of
// them.
type UploadClock struct {
	lastUnixNano atomic.Int64
}

// Mark records that an upload just completed.
func (c *UploadClock) Mark() {
	now := time.Now().UnixNano()
	for {
		prev := c.lastUnixNano.Load()
		if prev >= now || c.lastUnixNano.CompareAndSwap(prev, now) {
			return
		}
	}
}

// Within reports whether an upload completed within the last d.
func (c *UploadClock) Within(d time.Duration) bool {
	last := c.lastUnixNano.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) < d
}
