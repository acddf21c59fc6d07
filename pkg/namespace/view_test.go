package namespace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperdrop/paperdrop/pkg/store"
)

func objs(keys ...string) []store.ObjectInfo {
	out := make([]store.ObjectInfo, 0, len(keys))
	for _, k := range keys {
		out = append(out, store.ObjectInfo{Key: k, Size: 42, LastModified: time.Unix(1700000000, 0)})
	}
	return out
}

func names(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func TestBuildEntriesFiles(t *testing.T) {
	entries := BuildEntries("users/alice", objs(
		"users/alice/a.txt",
		"users/alice/b.pdf",
	))
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"a.txt", "b.pdf"}, names(entries))
	for _, e := range entries {
		assert.False(t, e.IsDir)
		assert.Equal(t, int64(42), e.Size)
	}
}

func TestBuildEntriesMarkerDirectory(t *testing.T) {
	entries := BuildEntries("users/alice", objs(
		"users/alice/ledgers/.directory",
	))
	require.Len(t, entries, 1)
	assert.Equal(t, "ledgers", entries[0].Name)
	assert.True(t, entries[0].IsDir)
}

func TestBuildEntriesInferredDirectory(t *testing.T) {
	// No marker: deep keys alone imply the directory.
	entries := BuildEntries("users/alice", objs(
		"users/alice/docs/readme.md",
		"users/alice/docs/deep/nested.txt",
	))
	require.Len(t, entries, 1)
	assert.Equal(t, "docs", entries[0].Name)
	assert.True(t, entries[0].IsDir)
}

func TestBuildEntriesMixed(t *testing.T) {
	entries := BuildEntries("users/alice/ledgers", objs(
		"users/alice/ledgers/.directory", // marker for the prefix itself, not an entry
		"users/alice/ledgers/jan.pdf",
		"users/alice/ledgers/feb.pdf",
		"users/alice/ledgers/2024/.directory",
		"users/alice/ledgers/archive/old.pdf",
	))
	require.Equal(t, []string{"2024", "archive", "feb.pdf", "jan.pdf"}, names(entries))
	assert.True(t, entries[0].IsDir)
	assert.True(t, entries[1].IsDir)
	assert.False(t, entries[2].IsDir)
	assert.False(t, entries[3].IsDir)
}

func TestBuildEntriesDirectoryBeatsFile(t *testing.T) {
	// A file and a directory with the same display name: directory wins.
	entries := BuildEntries("users/alice", objs(
		"users/alice/report",
		"users/alice/report/part1.txt",
	))
	require.Len(t, entries, 1)
	assert.Equal(t, "report", entries[0].Name)
	assert.True(t, entries[0].IsDir)

	// Same outcome regardless of listing order.
	entries = BuildEntries("users/alice", objs(
		"users/alice/report/.directory",
		"users/alice/report",
	))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDir)
}

func TestBuildEntriesIgnoresLegacyMarker(t *testing.T) {
	entries := BuildEntries("users/alice", objs(
		"users/alice/.dir",
		"users/alice/a.txt",
	))
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name)
}

func TestBuildEntriesIgnoresPrefixStringSiblings(t *testing.T) {
	// A LIST by string prefix can return sibling users; those keys are not
	// inside the directory.
	entries := BuildEntries("users/alice", objs(
		"users/alice2/leak.txt",
		"users/alice/a.txt",
	))
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name)
}

func TestBuildEntriesDeduplicates(t *testing.T) {
	entries := BuildEntries("users/alice", objs(
		"users/alice/docs/a.txt",
		"users/alice/docs/b.txt",
		"users/alice/docs/.directory",
		"users/alice/docs/c/d.txt",
	))
	require.Len(t, entries, 1)
	assert.Equal(t, "docs", entries[0].Name)
	assert.True(t, entries[0].IsDir)
}

func TestBuildEntriesEmpty(t *testing.T) {
	assert.Empty(t, BuildEntries("users/alice", nil))
}

func TestSyntheticRoot(t *testing.T) {
	now := time.Now()
	entries := SyntheticRoot("alice", now)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"alice", "ledgers", "invoices"}, names(entries))
	for _, e := range entries {
		assert.True(t, e.IsDir)
		assert.Equal(t, now, e.ModTime)
	}
}

func TestClassifyFile(t *testing.T) {
	entry, ok := Classify("users/alice/report.txt", objs(
		"users/alice/report.txt",
	))
	require.True(t, ok)
	assert.Equal(t, "report.txt", entry.Name)
	assert.False(t, entry.IsDir)
	assert.Equal(t, int64(42), entry.Size)
}

func TestClassifyMarkerDirectory(t *testing.T) {
	entry, ok := Classify("users/alice/ledgers", objs(
		"users/alice/ledgers/.directory",
	))
	require.True(t, ok)
	assert.Equal(t, "ledgers", entry.Name)
	assert.True(t, entry.IsDir)
}

func TestClassifyInferredDirectory(t *testing.T) {
	entry, ok := Classify("users/alice/docs", objs(
		"users/alice/docs/readme.md",
	))
	require.True(t, ok)
	assert.True(t, entry.IsDir)
}

func TestClassifyDirectoryBeatsFile(t *testing.T) {
	entry, ok := Classify("users/alice/report", objs(
		"users/alice/report",
		"users/alice/report/part1.txt",
	))
	require.True(t, ok)
	assert.True(t, entry.IsDir)
}

func TestClassifyNotFound(t *testing.T) {
	_, ok := Classify("users/alice/missing.txt", nil)
	assert.False(t, ok)

	// A string-prefix sibling is not a match.
	_, ok = Classify("users/alice/rep", objs("users/alice/report.txt"))
	assert.False(t, ok)
}

func TestUploadClock(t *testing.T) {
	var clock UploadClock
	assert.False(t, clock.Within(10*time.Second))

	clock.Mark()
	assert.True(t, clock.Within(10*time.Second))
	assert.False(t, clock.Within(time.Nanosecond))
}
