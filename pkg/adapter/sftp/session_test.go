package sftp

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/paperdrop/paperdrop/internal/logger"
	proto "github.com/paperdrop/paperdrop/internal/protocol/sftp"
	"github.com/paperdrop/paperdrop/pkg/adapter"
	"github.com/paperdrop/paperdrop/pkg/auth"
	"github.com/paperdrop/paperdrop/pkg/events"
	"github.com/paperdrop/paperdrop/pkg/session"
	"github.com/paperdrop/paperdrop/pkg/store/memory"
)

func init() {
	logger.InitWithWriter(io.Discard, "ERROR", "text", false)
}

func testSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

// eventSink collects bus events for assertions.
type eventSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *eventSink) HandleEvent(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) has(t events.Type) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.Type == t {
			return true
		}
	}
	return false
}

type rwPipe struct {
	io.Reader
	io.Writer
}

// harness drives one clientSession over in-memory pipes, bypassing SSH.
type harness struct {
	t     *testing.T
	store *memory.MemoryStore
	sink  *eventSink
	conn  rwPipe
	reqID uint32
}

func newHarness(t *testing.T, username string) *harness {
	t.Helper()

	st := memory.New()
	bus := events.NewBus()
	sink := &eventSink{}
	bus.Subscribe(sink)
	tracker := session.NewTracker(time.Minute, bus)

	a := New(Config{
		Base:              adapter.BaseConfig{ShutdownTimeout: time.Second},
		HostKey:           testSigner(t),
		Store:             st,
		Auth:              auth.New(auth.Config{Store: st, UserBasePath: "users", CreateDefaultSubdirs: true, Bus: bus}),
		Tracker:           tracker,
		Bus:               bus,
		UserBasePath:      "users",
		MaxDirectoryDepth: 10,
		SettleDelay:       time.Millisecond,
	})

	toServerR, toServerW := io.Pipe()
	toClientR, toClientW := io.Pipe()

	sess := a.newSession(username, rwPipe{Reader: toServerR, Writer: toClientW})
	done := make(chan error, 1)
	go func() {
		done <- sess.serve(context.Background())
	}()

	t.Cleanup(func() {
		_ = toServerW.Close()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("session did not end")
		}
		tracker.Close()
		bus.Close()
	})

	h := &harness{
		t:     t,
		store: st,
		sink:  sink,
		conn:  rwPipe{Reader: toClientR, Writer: toServerW},
	}
	h.handshake()
	return h
}

func (h *harness) handshake() {
	h.t.Helper()
	require.NoError(h.t, proto.WriteFrame(h.conn, proto.PacketTypeInit, u32(nil, proto.ProtocolVersion)))
	typ, payload := h.readFrame()
	require.EqualValues(h.t, proto.PacketTypeVersion, typ)
	require.EqualValues(h.t, proto.ProtocolVersion, binary.BigEndian.Uint32(payload))
}

func (h *harness) readFrame() (byte, []byte) {
	h.t.Helper()
	typ, payload, err := proto.ReadFrame(h.conn)
	require.NoError(h.t, err)
	return typ, payload
}

func (h *harness) send(typ byte, payload []byte) uint32 {
	h.t.Helper()
	require.NoError(h.t, proto.WriteFrame(h.conn, typ, payload))
	return h.reqID
}

func (h *harness) nextID() uint32 {
	h.reqID++
	return h.reqID
}

// Payload builders. Requests carry big-endian integers and length-prefixed
// strings.

func u32(b []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(b, v) }
func u64(b []byte, v uint64) []byte { return binary.BigEndian.AppendUint64(b, v) }
func str(b []byte, s string) []byte { return append(u32(b, uint32(len(s))), s...) }

// expectStatus reads a STATUS reply and asserts its id and code.
func (h *harness) expectStatus(id, code uint32) {
	h.t.Helper()
	typ, payload := h.readFrame()
	require.EqualValues(h.t, proto.PacketTypeStatus, typ, "reply type for request %d", id)
	require.EqualValues(h.t, id, binary.BigEndian.Uint32(payload[0:4]))
	assert.EqualValues(h.t, code, binary.BigEndian.Uint32(payload[4:8]))
}

// expectHandle reads a HANDLE reply and returns the wire handle.
func (h *harness) expectHandle(id uint32) string {
	h.t.Helper()
	typ, payload := h.readFrame()
	require.EqualValues(h.t, proto.PacketTypeHandle, typ)
	require.EqualValues(h.t, id, binary.BigEndian.Uint32(payload[0:4]))
	n := binary.BigEndian.Uint32(payload[4:8])
	return string(payload[8 : 8+n])
}

// expectNames reads a NAME reply and returns the entry names in order.
func (h *harness) expectNames(id uint32) []string {
	h.t.Helper()
	typ, payload := h.readFrame()
	require.EqualValues(h.t, proto.PacketTypeName, typ)
	require.EqualValues(h.t, id, binary.BigEndian.Uint32(payload[0:4]))

	count := binary.BigEndian.Uint32(payload[4:8])
	rest := payload[8:]
	names := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		var name string
		name, rest = takeString(h.t, rest)
		_, rest = takeString(h.t, rest) // longname
		rest = skipAttrs(h.t, rest)
		names = append(names, name)
	}
	return names
}

// expectData reads a DATA reply and returns the bytes.
func (h *harness) expectData(id uint32) []byte {
	h.t.Helper()
	typ, payload := h.readFrame()
	require.EqualValues(h.t, proto.PacketTypeData, typ)
	require.EqualValues(h.t, id, binary.BigEndian.Uint32(payload[0:4]))
	n := binary.BigEndian.Uint32(payload[4:8])
	return payload[8 : 8+n]
}

// expectAttrs reads an ATTRS reply and returns (size, isDir).
func (h *harness) expectAttrs(id uint32) (uint64, bool) {
	h.t.Helper()
	typ, payload := h.readFrame()
	require.EqualValues(h.t, proto.PacketTypeAttrs, typ)
	require.EqualValues(h.t, id, binary.BigEndian.Uint32(payload[0:4]))

	rest := payload[4:]
	flags := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]
	require.NotZero(h.t, flags&proto.AttrFlagSize)
	size := binary.BigEndian.Uint64(rest[0:8])
	perms := binary.BigEndian.Uint32(rest[16:20])
	return size, perms&0o040000 != 0
}

func takeString(t *testing.T, b []byte) (string, []byte) {
	t.Helper()
	require.GreaterOrEqual(t, len(b), 4)
	n := binary.BigEndian.Uint32(b[0:4])
	require.GreaterOrEqual(t, uint64(len(b)-4), uint64(n))
	return string(b[4 : 4+n]), b[4+n:]
}

func skipAttrs(t *testing.T, b []byte) []byte {
	t.Helper()
	flags := binary.BigEndian.Uint32(b[0:4])
	b = b[4:]
	if flags&proto.AttrFlagSize != 0 {
		b = b[8:]
	}
	if flags&proto.AttrFlagUIDGID != 0 {
		b = b[8:]
	}
	if flags&proto.AttrFlagPermissions != 0 {
		b = b[4:]
	}
	if flags&proto.AttrFlagACModTime != 0 {
		b = b[8:]
	}
	return b
}

// Client verbs.

func (h *harness) open(path string, pflags uint32) (uint32, string) {
	id := h.nextID()
	p := u32(nil, id)
	p = str(p, path)
	p = u32(p, pflags)
	p = u32(p, 0) // no attrs
	h.send(proto.PacketTypeOpen, p)
	return id, ""
}

func (h *harness) openOK(path string, pflags uint32) string {
	h.t.Helper()
	id, _ := h.open(path, pflags)
	return h.expectHandle(id)
}

func (h *harness) write(handle string, offset uint64, data []byte) uint32 {
	id := h.nextID()
	p := u32(nil, id)
	p = str(p, handle)
	p = u64(p, offset)
	p = u32(p, uint32(len(data)))
	p = append(p, data...)
	h.send(proto.PacketTypeWrite, p)
	return id
}

func (h *harness) read(handle string, offset uint64, length uint32) uint32 {
	id := h.nextID()
	p := u32(nil, id)
	p = str(p, handle)
	p = u64(p, offset)
	p = u32(p, length)
	h.send(proto.PacketTypeRead, p)
	return id
}

func (h *harness) closeHandle(handle string) uint32 {
	id := h.nextID()
	p := u32(nil, id)
	p = str(p, handle)
	h.send(proto.PacketTypeClose, p)
	return id
}

func (h *harness) pathRequest(typ byte, path string) uint32 {
	id := h.nextID()
	p := u32(nil, id)
	p = str(p, path)
	h.send(typ, p)
	return id
}

func (h *harness) handleRequest(typ byte, handle string) uint32 {
	id := h.nextID()
	p := u32(nil, id)
	p = str(p, handle)
	h.send(typ, p)
	return id
}

func (h *harness) rename(oldPath, newPath string) uint32 {
	id := h.nextID()
	p := u32(nil, id)
	p = str(p, oldPath)
	p = str(p, newPath)
	h.send(proto.PacketTypeRename, p)
	return id
}

func (h *harness) requireEvent(et events.Type) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.sink.has(et) }, time.Second, 5*time.Millisecond,
		"expected %s event", et)
}

const writeFlags = proto.OpenFlagWrite | proto.OpenFlagCreate | proto.OpenFlagTruncate

func TestSessionRealpathRoot(t *testing.T) {
	h := newHarness(t, "alice")

	id := h.pathRequest(proto.PacketTypeRealpath, ".")
	names := h.expectNames(id)
	assert.Equal(t, []string{"/"}, names)
}

func TestSessionRootListing(t *testing.T) {
	h := newHarness(t, "alice")

	id := h.pathRequest(proto.PacketTypeOpendir, "/")
	handle := h.expectHandle(id)

	id = h.handleRequest(proto.PacketTypeReaddir, handle)
	names := h.expectNames(id)
	assert.ElementsMatch(t, []string{"alice", "ledgers", "invoices"}, names)

	// One-shot: the second READDIR is EOF.
	id = h.handleRequest(proto.PacketTypeReaddir, handle)
	h.expectStatus(id, proto.StatusEOF)

	h.expectStatus(h.closeHandle(handle), proto.StatusOK)
}

func TestSessionRootListingProvisionsEmptyHome(t *testing.T) {
	h := newHarness(t, "alice")

	id := h.pathRequest(proto.PacketTypeOpendir, "/")
	h.expectHandle(id)

	_, ok := h.store.Object("users/alice/ledgers/.directory")
	assert.True(t, ok, "empty home should be provisioned on OPENDIR /")
	_, ok = h.store.Object("users/alice/invoices/.directory")
	assert.True(t, ok)
}

func TestSessionUploadRoundTrip(t *testing.T) {
	h := newHarness(t, "alice")

	handle := h.openOK("/ledgers/jan.pdf", writeFlags)
	h.expectStatus(h.write(handle, 0, []byte("%PDF-1.4 first ")), proto.StatusOK)
	h.expectStatus(h.write(handle, 15, []byte("second")), proto.StatusOK)
	h.expectStatus(h.closeHandle(handle), proto.StatusOK)

	body, ok := h.store.Object("users/alice/ledgers/jan.pdf")
	require.True(t, ok)
	assert.Equal(t, "%PDF-1.4 first second", string(body))
	assert.Equal(t, "application/pdf", h.store.ContentType("users/alice/ledgers/jan.pdf"))
	h.requireEvent(events.FileUploaded)
	h.requireEvent(events.DirectoryChanged)

	// The fresh object shows up in a listing right away.
	id := h.pathRequest(proto.PacketTypeOpendir, "/ledgers")
	dir := h.expectHandle(id)
	id = h.handleRequest(proto.PacketTypeReaddir, dir)
	assert.Contains(t, h.expectNames(id), "jan.pdf")
}

func TestSessionListingSettlesAfterUpload(t *testing.T) {
	h := newHarness(t, "alice")

	handle := h.openOK("/ledgers/jan.pdf", writeFlags)
	h.expectStatus(h.write(handle, 0, []byte("%PDF-1.7 body")), proto.StatusOK)
	h.expectStatus(h.closeHandle(handle), proto.StatusOK)

	// Simulate eventual consistency: the fresh key is missing from the
	// first listing. The recent upload makes OPENDIR wait out the settle
	// delay and list again, which surfaces it.
	h.store.HideFromList("users/alice/ledgers/jan.pdf", 1)

	id := h.pathRequest(proto.PacketTypeOpendir, "/ledgers")
	dir := h.expectHandle(id)
	id = h.handleRequest(proto.PacketTypeReaddir, dir)
	assert.Contains(t, h.expectNames(id), "jan.pdf")
	h.expectStatus(h.closeHandle(dir), proto.StatusOK)
}

func TestSessionUploadNonMonotonicOffsetsAppend(t *testing.T) {
	h := newHarness(t, "alice")

	handle := h.openOK("/notes.txt", writeFlags)
	h.expectStatus(h.write(handle, 100, []byte("abc")), proto.StatusOK)
	h.expectStatus(h.write(handle, 0, []byte("def")), proto.StatusOK)
	h.expectStatus(h.closeHandle(handle), proto.StatusOK)

	body, ok := h.store.Object("users/alice/notes.txt")
	require.True(t, ok)
	assert.Equal(t, "abcdef", string(body))
}

func TestSessionEmptyUploadRejected(t *testing.T) {
	h := newHarness(t, "alice")

	handle := h.openOK("/empty.txt", writeFlags)
	h.expectStatus(h.closeHandle(handle), proto.StatusFailure)

	assert.Empty(t, h.store.PutKeys())
	h.requireEvent(events.UploadError)
}

func TestSessionNonPDFUnderLedgersRejected(t *testing.T) {
	h := newHarness(t, "alice")

	id, _ := h.open("/ledgers/virus.exe", writeFlags)
	h.expectStatus(id, proto.StatusPermissionDenied)

	assert.Empty(t, h.store.PutKeys())
	h.requireEvent(events.UploadError)
}

func TestSessionDownload(t *testing.T) {
	h := newHarness(t, "alice")
	content := []byte("ledger content for january")
	require.NoError(t, h.store.Put(context.Background(), "users/alice/ledgers/jan.pdf", content, "application/pdf"))

	handle := h.openOK("/ledgers/jan.pdf", proto.OpenFlagRead)

	got := h.expectData(h.read(handle, 0, 10))
	assert.Equal(t, content[:10], got)
	got = h.expectData(h.read(handle, 10, 1000))
	assert.Equal(t, content[10:], got)

	// The recorded size was reached; EOF without another store call.
	h.expectStatus(h.read(handle, uint64(len(content)), 10), proto.StatusEOF)
	h.expectStatus(h.closeHandle(handle), proto.StatusOK)
	h.requireEvent(events.FileDownloaded)
}

func TestSessionOpenMissingFile(t *testing.T) {
	h := newHarness(t, "alice")

	id, _ := h.open("/ledgers/missing.pdf", proto.OpenFlagRead)
	h.expectStatus(id, proto.StatusNoSuchFile)
}

func TestSessionOpenDirectoryForRead(t *testing.T) {
	h := newHarness(t, "alice")
	require.NoError(t, h.store.Put(context.Background(), "users/alice/reports/.directory", []byte("marker"), auth.MarkerContentType))

	id, _ := h.open("/reports", proto.OpenFlagRead)
	h.expectStatus(id, proto.StatusNoSuchFile)
}

func TestSessionMkdirAlwaysDenied(t *testing.T) {
	h := newHarness(t, "alice")

	id := h.pathRequest(proto.PacketTypeMkdir, "/newdir")
	h.expectStatus(id, proto.StatusPermissionDenied)
	h.requireEvent(events.DirectoryCreationBlocked)
}

func TestSessionRmdirAlwaysDenied(t *testing.T) {
	h := newHarness(t, "alice")

	id := h.pathRequest(proto.PacketTypeRmdir, "/ledgers")
	h.expectStatus(id, proto.StatusPermissionDenied)
	h.requireEvent(events.DirectoryDeletionBlocked)
}

func TestSessionProtectedRemoveBlocked(t *testing.T) {
	h := newHarness(t, "alice")

	id := h.pathRequest(proto.PacketTypeRemove, "/ledgers")
	h.expectStatus(id, proto.StatusPermissionDenied)
	h.requireEvent(events.ProtectedDeletionBlocked)

	// The user-scoped spelling resolves to the same protected path.
	id = h.pathRequest(proto.PacketTypeRemove, "/alice/invoices")
	h.expectStatus(id, proto.StatusPermissionDenied)

	// Marker objects are shielded too.
	id = h.pathRequest(proto.PacketTypeRemove, "/ledgers/.directory")
	h.expectStatus(id, proto.StatusPermissionDenied)
}

func TestSessionRemoveFile(t *testing.T) {
	h := newHarness(t, "alice")
	require.NoError(t, h.store.Put(context.Background(), "users/alice/old.txt", []byte("x"), ""))

	id := h.pathRequest(proto.PacketTypeRemove, "/old.txt")
	h.expectStatus(id, proto.StatusOK)

	_, ok := h.store.Object("users/alice/old.txt")
	assert.False(t, ok)
	h.requireEvent(events.FileDeleted)
}

func TestSessionRemoveMissingFile(t *testing.T) {
	h := newHarness(t, "alice")

	id := h.pathRequest(proto.PacketTypeRemove, "/nope.txt")
	h.expectStatus(id, proto.StatusNoSuchFile)
}

func TestSessionRename(t *testing.T) {
	h := newHarness(t, "alice")
	require.NoError(t, h.store.Put(context.Background(), "users/alice/ledgers/draft.pdf", []byte("pdf"), "application/pdf"))

	id := h.rename("/ledgers/draft.pdf", "/ledgers/final.pdf")
	h.expectStatus(id, proto.StatusOK)

	_, ok := h.store.Object("users/alice/ledgers/draft.pdf")
	assert.False(t, ok)
	body, ok := h.store.Object("users/alice/ledgers/final.pdf")
	require.True(t, ok)
	assert.Equal(t, "pdf", string(body))
	h.requireEvent(events.FileRenamed)
}

func TestSessionProtectedRenameBlocked(t *testing.T) {
	h := newHarness(t, "alice")

	id := h.rename("/ledgers", "/archive")
	h.expectStatus(id, proto.StatusPermissionDenied)
	h.requireEvent(events.ProtectedRenameBlocked)
}

func TestSessionRenameNonPDFIntoLedgersDenied(t *testing.T) {
	h := newHarness(t, "alice")
	require.NoError(t, h.store.Put(context.Background(), "users/alice/report.txt", []byte("txt"), ""))

	id := h.rename("/report.txt", "/ledgers/report.txt")
	h.expectStatus(id, proto.StatusPermissionDenied)

	_, ok := h.store.Object("users/alice/report.txt")
	assert.True(t, ok, "source must be untouched")
}

func TestSessionStat(t *testing.T) {
	h := newHarness(t, "alice")
	require.NoError(t, h.store.Put(context.Background(), "users/alice/ledgers/jan.pdf", []byte("12345"), "application/pdf"))

	size, isDir := h.expectAttrs(h.pathRequest(proto.PacketTypeStat, "/ledgers/jan.pdf"))
	assert.EqualValues(t, 5, size)
	assert.False(t, isDir)

	_, isDir = h.expectAttrs(h.pathRequest(proto.PacketTypeStat, "/ledgers"))
	assert.True(t, isDir)

	_, isDir = h.expectAttrs(h.pathRequest(proto.PacketTypeLstat, "/"))
	assert.True(t, isDir)

	h.expectStatus(h.pathRequest(proto.PacketTypeStat, "/nope.txt"), proto.StatusNoSuchFile)
}

func TestSessionFstat(t *testing.T) {
	h := newHarness(t, "alice")

	handle := h.openOK("/notes.txt", writeFlags)
	h.expectStatus(h.write(handle, 0, []byte("hello")), proto.StatusOK)

	size, isDir := h.expectAttrs(h.handleRequest(proto.PacketTypeFstat, handle))
	assert.EqualValues(t, 5, size)
	assert.False(t, isDir)

	h.expectStatus(h.closeHandle(handle), proto.StatusOK)
}

func TestSessionDeniedPathNeverHitsStore(t *testing.T) {
	h := newHarness(t, "bob")

	// Another user's home is not admitted: two segments, not in the
	// allow-list, not under /bob.
	for _, verb := range []byte{proto.PacketTypeOpendir, proto.PacketTypeStat, proto.PacketTypeRemove} {
		id := h.pathRequest(verb, "/alice/secret")
		h.expectStatus(id, proto.StatusPermissionDenied)
	}
	id, _ := h.open("/alice/secret/file.pdf", proto.OpenFlagRead)
	h.expectStatus(id, proto.StatusPermissionDenied)

	assert.Empty(t, h.store.PutKeys())
}

func TestSessionEscapingPathDenied(t *testing.T) {
	h := newHarness(t, "alice")

	id := h.pathRequest(proto.PacketTypeStat, "/../other")
	h.expectStatus(id, proto.StatusPermissionDenied)
}

func TestSessionUnsupportedVerbs(t *testing.T) {
	h := newHarness(t, "alice")

	for _, verb := range []byte{proto.PacketTypeSetstat, proto.PacketTypeReadlink, proto.PacketTypeSymlink, proto.PacketTypeExtended} {
		id := h.nextID()
		p := u32(nil, id)
		p = str(p, "/whatever")
		h.send(verb, p)
		h.expectStatus(id, proto.StatusOpUnsupported)
	}
}

func TestSessionInvalidHandle(t *testing.T) {
	h := newHarness(t, "alice")

	bogus := proto.EncodeHandle(99)
	h.expectStatus(h.handleRequest(proto.PacketTypeReaddir, bogus), proto.StatusFailure)
	h.expectStatus(h.read(bogus, 0, 10), proto.StatusFailure)
	h.expectStatus(h.closeHandle(bogus), proto.StatusFailure)
}

func TestSessionHandleKindMismatch(t *testing.T) {
	h := newHarness(t, "alice")

	id := h.pathRequest(proto.PacketTypeOpendir, "/")
	dir := h.expectHandle(id)

	h.expectStatus(h.read(dir, 0, 10), proto.StatusFailure)
	h.expectStatus(h.write(dir, 0, []byte("x")), proto.StatusFailure)
	h.expectStatus(h.closeHandle(dir), proto.StatusOK)
}

func TestSessionWriteThenReadRoundTrip(t *testing.T) {
	h := newHarness(t, "alice")
	content := []byte("round trip body")

	wh := h.openOK("/file.bin", writeFlags)
	h.expectStatus(h.write(wh, 0, content), proto.StatusOK)
	h.expectStatus(h.closeHandle(wh), proto.StatusOK)

	rh := h.openOK("/file.bin", proto.OpenFlagRead)
	got := h.expectData(h.read(rh, 0, 1024))
	assert.Equal(t, content, got)
	h.expectStatus(h.read(rh, uint64(len(content)), 1024), proto.StatusEOF)
	h.expectStatus(h.closeHandle(rh), proto.StatusOK)
}
