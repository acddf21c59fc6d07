package sftp

import (
	"context"
	"time"

	"github.com/paperdrop/paperdrop/internal/logger"
	proto "github.com/paperdrop/paperdrop/internal/protocol/sftp"
	"github.com/paperdrop/paperdrop/pkg/events"
	"github.com/paperdrop/paperdrop/pkg/namespace"
	"github.com/paperdrop/paperdrop/pkg/store"
)

// handleOpen routes the open to the write or read pipeline based on the
// pflags. There are no read-write handles: a write-ish flag wins.
func (s *clientSession) handleOpen(ctx context.Context, p proto.OpenPacket) (byte, []byte) {
	virtual, err := s.resolve(p.Path)
	if err != nil {
		return errorReply(p.ID, err)
	}

	if p.Pflags&(proto.OpenFlagWrite|proto.OpenFlagAppend) != 0 {
		return s.openForWrite(ctx, p, virtual)
	}
	if p.Pflags&proto.OpenFlagRead != 0 {
		return s.openForRead(ctx, p, virtual)
	}
	return statusReply(p.ID, proto.StatusOpUnsupported, "unsupported open flags")
}

// handleClose frees the handle. For write handles it runs the upload and
// does not answer OK until the store accepted the object.
func (s *clientSession) handleClose(ctx context.Context, p proto.HandlePacket) (byte, []byte) {
	h, err := proto.DecodeHandle(p.Handle)
	if err != nil {
		return errorReply(p.ID, proto.Failure("invalid handle"))
	}
	state, ok := s.handles.remove(h)
	if !ok {
		return errorReply(p.ID, proto.Failure("invalid handle"))
	}

	switch st := state.(type) {
	case *writeHandle:
		return s.finishUpload(ctx, p.ID, st)
	case *readHandle, *dirHandle:
		return okReply(p.ID)
	default:
		return errorReply(p.ID, proto.Failure("invalid handle"))
	}
}

// handleOpendir lists the directory and parks the materialized entries on a
// handle for READDIR. The root never touches the listing rules: its three
// entries are synthesized.
func (s *clientSession) handleOpendir(ctx context.Context, p proto.PathPacket) (byte, []byte) {
	virtual, err := s.resolve(p.Path)
	if err != nil {
		return errorReply(p.ID, err)
	}

	if virtual == "/" {
		return s.openRootDir(ctx, p.ID)
	}

	key, err := s.mapper.ToKey(virtual)
	if err != nil {
		return errorReply(p.ID, proto.Denied(err.Error()))
	}

	objects, err := s.listSettled(ctx, key)
	if err != nil {
		logger.Error("directory listing failed", "user", s.username, "path", virtual, "error", err)
		return errorReply(p.ID, proto.Failure("listing failed"))
	}

	// The aliased directories always exist; anything else needs evidence in
	// the listing.
	if !namespace.IsProtectedDir(virtual) {
		entry, found := namespace.Classify(key, objects)
		if !found {
			return errorReply(p.ID, proto.ErrNoSuchFile)
		}
		if !entry.IsDir {
			return errorReply(p.ID, &proto.StatusError{Code: proto.StatusNoSuchFile, Msg: "not a directory"})
		}
	}

	h := s.handles.alloc(&dirHandle{
		virtualPath: virtual,
		prefix:      key,
		entries:     namespace.BuildEntries(key, objects),
	})
	return proto.PacketTypeHandle, proto.MarshalHandle(p.ID, h)
}

// openRootDir serves OPENDIR of "/". The view is fixed, but an empty home is
// provisioned first so the aliased directories gain their markers.
func (s *clientSession) openRootDir(ctx context.Context, id uint32) (byte, []byte) {
	home := s.mapper.HomePrefix()
	objects, err := s.listSettled(ctx, home)
	if err != nil {
		logger.Error("home listing failed", "user", s.username, "error", err)
	} else if len(objects) == 0 {
		if err := s.adapter.cfg.Auth.ProvisionHome(ctx, s.username); err != nil {
			logger.Warn("home provisioning failed", "user", s.username, "error", err)
		}
	}

	h := s.handles.alloc(&dirHandle{
		virtualPath: "/",
		prefix:      home,
		entries:     namespace.SyntheticRoot(s.username, time.Now()),
	})
	return proto.PacketTypeHandle, proto.MarshalHandle(id, h)
}

// handleReaddir returns the parked entries once, then EOF.
func (s *clientSession) handleReaddir(p proto.HandlePacket) (byte, []byte) {
	h, err := proto.DecodeHandle(p.Handle)
	if err != nil {
		return errorReply(p.ID, proto.Failure("invalid handle"))
	}
	state, ok := s.handles.get(h)
	if !ok {
		return errorReply(p.ID, proto.Failure("invalid handle"))
	}
	dir, ok := state.(*dirHandle)
	if !ok {
		return errorReply(p.ID, proto.Failure("not a directory handle"))
	}

	if dir.emitted || len(dir.entries) == 0 {
		dir.emitted = true
		return errorReply(p.ID, proto.ErrEOF)
	}
	dir.emitted = true

	names := make([]proto.NameEntry, 0, len(dir.entries))
	for _, e := range dir.entries {
		names = append(names, nameEntry(e, s.username))
	}
	return proto.PacketTypeName, proto.MarshalName(p.ID, names)
}

// handleStat answers STAT and LSTAT. The store has no symlinks, so the two
// verbs are identical.
func (s *clientSession) handleStat(ctx context.Context, p proto.PathPacket) (byte, []byte) {
	virtual, err := s.resolve(p.Path)
	if err != nil {
		return errorReply(p.ID, err)
	}

	if virtual == "/" {
		return proto.PacketTypeAttrs, proto.MarshalAttrs(p.ID, proto.DirAttrs(time.Now()))
	}

	key, err := s.mapper.ToKey(virtual)
	if err != nil {
		return errorReply(p.ID, proto.Denied(err.Error()))
	}
	objects, err := s.adapter.cfg.Store.List(ctx, key)
	if err != nil {
		logger.Error("stat listing failed", "user", s.username, "path", virtual, "error", err)
		return errorReply(p.ID, proto.Failure("listing failed"))
	}

	entry, found := namespace.Classify(key, objects)
	switch {
	case found && entry.IsDir:
		return proto.PacketTypeAttrs, proto.MarshalAttrs(p.ID, proto.DirAttrs(entry.ModTime))
	case found:
		return proto.PacketTypeAttrs, proto.MarshalAttrs(p.ID, proto.FileAttrs(entry.Size, entry.ModTime))
	case namespace.IsProtectedDir(virtual):
		// The aliased directories exist even before their markers do.
		return proto.PacketTypeAttrs, proto.MarshalAttrs(p.ID, proto.DirAttrs(time.Now()))
	default:
		return errorReply(p.ID, proto.ErrNoSuchFile)
	}
}

// handleFstat answers from live handle state: the recorded size for read
// handles, the bytes buffered so far for write handles.
func (s *clientSession) handleFstat(p proto.HandlePacket) (byte, []byte) {
	h, err := proto.DecodeHandle(p.Handle)
	if err != nil {
		return errorReply(p.ID, proto.Failure("invalid handle"))
	}
	state, ok := s.handles.get(h)
	if !ok {
		return errorReply(p.ID, proto.Failure("invalid handle"))
	}

	switch st := state.(type) {
	case *readHandle:
		return proto.PacketTypeAttrs, proto.MarshalAttrs(p.ID, proto.FileAttrs(st.size, st.modTime))
	case *writeHandle:
		return proto.PacketTypeAttrs, proto.MarshalAttrs(p.ID, proto.FileAttrs(int64(len(st.buf)), time.Now()))
	case *dirHandle:
		return proto.PacketTypeAttrs, proto.MarshalAttrs(p.ID, proto.DirAttrs(time.Now()))
	default:
		return errorReply(p.ID, proto.Failure("invalid handle"))
	}
}

// handleRealpath canonicalizes the path and confirms it exists. The root is
// special-cased: it is valid even for a user with no objects at all.
func (s *clientSession) handleRealpath(ctx context.Context, p proto.PathPacket) (byte, []byte) {
	virtual, err := s.mapper.ToVirtual(p.Path)
	if err != nil {
		return errorReply(p.ID, proto.Denied(err.Error()))
	}

	if virtual == "/" || namespace.IsProtectedDir(virtual) {
		entry := proto.NameEntry{
			Name:     virtual,
			LongName: proto.FormatLongname(virtual, true, 0, time.Now(), s.username),
			Attrs:    proto.DirAttrs(time.Now()),
		}
		return proto.PacketTypeName, proto.MarshalName(p.ID, []proto.NameEntry{entry})
	}

	key, err := s.mapper.ToKey(virtual)
	if err != nil {
		return errorReply(p.ID, proto.Denied(err.Error()))
	}
	objects, err := s.adapter.cfg.Store.List(ctx, key)
	if err != nil {
		logger.Error("realpath listing failed", "user", s.username, "path", virtual, "error", err)
		return errorReply(p.ID, proto.Failure("listing failed"))
	}

	entry, found := namespace.Classify(key, objects)
	if !found {
		return errorReply(p.ID, proto.ErrNoSuchFile)
	}
	name := proto.NameEntry{
		Name:     virtual,
		LongName: proto.FormatLongname(virtual, entry.IsDir, entry.Size, entry.ModTime, s.username),
	}
	if entry.IsDir {
		name.Attrs = proto.DirAttrs(entry.ModTime)
	} else {
		name.Attrs = proto.FileAttrs(entry.Size, entry.ModTime)
	}
	return proto.PacketTypeName, proto.MarshalName(p.ID, []proto.NameEntry{name})
}

// handleRemove deletes a single object. The aliased directories and their
// markers can never be removed, and directories in general go through RMDIR,
// which is always refused.
func (s *clientSession) handleRemove(ctx context.Context, p proto.PathPacket) (byte, []byte) {
	virtual, err := s.mapper.ToVirtual(p.Path)
	if err != nil {
		return errorReply(p.ID, proto.Denied(err.Error()))
	}

	if virtual == "/" || s.policy.Protected(virtual) {
		s.adapter.cfg.Bus.Publish(events.Event{Type: events.ProtectedDeletionBlocked, User: s.username, Path: virtual})
		logger.Warn("protected path deletion blocked", "user", s.username, "path", virtual)
		return errorReply(p.ID, proto.Denied("protected path"))
	}
	if !s.policy.Admits(virtual) {
		return errorReply(p.ID, proto.Denied("access denied"))
	}

	key, err := s.mapper.ToKey(virtual)
	if err != nil {
		return errorReply(p.ID, proto.Denied(err.Error()))
	}
	objects, err := s.adapter.cfg.Store.List(ctx, key)
	if err != nil {
		logger.Error("remove listing failed", "user", s.username, "path", virtual, "error", err)
		return errorReply(p.ID, proto.Failure("listing failed"))
	}
	entry, found := namespace.Classify(key, objects)
	if !found {
		return errorReply(p.ID, proto.ErrNoSuchFile)
	}
	if entry.IsDir {
		return errorReply(p.ID, proto.Failure("is a directory"))
	}

	if err := s.adapter.cfg.Store.Delete(ctx, key); err != nil {
		logger.Error("delete failed", "user", s.username, "key", key, "error", err)
		return errorReply(p.ID, proto.Failure("delete failed"))
	}

	logger.Info("file deleted", "user", s.username, "path", virtual, "key", key)
	s.adapter.cfg.Bus.Publish(events.Event{Type: events.FileDeleted, User: s.username, Path: virtual, Key: key})
	return okReply(p.ID)
}

// handleRename moves an object by copy-then-delete; the store has no native
// rename. Directories cannot be renamed.
func (s *clientSession) handleRename(ctx context.Context, p proto.RenamePacket) (byte, []byte) {
	oldVirtual, err := s.mapper.ToVirtual(p.OldPath)
	if err != nil {
		return errorReply(p.ID, proto.Denied(err.Error()))
	}
	newVirtual, err := s.mapper.ToVirtual(p.NewPath)
	if err != nil {
		return errorReply(p.ID, proto.Denied(err.Error()))
	}

	if oldVirtual == "/" || s.policy.Protected(oldVirtual) || newVirtual == "/" || s.policy.Protected(newVirtual) {
		s.adapter.cfg.Bus.Publish(events.Event{Type: events.ProtectedRenameBlocked, User: s.username, Path: oldVirtual, NewPath: newVirtual})
		logger.Warn("protected path rename blocked", "user", s.username, "from", oldVirtual, "to", newVirtual)
		return errorReply(p.ID, proto.Denied("protected path"))
	}
	if !s.policy.Admits(oldVirtual) || !s.policy.Admits(newVirtual) {
		return errorReply(p.ID, proto.Denied("access denied"))
	}
	if reason := s.policy.AllowsWrite(newVirtual); reason != "" {
		return errorReply(p.ID, proto.Denied(reason))
	}

	oldKey, err := s.mapper.ToKey(oldVirtual)
	if err != nil {
		return errorReply(p.ID, proto.Denied(err.Error()))
	}
	newKey, err := s.mapper.ToKey(newVirtual)
	if err != nil {
		return errorReply(p.ID, proto.Denied(err.Error()))
	}

	objects, err := s.adapter.cfg.Store.List(ctx, oldKey)
	if err != nil {
		logger.Error("rename listing failed", "user", s.username, "path", oldVirtual, "error", err)
		return errorReply(p.ID, proto.Failure("listing failed"))
	}
	entry, found := namespace.Classify(oldKey, objects)
	if !found {
		return errorReply(p.ID, proto.ErrNoSuchFile)
	}
	if entry.IsDir {
		return errorReply(p.ID, proto.Failure("directory rename is not supported"))
	}

	if err := s.adapter.cfg.Store.Copy(ctx, oldKey, newKey); err != nil {
		logger.Error("rename copy failed", "user", s.username, "from", oldKey, "to", newKey, "error", err)
		return errorReply(p.ID, proto.Failure("rename failed"))
	}
	if err := s.adapter.cfg.Store.Delete(ctx, oldKey); err != nil {
		// The copy landed; the old object is now an orphan.
		logger.Error("rename delete failed", "user", s.username, "key", oldKey, "error", err)
		return errorReply(p.ID, proto.Failure("rename failed"))
	}

	logger.Info("file renamed", "user", s.username, "from", oldVirtual, "to", newVirtual)
	s.adapter.cfg.Bus.Publish(events.Event{Type: events.FileRenamed, User: s.username, Path: oldVirtual, NewPath: newVirtual, Key: newKey})
	return okReply(p.ID)
}

// handleMkdir always refuses: the directory layout is system-owned.
func (s *clientSession) handleMkdir(p proto.PathPacket) (byte, []byte) {
	virtual := p.Path
	if v, err := s.mapper.ToVirtual(p.Path); err == nil {
		virtual = v
	}
	logger.Warn("directory creation blocked", "user", s.username, "path", virtual)
	s.adapter.cfg.Bus.Publish(events.Event{Type: events.DirectoryCreationBlocked, User: s.username, Path: virtual})
	return errorReply(p.ID, proto.Denied("directory creation is not permitted"))
}

// handleRmdir always refuses, mirroring handleMkdir.
func (s *clientSession) handleRmdir(p proto.PathPacket) (byte, []byte) {
	virtual := p.Path
	if v, err := s.mapper.ToVirtual(p.Path); err == nil {
		virtual = v
	}
	logger.Warn("directory deletion blocked", "user", s.username, "path", virtual)
	s.adapter.cfg.Bus.Publish(events.Event{Type: events.DirectoryDeletionBlocked, User: s.username, Path: virtual})
	return errorReply(p.ID, proto.Denied("directory deletion is not permitted"))
}

// listSettled lists a prefix, and when any upload completed inside the
// consistency window it waits briefly and lists again so the fresh object has
// a chance to appear.
func (s *clientSession) listSettled(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	objects, err := s.adapter.cfg.Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	if s.adapter.clock.Within(s.adapter.cfg.ConsistencyWindow) {
		logger.Debug("recent upload, re-listing after settle delay", "prefix", prefix)
		select {
		case <-time.After(s.adapter.cfg.SettleDelay):
		case <-ctx.Done():
			return objects, nil
		}
		if again, err := s.adapter.cfg.Store.List(ctx, prefix); err == nil {
			objects = again
		}
	}
	return objects, nil
}

func nameEntry(e namespace.Entry, owner string) proto.NameEntry {
	name := proto.NameEntry{
		Name:     e.Name,
		LongName: proto.FormatLongname(e.Name, e.IsDir, e.Size, e.ModTime, owner),
	}
	if e.IsDir {
		name.Attrs = proto.DirAttrs(e.ModTime)
	} else {
		name.Attrs = proto.FileAttrs(e.Size, e.ModTime)
	}
	return name
}
