package sftp

import (
	"context"
	"errors"
	"io"

	"github.com/paperdrop/paperdrop/internal/logger"
	proto "github.com/paperdrop/paperdrop/internal/protocol/sftp"
	"github.com/paperdrop/paperdrop/pkg/events"
	"github.com/paperdrop/paperdrop/pkg/namespace"
)

// openForRead resolves the target to an object and records its size on a
// handle. A listing classifies the key: directory evidence means the target
// is not a readable file.
func (s *clientSession) openForRead(ctx context.Context, p proto.OpenPacket, virtual string) (byte, []byte) {
	key, err := s.mapper.ToKey(virtual)
	if err != nil {
		return errorReply(p.ID, proto.Denied(err.Error()))
	}

	objects, err := s.adapter.cfg.Store.List(ctx, key)
	if err != nil {
		logger.Error("open listing failed", "user", s.username, "path", virtual, "error", err)
		return errorReply(p.ID, proto.Failure("listing failed"))
	}

	entry, found := namespace.Classify(key, objects)
	if !found {
		return errorReply(p.ID, proto.ErrNoSuchFile)
	}
	if entry.IsDir {
		return errorReply(p.ID, &proto.StatusError{Code: proto.StatusNoSuchFile, Msg: "is a directory"})
	}

	h := s.handles.alloc(&readHandle{
		virtualPath: virtual,
		objectKey:   key,
		size:        entry.Size,
		modTime:     entry.ModTime,
	})
	logger.Debug("file opened for reading", "user", s.username, "path", virtual, "size", entry.Size)
	return proto.PacketTypeHandle, proto.MarshalHandle(p.ID, h)
}

// handleRead serves one ranged read. Once a read reaches the recorded size
// the handle answers EOF without another store call.
func (s *clientSession) handleRead(ctx context.Context, p proto.ReadPacket) (byte, []byte) {
	h, err := proto.DecodeHandle(p.Handle)
	if err != nil {
		return errorReply(p.ID, proto.Failure("invalid handle"))
	}
	state, ok := s.handles.get(h)
	if !ok {
		return errorReply(p.ID, proto.Failure("invalid handle"))
	}
	rh, ok := state.(*readHandle)
	if !ok {
		return errorReply(p.ID, proto.Failure("not a file handle opened for reading"))
	}

	if rh.readAtEOF || p.Offset >= uint64(rh.size) {
		return errorReply(p.ID, proto.ErrEOF)
	}

	length := uint64(p.Length)
	if remaining := uint64(rh.size) - p.Offset; length > remaining {
		length = remaining
	}
	if length == 0 {
		return errorReply(p.ID, proto.ErrEOF)
	}

	buf := make([]byte, length)
	n, err := s.adapter.cfg.Store.ReadAt(ctx, rh.objectKey, buf, p.Offset)
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Error("read failed", "user", s.username, "key", rh.objectKey, "offset", p.Offset, "error", err)
		return errorReply(p.ID, proto.Failure("read failed"))
	}
	if n == 0 {
		rh.readAtEOF = true
		return errorReply(p.ID, proto.ErrEOF)
	}

	if p.Offset+uint64(n) >= uint64(rh.size) {
		rh.readAtEOF = true
	}
	if !rh.announced {
		rh.announced = true
		logger.Info("file download started", "user", s.username, "path", rh.virtualPath, "size", rh.size)
		s.adapter.cfg.Bus.Publish(events.Event{Type: events.FileDownloaded, User: s.username, Path: rh.virtualPath, Key: rh.objectKey, Size: rh.size})
	}
	if s.adapter.metrics != nil {
		s.adapter.metrics.RecordDownloadBytes(int64(n))
	}

	return proto.PacketTypeData, proto.MarshalData(p.ID, buf[:n])
}
