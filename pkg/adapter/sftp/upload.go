package sftp

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/paperdrop/paperdrop/internal/logger"
	proto "github.com/paperdrop/paperdrop/internal/protocol/sftp"
	"github.com/paperdrop/paperdrop/pkg/events"
)

var errEmptyUpload = errors.New("empty files are not allowed")

// upload is one in-flight PUT. close waits on done; err is valid after done
// is closed.
type upload struct {
	done chan struct{}
	err  error
}

// openForWrite validates the write target and parks an empty buffer on a
// handle. The store sees nothing until CLOSE.
func (s *clientSession) openForWrite(ctx context.Context, p proto.OpenPacket, virtual string) (byte, []byte) {
	if reason := s.policy.AllowsWrite(virtual); reason != "" {
		logger.Warn("upload rejected", "user", s.username, "path", virtual, "reason", reason)
		s.adapter.cfg.Bus.Publish(events.Event{Type: events.UploadError, User: s.username, Path: virtual, Err: errors.New(reason)})
		return errorReply(p.ID, proto.Denied(reason))
	}

	key, err := s.mapper.ToKey(virtual)
	if err != nil {
		return errorReply(p.ID, proto.Denied(err.Error()))
	}

	if p.Pflags&proto.OpenFlagExclude != 0 {
		if _, err := s.adapter.cfg.Store.Head(ctx, key); err == nil {
			return errorReply(p.ID, proto.Failure("file already exists"))
		}
	}

	h := s.handles.alloc(&writeHandle{
		virtualPath: virtual,
		objectKey:   key,
		pflags:      p.Pflags,
	})
	logger.Debug("file opened for writing", "user", s.username, "path", virtual, "key", key)
	return proto.PacketTypeHandle, proto.MarshalHandle(p.ID, h)
}

// handleWrite appends the chunk to the handle's buffer. Offsets are advisory:
// chunks land in arrival order, and an offset that does not match the bytes
// buffered so far only earns a warning.
func (s *clientSession) handleWrite(p proto.WritePacket) (byte, []byte) {
	h, err := proto.DecodeHandle(p.Handle)
	if err != nil {
		return errorReply(p.ID, proto.Failure("invalid handle"))
	}
	state, ok := s.handles.get(h)
	if !ok {
		return errorReply(p.ID, proto.Failure("invalid handle"))
	}
	wh, ok := state.(*writeHandle)
	if !ok {
		return errorReply(p.ID, proto.Failure("not a file handle opened for writing"))
	}

	if p.Offset != uint64(len(wh.buf)) && !wh.offsetWarned {
		wh.offsetWarned = true
		logger.Warn("non-contiguous write offset, appending in arrival order",
			"user", s.username,
			"path", wh.virtualPath,
			"offset", p.Offset,
			"buffered", len(wh.buf))
	}
	wh.buf = append(wh.buf, p.Data...)
	wh.nextOffset = uint64(len(wh.buf))

	return okReply(p.ID)
}

// finishUpload runs the CLOSE side of the pipeline: validate the buffer,
// issue the single PUT, and hold the reply until the store answered.
func (s *clientSession) finishUpload(ctx context.Context, id uint32, wh *writeHandle) (byte, []byte) {
	if len(wh.buf) == 0 {
		logger.Warn("empty upload rejected", "user", s.username, "path", wh.virtualPath)
		s.adapter.cfg.Bus.Publish(events.Event{Type: events.UploadError, User: s.username, Path: wh.virtualPath, Err: errEmptyUpload})
		return statusReply(id, proto.StatusFailure, errEmptyUpload.Error())
	}
	if reason := s.policy.AllowsWrite(wh.virtualPath); reason != "" {
		s.adapter.cfg.Bus.Publish(events.Event{Type: events.UploadError, User: s.username, Path: wh.virtualPath, Err: errors.New(reason)})
		return statusReply(id, proto.StatusFailure, reason)
	}

	size := int64(len(wh.buf))
	if limit := s.adapter.cfg.MaxFileSize; limit > 0 && size > limit {
		logger.Warn("upload exceeds the configured size limit",
			"user", s.username,
			"path", wh.virtualPath,
			"size", size,
			"limit", limit)
	}

	wh.upload = s.startUpload(ctx, wh)
	<-wh.upload.done

	if err := wh.upload.err; err != nil {
		logger.Error("upload failed", "user", s.username, "key", wh.objectKey, "error", err)
		s.adapter.cfg.Bus.Publish(events.Event{Type: events.UploadError, User: s.username, Path: wh.virtualPath, Key: wh.objectKey, Err: err})
		return statusReply(id, proto.StatusFailure, "upload failed")
	}

	s.adapter.clock.Mark()
	if s.adapter.metrics != nil {
		s.adapter.metrics.RecordUploadBytes(size)
	}
	logger.Info("file uploaded", "user", s.username, "path", wh.virtualPath, "key", wh.objectKey, "size", size)
	s.adapter.cfg.Bus.Publish(events.Event{Type: events.FileUploaded, User: s.username, Path: wh.virtualPath, Key: wh.objectKey, Size: size})
	s.adapter.cfg.Bus.Publish(events.Event{Type: events.DirectoryChanged, User: s.username, Path: parentDir(wh.virtualPath)})

	return okReply(id)
}

// startUpload issues the PUT on its own goroutine. The context is detached
// from the request so a client that disconnects mid-CLOSE does not abort an
// object the store may already be committing.
func (s *clientSession) startUpload(ctx context.Context, wh *writeHandle) *upload {
	up := &upload{done: make(chan struct{})}
	putCtx := context.WithoutCancel(ctx)

	go func() {
		defer close(up.done)
		up.err = s.adapter.cfg.Store.Put(putCtx, wh.objectKey, wh.buf, contentTypeFor(wh.virtualPath))
	}()
	return up
}

func contentTypeFor(virtualPath string) string {
	if strings.HasSuffix(strings.ToLower(virtualPath), ".pdf") {
		return "application/pdf"
	}
	return ""
}

func parentDir(virtualPath string) string {
	dir := path.Dir(virtualPath)
	if dir == "." || dir == "" {
		return "/"
	}
	return dir
}
