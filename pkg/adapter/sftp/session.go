package sftp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/paperdrop/paperdrop/internal/logger"
	proto "github.com/paperdrop/paperdrop/internal/protocol/sftp"
	"github.com/paperdrop/paperdrop/pkg/namespace"
	"github.com/paperdrop/paperdrop/pkg/policy"
)

// clientSession is one SFTP subsystem channel: the request loop plus the
// per-user state every request needs. SFTP is single-request-at-a-time on a
// channel, so the loop owns the handle table without further locking beyond
// the table's own.
type clientSession struct {
	adapter  *Adapter
	username string
	ch       io.ReadWriter
	mapper   *namespace.Mapper
	policy   *policy.Policy
	handles  *handleTable
}

func (a *Adapter) newSession(username string, ch io.ReadWriter) *clientSession {
	return &clientSession{
		adapter:  a,
		username: username,
		ch:       ch,
		mapper:   namespace.NewMapper(a.cfg.UserBasePath, username, a.cfg.MaxDirectoryDepth),
		policy:   policy.New(username, a.cfg.AllowedPaths[username]),
		handles:  newHandleTable(a.metrics),
	}
}

// serve runs the INIT/VERSION handshake and then the request loop until the
// channel ends. A clean client EOF returns nil.
func (s *clientSession) serve(ctx context.Context) error {
	defer s.handles.clear()

	typ, payload, err := proto.ReadFrame(s.ch)
	if err != nil {
		return fmt.Errorf("reading handshake: %w", err)
	}
	if typ != proto.PacketTypeInit {
		return fmt.Errorf("expected INIT, got %s", proto.TypeName(typ))
	}
	init, err := proto.ParseInit(payload)
	if err != nil {
		return fmt.Errorf("parsing INIT: %w", err)
	}
	logger.Debug("SFTP session negotiated",
		"user", s.username,
		"client_version", init.Version,
		"server_version", proto.ProtocolVersion)
	if err := proto.WriteFrame(s.ch, proto.PacketTypeVersion, proto.MarshalVersion(proto.ProtocolVersion)); err != nil {
		return fmt.Errorf("writing VERSION: %w", err)
	}

	for {
		typ, payload, err := proto.ReadFrame(s.ch)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading request: %w", err)
		}

		s.adapter.cfg.Tracker.Touch(s.username)

		start := time.Now()
		replyType, reply := s.dispatch(ctx, typ, payload)
		if s.adapter.metrics != nil {
			s.adapter.metrics.RecordRequest(proto.TypeName(typ), replyStatus(replyType, reply), time.Since(start))
		}

		if err := proto.WriteFrame(s.ch, replyType, reply); err != nil {
			return fmt.Errorf("writing reply: %w", err)
		}
	}
}

// dispatch parses and routes one request, returning the reply frame. Parse
// failures answer BAD_MESSAGE; verbs the server does not implement answer
// OP_UNSUPPORTED.
func (s *clientSession) dispatch(ctx context.Context, typ byte, payload []byte) (byte, []byte) {
	// Best effort: every request except INIT starts with the id, so even a
	// garbled body can usually be answered instead of torn down.
	id, _ := proto.RequestID(payload)

	switch typ {
	case proto.PacketTypeOpen:
		p, err := proto.ParseOpen(payload)
		if err != nil {
			return badMessage(id)
		}
		return s.handleOpen(ctx, p)

	case proto.PacketTypeClose:
		p, err := proto.ParseHandlePacket(payload)
		if err != nil {
			return badMessage(id)
		}
		return s.handleClose(ctx, p)

	case proto.PacketTypeRead:
		p, err := proto.ParseRead(payload)
		if err != nil {
			return badMessage(id)
		}
		return s.handleRead(ctx, p)

	case proto.PacketTypeWrite:
		p, err := proto.ParseWrite(payload)
		if err != nil {
			return badMessage(id)
		}
		return s.handleWrite(p)

	case proto.PacketTypeOpendir:
		p, err := proto.ParsePathPacket(payload)
		if err != nil {
			return badMessage(id)
		}
		return s.handleOpendir(ctx, p)

	case proto.PacketTypeReaddir:
		p, err := proto.ParseHandlePacket(payload)
		if err != nil {
			return badMessage(id)
		}
		return s.handleReaddir(p)

	case proto.PacketTypeRemove:
		p, err := proto.ParsePathPacket(payload)
		if err != nil {
			return badMessage(id)
		}
		return s.handleRemove(ctx, p)

	case proto.PacketTypeRename:
		p, err := proto.ParseRename(payload)
		if err != nil {
			return badMessage(id)
		}
		return s.handleRename(ctx, p)

	case proto.PacketTypeStat, proto.PacketTypeLstat:
		p, err := proto.ParsePathPacket(payload)
		if err != nil {
			return badMessage(id)
		}
		return s.handleStat(ctx, p)

	case proto.PacketTypeFstat:
		p, err := proto.ParseHandlePacket(payload)
		if err != nil {
			return badMessage(id)
		}
		return s.handleFstat(p)

	case proto.PacketTypeRealpath:
		p, err := proto.ParsePathPacket(payload)
		if err != nil {
			return badMessage(id)
		}
		return s.handleRealpath(ctx, p)

	case proto.PacketTypeMkdir:
		p, err := proto.ParsePathPacket(payload)
		if err != nil {
			return badMessage(id)
		}
		return s.handleMkdir(p)

	case proto.PacketTypeRmdir:
		p, err := proto.ParsePathPacket(payload)
		if err != nil {
			return badMessage(id)
		}
		return s.handleRmdir(p)

	case proto.PacketTypeInit:
		return statusReply(id, proto.StatusBadMessage, "unexpected INIT after handshake")

	default:
		logger.Debug("unsupported request",
			"user", s.username,
			"type", proto.TypeName(typ))
		return statusReply(id, proto.StatusOpUnsupported, "")
	}
}

// resolve canonicalizes a client path and runs the allow-list check. Both
// failures map to PERMISSION_DENIED before any store call.
func (s *clientSession) resolve(path string) (string, error) {
	virtual, err := s.mapper.ToVirtual(path)
	if err != nil {
		return "", proto.Denied(err.Error())
	}
	if !s.policy.Admits(virtual) {
		return "", proto.Denied("access denied")
	}
	return virtual, nil
}

func statusReply(id, code uint32, msg string) (byte, []byte) {
	return proto.PacketTypeStatus, proto.MarshalStatus(id, code, msg)
}

func okReply(id uint32) (byte, []byte) {
	return statusReply(id, proto.StatusOK, "")
}

func errorReply(id uint32, err error) (byte, []byte) {
	code, msg := proto.StatusFromError(err)
	return statusReply(id, code, msg)
}

func badMessage(id uint32) (byte, []byte) {
	return statusReply(id, proto.StatusBadMessage, "")
}

// replyStatus extracts the wire status a reply carries, for metrics. Data,
// handle, name, and attrs replies all mean OK.
func replyStatus(replyType byte, reply []byte) uint32 {
	if replyType == proto.PacketTypeStatus && len(reply) >= 8 {
		return binary.BigEndian.Uint32(reply[4:8])
	}
	return proto.StatusOK
}
