package sftp

import (
	"context"
	"net"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/paperdrop/paperdrop/internal/logger"
	"github.com/paperdrop/paperdrop/pkg/events"
)

// connection handles one accepted TCP connection: the SSH handshake,
// channel routing, and the hand-off of the "sftp" subsystem to a session.
type connection struct {
	adapter *Adapter
	netConn net.Conn
}

// Serve implements adapter.ConnectionHandler. It blocks until the client
// disconnects or the context is cancelled.
func (c *connection) Serve(ctx context.Context) {
	a := c.adapter

	sshConn, chans, reqs, err := ssh.NewServerConn(c.netConn, a.sshCfg)
	if err != nil {
		logger.Debug("SSH handshake failed", "address", c.netConn.RemoteAddr(), "error", err)
		_ = c.netConn.Close()
		return
	}
	defer sshConn.Close()

	username := sshConn.User()
	remoteAddr := sshConn.RemoteAddr().String()
	logger.Info("client authenticated", "user", username, "address", remoteAddr)

	a.cfg.Bus.Publish(events.Event{Type: events.Login, User: username})

	// First successful authentication in the session provisions the home.
	if err := a.cfg.Auth.ProvisionHome(ctx, username); err != nil {
		logger.Error("home provisioning failed", "user", username, "error", err)
	}

	sess := a.cfg.Tracker.Register(username, remoteAddr, sshConn)
	var cause error
	defer func() {
		if cause != nil && !isDisconnect(cause) {
			a.cfg.Bus.Publish(events.Event{Type: events.ClientError, User: username, Err: cause})
		}
		a.cfg.Tracker.Deregister(sess, cause)
	}()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			logger.Debug("rejecting channel", "type", newChannel.ChannelType(), "user", username)
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			logger.Debug("channel accept failed", "user", username, "error", err)
			cause = err
			continue
		}

		c.handleChannel(ctx, channel, requests, username)
	}
}

// handleChannel waits for the sftp subsystem request on a session channel
// and runs the request loop on it. Channels asking for anything else are
// answered with a refusal.
func (c *connection) handleChannel(ctx context.Context, channel ssh.Channel, requests <-chan *ssh.Request, username string) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "subsystem":
			// Payload is a length-prefixed subsystem name.
			if len(req.Payload) >= 4 && string(req.Payload[4:]) == "sftp" {
				if req.WantReply {
					_ = req.Reply(true, nil)
				}
				sess := c.adapter.newSession(username, channel)
				if err := sess.serve(ctx); err != nil && !isDisconnect(err) {
					logger.Debug("session ended with error", "user", username, "error", err)
					c.adapter.cfg.Bus.Publish(events.Event{Type: events.ClientError, User: username, Err: err})
				}
				return
			}
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

// isDisconnect reports whether an error is an ordinary client disconnect
// rather than a fault worth announcing.
func isDisconnect(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset")
}
