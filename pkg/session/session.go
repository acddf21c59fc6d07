// Package session tracks connected users and their activity.
//
// Every authenticated connection registers here. The tracker keeps one idle
// timer per user (not per connection): any request from any of the user's
// connections re-arms it, and when it expires a user-idle event fires.
// Expiry never terminates the session; operators decide what to do with idle
// users.
package session

import (
	"io"
	"sync"
	"time"

	"github.com/paperdrop/paperdrop/internal/logger"
	"github.com/paperdrop/paperdrop/pkg/events"
)

// DefaultIdleTimeout is how long a user may stay quiet before the idle
// event fires.
const DefaultIdleTimeout = 60 * time.Second

// Session is one registered connection.
type Session struct {
	// Username is the authenticated user.
	Username string

	// RemoteAddr is the client's network address.
	RemoteAddr string

	// ConnectedAt is when the session registered.
	ConnectedAt time.Time

	closer io.Closer
}

// Info is a read-only snapshot of a session for operator tooling.
type Info struct {
	Username     string    `json:"username"`
	RemoteAddr   string    `json:"remote_addr"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

// userState is the per-user tracking record shared by all of the user's
// sessions.
type userState struct {
	lastActivity time.Time
	idleTimer    *time.Timer
	// idleGen increments on every re-arm; a firing timer carries the
	// generation it was armed with so stale fires are recognized.
	idleGen  uint64
	sessions int
}

// Tracker is the session registry and idle manager. Safe for concurrent use.
type Tracker struct {
	idleTimeout time.Duration
	bus         *events.Bus

	mu       sync.Mutex
	users    map[string]*userState
	sessions map[*Session]struct{}
	closed   bool
}

// NewTracker creates a tracker. idleTimeout <= 0 selects the default; bus
// may be nil.
func NewTracker(idleTimeout time.Duration, bus *events.Bus) *Tracker {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Tracker{
		idleTimeout: idleTimeout,
		bus:         bus,
		users:       make(map[string]*userState),
		sessions:    make(map[*Session]struct{}),
	}
}

// Register records a new authenticated connection and arms the user's idle
// timer. closer is invoked by ForceDisconnect and DisconnectAll.
func (t *Tracker) Register(username, remoteAddr string, closer io.Closer) *Session {
	sess := &Session{
		Username:    username,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		closer:      closer,
	}

	t.mu.Lock()
	t.sessions[sess] = struct{}{}
	state := t.users[username]
	if state == nil {
		state = &userState{}
		t.users[username] = state
	}
	state.sessions++
	t.touchLocked(username, state)
	t.mu.Unlock()

	return sess
}

// Touch records activity for a user: the idle timer restarts and the
// last-activity timestamp updates. Unknown users are ignored.
func (t *Tracker) Touch(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state := t.users[username]; state != nil {
		t.touchLocked(username, state)
	}
}

// touchLocked resets the user's idle timer. Callers hold t.mu.
func (t *Tracker) touchLocked(username string, state *userState) {
	state.lastActivity = time.Now()
	if state.idleTimer != nil {
		state.idleTimer.Stop()
	}
	state.idleGen++
	gen := state.idleGen
	state.idleTimer = time.AfterFunc(t.idleTimeout, func() {
		t.onIdle(username, gen)
	})
}

// onIdle fires when a user's idle timer expires. Stop does not guarantee
// the timer has not already fired, so a fire racing a Touch arrives here
// with a stale generation and must not report idleness or drop the fresh
// timer Touch armed.
func (t *Tracker) onIdle(username string, gen uint64) {
	t.mu.Lock()
	state := t.users[username]
	if state == nil || state.idleGen != gen {
		t.mu.Unlock()
		return
	}
	// The current timer fired; drop the reference so Touch arms a fresh one.
	state.idleTimer = nil
	t.mu.Unlock()

	logger.Info("user idle", "user", username, "timeout", t.idleTimeout)
	t.bus.Publish(events.Event{Type: events.UserIdle, User: username})
}

// Deregister removes a session after its connection ended. When it was the
// user's last session the idle timer stops and the user's tracking clears.
// cause is reported on the client-disconnected event.
func (t *Tracker) Deregister(sess *Session, cause error) {
	t.mu.Lock()
	if _, ok := t.sessions[sess]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.sessions, sess)
	if state := t.users[sess.Username]; state != nil {
		state.sessions--
		if state.sessions <= 0 {
			if state.idleTimer != nil {
				state.idleTimer.Stop()
			}
			delete(t.users, sess.Username)
		}
	}
	t.mu.Unlock()

	t.bus.Publish(events.Event{
		Type: events.ClientDisconnected,
		User: sess.Username,
		Err:  cause,
	})
}

// ForceDisconnect closes every live connection of the named user and clears
// the user's tracking. Returns how many connections were closed.
func (t *Tracker) ForceDisconnect(username string) int {
	t.mu.Lock()
	var targets []*Session
	for sess := range t.sessions {
		if sess.Username == username {
			targets = append(targets, sess)
		}
	}
	t.mu.Unlock()

	for _, sess := range targets {
		if err := sess.closer.Close(); err != nil {
			logger.Debug("error closing session", "user", username, "error", err)
		}
		t.Deregister(sess, nil)
	}
	return len(targets)
}

// DisconnectAll closes every authenticated client and clears all tracking.
func (t *Tracker) DisconnectAll() int {
	t.mu.Lock()
	targets := make([]*Session, 0, len(t.sessions))
	for sess := range t.sessions {
		targets = append(targets, sess)
	}
	t.mu.Unlock()

	for _, sess := range targets {
		if err := sess.closer.Close(); err != nil {
			logger.Debug("error closing session", "user", sess.Username, "error", err)
		}
		t.Deregister(sess, nil)
	}
	return len(targets)
}

// Sessions returns a snapshot of all registered sessions.
func (t *Tracker) Sessions() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Info, 0, len(t.sessions))
	for sess := range t.sessions {
		info := Info{
			Username:    sess.Username,
			RemoteAddr:  sess.RemoteAddr,
			ConnectedAt: sess.ConnectedAt,
		}
		if state := t.users[sess.Username]; state != nil {
			info.LastActivity = state.lastActivity
		}
		out = append(out, info)
	}
	return out
}

// ActiveUsers returns the number of distinct users with live sessions.
func (t *Tracker) ActiveUsers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}

// Close stops all idle timers. Sessions are left to their connections.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for _, state := range t.users {
		if state.idleTimer != nil {
			state.idleTimer.Stop()
		}
	}
}
