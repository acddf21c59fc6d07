package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperdrop/paperdrop/pkg/events"
)

type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// collector records events for assertions.
type collector struct {
	mu  sync.Mutex
	evs []events.Event
}

func (c *collector) HandleEvent(ev events.Event) {
	c.mu.Lock()
	c.evs = append(c.evs, ev)
	c.mu.Unlock()
}

func (c *collector) ofType(t events.Type) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, ev := range c.evs {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func TestRegisterAndSessions(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	defer tr.Close()

	sess := tr.Register("alice", "10.0.0.1:2222", &fakeConn{})
	require.NotNil(t, sess)

	infos := tr.Sessions()
	require.Len(t, infos, 1)
	assert.Equal(t, "alice", infos[0].Username)
	assert.Equal(t, "10.0.0.1:2222", infos[0].RemoteAddr)
	assert.False(t, infos[0].LastActivity.IsZero())
	assert.Equal(t, 1, tr.ActiveUsers())
}

func TestIdleFiresOnceAndKeepsSession(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	col := &collector{}
	bus.Subscribe(col)

	tr := NewTracker(30*time.Millisecond, bus)
	defer tr.Close()

	conn := &fakeConn{}
	tr.Register("alice", "addr", conn)

	require.Eventually(t, func() bool {
		return len(col.ofType(events.UserIdle)) == 1
	}, time.Second, 5*time.Millisecond)

	// The timer fired once and does not repeat without new activity.
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, col.ofType(events.UserIdle), 1)

	// Idle never closes the connection.
	assert.False(t, conn.isClosed())
	assert.Len(t, tr.Sessions(), 1)
}

func TestTouchRearmsIdleTimer(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	col := &collector{}
	bus.Subscribe(col)

	tr := NewTracker(50*time.Millisecond, bus)
	defer tr.Close()

	tr.Register("alice", "addr", &fakeConn{})

	// Keep touching more often than the timeout: no idle event.
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		tr.Touch("alice")
	}
	assert.Empty(t, col.ofType(events.UserIdle))

	// Stop touching: exactly one idle event.
	require.Eventually(t, func() bool {
		return len(col.ofType(events.UserIdle)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDeregisterStopsTimerAndEmits(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	col := &collector{}
	bus.Subscribe(col)

	tr := NewTracker(30*time.Millisecond, bus)
	defer tr.Close()

	sess := tr.Register("alice", "addr", &fakeConn{})
	tr.Deregister(sess, nil)

	assert.Equal(t, 0, tr.ActiveUsers())
	require.Eventually(t, func() bool {
		return len(col.ofType(events.ClientDisconnected)) == 1
	}, time.Second, 5*time.Millisecond)

	// Timer was stopped with the last session; no idle event arrives.
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, col.ofType(events.UserIdle))

	// Double deregister is a no-op.
	tr.Deregister(sess, nil)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, col.ofType(events.ClientDisconnected), 1)
}

func TestMultipleConnectionsOneTimer(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	col := &collector{}
	bus.Subscribe(col)

	tr := NewTracker(40*time.Millisecond, bus)
	defer tr.Close()

	s1 := tr.Register("alice", "addr1", &fakeConn{})
	tr.Register("alice", "addr2", &fakeConn{})
	assert.Equal(t, 1, tr.ActiveUsers())
	assert.Len(t, tr.Sessions(), 2)

	// Dropping one connection keeps the user tracked.
	tr.Deregister(s1, nil)
	assert.Equal(t, 1, tr.ActiveUsers())

	// One idle event for the user, not one per connection.
	require.Eventually(t, func() bool {
		return len(col.ofType(events.UserIdle)) >= 1
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, col.ofType(events.UserIdle), 1)
}

func TestForceDisconnect(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	defer tr.Close()

	aliceConn1 := &fakeConn{}
	aliceConn2 := &fakeConn{}
	bobConn := &fakeConn{}
	tr.Register("alice", "addr1", aliceConn1)
	tr.Register("alice", "addr2", aliceConn2)
	tr.Register("bob", "addr3", bobConn)

	closed := tr.ForceDisconnect("alice")
	assert.Equal(t, 2, closed)
	assert.True(t, aliceConn1.isClosed())
	assert.True(t, aliceConn2.isClosed())
	assert.False(t, bobConn.isClosed())
	assert.Equal(t, 1, tr.ActiveUsers())

	assert.Equal(t, 0, tr.ForceDisconnect("nobody"))
}

func TestDisconnectAll(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	defer tr.Close()

	conns := []*fakeConn{{}, {}, {}}
	tr.Register("alice", "addr1", conns[0])
	tr.Register("bob", "addr2", conns[1])
	tr.Register("carol", "addr3", conns[2])

	assert.Equal(t, 3, tr.DisconnectAll())
	for i, conn := range conns {
		assert.True(t, conn.isClosed(), "conn %d", i)
	}
	assert.Equal(t, 0, tr.ActiveUsers())
	assert.Empty(t, tr.Sessions())
}

func TestTouchRacingTimerFireSuppressesIdle(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	col := &collector{}
	bus.Subscribe(col)

	tracker := NewTracker(5*time.Millisecond, bus)
	defer tracker.Close()
	sess := tracker.Register("alice", "127.0.0.1:40000", &fakeConn{})
	defer tracker.Deregister(sess, nil)

	// Touch at a fraction of the timeout. A timer fire that races one of
	// these touches carries a stale generation and must not be reported.
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		tracker.Touch("alice")
		time.Sleep(time.Millisecond)
	}

	time.Sleep(2 * time.Millisecond)
	assert.Empty(t, col.ofType(events.UserIdle), "idle reported despite continuous activity")

	// Once activity stops, exactly one idle event fires.
	require.Eventually(t, func() bool {
		return len(col.ofType(events.UserIdle)) == 1
	}, time.Second, 2*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, col.ofType(events.UserIdle), 1)
}
