package core

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pipechat/pipechat-server/internal/store"
)

// fakeConn collects framed writes so tests can assert on delivered lines.
type fakeConn struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	failWrites bool
	closed     bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return 0, errors.New("broken pipe")
	}
	return c.buf.Write(p)
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := strings.TrimSuffix(c.buf.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func join(t *testing.T, tbl *Table, peer *Peer, username string, role store.Role, room string) {
	t.Helper()
	tbl.Login(peer, username, role)
	if _, _, ok := tbl.JoinRoom(peer, room); !ok {
		t.Fatalf("join failed for %s", username)
	}
}

func TestBroadcastReachesRoomMembersOnly(t *testing.T) {
	tbl := NewTable(time.Second, nil)

	aliceConn, bobConn, carolConn := &fakeConn{}, &fakeConn{}, &fakeConn{}
	alice := NewPeer(aliceConn, "10.0.0.1:1111", time.Second)
	bob := NewPeer(bobConn, "10.0.0.2:2222", time.Second)
	carol := NewPeer(carolConn, "10.0.0.3:3333", time.Second)

	join(t, tbl, alice, "alice", store.RoleUser, "a-1")
	join(t, tbl, bob, "bob", store.RoleUser, "a-1")
	join(t, tbl, carol, "carol", store.RoleUser, "b-2")

	tbl.Broadcast("a-1", "MSG|alice|hello")

	for name, conn := range map[string]*fakeConn{"alice": aliceConn, "bob": bobConn} {
		got := conn.lines()
		if len(got) != 1 || got[0] != "MSG|alice|hello" {
			t.Fatalf("%s received %v, want the broadcast (sender included)", name, got)
		}
	}
	if got := carolConn.lines(); got != nil {
		t.Fatalf("carol in another room received %v", got)
	}
}

func TestPresenceFanOutByRole(t *testing.T) {
	tbl := NewTable(time.Second, nil)

	bossConn, aliceConn := &fakeConn{}, &fakeConn{}
	boss := NewPeer(bossConn, "10.0.0.9:9999", time.Second)
	alice := NewPeer(aliceConn, "10.0.0.1:1111", time.Second)

	join(t, tbl, boss, "boss", store.RoleAdmin, "a-1")
	join(t, tbl, alice, "alice", store.RoleUser, "a-1")

	tbl.BroadcastPresence("a-1")

	// Roster is sorted by username in both variants.
	if got := aliceConn.lines(); len(got) != 1 || got[0] != "USERLIST|alice,boss" {
		t.Fatalf("plain user received %v", got)
	}
	if got := bossConn.lines(); len(got) != 1 || got[0] != "USERLIST_ADMIN|alice#10.0.0.1:1111,boss#10.0.0.9:9999" {
		t.Fatalf("admin received %v", got)
	}
}

func TestPresenceEmptyRoomIsSilent(t *testing.T) {
	tbl := NewTable(time.Second, nil)
	tbl.BroadcastPresence("nowhere")

	if sessions, rooms := tbl.Stats(); sessions != 0 || rooms != 0 {
		t.Fatalf("expected empty table, got sessions=%d rooms=%d", sessions, rooms)
	}
}

func TestRemoveNotifiesFormerRoom(t *testing.T) {
	tbl := NewTable(time.Second, nil)

	aliceConn, bobConn := &fakeConn{}, &fakeConn{}
	alice := NewPeer(aliceConn, "10.0.0.1:1111", time.Second)
	bob := NewPeer(bobConn, "10.0.0.2:2222", time.Second)

	join(t, tbl, alice, "alice", store.RoleUser, "a-1")
	join(t, tbl, bob, "bob", store.RoleUser, "a-1")

	tbl.Remove(alice)

	want := []string{"SERVER|alice left the room.", "USERLIST|bob"}
	got := bobConn.lines()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("bob received %v, want %v", got, want)
	}
	if !aliceConn.isClosed() {
		t.Fatal("removed connection should be closed")
	}
	if _, _, ok := tbl.Lookup(alice); ok {
		t.Fatal("removed session still present")
	}

	// Idempotent: a second removal produces no further traffic.
	tbl.Remove(alice)
	if got := bobConn.lines(); len(got) != len(want) {
		t.Fatalf("second Remove produced extra traffic: %v", got)
	}
}

func TestRemoveBeforeLoginJustCloses(t *testing.T) {
	tbl := NewTable(time.Second, nil)

	conn := &fakeConn{}
	peer := NewPeer(conn, "10.0.0.1:1111", time.Second)

	tbl.Remove(peer)
	if !conn.isClosed() {
		t.Fatal("connection should be closed")
	}
}

func TestBroadcastDropsFailedSendWithoutDepartureNotice(t *testing.T) {
	tbl := NewTable(time.Second, nil)

	aliceConn := &fakeConn{}
	deadConn := &fakeConn{failWrites: true}
	alice := NewPeer(aliceConn, "10.0.0.1:1111", time.Second)
	dead := NewPeer(deadConn, "10.0.0.2:2222", time.Second)

	join(t, tbl, alice, "alice", store.RoleUser, "a-1")
	join(t, tbl, dead, "dead", store.RoleUser, "a-1")

	tbl.Broadcast("a-1", "MSG|alice|ping")

	if _, _, ok := tbl.Lookup(dead); ok {
		t.Fatal("unresponsive session should have been dropped")
	}
	if !deadConn.isClosed() {
		t.Fatal("unresponsive connection should be closed")
	}

	// Only the broadcast itself: dropping a dead receiver must not emit a
	// departure notice back into the room.
	got := aliceConn.lines()
	if len(got) != 1 || got[0] != "MSG|alice|ping" {
		t.Fatalf("alice received %v", got)
	}

	if sessions, _ := tbl.Stats(); sessions != 1 {
		t.Fatalf("expected 1 session left, got %d", sessions)
	}
}

func TestJoinRoomRequiresLogin(t *testing.T) {
	tbl := NewTable(time.Second, nil)
	peer := NewPeer(&fakeConn{}, "10.0.0.1:1111", time.Second)

	if _, _, ok := tbl.JoinRoom(peer, "a-1"); ok {
		t.Fatal("join without login should fail")
	}
}

func TestJoinRoomReportsPreviousRoom(t *testing.T) {
	tbl := NewTable(time.Second, nil)
	peer := NewPeer(&fakeConn{}, "10.0.0.1:1111", time.Second)
	tbl.Login(peer, "alice", store.RoleUser)

	if _, prev, ok := tbl.JoinRoom(peer, "a-1"); !ok || prev != "" {
		t.Fatalf("first join: prev=%q ok=%v", prev, ok)
	}
	if _, prev, ok := tbl.JoinRoom(peer, "b-2"); !ok || prev != "a-1" {
		t.Fatalf("room switch: prev=%q ok=%v", prev, ok)
	}
}

func TestLoginOverwriteClearsRoom(t *testing.T) {
	tbl := NewTable(time.Second, nil)
	peer := NewPeer(&fakeConn{}, "10.0.0.1:1111", time.Second)

	join(t, tbl, peer, "alice", store.RoleUser, "a-1")
	tbl.Login(peer, "alice2", store.RoleUser)

	username, room, ok := tbl.Lookup(peer)
	if !ok || username != "alice2" || room != "" {
		t.Fatalf("re-login state: username=%q room=%q ok=%v", username, room, ok)
	}
	if sessions, _ := tbl.Stats(); sessions != 1 {
		t.Fatalf("re-login must not duplicate sessions, got %d", sessions)
	}
}

func TestStatsCountsOccupiedRooms(t *testing.T) {
	tbl := NewTable(time.Second, nil)

	a := NewPeer(&fakeConn{}, "10.0.0.1:1111", time.Second)
	b := NewPeer(&fakeConn{}, "10.0.0.2:2222", time.Second)
	c := NewPeer(&fakeConn{}, "10.0.0.3:3333", time.Second)

	join(t, tbl, a, "alice", store.RoleUser, "a-1")
	join(t, tbl, b, "bob", store.RoleUser, "a-1")
	tbl.Login(c, "carol", store.RoleUser) // logged in, no room

	sessions, rooms := tbl.Stats()
	if sessions != 3 || rooms != 1 {
		t.Fatalf("got sessions=%d rooms=%d, want 3 and 1", sessions, rooms)
	}
}
