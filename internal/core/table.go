package core

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pipechat/pipechat-server/internal/proto"
	"github.com/pipechat/pipechat-server/internal/store"
)

// Table owns every live session. All membership mutations and all room
// broadcasts run under one mutex, so each broadcast sees a consistent
// membership snapshot and broadcasts within a room are totally ordered.
type Table struct {
	mu       sync.Mutex
	sessions map[*Peer]*Session

	writeTimeout time.Duration
	log          *zerolog.Logger
}

// NewTable creates an empty session table.
func NewTable(writeTimeout time.Duration, logger *zerolog.Logger) *Table {
	return &Table{
		sessions:     make(map[*Peer]*Session),
		writeTimeout: writeTimeout,
		log:          logger,
	}
}

// WriteTimeout is the per-send deadline peers should be created with.
func (t *Table) WriteTimeout() time.Duration {
	return t.writeTimeout
}

// Login creates or overwrites the session for peer. The room is left unset;
// re-login drops any previous room membership.
func (t *Table) Login(peer *Peer, username string, role store.Role) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sessions[peer] = &Session{
		peer:     peer,
		Username: username,
		Role:     role,
	}
}

// Lookup returns the peer's identity snapshot. ok is false for connections
// that never logged in.
func (t *Table) Lookup(peer *Peer) (username, room string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[peer]
	if !ok {
		return "", "", false
	}
	return s.Username, s.Room, true
}

// JoinRoom moves the peer's session into room and returns the username and
// the room it left, if any. ok is false when the peer has no session yet;
// callers must have logged in before joining.
func (t *Table) JoinRoom(peer *Peer, room string) (username, prevRoom string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[peer]
	if !ok || s.Username == "" {
		return "", "", false
	}
	prevRoom = s.Room
	s.Room = room
	return s.Username, prevRoom, true
}

// Broadcast delivers payload to every session currently in room, the sender
// included. Sessions whose send fails are dropped and closed inline, without
// a departure notice, so a dead peer cannot re-enter the broadcast path.
func (t *Table) Broadcast(room, payload string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.broadcastLocked(room, textEvent(payload))
}

// BroadcastPresence sends room's sorted roster to its members: usernames for
// plain users, username#ip:port pairs for admins. Empty rooms produce no
// traffic.
func (t *Table) BroadcastPresence(room string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.presenceRefreshLocked(room)
}

// Remove takes the session out of the table (if present), closes the
// connection, and notifies the former room with a departure notice and a
// presence refresh. Safe to call repeatedly.
func (t *Table) Remove(peer *Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[peer]
	if ok {
		delete(t.sessions, peer)
	}
	_ = peer.Close()

	if !ok || s.Room == "" || s.Username == "" {
		return
	}
	t.broadcastLocked(s.Room, textEvent(proto.Join(proto.ReplyServer, s.Username+" left the room.")))
	t.presenceRefreshLocked(s.Room)
}

// Stats reports the current session count and the number of occupied rooms.
func (t *Table) Stats() (sessions, rooms int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	occupied := make(map[string]struct{})
	for _, s := range t.sessions {
		if s.Room != "" {
			occupied[s.Room] = struct{}{}
		}
	}
	return len(t.sessions), len(occupied)
}

// CloseAll closes every connection and empties the table. Used on shutdown.
func (t *Table) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for peer := range t.sessions {
		_ = peer.Close()
		delete(t.sessions, peer)
	}
}

// broadcastLocked fans ev out to room's members. Callers hold t.mu.
func (t *Table) broadcastLocked(room string, ev event) {
	for peer, s := range t.sessions {
		if s.Room != room {
			continue
		}
		if err := peer.Send(ev.render(s)); err != nil {
			// Dead or stuck receiver: drop it here rather than re-entering
			// the disconnect path under the held lock.
			delete(t.sessions, peer)
			_ = peer.Close()
			if t.log != nil {
				t.log.Warn().Err(err).
					Str("session_id", peer.ID).
					Str("username", s.Username).
					Str("room", room).
					Msg("dropped unresponsive session during broadcast")
			}
		}
	}
}

// presenceRefreshLocked rebuilds and fans out room's roster. Callers hold t.mu.
func (t *Table) presenceRefreshLocked(room string) {
	type entry struct {
		username string
		addr     string
	}
	var entries []entry
	for _, s := range t.sessions {
		if s.Room == room {
			entries = append(entries, entry{username: s.Username, addr: s.peer.Addr()})
		}
	}
	if len(entries) == 0 {
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].username < entries[j].username })

	plain := make([]string, len(entries))
	admin := make([]string, len(entries))
	for i, e := range entries {
		plain[i] = e.username
		// '#' instead of the field separator so addresses survive splitting.
		admin[i] = e.username + "#" + e.addr
	}

	t.broadcastLocked(room, presenceEvent{
		plain: proto.Join(proto.ReplyUserList, strings.Join(plain, ",")),
		admin: proto.Join(proto.ReplyUserListAdmin, strings.Join(admin, ",")),
	})
}
