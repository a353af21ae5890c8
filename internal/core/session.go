package core

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pipechat/pipechat-server/internal/proto"
	"github.com/pipechat/pipechat-server/internal/store"
)

// Conn is the subset of net.Conn the session layer needs.
type Conn interface {
	Write(p []byte) (int, error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Peer is the write side of one live connection. All outbound lines for a
// connection go through Send, so a broadcast and a direct reply can never
// interleave bytes on the wire.
type Peer struct {
	ID   string
	addr string

	conn         Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

// NewPeer wraps an accepted connection. writeTimeout bounds each send; a
// peer that cannot drain within it counts as failed and gets dropped by the
// caller.
func NewPeer(conn Conn, addr string, writeTimeout time.Duration) *Peer {
	return &Peer{
		ID:           uuid.NewString(),
		addr:         addr,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// Addr returns the remote address as "ip:port".
func (p *Peer) Addr() string {
	return p.addr
}

// Send frames and writes one protocol line.
func (p *Peer) Send(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeTimeout > 0 {
		if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := p.conn.Write(proto.Frame(line))
	return err
}

// Close closes the underlying connection.
func (p *Peer) Close() error {
	return p.conn.Close()
}

// Session is the server-side state of one authenticated connection.
// Sessions are owned by the Table; nothing else mutates them.
type Session struct {
	peer     *Peer
	Username string
	Room     string
	Role     store.Role
}
