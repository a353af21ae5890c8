package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/pipechat/pipechat-server/internal/auth"
	"github.com/pipechat/pipechat-server/internal/core"
	"github.com/pipechat/pipechat-server/internal/store"
)

// Server accepts client connections and runs one handler per connection.
type Server struct {
	addr  string
	table *core.Table
	auth  *auth.Service
	files store.FileStore
	blobs store.BlobStore
	log   *zerolog.Logger

	ln net.Listener
}

// NewServer builds the TCP front end.
func NewServer(addr string, table *core.Table, authService *auth.Service, files store.FileStore, blobs store.BlobStore, logger *zerolog.Logger) *Server {
	return &Server{
		addr:  addr,
		table: table,
		auth:  authService,
		files: files,
		blobs: blobs,
		log:   logger,
	}
}

// Listen binds the listening socket. A bind failure is fatal to startup.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listen address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until ctx is canceled. Transient accept errors
// are logged and the loop continues.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		go s.handle(ctx, conn)
	}
}
