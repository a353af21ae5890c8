package tcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"

	"github.com/pipechat/pipechat-server/internal/auth"
	"github.com/pipechat/pipechat-server/internal/core"
	"github.com/pipechat/pipechat-server/internal/proto"
)

const (
	reasonUsernameTaken = "Username taken"
	reasonBadLogin      = "Invalid credentials"
	reasonServerError   = "Server error"

	noticeAccessDenied = "Access Denied or File Not Found."
)

// handle runs the per-connection read/dispatch loop. It exits on clean
// stream end, transport failure, or a payload decode failure, and always
// tears the session down on the way out.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	peer := core.NewPeer(conn, conn.RemoteAddr().String(), s.table.WriteTimeout())

	logger := s.log.With().
		Str("session_id", peer.ID).
		Str("remote", peer.Addr()).
		Logger()
	logger.Info().Msg("connection accepted")

	defer func() {
		s.table.Remove(peer)
		logger.Info().Msg("connection closed")
	}()

	framer := proto.NewFramer(conn)
	for {
		line, err := framer.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn().Err(err).Msg("read failed")
			}
			return
		}

		msg, ok := proto.Parse(line)
		if !ok {
			// Malformed and unknown messages are dropped without a reply.
			logger.Debug().Msg("dropped malformed message")
			continue
		}

		if err := s.dispatch(ctx, peer, msg); err != nil {
			logger.Warn().Err(err).Str("command", msg.Command).Msg("terminating connection")
			return
		}
	}
}

// dispatch applies one decoded message. A non-nil error is fatal to the
// connection; recoverable conditions reply (or stay silent) and return nil.
func (s *Server) dispatch(ctx context.Context, peer *core.Peer, msg proto.Message) error {
	switch msg.Command {
	case proto.CmdRegister:
		return s.handleRegister(ctx, peer, msg.Args[0], msg.Args[1])
	case proto.CmdLogin:
		return s.handleLogin(ctx, peer, msg.Args[0], msg.Args[1])
	case proto.CmdJoinRoom:
		return s.handleJoinRoom(peer, msg.Args[0])
	case proto.CmdMsg:
		s.relay(peer, proto.CmdMsg, msg.Args[0])
	case proto.CmdGame:
		s.relay(peer, proto.CmdGame, msg.Args[0])
	case proto.CmdUpload:
		return s.handleUpload(ctx, peer, msg.Args[0], msg.Args[1])
	case proto.CmdDownload:
		return s.handleDownload(ctx, peer, msg.Args[0])
	}
	return nil
}

func (s *Server) handleRegister(ctx context.Context, peer *core.Peer, username, password string) error {
	if err := s.auth.Register(ctx, username, password); err != nil {
		reason := reasonServerError
		if errors.Is(err, auth.ErrUserExists) {
			reason = reasonUsernameTaken
		} else {
			s.log.Error().Err(err).Msg("register failed")
		}
		return peer.Send(proto.Join(proto.ReplyRegisterFail, reason))
	}
	return peer.Send(proto.ReplyRegisterSuccess)
}

func (s *Server) handleLogin(ctx context.Context, peer *core.Peer, username, password string) error {
	role, err := s.auth.Authenticate(ctx, username, password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.log.Error().Err(err).Msg("login failed")
		}
		return peer.Send(proto.Join(proto.ReplyLoginFail, reasonBadLogin))
	}

	s.table.Login(peer, username, role)
	return peer.Send(proto.Join(proto.ReplyLoginSuccess, username))
}

func (s *Server) handleJoinRoom(peer *core.Peer, room string) error {
	username, prevRoom, ok := s.table.JoinRoom(peer, room)
	if !ok {
		// Not logged in yet; the join is silently ignored.
		return nil
	}

	if err := peer.Send(proto.Join(proto.ReplyRoomJoined, room)); err != nil {
		return err
	}

	// A room switch is a departure as far as the old room is concerned,
	// otherwise its presence list would go stale.
	if prevRoom != "" && prevRoom != room {
		s.table.Broadcast(prevRoom, proto.Join(proto.ReplyServer, username+" left the room."))
		s.table.BroadcastPresence(prevRoom)
	}

	s.table.Broadcast(room, proto.Join(proto.ReplyServer, username+" joined the room."))
	s.table.BroadcastPresence(room)
	return nil
}

// relay rebroadcasts a chat or game payload verbatim, tagged with the sender.
// The payload is opaque to the server.
func (s *Server) relay(peer *core.Peer, command, payload string) {
	username, room, ok := s.table.Lookup(peer)
	if !ok || room == "" {
		return
	}
	s.table.Broadcast(room, proto.Join(command, username, payload))
}

func (s *Server) handleUpload(ctx context.Context, peer *core.Peer, filename, encoded string) error {
	username, room, ok := s.table.Lookup(peer)
	if !ok || room == "" {
		return nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Decode failure is a transport-level fault: tear the connection down.
		return fmt.Errorf("decode upload: %w", err)
	}

	name := filepath.Base(filename)
	if err := s.files.RegisterFile(ctx, name, room); err != nil {
		s.log.Error().Err(err).Str("filename", name).Msg("register file failed")
		return nil
	}
	if err := s.blobs.Put(name, data); err != nil {
		s.log.Error().Err(err).Str("filename", name).Msg("store blob failed")
		return nil
	}

	s.table.Broadcast(room, proto.Join(proto.ReplyFileNotif, username, name))
	return nil
}

func (s *Server) handleDownload(ctx context.Context, peer *core.Peer, filename string) error {
	denied := proto.Join(proto.ReplyServer, noticeAccessDenied)

	_, room, ok := s.table.Lookup(peer)
	if !ok || room == "" {
		return peer.Send(denied)
	}

	name := filepath.Base(filename)
	allowed, err := s.files.MayAccess(ctx, name, room)
	if err != nil {
		s.log.Error().Err(err).Str("filename", name).Msg("access check failed")
		return peer.Send(denied)
	}
	if !allowed {
		return peer.Send(denied)
	}

	data, err := s.blobs.Get(name)
	if err != nil {
		// Registered but unreadable reads the same as denied to the client.
		s.log.Error().Err(err).Str("filename", name).Msg("read blob failed")
		return peer.Send(denied)
	}

	return peer.Send(proto.Join(proto.ReplyFileData, name, base64.StdEncoding.EncodeToString(data)))
}
