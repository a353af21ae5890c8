package core

import "github.com/pipechat/pipechat-server/internal/store"

// event is a single room occurrence rendered per viewing session at send
// time, so one broadcast can carry role-dependent payload variants.
type event interface {
	render(s *Session) string
}

// textEvent delivers the same line to every viewer.
type textEvent string

func (e textEvent) render(*Session) string {
	return string(e)
}

// presenceEvent carries both roster variants; admins see the
// address-annotated one.
type presenceEvent struct {
	plain string
	admin string
}

func (e presenceEvent) render(s *Session) string {
	if s.Role == store.RoleAdmin {
		return e.admin
	}
	return e.plain
}
