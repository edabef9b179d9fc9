package identity

import "sync/atomic"

// snapshot is what View publishes: the identity and whether the session still
// has an access token. A session without one is unauthenticated no matter
// what identity it remembers.
type snapshot struct {
	identity      *Identity
	authenticated bool
}

// View is a read-only projection of the identity held by a session.
// Recompute is called on every session change; readers never block.
type View struct {
	current atomic.Pointer[snapshot]
}

func NewView() *View {
	v := &View{}
	v.current.Store(&snapshot{})
	return v
}

// Recompute republishes the projection from the given identity.
func (v *View) Recompute(id *Identity, authenticated bool) {
	v.current.Store(&snapshot{identity: id.Clone(), authenticated: authenticated})
}

// User returns the identity of an authenticated session, or nil.
func (v *View) User() *Identity {
	s := v.current.Load()
	if !s.authenticated {
		return nil
	}
	return s.identity.Clone()
}

func (v *View) IsAuthenticated() bool {
	s := v.current.Load()
	return s.authenticated && s.identity != nil
}

// HasRole is false when there is no authenticated identity.
func (v *View) HasRole(required ...Role) bool {
	s := v.current.Load()
	if !s.authenticated {
		return false
	}
	return s.identity.HasRole(required...)
}
