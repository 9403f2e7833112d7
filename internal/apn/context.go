package apn

import "sync"

// Context is the live, ref-counted counterpart of a Profile. One
// Context exists per apn type for the lifetime of a SIM slot; it is
// created at startup and never destroyed, only attached/detached from
// sessions as its reference count rises and falls.
type Context struct {
	mu sync.Mutex

	apnType    Type
	profile    Profile
	refCount   int
	sessionID  int // 0 means "no associated DC-SM"
}

// NewContext creates a Context for apnType bound to the given profile.
func NewContext(apnType Type, profile Profile) *Context {
	return &Context{apnType: apnType, profile: profile}
}

// Type returns the apn type this context serves.
func (c *Context) Type() Type {
	return c.apnType
}

// Profile returns the currently bound profile.
func (c *Context) Profile() Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// SetProfile rebinds the context to a new profile, as happens when
// carrier config or the APN database changes.
func (c *Context) SetProfile(p Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile = p
}

// RefCount returns the current reference count.
func (c *Context) RefCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refCount
}

// SessionID returns the associated DC-SM's id, or 0 if none.
func (c *Context) SessionID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetSessionID records which DC-SM currently owns this context.
func (c *Context) SetSessionID(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// Acquire increments the reference count and reports whether this was
// the first increment (the transition that should trigger a session
// request).
func (c *Context) Acquire() (firstRef bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refCount++
	return c.refCount == 1
}

// Release decrements the reference count and reports whether this was
// the last decrement (the transition that should release the
// session). Release on an already-zero count is a no-op and reports
// false, since ref-count is defined to stay >= 0.
func (c *Context) Release() (lastRef bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refCount == 0 {
		return false
	}
	c.refCount--
	return c.refCount == 0
}

// Registry holds one Context per apn type for a SIM slot.
type Registry struct {
	mu       sync.RWMutex
	contexts map[Type]*Context
}

// NewRegistry builds a Registry seeded with a Context per type found
// among the given profiles, choosing for each type the first profile
// that CanHandle it.
func NewRegistry(profiles []Profile) *Registry {
	r := &Registry{contexts: make(map[Type]*Context)}
	for t := range typeNames {
		if t == All {
			continue
		}
		for _, p := range profiles {
			if p.CanHandle(t) {
				r.contexts[t] = NewContext(t, p)
				break
			}
		}
	}
	return r
}

// Get returns the Context for t, or nil if no profile serves it.
func (r *Registry) Get(t Type) *Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contexts[t]
}

// All returns every registered Context.
func (r *Registry) All() []*Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Context, 0, len(r.contexts))
	for _, c := range r.contexts {
		out = append(out, c)
	}
	return out
}
