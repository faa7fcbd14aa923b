package session

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// UnbindHook runs against a scope that is about to be discarded, before its
// cache is cleared. Hooks must not block for long.
type UnbindHook func(ctx context.Context, scope *Scope)

// Binding keeps exactly one live Scope for a device, following the identity
// reported by an AuthProvider. On every identity change the previous scope is
// flushed through the unbind hooks and then closed.
type Binding struct {
	deviceID string
	auth     AuthProvider
	newCache CacheFactory
	hooks    []UnbindHook
	timeout  time.Duration

	mu          sync.Mutex
	scope       *Scope
	unsubscribe func()
	closed      bool
}

func NewBinding(deviceID string, auth AuthProvider, newCache CacheFactory, hooks ...UnbindHook) *Binding {
	if newCache == nil {
		newCache = MemoryCacheFactory
	}
	b := &Binding{
		deviceID: deviceID,
		auth:     auth,
		newCache: newCache,
		hooks:    hooks,
		timeout:  5 * time.Second,
	}

	b.unsubscribe = auth.OnSessionChange(func(string) { b.rebind() })
	b.rebind()
	return b
}

func (b *Binding) DeviceID() string {
	return b.deviceID
}

// Scope returns the live scope, or ErrNoUser when nobody is signed in.
func (b *Binding) Scope() (*Scope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scope == nil {
		return nil, ErrNoUser
	}
	return b.scope, nil
}

// rebind reads the provider's current identity rather than trusting the
// callback argument, so out-of-order notifications still converge.
func (b *Binding) rebind() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	userID := b.auth.CurrentUserID()
	if b.scope != nil && b.scope.UserID() == userID {
		b.mu.Unlock()
		return
	}

	old := b.scope
	b.scope = nil
	if userID != "" {
		b.scope = NewScope(b.deviceID, userID, b.newCache(b.deviceID, userID))
	}
	b.mu.Unlock()

	if old != nil {
		log.WithFields(log.Fields{
			"device_id": b.deviceID,
			"from_user": old.UserID(),
			"to_user":   userID,
		}).Debug("Session identity changed")
		b.teardown(old)
	}
}

func (b *Binding) teardown(scope *Scope) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	for _, hook := range b.hooks {
		hook(ctx, scope)
	}
	if err := scope.close(ctx); err != nil {
		log.WithError(err).WithField("device_id", b.deviceID).Warn("Failed to clear session cache")
	}
}

// Close tears down the live scope and stops following the provider.
func (b *Binding) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	old := b.scope
	b.scope = nil
	unsubscribe := b.unsubscribe
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if old != nil {
		b.teardown(old)
	}
}
