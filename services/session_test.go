package services

import (
	"context"
	"testing"
	"time"

	"github.com/lac-hong-legacy/lms_api/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionBindReusesScope(t *testing.T) {
	svc := NewSessionService(session.MemoryCacheFactory, time.Minute)
	defer svc.Shutdown()

	first, err := svc.Bind("dev-1", "alice")
	require.NoError(t, err)
	second, err := svc.Bind("dev-1", "alice")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, svc.Devices())
}

func TestSessionBindRequiresUser(t *testing.T) {
	svc := NewSessionService(session.MemoryCacheFactory, time.Minute)
	defer svc.Shutdown()

	_, err := svc.Bind("dev-1", "")
	assert.ErrorIs(t, err, session.ErrNoUser)
	assert.Equal(t, 0, svc.Devices())
}

func TestSessionUserSwitchOnDevice(t *testing.T) {
	var unbound []string
	hook := func(_ context.Context, s *session.Scope) { unbound = append(unbound, s.UserID()) }

	svc := NewSessionService(session.MemoryCacheFactory, time.Minute, hook)
	defer svc.Shutdown()

	alice, err := svc.Bind("dev-1", "alice")
	require.NoError(t, err)
	require.NoError(t, alice.SetToggle("go-101", "intro", true))

	bob, err := svc.Bind("dev-1", "bob")
	require.NoError(t, err)

	assert.Equal(t, "bob", bob.UserID())
	assert.Equal(t, []string{"alice"}, unbound)
	assert.ErrorIs(t, alice.Err(), session.ErrScopeClosed)

	toggles, err := bob.Toggles("go-101")
	require.NoError(t, err)
	assert.Empty(t, toggles)

	// Separate devices keep separate bindings.
	other, err := svc.Bind("dev-2", "alice")
	require.NoError(t, err)
	assert.NoError(t, other.Err())
	assert.Equal(t, 2, svc.Devices())
}

func TestSessionDeviceDefaultsToUser(t *testing.T) {
	svc := NewSessionService(session.MemoryCacheFactory, time.Minute)
	defer svc.Shutdown()

	scope, err := svc.Bind("", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", scope.DeviceID())
}

func TestSessionLogout(t *testing.T) {
	svc := NewSessionService(session.MemoryCacheFactory, time.Minute)
	defer svc.Shutdown()

	scope, err := svc.Bind("dev-1", "alice")
	require.NoError(t, err)

	assert.True(t, svc.Logout("dev-1"))
	assert.ErrorIs(t, scope.Err(), session.ErrScopeClosed)
	assert.False(t, svc.Logout("dev-unknown"))

	again, err := svc.Bind("dev-1", "alice")
	require.NoError(t, err)
	assert.NoError(t, again.Err())
	assert.NotSame(t, scope, again)
}

func TestSessionEvictIdle(t *testing.T) {
	var unbound int
	hook := func(context.Context, *session.Scope) { unbound++ }

	svc := NewSessionService(session.MemoryCacheFactory, 10*time.Minute, hook)
	defer svc.Shutdown()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	stale, err := svc.Bind("dev-1", "alice")
	require.NoError(t, err)

	now = now.Add(9 * time.Minute)
	_, err = svc.Bind("dev-2", "bob")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, svc.EvictIdle())
	assert.Equal(t, 1, svc.Devices())
	assert.Equal(t, 1, unbound)
	assert.ErrorIs(t, stale.Err(), session.ErrScopeClosed)
}

func TestSessionShutdownClosesBindings(t *testing.T) {
	svc := NewSessionService(session.MemoryCacheFactory, time.Minute)

	a, err := svc.Bind("dev-1", "alice")
	require.NoError(t, err)
	b, err := svc.Bind("dev-2", "bob")
	require.NoError(t, err)

	svc.Shutdown()
	assert.ErrorIs(t, a.Err(), session.ErrScopeClosed)
	assert.ErrorIs(t, b.Err(), session.ErrScopeClosed)
	assert.Equal(t, 0, svc.Devices())
}
