package session

import "sync"

// AuthProvider is the identity source a Binding follows. An empty user id
// means signed out.
type AuthProvider interface {
	OnSessionChange(cb func(userID string)) (unsubscribe func())
	CurrentUserID() string
}

// DeviceAuth tracks the identity last authenticated on one device.
type DeviceAuth struct {
	mu      sync.Mutex
	current string
	subs    map[int]func(string)
	nextID  int
}

func NewDeviceAuth(initial string) *DeviceAuth {
	return &DeviceAuth{
		current: initial,
		subs:    make(map[int]func(string)),
	}
}

func (a *DeviceAuth) CurrentUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *DeviceAuth) OnSessionChange(cb func(userID string)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = cb
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
		})
	}
}

// Publish records userID as the device identity and notifies subscribers when
// it differs from the previous one. Callbacks run on the caller's goroutine.
func (a *DeviceAuth) Publish(userID string) bool {
	a.mu.Lock()
	if a.current == userID {
		a.mu.Unlock()
		return false
	}
	a.current = userID
	subs := make([]func(string), 0, len(a.subs))
	for _, cb := range a.subs {
		subs = append(subs, cb)
	}
	a.mu.Unlock()

	for _, cb := range subs {
		cb(userID)
	}
	return true
}
