package services

import (
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/lac-hong-legacy/lms_api/session"
	"github.com/lac-hong-legacy/lms_api/shared"
	log "github.com/sirupsen/logrus"
)

const SESSION_SVC = "session_svc"

type deviceSession struct {
	auth     *session.DeviceAuth
	binding  *session.Binding
	lastSeen time.Time
}

// SessionService owns one identity binding per device. Each authenticated
// request publishes its user to the device's binding, so a different user on
// the same device replaces the previous scope.
type SessionService struct {
	appContext.DefaultService

	mu      sync.Mutex
	devices map[string]*deviceSession

	newCache session.CacheFactory
	hooks    []session.UnbindHook
	idleTTL  time.Duration
	now      func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewSessionService(newCache session.CacheFactory, idleTTL time.Duration, hooks ...session.UnbindHook) *SessionService {
	return &SessionService{
		devices:  make(map[string]*deviceSession),
		newCache: newCache,
		hooks:    hooks,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

func (svc *SessionService) Id() string {
	return SESSION_SVC
}

func (svc *SessionService) Configure(ctx *appContext.Context) error {
	svc.devices = make(map[string]*deviceSession)
	svc.idleTTL = shared.GetEnvDuration("SESSION_IDLE_TTL", 30*time.Minute)
	svc.now = time.Now
	return svc.DefaultService.Configure(ctx)
}

func (svc *SessionService) Start() error {
	progress := svc.Service(PROGRESS_SVC).(*ProgressService)
	svc.hooks = []session.UnbindHook{progress.FlushScope}
	svc.newCache = session.MemoryCacheFactory
	if redisSvc, ok := svc.Service(REDIS_SVC).(*RedisService); ok {
		svc.newCache = redisSvc.CacheFactory()
	}

	svc.stop = make(chan struct{})
	svc.wg.Add(1)
	go svc.evictLoop()
	return nil
}

func (svc *SessionService) Shutdown() {
	if svc.stop != nil {
		close(svc.stop)
		svc.wg.Wait()
	}

	svc.mu.Lock()
	devices := svc.devices
	svc.devices = make(map[string]*deviceSession)
	svc.mu.Unlock()

	for _, d := range devices {
		d.binding.Close()
	}
	log.Printf("Closed %d device sessions", len(devices))
}

// Bind publishes userID as the identity of deviceID and returns the live scope.
func (svc *SessionService) Bind(deviceID, userID string) (*session.Scope, error) {
	if userID == "" {
		return nil, session.ErrNoUser
	}
	if deviceID == "" {
		deviceID = userID
	}

	svc.mu.Lock()
	d, ok := svc.devices[deviceID]
	if !ok {
		auth := session.NewDeviceAuth(userID)
		d = &deviceSession{
			auth:    auth,
			binding: session.NewBinding(deviceID, auth, svc.newCache, svc.hooks...),
		}
		svc.devices[deviceID] = d
	}
	d.lastSeen = svc.now()
	svc.mu.Unlock()

	if ok {
		d.auth.Publish(userID)
	}
	return d.binding.Scope()
}

// Logout signs the device out. Pending progress for the old scope is flushed
// before its cache is cleared.
func (svc *SessionService) Logout(deviceID string) bool {
	svc.mu.Lock()
	d, ok := svc.devices[deviceID]
	svc.mu.Unlock()
	if !ok {
		return false
	}
	return d.auth.Publish("")
}

func (svc *SessionService) Devices() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return len(svc.devices)
}

// EvictIdle closes bindings not used within the idle TTL and returns how many
// were closed.
func (svc *SessionService) EvictIdle() int {
	cutoff := svc.now().Add(-svc.idleTTL)

	svc.mu.Lock()
	var idle []*deviceSession
	for id, d := range svc.devices {
		if d.lastSeen.Before(cutoff) {
			idle = append(idle, d)
			delete(svc.devices, id)
		}
	}
	svc.mu.Unlock()

	for _, d := range idle {
		d.binding.Close()
	}
	return len(idle)
}

func (svc *SessionService) evictLoop() {
	defer svc.wg.Done()

	interval := svc.idleTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := svc.EvictIdle(); n > 0 {
				log.WithField("evicted", n).Debug("Evicted idle device sessions")
			}
		case <-svc.stop:
			return
		}
	}
}
