package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/session"
	"github.com/lac-hong-legacy/lms_api/shared"
	log "github.com/sirupsen/logrus"
)

const PROGRESS_SVC = "progress_svc"

// ProgressService keeps per-item progress in the durable store, with a
// session-local cache in front of it. Saves update the cache at once and reach
// the store at most once per window; pause and end events write through.
type ProgressService struct {
	appContext.DefaultService

	store     DocumentStore
	debouncer *Debouncer
	locks     keyedMutex

	window  time.Duration
	timeout time.Duration
	now     func() time.Time
}

func NewProgressService(store DocumentStore, window, timeout time.Duration) *ProgressService {
	return &ProgressService{
		store:     store,
		debouncer: NewDebouncer(window),
		window:    window,
		timeout:   timeout,
		now:       time.Now,
	}
}

func (svc *ProgressService) Id() string {
	return PROGRESS_SVC
}

func (svc *ProgressService) Configure(ctx *appContext.Context) error {
	svc.window = shared.GetEnvDuration("PROGRESS_SAVE_WINDOW", time.Second)
	svc.timeout = shared.GetEnvDuration("STORE_TIMEOUT", 5*time.Second)
	svc.now = time.Now
	return svc.DefaultService.Configure(ctx)
}

func (svc *ProgressService) Start() error {
	svc.store = svc.Service(DATABASE_SVC).(DatabaseProvider).Documents()
	svc.debouncer = NewDebouncer(svc.window)
	return nil
}

func (svc *ProgressService) Shutdown() {
	if svc.debouncer == nil {
		return
	}
	n := svc.debouncer.FlushAll()
	svc.debouncer.Wait()
	log.Printf("Flushed %d pending progress writes", n)
}

// Load returns the authoritative record for an item, or nil if none exists.
// The durable store wins over the cache except while a local write is still
// pending. When the store is unreachable the cached value is returned.
func (svc *ProgressService) Load(ctx context.Context, scope *session.Scope, courseID, itemID string) (*model.ProgressRecord, error) {
	if err := scope.Err(); err != nil {
		return nil, err
	}
	key := model.ProgressKey(scope.UserID(), courseID, itemID)

	cached, hit, err := scope.CacheGet(ctx, key)
	if errors.Is(err, session.ErrScopeClosed) {
		return nil, err
	}
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("Progress cache read failed")
		cached, hit = nil, false
	}

	if hit && svc.debouncer.Pending(pendingKey(scope, key)) {
		if !cached.Completed {
			if durable, err := svc.read(ctx, scope.UserID(), courseID, itemID); err == nil && durable != nil && durable.Completed {
				cached.Completed = true
				if err := scope.CacheSet(ctx, key, *cached); err != nil && !errors.Is(err, session.ErrScopeClosed) {
					log.WithError(err).WithField("key", key).Warn("Progress cache write failed")
				}
			}
		}
		return cached, nil
	}

	durable, err := svc.read(ctx, scope.UserID(), courseID, itemID)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("Progress store unreachable, serving cached value")
		if hit {
			return cached, nil
		}
		return nil, nil
	}

	if durable == nil {
		if hit {
			_ = scope.CacheDelete(ctx, key)
		}
		return nil, nil
	}

	if !hit || !sameProgress(*cached, *durable) {
		if err := scope.CacheSet(ctx, key, *durable); err != nil && !errors.Is(err, session.ErrScopeClosed) {
			log.WithError(err).WithField("key", key).Warn("Progress cache write failed")
		}
	}
	return durable, nil
}

// Save records playback position. The cache is updated immediately and the
// durable write is coalesced with other saves of the same item.
func (svc *ProgressService) Save(ctx context.Context, scope *session.Scope, courseID, itemID string, currentTime, duration float64) (*model.ProgressRecord, error) {
	rec, err := svc.stage(ctx, scope, courseID, itemID, currentTime, duration)
	if err != nil {
		return nil, err
	}

	key := model.ProgressKey(rec.UserID, rec.CourseID, rec.ItemID)
	staged := *rec
	coalesced := svc.debouncer.Schedule(pendingKey(scope, key), scope, func() {
		ctx, cancel := context.WithTimeout(context.Background(), svc.timeout)
		defer cancel()
		_ = svc.persist(ctx, staged)
	})
	if coalesced {
		progressSavesCoalescedTotal.Inc()
	}
	return rec, nil
}

// Flush writes progress through to the store at once, replacing any write
// still pending for the item. Used for pause and end-of-item events.
func (svc *ProgressService) Flush(ctx context.Context, scope *session.Scope, courseID, itemID string, currentTime, duration float64, reason string) (*model.ProgressRecord, error) {
	rec, err := svc.stage(ctx, scope, courseID, itemID, currentTime, duration)
	if err != nil {
		return nil, err
	}

	key := model.ProgressKey(rec.UserID, rec.CourseID, rec.ItemID)
	svc.debouncer.Cancel(pendingKey(scope, key))

	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()
	if err := svc.persist(ctx, *rec); err == nil {
		log.WithFields(log.Fields{"key": key, "reason": reason}).Debug("Progress flushed")
	}
	return rec, nil
}

// MarkComplete persists an explicit completion for an item. Unlike playback
// saves the failure is returned, since the user asked for it.
func (svc *ProgressService) MarkComplete(ctx context.Context, scope *session.Scope, courseID, itemID string) (*model.ProgressRecord, error) {
	if err := scope.Err(); err != nil {
		return nil, err
	}
	key := model.ProgressKey(scope.UserID(), courseID, itemID)

	unlock := svc.locks.Lock(key)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	existing, err := svc.read(ctx, scope.UserID(), courseID, itemID)
	if err != nil {
		return nil, shared.NewUnavailableError(err, "Progress store unavailable")
	}

	rec := model.ProgressRecord{
		UserID:   scope.UserID(),
		CourseID: courseID,
		ItemID:   itemID,
	}
	if existing != nil {
		rec = *existing
	}
	rec.Completed = true
	rec.LastWatched = svc.now().UTC()

	fields := model.Fields{
		"userId":      rec.UserID,
		"courseId":    rec.CourseID,
		"videoId":     rec.ItemID,
		"currentTime": rec.CurrentTime,
		"duration":    rec.Duration,
		"completed":   true,
		"lastWatched": rec.LastWatched.Format(time.RFC3339Nano),
	}
	if err := svc.store.Set(ctx, shared.CollectionProgress, key, fields, true); err != nil {
		progressDurableWritesTotal.WithLabelValues("error").Inc()
		return nil, shared.NewUnavailableError(err, "Failed to save completion")
	}
	progressDurableWritesTotal.WithLabelValues("ok").Inc()

	if err := scope.CacheSet(ctx, key, rec); err != nil && !errors.Is(err, session.ErrScopeClosed) {
		log.WithError(err).WithField("key", key).Warn("Progress cache write failed")
	}
	return &rec, nil
}

// CourseProgress returns every record the user has for a course, keyed by item
// id. Records with a pending local write are served from the cache; itemIDs
// names further items whose first write may still be pending.
func (svc *ProgressService) CourseProgress(ctx context.Context, scope *session.Scope, courseID string, itemIDs ...string) (map[string]*model.ProgressRecord, error) {
	if err := scope.Err(); err != nil {
		return nil, err
	}

	qctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	snaps, err := svc.store.Query(qctx, shared.CollectionProgress, model.Fields{
		"userId":   scope.UserID(),
		"courseId": courseID,
	})
	if err != nil {
		return nil, shared.NewUnavailableError(err, "Progress store unavailable")
	}

	out := make(map[string]*model.ProgressRecord, len(snaps))
	for _, snap := range snaps {
		rec, ok := decodeProgress(snap)
		if !ok || rec.UserID != scope.UserID() || rec.CourseID != courseID {
			continue
		}
		if prev, dup := out[rec.ItemID]; dup {
			// Same item under its legacy key; keep the newer position.
			if prev.LastWatched.After(rec.LastWatched) {
				prev, rec = rec, prev
			}
			rec.Completed = rec.Completed || prev.Completed
		}
		out[rec.ItemID] = rec
	}

	candidates := make(map[string]struct{}, len(out)+len(itemIDs))
	for itemID := range out {
		candidates[itemID] = struct{}{}
	}
	for _, itemID := range itemIDs {
		candidates[itemID] = struct{}{}
	}

	for itemID := range candidates {
		key := model.ProgressKey(scope.UserID(), courseID, itemID)
		if !svc.debouncer.Pending(pendingKey(scope, key)) {
			continue
		}
		cached, hit, err := scope.CacheGet(ctx, key)
		if err != nil || !hit {
			continue
		}
		if durable := out[itemID]; durable != nil && durable.Completed && !cached.Completed {
			merged := *cached
			merged.Completed = true
			cached = &merged
		}
		out[itemID] = cached
	}
	return out, nil
}

// CompletedItems derives the completed item set for a course from the durable
// records and the scope's explicit toggles.
func (svc *ProgressService) CompletedItems(ctx context.Context, scope *session.Scope, course *model.Course) (map[string]bool, map[string]*model.ProgressRecord, error) {
	itemIDs := make([]string, 0, len(course.Items))
	for _, item := range course.Items {
		itemIDs = append(itemIDs, item.ID)
	}
	records, err := svc.CourseProgress(ctx, scope, course.ID, itemIDs...)
	if err != nil {
		return nil, nil, err
	}
	toggles, err := scope.Toggles(course.ID)
	if err != nil {
		return nil, nil, err
	}
	return CompletedItemIDs(course.Items, records, toggles), records, nil
}

// FlushScope writes every pending save owned by scope. It is the unbind hook
// run before a session scope is discarded.
func (svc *ProgressService) FlushScope(_ context.Context, scope *session.Scope) {
	if n := svc.debouncer.FlushOwner(scope); n > 0 {
		log.WithFields(log.Fields{
			"user_id":   scope.UserID(),
			"device_id": scope.DeviceID(),
			"writes":    n,
		}).Debug("Flushed pending progress for unbound session")
	}
}

// stage builds the record for a playback save and stores it in the cache.
func (svc *ProgressService) stage(ctx context.Context, scope *session.Scope, courseID, itemID string, currentTime, duration float64) (*model.ProgressRecord, error) {
	if err := scope.Err(); err != nil {
		return nil, err
	}
	if courseID == "" || itemID == "" {
		return nil, shared.NewBadRequestError(nil, "course and item are required")
	}

	currentTime = sanitizeSeconds(currentTime)
	duration = sanitizeSeconds(duration)

	rec := model.ProgressRecord{
		UserID:      scope.UserID(),
		CourseID:    courseID,
		ItemID:      itemID,
		CurrentTime: currentTime,
		Duration:    duration,
		Completed:   CompletedByPlayback(currentTime, duration),
		LastWatched: svc.now().UTC(),
	}

	key := model.ProgressKey(rec.UserID, courseID, itemID)
	cached, hit, err := scope.CacheGet(ctx, key)
	if errors.Is(err, session.ErrScopeClosed) {
		return nil, err
	}
	switch {
	case err == nil && hit:
		rec.Completed = rec.Completed || cached.Completed
	case !rec.Completed:
		// Nothing cached yet; a completion recorded elsewhere still counts.
		if durable, rerr := svc.read(ctx, rec.UserID, courseID, itemID); rerr == nil && durable != nil && durable.Completed {
			rec.Completed = true
		}
	}

	if err := scope.CacheSet(ctx, key, rec); err != nil {
		if errors.Is(err, session.ErrScopeClosed) {
			return nil, err
		}
		log.WithError(err).WithField("key", key).Warn("Progress cache write failed")
	}
	return &rec, nil
}

// persist merges rec into the store. A stored completed flag is never cleared;
// when the current value cannot be read, a false flag is left out of the write.
func (svc *ProgressService) persist(ctx context.Context, rec model.ProgressRecord) error {
	key := model.ProgressKey(rec.UserID, rec.CourseID, rec.ItemID)

	unlock := svc.locks.Lock(key)
	defer unlock()

	fields := model.Fields{
		"userId":      rec.UserID,
		"courseId":    rec.CourseID,
		"videoId":     rec.ItemID,
		"currentTime": rec.CurrentTime,
		"duration":    rec.Duration,
		"lastWatched": rec.LastWatched.Format(time.RFC3339Nano),
	}

	existing, readErr := svc.read(ctx, rec.UserID, rec.CourseID, rec.ItemID)
	if readErr == nil && existing != nil && existing.LastWatched.After(rec.LastWatched) {
		progressStaleWritesSkippedTotal.Inc()
		log.WithField("key", key).Debug("Skipped progress write older than the stored record")
		return nil
	}
	switch {
	case readErr != nil:
		if rec.Completed {
			fields["completed"] = true
		}
	case existing != nil && existing.Completed:
		if !rec.Completed {
			progressDowngradesIgnoredTotal.Inc()
			log.WithField("key", key).Debug("Ignored completion downgrade")
		}
		fields["completed"] = true
	default:
		fields["completed"] = rec.Completed
	}

	if err := svc.store.Set(ctx, shared.CollectionProgress, key, fields, true); err != nil {
		progressDurableWritesTotal.WithLabelValues("error").Inc()
		log.WithError(err).WithFields(log.Fields{
			"key":          key,
			"current_time": rec.CurrentTime,
		}).Warn("Failed to persist progress")
		return err
	}
	progressDurableWritesTotal.WithLabelValues("ok").Inc()
	return nil
}

// read fetches the stored record for one item, falling back to the legacy key.
// A record whose ids do not match the request is treated as absent.
func (svc *ProgressService) read(ctx context.Context, userID, courseID, itemID string) (*model.ProgressRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	key := model.ProgressKey(userID, courseID, itemID)
	rec, err := svc.readKey(ctx, key, userID, courseID, itemID)
	if err != nil || rec != nil {
		return rec, err
	}
	if legacy := model.LegacyProgressKey(userID, courseID, itemID); legacy != key {
		return svc.readKey(ctx, legacy, userID, courseID, itemID)
	}
	return nil, nil
}

func (svc *ProgressService) readKey(ctx context.Context, key, userID, courseID, itemID string) (*model.ProgressRecord, error) {
	snap, err := svc.store.Get(ctx, shared.CollectionProgress, key)
	if errors.Is(err, shared.ErrMalformedDocument) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	rec, ok := decodeProgress(*snap)
	if !ok || rec.UserID != userID || rec.CourseID != courseID || rec.ItemID != itemID {
		return nil, nil
	}
	return rec, nil
}

// CompletedByPlayback reports whether the watched ratio passes the completion
// threshold. The comparison is strict and an unknown duration never completes.
func CompletedByPlayback(currentTime, duration float64) bool {
	if duration <= 0 {
		return false
	}
	return currentTime/duration > shared.CompletionRatio
}

func decodeProgress(snap model.Snapshot) (*model.ProgressRecord, bool) {
	var rec model.ProgressRecord
	if err := model.FromFields(snap.Fields, &rec); err != nil {
		log.WithError(err).WithField("key", snap.Key).Debug("Skipping malformed progress record")
		return nil, false
	}
	rec.CurrentTime = sanitizeSeconds(rec.CurrentTime)
	rec.Duration = sanitizeSeconds(rec.Duration)
	return &rec, true
}

func sameProgress(a, b model.ProgressRecord) bool {
	return a.UserID == b.UserID &&
		a.CourseID == b.CourseID &&
		a.ItemID == b.ItemID &&
		a.CurrentTime == b.CurrentTime &&
		a.Duration == b.Duration &&
		a.Completed == b.Completed &&
		a.LastWatched.Equal(b.LastWatched)
}

func sanitizeSeconds(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func pendingKey(scope *session.Scope, key string) string {
	return fmt.Sprintf("%p|%s", scope, key)
}
