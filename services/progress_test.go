package services

import (
	"context"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/session"
	"github.com/lac-hong-legacy/lms_api/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletedByPlayback(t *testing.T) {
	tests := []struct {
		name        string
		currentTime float64
		duration    float64
		want        bool
	}{
		{"94 percent", 94, 100, false},
		{"exactly 95 percent", 95, 100, false},
		{"96 percent", 96, 100, true},
		{"past the end", 130, 100, true},
		{"unknown duration", 50, 0, false},
		{"negative duration", 50, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompletedByPlayback(tt.currentTime, tt.duration))
		})
	}
}

func TestProgressSaveCoalescesWrites(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)
	scope := newScope("alice")

	for i := 1; i <= 10; i++ {
		_, err := st.progress.Save(ctx, scope, "go-101", "intro", float64(i*10), 120)
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		return st.store.Sets(shared.CollectionProgress) == 1
	}, time.Second, 5*time.Millisecond)
	st.progress.debouncer.Wait()
	assert.Equal(t, 1, st.store.Sets(shared.CollectionProgress))

	rec, err := st.progress.Load(ctx, scope, "go-101", "intro")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, float64(100), rec.CurrentTime)
	assert.Equal(t, float64(120), rec.Duration)
	assert.False(t, rec.Completed)
}

func TestProgressSaveUpdatesCacheImmediately(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)
	scope := newScope("alice")

	_, err := st.progress.Save(ctx, scope, "go-101", "intro", 42, 120)
	require.NoError(t, err)
	assert.Equal(t, 0, st.store.Sets(shared.CollectionProgress))

	cached, ok, err := scope.CacheGet(ctx, model.ProgressKey("alice", "go-101", "intro"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(42), cached.CurrentTime)
}

func TestProgressFlushWritesThrough(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)
	scope := newScope("alice")

	_, err := st.progress.Save(ctx, scope, "go-101", "intro", 10, 120)
	require.NoError(t, err)

	rec, err := st.progress.Flush(ctx, scope, "go-101", "intro", 60, 120, shared.ProgressEventPause)
	require.NoError(t, err)
	assert.Equal(t, float64(60), rec.CurrentTime)
	assert.Equal(t, 1, st.store.Sets(shared.CollectionProgress))
	assert.Equal(t, 0, st.progress.debouncer.Len())

	// The cancelled coalesced write must not land later.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, st.store.Sets(shared.CollectionProgress))
}

func TestProgressCompletionIsMonotonic(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)
	scope := newScope("alice")

	rec, err := st.progress.Flush(ctx, scope, "go-101", "intro", 116, 120, shared.ProgressEventEnded)
	require.NoError(t, err)
	assert.True(t, rec.Completed)

	// Rewatching from the start on another device must not clear completion.
	other := newScope("alice")
	_, err = st.progress.Flush(ctx, other, "go-101", "intro", 5, 120, shared.ProgressEventPause)
	require.NoError(t, err)

	stored, err := st.progress.Load(ctx, newScope("alice"), "go-101", "intro")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Completed)
	assert.Equal(t, float64(5), stored.CurrentTime)
}

func TestProgressSanitizesInput(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)

	rec, err := st.progress.Flush(ctx, newScope("alice"), "go-101", "intro", math.NaN(), math.Inf(1), shared.ProgressEventPause)
	require.NoError(t, err)
	assert.Equal(t, float64(0), rec.CurrentTime)
	assert.Equal(t, float64(0), rec.Duration)
	assert.False(t, rec.Completed)

	_, err = st.progress.Save(ctx, newScope("alice"), "", "intro", 1, 2)
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
}

func TestProgressLoadPrefersDurable(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)
	laptop := newScope("alice")
	phone := session.NewScope("dev-2", "alice", session.NewMemoryCache())

	_, err := st.progress.Flush(ctx, laptop, "go-101", "intro", 30, 120, shared.ProgressEventPause)
	require.NoError(t, err)
	_, err = st.progress.Flush(ctx, phone, "go-101", "intro", 80, 120, shared.ProgressEventPause)
	require.NoError(t, err)

	rec, err := st.progress.Load(ctx, laptop, "go-101", "intro")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, float64(80), rec.CurrentTime)

	cached, ok, err := laptop.CacheGet(ctx, model.ProgressKey("alice", "go-101", "intro"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(80), cached.CurrentTime, "cache is refreshed from the store")
}

func TestProgressLoadServesPendingLocalWrite(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)
	scope := newScope("alice")

	_, err := st.progress.Flush(ctx, scope, "go-101", "intro", 30, 120, shared.ProgressEventPause)
	require.NoError(t, err)
	_, err = st.progress.Save(ctx, scope, "go-101", "intro", 45, 120)
	require.NoError(t, err)

	rec, err := st.progress.Load(ctx, scope, "go-101", "intro")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, float64(45), rec.CurrentTime)
}

func TestProgressToleratesStoreFailure(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)
	scope := newScope("alice")

	st.store.FailSet(shared.CollectionProgress, true)
	rec, err := st.progress.Flush(ctx, scope, "go-101", "intro", 50, 120, shared.ProgressEventPause)
	require.NoError(t, err, "playback saves never fail the caller")
	assert.Equal(t, float64(50), rec.CurrentTime)

	st.store.FailRead(true)
	rec, err = st.progress.Load(ctx, scope, "go-101", "intro")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, float64(50), rec.CurrentTime, "cached value is served while the store is down")

	_, err = st.progress.MarkComplete(ctx, scope, "go-101", "intro")
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.StatusCode)
}

func TestProgressLoadMissing(t *testing.T) {
	st := newTestStack(t)

	rec, err := st.progress.Load(context.Background(), newScope("alice"), "go-101", "intro")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestProgressCourseProgressIncludesPending(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)
	scope := newScope("alice")

	_, err := st.progress.Flush(ctx, scope, "go-101", "intro", 60, 120, shared.ProgressEventPause)
	require.NoError(t, err)
	_, err = st.progress.Save(ctx, scope, "go-101", "notes", 1, 0)
	require.NoError(t, err)

	records, err := st.progress.CourseProgress(ctx, scope, "go-101", "intro", "notes")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, float64(60), records["intro"].CurrentTime)
	assert.Equal(t, float64(1), records["notes"].CurrentTime)
}

func TestProgressUserSwitchFlushesAndIsolates(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)

	auth := session.NewDeviceAuth("alice")
	binding := session.NewBinding("dev-1", auth, session.MemoryCacheFactory, st.progress.FlushScope)
	defer binding.Close()

	alice, err := binding.Scope()
	require.NoError(t, err)
	_, err = st.progress.Save(ctx, alice, "go-101", "intro", 70, 120)
	require.NoError(t, err)
	assert.Equal(t, 0, st.store.Sets(shared.CollectionProgress))

	auth.Publish("bob")
	assert.Equal(t, 1, st.store.Sets(shared.CollectionProgress), "pending save is flushed on unbind")

	_, err = st.progress.Save(ctx, alice, "go-101", "intro", 90, 120)
	assert.ErrorIs(t, err, session.ErrScopeClosed)

	bob, err := binding.Scope()
	require.NoError(t, err)
	_, hit, err := bob.CacheGet(ctx, model.ProgressKey("alice", "go-101", "intro"))
	require.NoError(t, err)
	assert.False(t, hit)

	rec, err := st.progress.Load(ctx, bob, "go-101", "intro")
	require.NoError(t, err)
	assert.Nil(t, rec, "bob sees none of alice's progress")

	stored, err := st.progress.Load(ctx, newScope("alice"), "go-101", "intro")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, float64(70), stored.CurrentTime)
}

func TestProgressRewatchKeepsDurableCompletion(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)
	st.progress.debouncer = NewDebouncer(time.Second)
	laptop := newScope("alice")
	st.completeCourse(t, laptop)

	// A fresh device starts rewatching before it has loaded anything.
	phone := session.NewScope("dev-2", "alice", session.NewMemoryCache())
	rec, err := st.progress.Save(ctx, phone, "go-101", "intro", 5, 120)
	require.NoError(t, err)
	assert.True(t, rec.Completed)
	require.True(t, st.progress.debouncer.Pending(pendingKey(phone, model.ProgressKey("alice", "go-101", "intro"))))

	loaded, err := st.progress.Load(ctx, phone, "go-101", "intro")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Completed)
	assert.Equal(t, float64(5), loaded.CurrentTime)

	cert, err := st.certificates.Issue(ctx, phone, testCourse(), "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, cert.CertificateID)
}

func TestProgressPendingOverlayKeepsCompletion(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)
	st.progress.debouncer = NewDebouncer(time.Second)
	phone := session.NewScope("dev-2", "alice", session.NewMemoryCache())

	// The phone caches an unfinished record, then the item is completed elsewhere.
	_, err := st.progress.Flush(ctx, phone, "go-101", "intro", 10, 120, shared.ProgressEventPause)
	require.NoError(t, err)
	_, err = st.progress.MarkComplete(ctx, newScope("alice"), "go-101", "intro")
	require.NoError(t, err)

	_, err = st.progress.Save(ctx, phone, "go-101", "intro", 20, 120)
	require.NoError(t, err)

	records, err := st.progress.CourseProgress(ctx, phone, "go-101", "intro")
	require.NoError(t, err)
	require.Contains(t, records, "intro")
	assert.True(t, records["intro"].Completed)
	assert.Equal(t, float64(20), records["intro"].CurrentTime)

	loaded, err := st.progress.Load(ctx, phone, "go-101", "intro")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Completed)
}

func TestProgressSkipsWriteOlderThanStored(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)
	scope := newScope("alice")

	earlier := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st.progress.now = func() time.Time { return earlier.Add(time.Minute) }
	_, err := st.progress.Flush(ctx, scope, "go-101", "intro", 90, 120, shared.ProgressEventPause)
	require.NoError(t, err)

	// A coalesced write staged before the flush lands after it.
	require.NoError(t, st.progress.persist(ctx, model.ProgressRecord{
		UserID:      "alice",
		CourseID:    "go-101",
		ItemID:      "intro",
		CurrentTime: 40,
		Duration:    120,
		LastWatched: earlier,
	}))
	assert.Equal(t, 1, st.store.Sets(shared.CollectionProgress))

	stored, err := st.progress.Load(ctx, newScope("alice"), "go-101", "intro")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, float64(90), stored.CurrentTime)
}

func TestProgressKeysDoNotCollide(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)

	assert.NotEqual(t, model.ProgressKey("u_a", "b", "c"), model.ProgressKey("u", "a_b", "c"))
	assert.Equal(t, "alice_go-101_intro", model.ProgressKey("alice", "go-101", "intro"))

	_, err := st.progress.MarkComplete(ctx, newScope("u_a"), "b", "c")
	require.NoError(t, err)

	rec, err := st.progress.Load(ctx, newScope("u"), "a_b", "c")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = st.progress.Flush(ctx, newScope("u"), "a_b", "c", 5, 120, shared.ProgressEventPause)
	require.NoError(t, err)

	other, err := st.progress.Load(ctx, newScope("u_a"), "b", "c")
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.True(t, other.Completed)
	assert.Equal(t, "u_a", other.UserID)
}

func TestProgressReadsLegacyKey(t *testing.T) {
	ctx := context.Background()
	st := newTestStack(t)

	legacy := model.LegacyProgressKey("alice", "go_201", "intro")
	require.NoError(t, st.store.Set(ctx, shared.CollectionProgress, legacy, model.Fields{
		"userId":      "alice",
		"courseId":    "go_201",
		"videoId":     "intro",
		"currentTime": 33,
		"duration":    120,
		"completed":   false,
		"lastWatched": time.Now().UTC().Format(time.RFC3339Nano),
	}, false))

	rec, err := st.progress.Load(ctx, newScope("alice"), "go_201", "intro")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, float64(33), rec.CurrentTime)

	// Completing writes the escaped key; the position carries over.
	_, err = st.progress.MarkComplete(ctx, newScope("alice"), "go_201", "intro")
	require.NoError(t, err)

	records, err := st.progress.CourseProgress(ctx, newScope("alice"), "go_201")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records["intro"].Completed)
	assert.Equal(t, float64(33), records["intro"].CurrentTime)
}
