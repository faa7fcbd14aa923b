package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/services/repositories"
	"github.com/lac-hong-legacy/lms_api/session"
	"github.com/lac-hong-legacy/lms_api/testutil"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store down")

// countingStore wraps a real document store, counting writes per collection
// and failing operations on request.
type countingStore struct {
	DocumentStore

	mu       sync.Mutex
	sets     map[string]int
	failSet  map[string]bool
	failRead bool
}

func newCountingStore(t *testing.T) *countingStore {
	return &countingStore{
		DocumentStore: repositories.NewDocumentRepository(testutil.DB(t)),
		sets:          map[string]int{},
		failSet:       map[string]bool{},
	}
}

func (s *countingStore) Get(ctx context.Context, collection, key string) (*model.Snapshot, error) {
	s.mu.Lock()
	fail := s.failRead
	s.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return s.DocumentStore.Get(ctx, collection, key)
}

func (s *countingStore) Query(ctx context.Context, collection string, where model.Fields) ([]model.Snapshot, error) {
	s.mu.Lock()
	fail := s.failRead
	s.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return s.DocumentStore.Query(ctx, collection, where)
}

func (s *countingStore) Set(ctx context.Context, collection, key string, fields model.Fields, merge bool) error {
	s.mu.Lock()
	fail := s.failSet[collection]
	if !fail {
		s.sets[collection]++
	}
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.DocumentStore.Set(ctx, collection, key, fields, merge)
}

func (s *countingStore) Sets(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[collection]
}

func (s *countingStore) FailSet(collection string, fail bool) {
	s.mu.Lock()
	s.failSet[collection] = fail
	s.mu.Unlock()
}

func (s *countingStore) FailRead(fail bool) {
	s.mu.Lock()
	s.failRead = fail
	s.mu.Unlock()
}

type fakeBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	err     error
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: map[string][]byte{}}
}

func (b *fakeBlob) Upload(_ context.Context, path string, data []byte, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	b.objects[path] = data
	return "https://files.test/" + path, nil
}

func (b *fakeBlob) Delete(_ context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, path)
	b.deleted = append(b.deleted, path)
	return nil
}

func (b *fakeBlob) Backend() string { return "fake" }

func (b *fakeBlob) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls []CertificateTemplate
	err   error
	delay time.Duration
}

func (r *fakeRenderer) Render(tpl CertificateTemplate) ([]byte, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, tpl)
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.3 fake"), nil
}

func (r *fakeRenderer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newScope(userID string) *session.Scope {
	return session.NewScope("dev-1", userID, session.NewMemoryCache())
}

func testCourse() *model.Course {
	return &model.Course{
		ID:    "go-101",
		Title: "Go Basics",
		Items: []model.ContentItem{
			{ID: "intro", Type: "video", Title: "Intro", Duration: 120, Order: 1},
			{ID: "notes", Type: "text", Title: "Notes", Order: 2},
		},
	}
}

// testStack wires the progress, course, certificate and completion services
// over one store, with the test course saved.
type testStack struct {
	store        *countingStore
	blob         *fakeBlob
	renderer     *fakeRenderer
	progress     *ProgressService
	courses      *CourseService
	certificates *CertificateService
	completion   *CompletionService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	store := newCountingStore(t)
	blob := newFakeBlob()
	renderer := &fakeRenderer{}

	progress := NewProgressService(store, 20*time.Millisecond, time.Second)
	courses := NewCourseService(store, time.Second)
	certificates := NewCertificateService(store, blob, renderer, progress, DefaultCertificateConfig())
	completion := NewCompletionService(progress, courses, certificates)

	require.NoError(t, courses.SaveCourse(context.Background(), *testCourse()))
	t.Cleanup(func() {
		progress.debouncer.FlushAll()
		progress.debouncer.Wait()
	})

	return &testStack{
		store:        store,
		blob:         blob,
		renderer:     renderer,
		progress:     progress,
		courses:      courses,
		certificates: certificates,
		completion:   completion,
	}
}

// completeCourse marks every item of the test course done for scope.
func (s *testStack) completeCourse(t *testing.T, scope *session.Scope) {
	t.Helper()
	ctx := context.Background()
	for _, item := range testCourse().Items {
		_, err := s.progress.MarkComplete(ctx, scope, "go-101", item.ID)
		require.NoError(t, err)
	}
}
