package services

import (
	"context"

	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/services/repositories"
	"gorm.io/gorm"
)

const DATABASE_SVC = "database_svc"

// DocumentStore is a keyed document store with merge writes, equality queries
// and conditional create and delete. Get returns nil for a missing document.
type DocumentStore interface {
	Get(ctx context.Context, collection, key string) (*model.Snapshot, error)
	Set(ctx context.Context, collection, key string, fields model.Fields, merge bool) error
	Query(ctx context.Context, collection string, where model.Fields) ([]model.Snapshot, error)
	CreateIfAbsent(ctx context.Context, collection, key string, fields model.Fields) (bool, error)
	Delete(ctx context.Context, collection, key string) error
	DeleteIf(ctx context.Context, collection, key string, where model.Fields) (bool, error)
}

// DatabaseProvider is implemented by both the postgres and sqlite services,
// whichever is registered as DATABASE_SVC.
type DatabaseProvider interface {
	Db() *gorm.DB
	Documents() DocumentStore
	HandleError(err error) error
}

// classifiedStore passes every store error through the database service's
// error classification so callers see typed, logged failures.
type classifiedStore struct {
	repo   *repositories.DocumentRepository
	handle func(error) error
}

func newClassifiedStore(db *gorm.DB, handle func(error) error) DocumentStore {
	return &classifiedStore{repo: repositories.NewDocumentRepository(db), handle: handle}
}

func (s *classifiedStore) Get(ctx context.Context, collection, key string) (*model.Snapshot, error) {
	snap, err := s.repo.Get(ctx, collection, key)
	return snap, s.handle(err)
}

func (s *classifiedStore) Set(ctx context.Context, collection, key string, fields model.Fields, merge bool) error {
	return s.handle(s.repo.Set(ctx, collection, key, fields, merge))
}

func (s *classifiedStore) Query(ctx context.Context, collection string, where model.Fields) ([]model.Snapshot, error) {
	snaps, err := s.repo.Query(ctx, collection, where)
	return snaps, s.handle(err)
}

func (s *classifiedStore) CreateIfAbsent(ctx context.Context, collection, key string, fields model.Fields) (bool, error) {
	created, err := s.repo.CreateIfAbsent(ctx, collection, key, fields)
	return created, s.handle(err)
}

func (s *classifiedStore) Delete(ctx context.Context, collection, key string) error {
	return s.handle(s.repo.Delete(ctx, collection, key))
}
