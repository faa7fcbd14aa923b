package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/shared"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocumentRepository struct {
	BaseRepository
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Get returns nil without error when the document does not exist.
func (r *DocumentRepository) Get(ctx context.Context, collection, key string) (*model.Snapshot, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).
		Where("collection = ? AND doc_key = ?", collection, key).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(doc)
}

// Set writes fields under key. With merge the given fields overlay the stored
// ones and unnamed fields are kept; otherwise the document is replaced.
func (r *DocumentRepository) Set(ctx context.Context, collection, key string, fields model.Fields, merge bool) error {
	if !merge {
		return r.upsert(r.db.WithContext(ctx), collection, key, fields)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("collection = ? AND doc_key = ?", collection, key)
		if r.isPostgres() {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var existing model.Document
		err := query.First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		merged := model.Fields{}
		if err == nil {
			// A malformed stored body is replaced rather than blocking the write.
			if snap, decodeErr := decodeDocument(existing); decodeErr == nil && snap.Fields != nil {
				merged = snap.Fields
			}
		}
		for k, v := range fields {
			merged[k] = v
		}
		return r.upsert(tx, collection, key, merged)
	})
}

func (r *DocumentRepository) upsert(tx *gorm.DB, collection, key string, fields model.Fields) error {
	doc, err := newDocument(collection, key, fields)
	if err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"fields", "updated_at"}),
	}).Create(doc).Error
}

// CreateIfAbsent inserts the document only when key is unused and reports
// whether it did.
func (r *DocumentRepository) CreateIfAbsent(ctx context.Context, collection, key string, fields model.Fields) (bool, error) {
	doc, err := newDocument(collection, key, fields)
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(doc)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Query returns every document in collection whose fields equal all of where,
// oldest first. Malformed documents are skipped.
func (r *DocumentRepository) Query(ctx context.Context, collection string, where model.Fields) ([]model.Snapshot, error) {
	q := r.db.WithContext(ctx).Where("collection = ?", collection)

	for _, k := range sortedKeys(where) {
		q = q.Where(datatypes.JSONQuery("fields").Equals(where[k], k))
	}

	var docs []model.Document
	if err := q.Order("created_at ASC").Order("doc_key ASC").Find(&docs).Error; err != nil {
		return nil, err
	}

	out := make([]model.Snapshot, 0, len(docs))
	for _, doc := range docs {
		snap, err := decodeDocument(doc)
		if err != nil {
			continue
		}
		out = append(out, *snap)
	}
	return out, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, collection, key string) error {
	return r.db.WithContext(ctx).
		Where("collection = ? AND doc_key = ?", collection, key).
		Delete(&model.Document{}).Error
}

// DeleteIf removes the document only while its fields still equal all of
// where, and reports whether it did.
func (r *DocumentRepository) DeleteIf(ctx context.Context, collection, key string, where model.Fields) (bool, error) {
	q := r.db.WithContext(ctx).Where("collection = ? AND doc_key = ?", collection, key)
	for _, k := range sortedKeys(where) {
		q = q.Where(datatypes.JSONQuery("fields").Equals(where[k], k))
	}
	res := q.Delete(&model.Document{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func sortedKeys(fields model.Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newDocument(collection, key string, fields model.Fields) (*model.Document, error) {
	if fields == nil {
		fields = model.Fields{}
	}
	raw, err := sonic.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	now := time.Now().UTC()
	return &model.Document{
		Collection: collection,
		Key:        key,
		Fields:     datatypes.JSON(raw),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func decodeDocument(doc model.Document) (*model.Snapshot, error) {
	fields := model.Fields{}
	if len(doc.Fields) > 0 {
		if err := sonic.Unmarshal(doc.Fields, &fields); err != nil {
			return nil, fmt.Errorf("%w: %s/%s", shared.ErrMalformedDocument, doc.Collection, doc.Key)
		}
	}
	return &model.Snapshot{Key: doc.Key, Fields: fields}, nil
}
