package model

import (
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
)

// Document is one keyed record in a named collection. Fields hold the record body
// as JSON so a collection needs no table of its own.
type Document struct {
	Collection string         `json:"collection" gorm:"primaryKey;size:64"`
	Key        string         `json:"key" gorm:"primaryKey;column:doc_key;size:255"`
	Fields     datatypes.JSON `json:"fields" gorm:"not null"`
	CreatedAt  time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}

type Fields map[string]interface{}

// Snapshot is a document as read back from the store.
type Snapshot struct {
	Key    string
	Fields Fields
}

// ToFields converts a tagged struct into its document field map.
func ToFields(v interface{}) (Fields, error) {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields Fields
	if err := sonic.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// FromFields decodes a document field map into out.
func FromFields(fields Fields, out interface{}) error {
	raw, err := sonic.Marshal(fields)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(raw, out)
}
