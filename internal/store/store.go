// Package store defines the document/view store consumed by the
// filesystem: document lookup, attachment streaming and grouped view
// queries.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"chfs/internal/hierkey"
)

// ErrNotFound is returned (possibly wrapped) when a document,
// attachment or view does not exist.
var ErrNotFound = errors.New("not found")

// Store is a read-only view of a document database.
type Store interface {
	// Get fetches one document by id.
	Get(ctx context.Context, id string) (*Document, error)

	// GetAttachment opens the body of a stored attachment. The caller
	// closes the returned reader.
	GetAttachment(ctx context.Context, docID, name string) (io.ReadCloser, error)

	// QueryView runs a range query against a secondary index named
	// "design/view".
	QueryView(ctx context.Context, view string, q ViewQuery) ([]Row, error)

	// Close releases the connection.
	Close() error
}

// Stale selects how out of date a view result may be.
type Stale string

const (
	// StaleNone requires an up to date index.
	StaleNone Stale = ""
	// StaleOK accepts the index as it is, without triggering an update.
	StaleOK Stale = "ok"
	// StaleUpdateAfter accepts the index as it is and updates it after
	// the response.
	StaleUpdateAfter Stale = "update_after"
)

// Valid reports whether s is one of the known staleness values.
func (s Stale) Valid() bool {
	switch s {
	case StaleNone, StaleOK, StaleUpdateAfter:
		return true
	}
	return false
}

// ViewQuery holds the parameters of a grouped range query. A nil
// StartKey or EndKey leaves that side of the range open.
type ViewQuery struct {
	GroupLevel int
	StartKey   hierkey.Key
	EndKey     hierkey.Key
	Reduce     bool
	Stale      Stale
}

// Row is one result row of a view query. ID is empty for reduced rows.
type Row struct {
	Key   hierkey.Key
	Value json.RawMessage
	ID    string
}

// Attachment describes a named blob stored with a document.
type Attachment struct {
	Name        string
	ContentType string
	Length      int64
}

// Document is a stored record. Dataset is nil when the record has no
// dataset field (or it is null). Attachments keep the order in which
// the store reported them.
type Document struct {
	ID          string
	Rev         string
	Dataset     json.RawMessage
	Attachments []Attachment
}

// HasDataset reports whether the document carries a dataset payload.
func (d *Document) HasDataset() bool {
	return len(d.Dataset) > 0
}

// Attachment returns the attachment with the given name.
func (d *Document) Attachment(name string) (Attachment, bool) {
	for _, a := range d.Attachments {
		if a.Name == name {
			return a, true
		}
	}
	return Attachment{}, false
}
