// Package memstore is an in-process store.Store. It keeps documents and
// attachment bodies in memory and emulates grouped CouchDB views with a
// _count reducer, which makes it usable both in tests and to browse a
// fixture file without a database.
package memstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"chfs/internal/hierkey"
	"chfs/internal/logging"
	"chfs/internal/store"
)

var (
	logger = logging.GetLogger().WithPrefix("memstore")

	errClosed = errors.New("memstore: store is closed")
)

type entry struct {
	doc    store.Document
	bodies map[string][]byte
}

type emitted struct {
	key   hierkey.Key
	docID string
}

// Store is a concurrency-safe in-memory document store.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]*entry
	views  map[string][]emitted
	closed bool
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		docs:  make(map[string]*entry),
		views: make(map[string][]emitted),
	}
}

// Put stores (or replaces) a document. Attachment metadata of doc is
// kept as given; bodies are added with PutAttachment.
func (s *Store) Put(doc store.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger.Trace("Putting document %q", doc.ID)

	e, ok := s.docs[doc.ID]
	if !ok {
		e = &entry{bodies: make(map[string][]byte)}
		s.docs[doc.ID] = e
	}
	doc.Attachments = append([]store.Attachment(nil), doc.Attachments...)
	e.doc = doc
}

// PutAttachment stores an attachment body on an existing document,
// appending its metadata or updating the recorded length.
func (s *Store) PutAttachment(docID, name, contentType string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[docID]
	if !ok {
		return fmt.Errorf("document %q: %w", docID, store.ErrNotFound)
	}
	e.bodies[name] = append([]byte(nil), body...)
	for i := range e.doc.Attachments {
		if e.doc.Attachments[i].Name == name {
			e.doc.Attachments[i].Length = int64(len(body))
			e.doc.Attachments[i].ContentType = contentType
			return nil
		}
	}
	e.doc.Attachments = append(e.doc.Attachments, store.Attachment{
		Name:        name,
		ContentType: contentType,
		Length:      int64(len(body)),
	})
	return nil
}

// Emit records that the map function of view emitted key for docID.
func (s *Store) Emit(view string, key hierkey.Key, docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger.Trace("Emitting %v for %q into view %q", key, docID, view)
	s.views[view] = append(s.views[view], emitted{key: key, docID: docID})
}

// Get implements store.Store.
func (s *Store) Get(_ context.Context, id string) (*store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}

	e, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", id, store.ErrNotFound)
	}
	doc := e.doc
	doc.Attachments = append([]store.Attachment(nil), e.doc.Attachments...)
	return &doc, nil
}

// GetAttachment implements store.Store.
func (s *Store) GetAttachment(_ context.Context, docID, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}

	e, ok := s.docs[docID]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", docID, store.ErrNotFound)
	}
	body, ok := e.bodies[name]
	if !ok {
		return nil, fmt.Errorf("attachment %q of %q: %w", name, docID, store.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

// QueryView implements store.Store. Rows whose keys fall inside
// [StartKey, EndKey] are sorted by view collation; when Reduce is set
// they are grouped on their first GroupLevel levels and counted.
func (s *Store) QueryView(_ context.Context, view string, q store.ViewQuery) ([]store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}

	rows, ok := s.views[view]
	if !ok {
		return nil, fmt.Errorf("view %q: %w", view, store.ErrNotFound)
	}

	matched := make([]emitted, 0, len(rows))
	for _, r := range rows {
		if q.StartKey != nil && hierkey.Compare(r.key, q.StartKey) < 0 {
			continue
		}
		if q.EndKey != nil && hierkey.Compare(r.key, q.EndKey) > 0 {
			continue
		}
		matched = append(matched, r)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if c := hierkey.Compare(matched[i].key, matched[j].key); c != 0 {
			return c < 0
		}
		return matched[i].docID < matched[j].docID
	})

	if !q.Reduce {
		out := make([]store.Row, len(matched))
		for i, r := range matched {
			out[i] = store.Row{Key: r.key, Value: json.RawMessage("null"), ID: r.docID}
		}
		return out, nil
	}

	var out []store.Row
	var counts []int
	for _, r := range matched {
		var group hierkey.Key
		if q.GroupLevel > 0 {
			group = r.key.Truncate(q.GroupLevel)
		}
		if n := len(out); n > 0 && out[n-1].Key.Equal(group) {
			counts[n-1]++
			continue
		}
		out = append(out, store.Row{Key: group})
		counts = append(counts, 1)
	}
	for i := range out {
		out[i].Value = json.RawMessage(strconv.Itoa(counts[i]))
	}
	logger.Trace("View %q returned %d grouped rows", view, len(out))
	return out, nil
}

// Close implements store.Store. Later calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
