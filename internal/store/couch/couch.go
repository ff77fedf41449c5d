// Package couch implements store.Store on top of a CouchDB database
// using kivik.
package couch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chfs/internal/hierkey"
	"chfs/internal/logging"
	"chfs/internal/store"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb" // The CouchDB driver
)

var (
	logger = logging.GetLogger().WithPrefix("couch")
)

// Options selects the server and database to open.
type Options struct {
	URL      string
	Database string
}

// Store is a CouchDB backed store.Store.
type Store struct {
	client *kivik.Client
	db     *kivik.DB
	name   string
}

var _ store.Store = (*Store)(nil)

// Open connects to the server and checks that the database exists.
func Open(ctx context.Context, opts Options) (*Store, error) {
	logger.Debug("Connecting to CouchDB at %s", opts.URL)
	client, err := kivik.New("couch", opts.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.URL, err)
	}

	exists, err := client.DBExists(ctx, opts.Database)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("check database %q: %w", opts.Database, err)
	}
	if !exists {
		client.Close()
		return nil, fmt.Errorf("database %q: %w", opts.Database, store.ErrNotFound)
	}

	db := client.DB(opts.Database)
	if err := db.Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("open database %q: %w", opts.Database, err)
	}

	logger.Info("Connected to database %q", opts.Database)
	return &Store{client: client, db: db, name: opts.Database}, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (*store.Document, error) {
	logger.Trace("GET %s/%s", s.name, id)
	var doc store.Document
	if err := s.db.Get(ctx, id).ScanDoc(&doc); err != nil {
		return nil, wrap("get document "+id, err)
	}
	return &doc, nil
}

// GetAttachment implements store.Store.
func (s *Store) GetAttachment(ctx context.Context, docID, name string) (io.ReadCloser, error) {
	logger.Trace("GET %s/%s/%s", s.name, docID, name)
	att, err := s.db.GetAttachment(ctx, docID, name)
	if err != nil {
		return nil, wrap("get attachment "+docID+"/"+name, err)
	}
	return att.Content, nil
}

// QueryView implements store.Store.
func (s *Store) QueryView(ctx context.Context, view string, q store.ViewQuery) ([]store.Row, error) {
	ddoc, name, err := splitView(view)
	if err != nil {
		return nil, err
	}
	params := ViewParams(q)
	logger.Trace("Querying view %s/%s with %v", ddoc, name, params)

	rs := s.db.Query(ctx, ddoc, name, kivik.Params(params))
	defer rs.Close()

	var rows []store.Row
	for rs.Next() {
		var raw json.RawMessage
		if err := rs.ScanKey(&raw); err != nil {
			return nil, fmt.Errorf("view %s: scan key: %w", view, err)
		}
		var key hierkey.Key
		if err := json.Unmarshal(raw, &key); err != nil {
			return nil, fmt.Errorf("view %s: %w", view, err)
		}
		var value json.RawMessage
		if err := rs.ScanValue(&value); err != nil {
			return nil, fmt.Errorf("view %s: scan value: %w", view, err)
		}
		rows = append(rows, store.Row{Key: key, Value: value})
	}
	if err := rs.Err(); err != nil {
		return nil, wrap("query view "+view, err)
	}
	return rows, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	logger.Debug("Closing CouchDB client")
	return s.client.Close()
}

// ViewParams converts a view query into CouchDB query parameters. Keys
// are passed as values and JSON encoded by the driver.
func ViewParams(q store.ViewQuery) map[string]interface{} {
	params := map[string]interface{}{
		"reduce": q.Reduce,
	}
	if q.Reduce && q.GroupLevel > 0 {
		params["group_level"] = q.GroupLevel
	}
	if q.StartKey != nil {
		params["startkey"] = q.StartKey
	}
	if q.EndKey != nil {
		params["endkey"] = q.EndKey
	}
	switch q.Stale {
	case store.StaleOK:
		params["stable"] = true
		params["update"] = "false"
	case store.StaleUpdateAfter:
		params["stable"] = true
		params["update"] = "lazy"
	}
	return params
}

func splitView(view string) (ddoc, name string, err error) {
	ddoc, name, ok := strings.Cut(strings.TrimPrefix(view, "_design/"), "/")
	if !ok || ddoc == "" || name == "" {
		return "", "", fmt.Errorf("view %q is not of the form design/view", view)
	}
	return "_design/" + ddoc, name, nil
}

func wrap(what string, err error) error {
	if kivik.HTTPStatus(err) == http.StatusNotFound {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
