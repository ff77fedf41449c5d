package memstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"chfs/internal/hierkey"
	"chfs/internal/store"

	"gopkg.in/yaml.v3"
)

// DefaultView is the view fixture keys are emitted into when the file
// does not name one.
const DefaultView = "instances/context"

// Fixture is the on-disk description of a store.
type Fixture struct {
	// View receives every key listed under documents.
	View string `yaml:"view"`

	Documents []FixtureDocument `yaml:"documents"`
}

// FixtureDocument is one document of a fixture.
type FixtureDocument struct {
	ID string `yaml:"id"`

	// Keys are the view keys emitted for this document. Each key is a
	// list whose items are strings (leaves) or lists of strings (groups).
	Keys []interface{} `yaml:"keys"`

	// Dataset is any YAML value; it is stored as its JSON encoding.
	Dataset interface{} `yaml:"dataset"`

	Attachments []FixtureAttachment `yaml:"attachments"`
}

// FixtureAttachment holds an attachment body given as text or base64.
type FixtureAttachment struct {
	Name        string `yaml:"name"`
	ContentType string `yaml:"content_type"`
	Text        string `yaml:"text"`
	Base64      string `yaml:"base64"`
}

// LoadFixture reads a YAML fixture file into a new Store.
func LoadFixture(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fixture path: %w", err)
	}
	logger.Debug("Loading fixture from: %s", absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fixture file %s is empty", absPath)
	}

	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture file: %w", err)
	}

	s, err := FromFixture(fx)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", absPath, err)
	}
	logger.Info("Fixture loaded: %d documents", len(fx.Documents))
	return s, nil
}

// FromFixture builds a Store from an already decoded fixture.
func FromFixture(fx Fixture) (*Store, error) {
	view := fx.View
	if view == "" {
		view = DefaultView
	}

	s := New()
	// An empty view still exists so that root listings succeed.
	s.views[view] = nil

	seen := make(map[string]bool, len(fx.Documents))
	for i, fd := range fx.Documents {
		if fd.ID == "" {
			return nil, fmt.Errorf("document %d has no id", i)
		}
		if seen[fd.ID] {
			return nil, fmt.Errorf("duplicate document id %q", fd.ID)
		}
		seen[fd.ID] = true

		doc := store.Document{ID: fd.ID}
		if fd.Dataset != nil {
			raw, err := json.Marshal(fd.Dataset)
			if err != nil {
				return nil, fmt.Errorf("document %q: dataset: %w", fd.ID, err)
			}
			doc.Dataset = raw
		}
		s.Put(doc)

		for _, fa := range fd.Attachments {
			body, err := fa.body()
			if err != nil {
				return nil, fmt.Errorf("document %q: %w", fd.ID, err)
			}
			if err := s.PutAttachment(fd.ID, fa.Name, fa.ContentType, body); err != nil {
				return nil, err
			}
		}

		for _, rawKey := range fd.Keys {
			key, err := hierkey.FromValue(rawKey)
			if err != nil {
				return nil, fmt.Errorf("document %q: key: %w", fd.ID, err)
			}
			s.Emit(view, key, fd.ID)
		}
	}
	return s, nil
}

func (fa FixtureAttachment) body() ([]byte, error) {
	if fa.Name == "" {
		return nil, fmt.Errorf("attachment without a name")
	}
	if fa.Base64 != "" {
		if fa.Text != "" {
			return nil, fmt.Errorf("attachment %q sets both text and base64", fa.Name)
		}
		body, err := base64.StdEncoding.DecodeString(fa.Base64)
		if err != nil {
			return nil, fmt.Errorf("attachment %q: %w", fa.Name, err)
		}
		return body, nil
	}
	return []byte(fa.Text), nil
}
