package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"chfs/internal/hierkey"
	"chfs/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const view = "instances/context"

func seed(t *testing.T) *Store {
	t.Helper()
	s := New()
	keys := map[string]hierkey.Key{
		"i1": {hierkey.Group{"HospitalA", "P1"}, hierkey.Group{"CT", "1.1"}, hierkey.Leaf("i1")},
		"i2": {hierkey.Group{"HospitalA", "P1"}, hierkey.Group{"CT", "1.1"}, hierkey.Leaf("i2")},
		"i3": {hierkey.Group{"HospitalA", "P2"}, hierkey.Group{"MR", "2.1"}, hierkey.Leaf("i3")},
		"i4": {hierkey.Group{"HospitalB", "P7"}, hierkey.Group{"US", "3.1"}, hierkey.Leaf("i4")},
	}
	for _, id := range []string{"i4", "i2", "i1", "i3"} {
		s.Put(store.Document{ID: id})
		s.Emit(view, keys[id], id)
	}
	return s
}

func keysOf(rows []store.Row) []hierkey.Key {
	out := make([]hierkey.Key, len(rows))
	for i, r := range rows {
		out[i] = r.Key
	}
	return out
}

func TestQueryViewGroupsRootLevel(t *testing.T) {
	s := seed(t)
	rows, err := s.QueryView(context.Background(), view, store.ViewQuery{GroupLevel: 1, Reduce: true})
	require.NoError(t, err)

	assert.Equal(t, []hierkey.Key{
		{hierkey.Group{"HospitalA", "P1"}},
		{hierkey.Group{"HospitalA", "P2"}},
		{hierkey.Group{"HospitalB", "P7"}},
	}, keysOf(rows))
	assert.JSONEq(t, "2", string(rows[0].Value))
	assert.Empty(t, rows[0].ID)
}

func TestQueryViewBoundsRange(t *testing.T) {
	s := seed(t)
	start := hierkey.Key{hierkey.Group{"HospitalA", "P1"}}
	rows, err := s.QueryView(context.Background(), view, store.ViewQuery{
		GroupLevel: 2,
		StartKey:   start,
		EndKey:     start.Append(hierkey.Max{}),
		Reduce:     true,
		Stale:      store.StaleOK,
	})
	require.NoError(t, err)
	assert.Equal(t, []hierkey.Key{
		{hierkey.Group{"HospitalA", "P1"}, hierkey.Group{"CT", "1.1"}},
	}, keysOf(rows))
}

func TestQueryViewLeafLevel(t *testing.T) {
	s := seed(t)
	start := hierkey.Key{hierkey.Group{"HospitalA", "P1"}, hierkey.Group{"CT", "1.1"}}
	rows, err := s.QueryView(context.Background(), view, store.ViewQuery{
		GroupLevel: 3,
		StartKey:   start,
		EndKey:     start.Append(hierkey.Max{}),
		Reduce:     true,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, hierkey.Leaf("i1"), rows[0].Key[2])
	assert.Equal(t, hierkey.Leaf("i2"), rows[1].Key[2])
}

func TestQueryViewWithoutReduce(t *testing.T) {
	s := seed(t)
	rows, err := s.QueryView(context.Background(), view, store.ViewQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "i1", rows[0].ID)
	assert.Equal(t, "i4", rows[3].ID)
}

func TestQueryViewReduceAll(t *testing.T) {
	s := seed(t)
	rows, err := s.QueryView(context.Background(), view, store.ViewQuery{Reduce: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Key)
	assert.JSONEq(t, "4", string(rows[0].Value))
}

func TestQueryUnknownView(t *testing.T) {
	_, err := New().QueryView(context.Background(), "nope/nope", store.ViewQuery{})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestGetAndAttachments(t *testing.T) {
	s := New()
	s.Put(store.Document{ID: "doc1", Dataset: json.RawMessage(`{"a":1}`)})
	require.NoError(t, s.PutAttachment("doc1", "a.png", "image/png", make([]byte, 100)))
	require.NoError(t, s.PutAttachment("doc1", "b.txt", "text/plain", []byte("01234567890123456789")))

	doc, err := s.Get(context.Background(), "doc1")
	require.NoError(t, err)
	require.Len(t, doc.Attachments, 2)
	assert.Equal(t, "a.png", doc.Attachments[0].Name)
	assert.Equal(t, int64(20), doc.Attachments[1].Length)

	// Mutating the returned copy leaves the store alone.
	doc.Attachments[0].Name = "changed"
	again, err := s.Get(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, "a.png", again.Attachments[0].Name)

	rc, err := s.GetAttachment(context.Background(), "doc1", "b.txt")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "01234567890123456789", string(body))

	_, err = s.GetAttachment(context.Background(), "doc1", "c.bin")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Error(t, s.PutAttachment("missing", "x", "", nil))
}

func TestClosedStoreFails(t *testing.T) {
	s := seed(t)
	require.NoError(t, s.Close())
	_, err := s.Get(context.Background(), "i1")
	assert.Error(t, err)
	_, err = s.QueryView(context.Background(), view, store.ViewQuery{})
	assert.Error(t, err)
}

func TestLoadFixture(t *testing.T) {
	s, err := LoadFixture(filepath.Join("testdata", "chronicle.yaml"))
	require.NoError(t, err)
	ctx := context.Background()

	rows, err := s.QueryView(ctx, view, store.ViewQuery{GroupLevel: 1, Reduce: true})
	require.NoError(t, err)
	assert.Equal(t, []hierkey.Key{
		{hierkey.Group{"HospitalA", "P1"}},
		{hierkey.Group{"HospitalB", "P9"}},
	}, keysOf(rows))

	doc, err := s.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"00100010":{"vr":"PN","Value":["Anonymous"]}}`, string(doc.Dataset))
	require.Len(t, doc.Attachments, 2)
	assert.Equal(t, "img.dcm", doc.Attachments[0].Name)
	assert.Equal(t, int64(4), doc.Attachments[0].Length)
	assert.Equal(t, "notes.txt", doc.Attachments[1].Name)

	empty, err := s.Get(ctx, "doc2")
	require.NoError(t, err)
	assert.False(t, empty.HasDataset())
}

func TestLoadFixtureErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
		return p
	}

	_, err := LoadFixture(write("empty.yaml", ""))
	assert.Error(t, err)

	_, err = LoadFixture(write("dup.yaml", "documents:\n  - id: a\n  - id: a\n"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = LoadFixture(write("noid.yaml", "documents:\n  - keys: [[x]]\n"))
	assert.ErrorContains(t, err, "no id")

	_, err = LoadFixture(write("both.yaml",
		"documents:\n  - id: a\n    attachments:\n      - name: f\n        text: hi\n        base64: aGk=\n"))
	assert.ErrorContains(t, err, "both")

	_, err = LoadFixture(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

func TestFromFixtureDefaultsView(t *testing.T) {
	s, err := FromFixture(Fixture{})
	require.NoError(t, err)
	rows, err := s.QueryView(context.Background(), DefaultView, store.ViewQuery{GroupLevel: 1, Reduce: true})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
