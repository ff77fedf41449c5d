package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentKeepsAttachmentOrder(t *testing.T) {
	raw := `{
		"_id": "doc1",
		"_rev": "3-abc",
		"dataset": {"00100010": {"vr": "PN", "Value": ["Anon"]}},
		"_attachments": {
			"z.dcm": {"content_type": "application/dicom", "length": 500, "stub": true},
			"a.png": {"content_type": "image/png", "length": 100, "stub": true}
		}
	}`

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	assert.Equal(t, "doc1", doc.ID)
	assert.Equal(t, "3-abc", doc.Rev)
	assert.True(t, doc.HasDataset())
	require.Len(t, doc.Attachments, 2)
	assert.Equal(t, "z.dcm", doc.Attachments[0].Name)
	assert.Equal(t, int64(500), doc.Attachments[0].Length)
	assert.Equal(t, "a.png", doc.Attachments[1].Name)
	assert.Equal(t, "image/png", doc.Attachments[1].ContentType)
}

func TestDocumentNullDataset(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"d","dataset":null,"_attachments":null}`), &doc))
	assert.False(t, doc.HasDataset())
	assert.Empty(t, doc.Attachments)
}

func TestDocumentRejectsBadAttachments(t *testing.T) {
	var doc Document
	err := json.Unmarshal([]byte(`{"_id":"d","_attachments":[1,2]}`), &doc)
	assert.Error(t, err)
}

func TestDocumentMarshalRoundTrip(t *testing.T) {
	doc := Document{
		ID:      "doc1",
		Dataset: json.RawMessage(`{"k":1}`),
		Attachments: []Attachment{
			{Name: "b.txt", ContentType: "text/plain", Length: 20},
			{Name: "a.png", ContentType: "image/png", Length: 100},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var back Document
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, doc.Attachments, back.Attachments)
	assert.JSONEq(t, `{"k":1}`, string(back.Dataset))
}

func TestDocumentAttachmentLookup(t *testing.T) {
	doc := &Document{Attachments: []Attachment{{Name: "img.dcm", Length: 500}}}
	a, ok := doc.Attachment("img.dcm")
	assert.True(t, ok)
	assert.Equal(t, int64(500), a.Length)
	_, ok = doc.Attachment("missing")
	assert.False(t, ok)
}

func TestStaleValid(t *testing.T) {
	assert.True(t, StaleOK.Valid())
	assert.True(t, StaleNone.Valid())
	assert.True(t, StaleUpdateAfter.Valid())
	assert.False(t, Stale("sometimes").Valid())
}
