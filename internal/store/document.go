package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type attachmentStub struct {
	ContentType string `json:"content_type"`
	Length      int64  `json:"length"`
}

// UnmarshalJSON decodes a CouchDB document. The _attachments object is
// walked token by token so attachment order survives decoding.
func (d *Document) UnmarshalJSON(data []byte) error {
	var fields struct {
		ID          string          `json:"_id"`
		Rev         string          `json:"_rev"`
		Dataset     json.RawMessage `json:"dataset"`
		Attachments json.RawMessage `json:"_attachments"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}

	attachments, err := decodeAttachments(fields.Attachments)
	if err != nil {
		return fmt.Errorf("decode document %q: %w", fields.ID, err)
	}

	d.ID = fields.ID
	d.Rev = fields.Rev
	d.Dataset = nil
	if len(fields.Dataset) > 0 && !bytes.Equal(bytes.TrimSpace(fields.Dataset), []byte("null")) {
		d.Dataset = fields.Dataset
	}
	d.Attachments = attachments
	return nil
}

// MarshalJSON encodes the document in CouchDB form.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField := func(name string, value []byte) {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		nameJSON, _ := json.Marshal(name)
		buf.Write(nameJSON)
		buf.WriteByte(':')
		buf.Write(value)
	}

	id, err := json.Marshal(d.ID)
	if err != nil {
		return nil, err
	}
	writeField("_id", id)
	if d.Rev != "" {
		rev, err := json.Marshal(d.Rev)
		if err != nil {
			return nil, err
		}
		writeField("_rev", rev)
	}
	if d.HasDataset() {
		writeField("dataset", d.Dataset)
	}
	if len(d.Attachments) > 0 {
		var att bytes.Buffer
		att.WriteByte('{')
		for i, a := range d.Attachments {
			if i > 0 {
				att.WriteByte(',')
			}
			name, err := json.Marshal(a.Name)
			if err != nil {
				return nil, err
			}
			stub, err := json.Marshal(attachmentStub{ContentType: a.ContentType, Length: a.Length})
			if err != nil {
				return nil, err
			}
			att.Write(name)
			att.WriteByte(':')
			att.Write(stub)
		}
		att.WriteByte('}')
		writeField("_attachments", att.Bytes())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func decodeAttachments(raw json.RawMessage) ([]Attachment, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("_attachments is not an object")
	}

	var out []Attachment
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in _attachments", tok)
		}
		var stub attachmentStub
		if err := dec.Decode(&stub); err != nil {
			return nil, fmt.Errorf("attachment %q: %w", name, err)
		}
		out = append(out, Attachment{Name: name, ContentType: stub.ContentType, Length: stub.Length})
	}
	return out, nil
}
