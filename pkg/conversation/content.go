package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ContentKind discriminates the Content union. It is persisted alongside the
// message body in the content_kind column.
type ContentKind string

const (
	KindText       ContentKind = "text"
	KindStructured ContentKind = "json"
)

// Content is either free text or a structured JSON document.
type Content struct {
	kind ContentKind
	text string
	doc  json.RawMessage
}

// Text returns text content.
func Text(s string) Content {
	return Content{kind: KindText, text: s}
}

// Structured marshals v into structured content.
func Structured(v any) (Content, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Content{}, fmt.Errorf("encode structured content: %w", err)
	}
	return structuredFromRaw(raw)
}

// StructuredRaw wraps an already encoded JSON document.
func StructuredRaw(raw json.RawMessage) (Content, error) {
	if !json.Valid(raw) {
		return Content{}, errors.New("structured content is not valid JSON")
	}
	return structuredFromRaw(raw)
}

func structuredFromRaw(raw []byte) (Content, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return Content{}, fmt.Errorf("compact structured content: %w", err)
	}
	return Content{kind: KindStructured, doc: json.RawMessage(buf.Bytes())}, nil
}

func (c Content) Kind() ContentKind {
	if c.kind == "" {
		return KindText
	}
	return c.kind
}

func (c Content) IsStructured() bool { return c.kind == KindStructured }

// Raw returns the JSON document of structured content, nil otherwise.
func (c Content) Raw() json.RawMessage {
	if c.kind != KindStructured {
		return nil
	}
	return c.doc
}

// Decode unmarshals structured content into v.
func (c Content) Decode(v any) error {
	if c.kind != KindStructured {
		return errors.New("content is not structured")
	}
	return json.Unmarshal(c.doc, v)
}

// String flattens the content to text; structured content becomes its JSON encoding.
func (c Content) String() string {
	if c.kind == KindStructured {
		return string(c.doc)
	}
	return c.text
}

// IsEmpty reports whether the content carries nothing worth sending.
func (c Content) IsEmpty() bool {
	if c.kind == KindStructured {
		return len(c.doc) == 0 || string(c.doc) == "null"
	}
	return len(bytes.TrimSpace([]byte(c.text))) == 0
}

// MarshalJSON encodes text as a JSON string and structured content verbatim.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.kind == KindStructured {
		return c.doc, nil
	}
	return json.Marshal(c.text)
}

// MarshalYAML renders structured content as the YAML form of its document.
func (c Content) MarshalYAML() (any, error) {
	if c.kind != KindStructured {
		return c.text, nil
	}
	var v any
	if err := json.Unmarshal(c.doc, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// UnmarshalJSON accepts a JSON string as text and any other JSON value as structured content.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = Text(s)
		return nil
	}
	parsed, err := StructuredRaw(trimmed)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// encode returns the column values used to persist the content.
func (c Content) encode() (ContentKind, string) {
	if c.kind == KindStructured {
		return KindStructured, string(c.doc)
	}
	return KindText, c.text
}

// decodeStored rebuilds content from persisted columns. Rows written before
// content_kind existed carry an empty kind and are trial parsed: any JSON value
// is structured, a JSON string is its unquoted text, anything else is text. A json row whose body no longer
// parses is surfaced as text rather than failing the whole read.
func decodeStored(kind ContentKind, body string) Content {
	switch kind {
	case KindText:
		return Text(body)
	case KindStructured:
		if c, err := StructuredRaw(json.RawMessage(body)); err == nil {
			return c
		}
		return Text(body)
	default:
		trimmed := bytes.TrimSpace([]byte(body))
		if len(trimmed) == 0 || !json.Valid(trimmed) {
			return Text(body)
		}
		if trimmed[0] == '"' {
			var s string
			if err := json.Unmarshal(trimmed, &s); err == nil {
				return Text(s)
			}
			return Text(body)
		}
		if c, err := StructuredRaw(trimmed); err == nil {
			return c
		}
		return Text(body)
	}
}
