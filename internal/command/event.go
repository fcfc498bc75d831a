// Package command turns inbound webhook payloads into immutable command events.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ErrMalformedPayload is returned when a payload is not a JSON object or a
// required field is missing, empty or not a string.
var ErrMalformedPayload = errors.New("malformed payload")

// Schema describes the payload a command kind accepts.
type Schema struct {
	Kind     string
	Required []string
}

// Event is a single inbound command. It is never modified after Parse.
type Event struct {
	id         string
	kind       string
	fields     map[string]string
	receivedAt time.Time
}

// NewEvent creates an event with a fresh ID. The fields map is copied.
func NewEvent(kind string, fields map[string]string) Event {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Event{
		id:         uuid.New().String(),
		kind:       kind,
		fields:     cp,
		receivedAt: time.Now(),
	}
}

func (e Event) ID() string            { return e.id }
func (e Event) Kind() string          { return e.kind }
func (e Event) ReceivedAt() time.Time { return e.receivedAt }

// Field returns a payload field.
func (e Event) Field(name string) (string, bool) {
	v, ok := e.fields[name]
	return v, ok
}

// Get returns a payload field or "" when absent.
func (e Event) Get(name string) string {
	return e.fields[name]
}

// Fields returns a copy of all payload fields.
func (e Event) Fields() map[string]string {
	cp := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		cp[k] = v
	}
	return cp
}

// Parse validates body against the schema and builds an Event.
//
// Kinds without required fields are plain triggers: their body is optional
// and anything that is not a JSON object is ignored. Scalar values other than
// strings are kept in their JSON text form; nested values are dropped.
func Parse(schema Schema, body []byte) (Event, error) {
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) == 0 {
		if len(schema.Required) > 0 {
			return Event{}, fmt.Errorf("%s: empty body: %w", schema.Kind, ErrMalformedPayload)
		}
		return NewEvent(schema.Kind, nil), nil
	}

	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil || raw == nil {
		if len(schema.Required) == 0 {
			return NewEvent(schema.Kind, nil), nil
		}
		if err == nil {
			err = errors.New("not an object")
		}
		return Event{}, fmt.Errorf("%s: %v: %w", schema.Kind, err, ErrMalformedPayload)
	}

	for _, name := range schema.Required {
		v, ok := raw[name]
		if !ok {
			return Event{}, fmt.Errorf("%s: missing field %q: %w", schema.Kind, name, ErrMalformedPayload)
		}
		if _, ok := v.(string); !ok {
			return Event{}, fmt.Errorf("%s: field %q must be a string: %w", schema.Kind, name, ErrMalformedPayload)
		}
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case float64:
			fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			fields[k] = strconv.FormatBool(val)
		}
	}

	return NewEvent(schema.Kind, fields), nil
}
