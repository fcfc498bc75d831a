package command

import (
	"errors"
	"testing"
)

var buildSchema = Schema{Kind: "build-notification", Required: []string{"project", "status"}}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		schema    Schema
		body      string
		wantErr   bool
		wantField map[string]string
	}{
		{
			name:      "build notification",
			schema:    buildSchema,
			body:      `{"project":"api","build":"42","status":"SUCCESS"}`,
			wantField: map[string]string{"project": "api", "build": "42", "status": "SUCCESS"},
		},
		{
			name:      "numeric build kept as text",
			schema:    buildSchema,
			body:      `{"project":"api","build":42,"status":"FAILURE","extra":{"x":1}}`,
			wantField: map[string]string{"project": "api", "build": "42", "status": "FAILURE"},
		},
		{name: "missing status", schema: buildSchema, body: `{"project":"api"}`, wantErr: true},
		{
			name:      "empty strings are present",
			schema:    buildSchema,
			body:      `{"project":"","status":""}`,
			wantField: map[string]string{"project": "", "status": ""},
		},
		{name: "non-string status", schema: buildSchema, body: `{"project":"api","status":1}`, wantErr: true},
		{name: "invalid json", schema: buildSchema, body: `{"project":`, wantErr: true},
		{name: "array body", schema: buildSchema, body: `["api","SUCCESS"]`, wantErr: true},
		{name: "null body", schema: buildSchema, body: `null`, wantErr: true},
		{name: "empty body", schema: buildSchema, body: "", wantErr: true},
		{
			name:      "trigger empty body",
			schema:    Schema{Kind: "raise-hand"},
			body:      "",
			wantField: map[string]string{},
		},
		{
			name:      "trigger ignores garbage",
			schema:    Schema{Kind: "raise-hand"},
			body:      "not json",
			wantField: map[string]string{},
		},
		{
			name:      "trigger keeps object fields",
			schema:    Schema{Kind: "raise-hand"},
			body:      `{"who":"ifttt"}`,
			wantField: map[string]string{"who": "ifttt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Parse(tt.schema, []byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("Parse() error = %v, want ErrMalformedPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if ev.Kind() != tt.schema.Kind {
				t.Errorf("Kind() = %q, want %q", ev.Kind(), tt.schema.Kind)
			}
			if ev.ID() == "" {
				t.Error("ID() is empty")
			}
			got := ev.Fields()
			if len(got) != len(tt.wantField) {
				t.Fatalf("Fields() = %v, want %v", got, tt.wantField)
			}
			for k, v := range tt.wantField {
				if got[k] != v {
					t.Errorf("Fields()[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestEventIsImmutable(t *testing.T) {
	src := map[string]string{"project": "api"}
	ev := NewEvent("build-notification", src)

	src["project"] = "changed"
	ev.Fields()["project"] = "changed"

	if got := ev.Get("project"); got != "api" {
		t.Errorf("Get(project) = %q, want api", got)
	}
}

func TestEventIDsAreUnique(t *testing.T) {
	a := NewEvent("x", nil)
	b := NewEvent("x", nil)
	if a.ID() == b.ID() {
		t.Errorf("two events share ID %q", a.ID())
	}
}
