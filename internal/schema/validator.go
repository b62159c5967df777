// Package schema validates published events against their JSON schemas.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

// ErrUnknownEventType is returned for events without a registered schema.
var ErrUnknownEventType = errors.New("no schema for event type")

// Validator holds one compiled schema per event type.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles the embedded schemas. Each file is named after the event type
// it validates.
func New() (*Validator, error) {
	entries, err := fs.ReadDir(schemaFiles, "schemas")
	if err != nil {
		return nil, fmt.Errorf("schema: read embedded schemas: %w", err)
	}

	c := jsonschema.NewCompiler()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		data, err := schemaFiles.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("schema: read %s: %w", e.Name(), err)
		}
		if err := c.AddResource(schemaURL(e.Name()), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("schema: add %s: %w", e.Name(), err)
		}
		names = append(names, e.Name())
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		s, err := c.Compile(schemaURL(name))
		if err != nil {
			return nil, fmt.Errorf("schema: compile %s: %w", name, err)
		}
		v.schemas[strings.TrimSuffix(name, ".json")] = s
	}
	return v, nil
}

func schemaURL(name string) string {
	return "mem://schemas/" + name
}

// MustNew is like New but panics on error.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks event against the schema of its "eventType" field.
func (v *Validator) Validate(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("schema: marshal event: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("schema: decode event: %w", err)
	}

	obj, _ := doc.(map[string]any)
	eventType, _ := obj["eventType"].(string)
	s, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("schema: %s: %w", eventType, err)
	}
	return nil
}

// EventTypes returns the event types with a registered schema.
func (v *Validator) EventTypes() []string {
	out := make([]string, 0, len(v.schemas))
	for t := range v.schemas {
		out = append(out, t)
	}
	return out
}
