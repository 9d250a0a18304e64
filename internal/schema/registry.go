// Package schema holds the dataset registry and renders resource locations from parameter values.
package schema

import (
	"fmt"
	"sort"

	"geoclim/internal/models"
)

// Registry is an immutable lookup table of dataset schemas
type Registry struct {
	schemas map[string]models.DatasetSchema
	ids     []string
}

// NewRegistry builds a registry and checks that every template placeholder names a
// declared parameter and that every declared parameter appears in the filename template.
func NewRegistry(schemas ...models.DatasetSchema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]models.DatasetSchema, len(schemas))}
	for _, s := range schemas {
		if s.ID == "" {
			return nil, &models.ValidationError{Field: "id", Message: "dataset schema without id"}
		}
		if _, dup := r.schemas[s.ID]; dup {
			return nil, &models.ValidationError{Field: "id", Value: s.ID, Message: fmt.Sprintf("duplicate dataset schema %s", s.ID)}
		}
		if err := checkSchema(s); err != nil {
			return nil, err
		}
		r.schemas[s.ID] = s
		r.ids = append(r.ids, s.ID)
	}
	sort.Strings(r.ids)
	return r, nil
}

// MustRegistry is NewRegistry for static tables; it panics on an invalid schema.
func MustRegistry(schemas ...models.DatasetSchema) *Registry {
	r, err := NewRegistry(schemas...)
	if err != nil {
		panic(err)
	}
	return r
}

func checkSchema(s models.DatasetSchema) error {
	templates := append([]string{s.FilenameTemplate}, s.ResourceSubpathPartsTemplate...)
	for _, tpl := range templates {
		placeholders, err := parsePlaceholders(s.ID, tpl)
		if err != nil {
			return err
		}
		for _, p := range placeholders {
			if _, ok := s.Parameters[p.name]; !ok {
				return &models.TemplateRenderError{Dataset: s.ID, Template: tpl, Placeholder: p.name, Reason: "not a declared parameter"}
			}
		}
	}

	inFilename := map[string]bool{}
	placeholders, _ := parsePlaceholders(s.ID, s.FilenameTemplate)
	for _, p := range placeholders {
		inFilename[p.name] = true
	}
	for name := range s.Parameters {
		if !inFilename[name] {
			return &models.TemplateRenderError{Dataset: s.ID, Template: s.FilenameTemplate, Placeholder: name, Reason: "declared parameter missing from filename"}
		}
	}
	return nil
}

// Lookup returns the schema for id
func (r *Registry) Lookup(id string) (models.DatasetSchema, error) {
	s, ok := r.schemas[id]
	if !ok {
		return models.DatasetSchema{}, &models.NotFoundError{Resource: "dataset", ID: id}
	}
	return s, nil
}

// List returns all schemas ordered by id
func (r *Registry) List() []models.DatasetSchema {
	out := make([]models.DatasetSchema, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.schemas[id])
	}
	return out
}

// IDs returns the registered dataset ids in order
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}
