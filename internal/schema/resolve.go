package schema

import (
	"sort"
	"strconv"
	"strings"

	"geoclim/internal/models"
)

type placeholder struct {
	raw       string
	name      string
	transform string
}

// parsePlaceholders scans "{name}" and "{name|transform}" tokens in tpl.
func parsePlaceholders(dataset, tpl string) ([]placeholder, error) {
	var out []placeholder
	rest := tpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, &models.TemplateRenderError{Dataset: dataset, Template: tpl, Placeholder: rest[open+1:], Reason: "unterminated placeholder"}
		}
		raw := rest[open : open+end+1]
		body := raw[1 : len(raw)-1]
		name, transform, _ := strings.Cut(body, "|")
		name = strings.TrimSpace(name)
		transform = strings.TrimSpace(transform)
		if name == "" {
			return nil, &models.TemplateRenderError{Dataset: dataset, Template: tpl, Placeholder: body, Reason: "empty placeholder"}
		}
		if _, ok := transforms[transform]; !ok {
			return nil, &models.TemplateRenderError{Dataset: dataset, Template: tpl, Placeholder: body, Reason: "unknown transform " + strconv.Quote(transform)}
		}
		out = append(out, placeholder{raw: raw, name: name, transform: transform})
		rest = rest[open+end+1:]
	}
	return out, nil
}

var transforms = map[string]func(string) string{
	"":      func(s string) string { return s },
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// Render substitutes placeholders in tpl with values.
func Render(dataset, tpl string, values map[string]string) (string, error) {
	placeholders, err := parsePlaceholders(dataset, tpl)
	if err != nil {
		return "", err
	}
	out := tpl
	for _, p := range placeholders {
		v, ok := values[p.name]
		if !ok {
			return "", &models.TemplateRenderError{Dataset: dataset, Template: tpl, Placeholder: p.name, Reason: "no value supplied"}
		}
		out = strings.Replace(out, p.raw, transforms[p.transform](v), 1)
	}
	return out, nil
}

// Validate checks values against the schema's parameter declarations.
func Validate(s models.DatasetSchema, values map[string]string) error {
	names := make([]string, 0, len(s.Parameters))
	for name := range s.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := s.Parameters[name]
		v, ok := values[name]
		if !ok || strings.TrimSpace(v) == "" {
			return &models.InvalidParameterError{Dataset: s.ID, Parameter: name, Reason: "required parameter missing", Allowed: def.AllowedValues}
		}
		if def.Type == models.ParamInteger {
			if _, err := strconv.Atoi(v); err != nil {
				return &models.InvalidParameterError{Dataset: s.ID, Parameter: name, Value: v, Reason: "not an integer"}
			}
		}
		if !def.Allows(v) {
			return &models.InvalidParameterError{Dataset: s.ID, Parameter: name, Value: v, Reason: "value not allowed", Allowed: def.AllowedValues}
		}
	}

	for name, v := range values {
		if _, ok := s.Parameters[name]; !ok {
			return &models.InvalidParameterError{Dataset: s.ID, Parameter: name, Value: v, Reason: "unknown parameter"}
		}
	}
	return nil
}

// Resolve validates values for the dataset and renders its subpath and filename.
func (r *Registry) Resolve(datasetID string, values map[string]string) (*models.Resolved, error) {
	s, err := r.Lookup(datasetID)
	if err != nil {
		return nil, err
	}
	if err := Validate(s, values); err != nil {
		return nil, err
	}

	res := &models.Resolved{DatasetID: s.ID, Subpath: []string{}}
	for _, tpl := range s.ResourceSubpathPartsTemplate {
		part, err := Render(s.ID, tpl, values)
		if err != nil {
			return nil, err
		}
		res.Subpath = append(res.Subpath, part)
	}
	res.Filename, err = Render(s.ID, s.FilenameTemplate, values)
	if err != nil {
		return nil, err
	}
	return res, nil
}
