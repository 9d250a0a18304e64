package models

// ParamType is the declared type of a dataset parameter
type ParamType string

const (
	ParamInteger ParamType = "integer"
	ParamString  ParamType = "string"
)

// ParameterDef declares one URL-construction parameter of a dataset
type ParameterDef struct {
	Type          ParamType `json:"type"`
	AllowedValues []string  `json:"allowed_values,omitempty"`
	Example       string    `json:"example,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

// Allows reports whether v is acceptable under AllowedValues. An empty set allows anything.
func (p ParameterDef) Allows(v string) bool {
	if len(p.AllowedValues) == 0 {
		return true
	}
	for _, a := range p.AllowedValues {
		if a == v {
			return true
		}
	}
	return false
}

// DatasetKind selects how a resolved resource is turned into a URL
type DatasetKind string

const (
	// KindAPI datasets are queried through the dataset API with start/end/station query parameters.
	KindAPI DatasetKind = "api"
	// KindFile datasets are static files addressed by subpath and filename.
	KindFile DatasetKind = "file"
)

// DatasetSchema describes one retrievable dataset type
type DatasetSchema struct {
	ID                           string                  `json:"id"`
	Description                  string                  `json:"description"`
	Kind                         DatasetKind             `json:"kind"`
	Type                         string                  `json:"type,omitempty"`
	Mode                         string                  `json:"mode,omitempty"`
	Parameters                   map[string]ParameterDef `json:"parameters"`
	FilenameTemplate             string                  `json:"filename_template"`
	ResourceSubpathPartsTemplate []string                `json:"resource_subpath_parts_template,omitempty"`
	Notes                        string                  `json:"notes,omitempty"`
}

// Resolved is the rendered location of a dataset resource
type Resolved struct {
	DatasetID string   `json:"dataset_id"`
	Subpath   []string `json:"subpath"`
	Filename  string   `json:"filename"`
}
