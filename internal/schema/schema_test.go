package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoclim/internal/models"
)

func TestDefaultRegistry_Lookup(t *testing.T) {
	r := Default()

	s, err := r.Lookup("klima-v2-1h")
	require.NoError(t, err)
	assert.Equal(t, models.KindAPI, s.Kind)
	assert.Equal(t, "station", s.Type)

	_, err = r.Lookup("no-such-dataset")
	var nf *models.NotFoundError
	assert.True(t, errors.As(err, &nf), "want NotFoundError, got %v", err)

	ids := r.IDs()
	assert.Len(t, r.List(), len(Datasets))
	assert.True(t, sortedStrings(ids), "ids should be sorted: %v", ids)
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestResolve(t *testing.T) {
	r := Default()

	tests := []struct {
		name         string
		dataset      string
		values       map[string]string
		wantFilename string
		wantSubpath  []string
	}{
		{
			name:         "api dataset",
			dataset:      "klima-v2-1h",
			values:       map[string]string{"parameter": "tl", "year": "2020"},
			wantFilename: "klima-v2-1h_tl_2020.csv",
			wantSubpath:  []string{},
		},
		{
			name:         "upper transform",
			dataset:      "spartacus-v2-1d-1km",
			values:       map[string]string{"parameter": "tn", "year": "1961"},
			wantFilename: "SPARTACUS2-DAILY_TN_1961.nc",
			wantSubpath:  []string{},
		},
		{
			name:         "subpath template",
			dataset:      "inca-v1-1h-1km",
			values:       map[string]string{"parameter": "t2m", "year": "2021", "month": "07"},
			wantFilename: "INCAL_HOURLY_T2M_202107.nc",
			wantSubpath:  []string{"2021"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(tt.dataset, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFilename, res.Filename)
			assert.Equal(t, tt.wantSubpath, res.Subpath)
			assert.Equal(t, tt.dataset, res.DatasetID)
		})
	}
}

func TestResolve_InvalidParameters(t *testing.T) {
	r := Default()

	tests := []struct {
		name      string
		dataset   string
		values    map[string]string
		parameter string
	}{
		{"missing", "klima-v2-1h", map[string]string{"parameter": "tl"}, "year"},
		{"not integer", "klima-v2-1h", map[string]string{"parameter": "tl", "year": "20x0"}, "year"},
		{"not allowed", "spartacus-v2-1d-1km", map[string]string{"parameter": "tl", "year": "2000"}, "parameter"},
		{"unknown", "klima-v2-1h", map[string]string{"parameter": "tl", "year": "2000", "colour": "red"}, "colour"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.dataset, tt.values)
			var ip *models.InvalidParameterError
			require.True(t, errors.As(err, &ip), "want InvalidParameterError, got %v", err)
			assert.Equal(t, tt.parameter, ip.Parameter)
		})
	}
}

func TestResolve_NotAllowedNamesAllowedSet(t *testing.T) {
	_, err := Default().Resolve("spartacus-v2-1m-1km", map[string]string{"parameter": "xx", "year": "2000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowed: tn, tx, rr, sa")
}

// Every allowed value of every dataset resolves to a filename that embeds each parameter value.
func TestResolve_FilenameEmbedsEveryParameter(t *testing.T) {
	r := Default()
	for _, s := range r.List() {
		for _, values := range validCombinations(s) {
			res, err := r.Resolve(s.ID, values)
			require.NoError(t, err, "%s %v", s.ID, values)
			for name, v := range values {
				if !strings.Contains(res.Filename, v) && !strings.Contains(res.Filename, strings.ToUpper(v)) {
					t.Errorf("%s: filename %q does not contain %s=%q", s.ID, res.Filename, name, v)
				}
			}
		}
	}
}

func validCombinations(s models.DatasetSchema) []map[string]string {
	combos := []map[string]string{{}}
	for name, def := range s.Parameters {
		choices := def.AllowedValues
		if len(choices) == 0 {
			choices = []string{def.Example}
		}
		var next []map[string]string
		for _, c := range combos {
			for _, v := range choices {
				m := make(map[string]string, len(c)+1)
				for k, cv := range c {
					m[k] = cv
				}
				m[name] = v
				next = append(next, m)
			}
		}
		combos = next
	}
	return combos
}

func TestNewRegistry_RejectsBrokenSchemas(t *testing.T) {
	tests := []struct {
		name   string
		schema models.DatasetSchema
	}{
		{
			name: "undeclared placeholder",
			schema: models.DatasetSchema{
				ID:               "a",
				Parameters:       map[string]models.ParameterDef{"year": yearParam},
				FilenameTemplate: "a_{year}_{station}.csv",
			},
		},
		{
			name: "parameter missing from filename",
			schema: models.DatasetSchema{
				ID:               "b",
				Parameters:       map[string]models.ParameterDef{"year": yearParam, "parameter": {Type: models.ParamString}},
				FilenameTemplate: "b_{year}.csv",
			},
		},
		{
			name: "unknown transform",
			schema: models.DatasetSchema{
				ID:               "c",
				Parameters:       map[string]models.ParameterDef{"year": yearParam},
				FilenameTemplate: "c_{year|reverse}.csv",
			},
		},
		{
			name: "unterminated",
			schema: models.DatasetSchema{
				ID:               "d",
				Parameters:       map[string]models.ParameterDef{"year": yearParam},
				FilenameTemplate: "d_{year.csv",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.schema)
			var tr *models.TemplateRenderError
			assert.True(t, errors.As(err, &tr), "want TemplateRenderError, got %v", err)
		})
	}

	_, err := NewRegistry(Datasets[0], Datasets[0])
	assert.Error(t, err, "duplicate ids must be rejected")
}

func TestRender_MissingValue(t *testing.T) {
	_, err := Render("x", "{a}_{b}", map[string]string{"a": "1"})
	var tr *models.TemplateRenderError
	require.True(t, errors.As(err, &tr))
	assert.Equal(t, "b", tr.Placeholder)
}
