package schema

import (
	"fmt"

	"geoclim/internal/models"
)

var (
	hourlyStationParams = []string{"tl", "tp", "rf", "rr", "p", "ff", "dd", "so_h", "cglo"}
	dailyStationParams  = []string{"tl_mittel", "tlmax", "tlmin", "rr", "so_h", "sh", "vv_mittel"}
	spartacusParams     = []string{"tn", "tx", "rr", "sa"}
)

var yearParam = models.ParameterDef{Type: models.ParamInteger, Example: "2020"}

// Datasets is the built-in dataset table. It is the only registry in the module.
var Datasets = []models.DatasetSchema{
	{
		ID:          "klima-v2-1h",
		Description: "Hourly station observations (klima v2, historical)",
		Kind:        models.KindAPI,
		Type:        "station",
		Mode:        "historical",
		Parameters: map[string]models.ParameterDef{
			"parameter": {Type: models.ParamString, AllowedValues: hourlyStationParams, Example: "tl", Notes: "tl is air temperature 2m"},
			"year":      yearParam,
		},
		FilenameTemplate: "klima-v2-1h_{parameter}_{year}.csv",
	},
	{
		ID:          "klima-v2-1d",
		Description: "Daily station observations (klima v2, historical)",
		Kind:        models.KindAPI,
		Type:        "station",
		Mode:        "historical",
		Parameters: map[string]models.ParameterDef{
			"parameter": {Type: models.ParamString, AllowedValues: dailyStationParams, Example: "tlmin"},
			"year":      yearParam,
		},
		FilenameTemplate: "klima-v2-1d_{parameter}_{year}.csv",
	},
	{
		ID:          "spartacus-v2-1d-1km",
		Description: "SPARTACUS daily gridded temperature and precipitation, 1km",
		Kind:        models.KindFile,
		Type:        "grid",
		Mode:        "historical",
		Parameters: map[string]models.ParameterDef{
			"parameter": {Type: models.ParamString, AllowedValues: spartacusParams, Example: "tn"},
			"year":      yearParam,
		},
		FilenameTemplate: "SPARTACUS2-DAILY_{parameter|upper}_{year}.nc",
		Notes:            "An older copy of this table listed only tn/tx/rr and assumed a subpath per year; sa and the flat layout follow the current filelisting.",
	},
	{
		ID:          "spartacus-v2-1m-1km",
		Description: "SPARTACUS monthly gridded temperature and precipitation, 1km",
		Kind:        models.KindFile,
		Type:        "grid",
		Mode:        "historical",
		Parameters: map[string]models.ParameterDef{
			"parameter": {Type: models.ParamString, AllowedValues: spartacusParams, Example: "tx"},
			"year":      yearParam,
		},
		FilenameTemplate: "SPARTACUS2-MONTHLY_{parameter|upper}_{year}.nc",
	},
	{
		ID:          "inca-v1-1h-1km",
		Description: "INCA hourly analysis, 1km",
		Kind:        models.KindFile,
		Type:        "grid",
		Mode:        "historical",
		Parameters: map[string]models.ParameterDef{
			"parameter": {Type: models.ParamString, AllowedValues: []string{"t2m", "rr", "gl", "rh2m", "uu", "vv", "p0"}, Example: "t2m"},
			"year":      yearParam,
			"month":     {Type: models.ParamInteger, AllowedValues: months(), Example: "07", Notes: "two digits"},
		},
		FilenameTemplate:             "INCAL_HOURLY_{parameter|upper}_{year}{month}.nc",
		ResourceSubpathPartsTemplate: []string{"{year}"},
	},
}

func months() []string {
	out := make([]string, 12)
	for i := range out {
		out[i] = fmt.Sprintf("%02d", i+1)
	}
	return out
}

// Default returns a registry over Datasets.
func Default() *Registry {
	return MustRegistry(Datasets...)
}
