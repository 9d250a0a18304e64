package handlers

import (
	"net/http"

	"github.com/goccy/go-json"
)

func queryParam(name, description, typ string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      map[string]string{"type": typ},
	}
}

func pathParam(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "path",
		"description": description,
		"required":    true,
		"schema":      map[string]string{"type": "string"},
	}
}

func jsonResponse(description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": schema},
		},
	}
}

func listOf(item map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"data":  map[string]interface{}{"type": "array", "items": item},
			"total": map[string]string{"type": "integer"},
		},
	}
}

var errorResponse = jsonResponse("Error", map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"error":   map[string]string{"type": "string"},
		"message": map[string]string{"type": "string"},
		"code":    map[string]string{"type": "integer"},
	},
})

var (
	datasetSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":                              map[string]string{"type": "string"},
			"description":                     map[string]string{"type": "string"},
			"kind":                            map[string]interface{}{"type": "string", "enum": []string{"api", "file"}},
			"type":                            map[string]string{"type": "string"},
			"mode":                            map[string]string{"type": "string"},
			"parameters":                      map[string]string{"type": "object"},
			"filename_template":               map[string]string{"type": "string"},
			"resource_subpath_parts_template": map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
			"notes":                           map[string]string{"type": "string"},
		},
	}
	stationSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":         map[string]string{"type": "string"},
			"name":       map[string]string{"type": "string"},
			"state":      map[string]string{"type": "string"},
			"lat":        map[string]string{"type": "number"},
			"lon":        map[string]string{"type": "number"},
			"altitude":   map[string]string{"type": "number"},
			"valid_from": map[string]string{"type": "string", "format": "date"},
			"valid_to":   map[string]interface{}{"type": "string", "format": "date", "nullable": true},
			"is_active":  map[string]string{"type": "boolean"},
		},
	}
	unitSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"resource_id":  map[string]string{"type": "string"},
			"measurements": map[string]string{"type": "string"},
			"year":         map[string]string{"type": "integer"},
			"start_month":  map[string]string{"type": "integer"},
			"end_month":    map[string]string{"type": "integer"},
			"chunk_key":    map[string]string{"type": "string"},
			"station_ids":  map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
			"state":        map[string]string{"type": "string"},
			"error":        map[string]string{"type": "string"},
			"files":        map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
			"attempts":     map[string]string{"type": "integer"},
			"updated_at":   map[string]string{"type": "string", "format": "date-time"},
		},
	}
	runSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":          map[string]string{"type": "string", "format": "uuid"},
			"resource_id": map[string]string{"type": "string"},
			"started_at":  map[string]string{"type": "string", "format": "date-time"},
			"finished_at": map[string]interface{}{"type": "string", "format": "date-time", "nullable": true},
			"saved":       map[string]string{"type": "integer"},
			"skipped":     map[string]string{"type": "integer"},
			"failed":      map[string]string{"type": "integer"},
			"status":      map[string]string{"type": "string"},
		},
	}
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the geoclim status API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "geoclim API",
			"description": "Dataset catalog, station directory and download manifest for the GeoSphere Austria climate pipeline",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/datasets": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":   "List datasets",
					"responses": map[string]interface{}{"200": jsonResponse("Registered datasets", listOf(datasetSchema))},
				},
			},
			"/api/datasets/{id}": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":    "Get dataset",
					"parameters": []map[string]interface{}{pathParam("id", "Dataset id, e.g. klima-v2-1h")},
					"responses": map[string]interface{}{
						"200": jsonResponse("Dataset schema", datasetSchema),
						"404": errorResponse,
					},
				},
			},
			"/api/datasets/{id}/resolve": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Resolve a download location",
					"description": "Every query parameter is a dataset parameter, e.g. ?parameter=tn&year=2020",
					"parameters":  []map[string]interface{}{pathParam("id", "Dataset id")},
					"responses": map[string]interface{}{
						"200": jsonResponse("Resolved location", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"dataset_id": map[string]string{"type": "string"},
								"subpath":    map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
								"filename":   map[string]string{"type": "string"},
							},
						}),
						"400": errorResponse,
						"404": errorResponse,
					},
				},
			},
			"/api/stations": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "List stations",
					"parameters": []map[string]interface{}{
						queryParam("ids", "Comma-separated station ids", "string"),
						queryParam("active", "Only stations still reporting", "boolean"),
						queryParam("capitals", "Only state-capital reference stations", "boolean"),
						queryParam("year", "Only stations whose record covers the year", "integer"),
						queryParam("refresh", "Bypass the station cache", "boolean"),
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Stations", listOf(stationSchema)),
						"502": errorResponse,
					},
				},
			},
			"/api/manifest/units": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "List batch units",
					"parameters": []map[string]interface{}{
						queryParam("resource_id", "Dataset id", "string"),
						queryParam("measurements", "Measurement set, e.g. tl or rr+tl", "string"),
						queryParam("year", "Year", "integer"),
						queryParam("state", "pending, downloading, saved, skipped_exists or failed", "string"),
						queryParam("station_id", "Units covering the station", "string"),
						queryParam("limit", "Records per page (default: 100)", "integer"),
						queryParam("offset", "Records to skip", "integer"),
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Units", listOf(unitSchema)),
						"400": errorResponse,
					},
				},
			},
			"/api/manifest/runs": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":    "List batch runs, newest first",
					"parameters": []map[string]interface{}{queryParam("limit", "Number of runs (default: 50)", "integer")},
					"responses":  map[string]interface{}{"200": jsonResponse("Runs", listOf(runSchema))},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Health check",
					"responses": map[string]interface{}{
						"200": jsonResponse("Healthy", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"status":   map[string]string{"type": "string"},
								"manifest": map[string]string{"type": "string"},
							},
						}),
						"503": map[string]string{"description": "Manifest store unavailable"},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Prometheus metrics",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
