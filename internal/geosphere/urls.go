package geosphere

import (
	"net/url"
	"strings"

	"geoclim/internal/models"
)

// timeLayout is the start/end format accepted by the dataset API
const timeLayout = "2006-01-02T15:04"

// APIURL builds {base}/{version}/{type}/{mode}/{resource_id}?parameters=..&start=..&end=..&station_ids=..&output_format=..
func (c *Client) APIURL(s models.DatasetSchema, req *models.DownloadRequest) string {
	q := url.Values{}
	if len(req.Measurements) > 0 {
		q.Set("parameters", strings.Join(req.Measurements, ","))
	}
	if !req.Start.IsZero() {
		q.Set("start", req.Start.UTC().Format(timeLayout))
	}
	if !req.End.IsZero() {
		q.Set("end", req.End.UTC().Format(timeLayout))
	}
	if len(req.StationIDs) > 0 {
		q.Set("station_ids", strings.Join(req.StationIDs, ","))
	}
	format := req.OutputFormat
	if format == "" {
		format = "csv"
	}
	q.Set("output_format", format)

	return c.endpoint(s.Type, s.Mode, s.ID) + "?" + q.Encode()
}

// FileURL builds {file_base}/{resource_id}/filelisting/{subpath...}/{filename}
func (c *Client) FileURL(res *models.Resolved) string {
	parts := []string{c.fileBaseURL, url.PathEscape(res.DatasetID), "filelisting"}
	for _, p := range res.Subpath {
		parts = append(parts, url.PathEscape(p))
	}
	parts = append(parts, url.PathEscape(res.Filename))
	return strings.Join(parts, "/")
}

// MetadataURL builds {base}/{version}/{type}/{mode}/{resource_id}/metadata
func (c *Client) MetadataURL(typ, mode, resourceID string) string {
	return c.endpoint(typ, mode, resourceID) + "/metadata"
}

func (c *Client) endpoint(typ, mode, resourceID string) string {
	return strings.Join([]string{
		c.baseURL,
		url.PathEscape(c.version),
		url.PathEscape(typ),
		url.PathEscape(mode),
		url.PathEscape(resourceID),
	}, "/")
}
