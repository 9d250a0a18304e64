package geosphere

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoclim/internal/models"
	"geoclim/internal/table"
	"geoclim/pkg/metrics"
)

func TestLastDayOfMonth(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  string
	}{
		{2024, time.February, "2024-02-29"},
		{2023, time.February, "2023-02-28"},
		{1900, time.February, "1900-02-28"},
		{2000, time.February, "2000-02-29"},
		{2021, time.April, "2021-04-30"},
		{2021, time.December, "2021-12-31"},
		{2021, time.August, "2021-08-31"},
	}
	for _, tt := range tests {
		if got := LastDayOfMonth(tt.year, tt.month).Format("2006-01-02"); got != tt.want {
			t.Errorf("LastDayOfMonth(%d, %s) = %s, want %s", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestPeriod(t *testing.T) {
	start, end, err := Period(2024, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00", start.Format(timeLayout))
	assert.Equal(t, "2024-02-29T23:00", end.Format(timeLayout))

	_, _, err = Period(2024, 8, 6)
	assert.Error(t, err)
	_, _, err = Period(2024, 0, 6)
	assert.Error(t, err)
	_, _, err = Period(2024, 1, 13)
	assert.Error(t, err)
}

func TestAPIURL(t *testing.T) {
	c := NewClient("https://example.test/", WithVersion("v1"))
	s, err := c.registry.Lookup("klima-v2-1h")
	require.NoError(t, err)

	start, end, _ := Period(2020, 6, 8)
	u := c.APIURL(s, &models.DownloadRequest{
		ResourceID:   "klima-v2-1h",
		Measurements: []string{"tl", "rf"},
		Start:        start,
		End:          end,
		StationIDs:   []string{"105", "106"},
	})

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "/v1/station/historical/klima-v2-1h", parsed.Path)
	q := parsed.Query()
	assert.Equal(t, "tl,rf", q.Get("parameters"))
	assert.Equal(t, "2020-06-01T00:00", q.Get("start"))
	assert.Equal(t, "2020-08-31T23:00", q.Get("end"))
	assert.Equal(t, "105,106", q.Get("station_ids"))
	assert.Equal(t, "csv", q.Get("output_format"))
}

func TestFileURL(t *testing.T) {
	c := NewClient("", WithFileBaseURL("https://files.test/resources/"))
	res, err := c.registry.Resolve("inca-v1-1h-1km", map[string]string{"parameter": "t2m", "year": "2021", "month": "07"})
	require.NoError(t, err)
	assert.Equal(t, "https://files.test/resources/inca-v1-1h-1km/filelisting/2021/INCAL_HOURLY_T2M_202107.nc", c.FileURL(res))
}

type upstream struct {
	srv      *httptest.Server
	requests atomic.Int32
}

func newUpstream(t *testing.T, h http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.requests.Add(1)
		h(w, r)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) client(opts ...Option) *Client {
	base := []Option{WithRetries(0, 0), WithMetrics(metrics.NewTestCollector())}
	return NewClient(u.srv.URL, append(base, opts...)...)
}

const hourlyCSV = "time,station,tl\n2020-06-01T00:00+00:00,105,12.1\n2020-06-01T01:00+00:00,105,11.8\n"

func stationRequest(path string) *models.DownloadRequest {
	start, end, _ := Period(2020, 6, 8)
	return &models.DownloadRequest{
		ResourceID:   "klima-v2-1h",
		Measurements: []string{"tl"},
		Start:        start,
		End:          end,
		StationIDs:   []string{"105"},
		OutputPath:   path,
		OutputFormat: "csv",
	}
}

func TestFetch_InMemory(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "105", r.URL.Query().Get("station_ids"))
		fmt.Fprint(w, hourlyCSV)
	})

	res, err := up.client().Fetch(context.Background(), stationRequest(""))
	require.NoError(t, err)
	assert.Equal(t, models.FetchInMemory, res.Status)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, []string{"time", "station", "tl"}, res.Header)
}

func TestFetch_EmptyResponseIsNotAFailure(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "time,station,tl\n")
	})

	res, err := up.client().Fetch(context.Background(), stationRequest(""))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rows)

	path := filepath.Join(t.TempDir(), "empty.csv")
	res, err = up.client().Fetch(context.Background(), stationRequest(path))
	require.NoError(t, err)
	assert.Equal(t, models.FetchSaved, res.Status)
	assert.Equal(t, 0, res.Rows)
}

func TestFetch_FileIsIdempotent(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, hourlyCSV)
	})
	path := filepath.Join(t.TempDir(), "raw", "chunk000.csv")
	c := up.client()

	first, err := c.Fetch(context.Background(), stationRequest(path))
	require.NoError(t, err)
	assert.Equal(t, models.FetchSaved, first.Status)
	assert.Equal(t, 2, first.Rows)
	assert.Equal(t, int64(len(hourlyCSV)), first.Bytes)

	second, err := c.Fetch(context.Background(), stationRequest(path))
	require.NoError(t, err)
	assert.Equal(t, models.FetchSkipped, second.Status)
	assert.Equal(t, int32(1), up.requests.Load(), "second fetch must not hit the network")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, hourlyCSV, string(b))
}

func TestFetch_StalePartIsDiscarded(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, hourlyCSV)
	})
	path := filepath.Join(t.TempDir(), "chunk.csv")
	require.NoError(t, os.WriteFile(path+table.PartSuffix, []byte("time,sta"), 0o644))

	res, err := up.client().Fetch(context.Background(), stationRequest(path))
	require.NoError(t, err)
	assert.Equal(t, models.FetchSaved, res.Status)
	assert.False(t, table.HasStalePart(path))
	assert.Equal(t, int32(1), up.requests.Load())
}

func TestFetch_TruncatedBodyLeavesNoFile(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		fmt.Fprint(w, "time,station,tl\n2020-06-01T00:00")
	})
	path := filepath.Join(t.TempDir(), "chunk.csv")

	_, err := up.client().Fetch(context.Background(), stationRequest(path))
	require.Error(t, err)
	assert.True(t, models.IsTransient(err), "truncated body should be a transient network error, got %v", err)
	assert.False(t, table.Complete(path), "partial body must not become a cache entry")
	assert.False(t, table.HasStalePart(path))
}

func TestFetch_HTTPErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantRequests int32
		transient    bool
	}{
		{"client error is not retried", http.StatusBadRequest, 1, false},
		{"not found is not retried", http.StatusNotFound, 1, false},
		{"server error is retried", http.StatusServiceUnavailable, 3, true},
		{"rate limited is retried", http.StatusTooManyRequests, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream says no", tt.status)
			})

			_, err := up.client(WithRetries(2, time.Millisecond)).Fetch(context.Background(), stationRequest(""))
			var httpErr *models.HTTPError
			require.True(t, errors.As(err, &httpErr), "want HTTPError, got %v", err)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, "upstream says no", httpErr.Body)
			assert.Equal(t, tt.transient, models.IsTransient(err))
			assert.Equal(t, tt.wantRequests, up.requests.Load())
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := up.client(WithTimeout(30*time.Millisecond)).Fetch(context.Background(), stationRequest(""))
	var te *models.TimeoutError
	require.True(t, errors.As(err, &te), "want TimeoutError, got %v", err)
	assert.Equal(t, 30*time.Millisecond, te.Timeout)
}

func TestFetch_InvalidParameterFailsBeforeRequest(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, hourlyCSV)
	})
	req := stationRequest("")
	req.Parameters = map[string]string{"parameter": "nope", "year": "2020"}

	_, err := up.client().Fetch(context.Background(), req)
	var ip *models.InvalidParameterError
	require.True(t, errors.As(err, &ip), "want InvalidParameterError, got %v", err)
	assert.Equal(t, int32(0), up.requests.Load())
}

func TestFetch_StationDatasetNeedsStations(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {})
	req := stationRequest("")
	req.StationIDs = nil

	_, err := up.client().Fetch(context.Background(), req)
	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
	assert.Equal(t, int32(0), up.requests.Load())
}

func TestFetch_BreakerOpens(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := up.client(WithBreaker(2, time.Minute))

	for i := 0; i < 2; i++ {
		_, err := c.Fetch(context.Background(), stationRequest(""))
		var httpErr *models.HTTPError
		require.True(t, errors.As(err, &httpErr))
	}

	_, err := c.Fetch(context.Background(), stationRequest(""))
	var be *breakerError
	require.True(t, errors.As(err, &be), "want open circuit, got %v", err)
	assert.False(t, models.IsTransient(err))
	assert.Equal(t, int32(2), up.requests.Load(), "open circuit must not reach upstream")
}

func TestFetch_CancelledContext(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := up.client(WithRetries(5, time.Second)).Fetch(ctx, stationRequest(""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestFetch_FileDataset(t *testing.T) {
	var gotPath string
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte{0x89, 'H', 'D', 'F'})
	})
	c := NewClient(up.srv.URL, WithFileBaseURL(up.srv.URL+"/resources"), WithRetries(0, 0))
	path := filepath.Join(t.TempDir(), "SPARTACUS2-DAILY_TN_1961.nc")

	res, err := c.Fetch(context.Background(), &models.DownloadRequest{
		ResourceID:   "spartacus-v2-1d-1km",
		Parameters:   map[string]string{"parameter": "tn", "year": "1961"},
		OutputPath:   path,
		OutputFormat: "netcdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "/resources/spartacus-v2-1d-1km/filelisting/SPARTACUS2-DAILY_TN_1961.nc", gotPath)
	assert.Equal(t, int64(4), res.Bytes)
	assert.Equal(t, 0, res.Rows)
}

func TestMetadata(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/station/historical/klima-v2-1h/metadata", r.URL.Path)
		fmt.Fprint(w, `{"title":"klima","stations":[
			{"id":105,"name":"WIEN/HOHE WARTE","state":"Wien","lat":48.2486,"lon":16.3564,"altitude":198,
			 "valid_from":"1872-01-01T00:00+00:00","valid_to":null,"is_active":true,"has_sunshine":true,"has_global_radiation":true},
			{"id":"11035","name":"GRAZ","lat":47.08,"lon":15.45,"altitude":366,"valid_from":"1990-01-01","valid_to":"2020-12-31","is_active":false}
		]}`)
	})

	stations, err := up.client().Metadata(context.Background(), "station", "historical", "klima-v2-1h")
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, models.StationID("105"), stations[0].ID)
	assert.Nil(t, stations[0].ValidTo)
	assert.Equal(t, "1872-01-01", stations[0].ValidFrom.String())
	assert.Equal(t, models.StationID("11035"), stations[1].ID)
	assert.False(t, stations[1].IsActive)
}

func TestMetadata_SkipsInvalidStation(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"stations":[
			{"id":1,"name":"INVERTED","valid_from":"2020-01-01","valid_to":"2010-01-01"},
			{"id":105,"name":"WIEN/HOHE WARTE","valid_from":"1872-01-01","valid_to":null,"is_active":true}
		]}`)
	})

	stations, err := up.client().Metadata(context.Background(), "station", "historical", "klima-v2-1h")
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, models.StationID("105"), stations[0].ID)
}

func TestMetadata_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>"},
		{"only invalid stations", `{"stations":[{"id":1,"name":"X","valid_from":"2020-01-01","valid_to":"2010-01-01"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			})
			_, err := up.client().Metadata(context.Background(), "station", "historical", "klima-v2-1h")
			var pe *models.ParseError
			assert.True(t, errors.As(err, &pe), "want ParseError, got %v", err)
		})
	}
}
