package geosphere

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"geoclim/internal/models"
	"geoclim/internal/table"
	"geoclim/pkg/logging"
)

const userAgent = "geoclim/1.0"

// Fetch retrieves one resource. With an output path the body is written atomically
// and a complete file already at that path short-circuits to FetchSkipped without
// any request. Without an output path the CSV body is parsed and returned.
// A response with a header and no rows is a success with Rows == 0.
func (c *Client) Fetch(ctx context.Context, req *models.DownloadRequest) (*models.FetchResult, error) {
	s, err := c.registry.Lookup(req.ResourceID)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(s.Type); err != nil {
		return nil, err
	}
	target, err := c.resolveURL(s, req)
	if err != nil {
		return nil, err
	}

	if !req.InMemory() {
		if info, err := os.Stat(req.OutputPath); err == nil && info.Mode().IsRegular() {
			c.recordFetch(s.ID, "skipped")
			c.logger.Debug(ctx, "[FETCH_SKIPPED] Output already complete", logging.Fields{
				"resource_id": s.ID,
				"path":        req.OutputPath,
			})
			return &models.FetchResult{Status: models.FetchSkipped, URL: target, Path: req.OutputPath, Bytes: info.Size()}, nil
		}
		if table.HasStalePart(req.OutputPath) {
			stale := &models.IncompleteDownloadError{Path: req.OutputPath + table.PartSuffix}
			c.logger.Warn(ctx, "[FETCH_STALE_PART] Discarding interrupted download", logging.Fields{
				"resource_id": s.ID,
				"error":       stale.Error(),
			})
			os.Remove(stale.Path)
		}
	}

	start := time.Now()
	var result *models.FetchResult
	err = c.retry(ctx, s.ID, target, func() error {
		var attemptErr error
		if req.InMemory() {
			result, attemptErr = c.fetchTable(ctx, target)
		} else {
			result, attemptErr = c.fetchFile(ctx, target, req)
		}
		return attemptErr
	})
	if c.metrics != nil {
		c.metrics.FetchDuration.WithLabelValues(s.ID).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.recordFetch(s.ID, outcome(err))
		return nil, err
	}

	c.recordFetch(s.ID, "ok")
	if c.metrics != nil && result.Bytes > 0 {
		c.metrics.FetchBytesTotal.Add(float64(result.Bytes))
	}
	c.logger.Info(ctx, "[FETCH_COMPLETE] Resource retrieved", logging.Fields{
		"resource_id": s.ID,
		"status":      result.Status,
		"rows":        result.Rows,
		"bytes":       result.Bytes,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return result, nil
}

func (c *Client) resolveURL(s models.DatasetSchema, req *models.DownloadRequest) (string, error) {
	if s.Kind == models.KindFile {
		res, err := c.registry.Resolve(s.ID, req.Parameters)
		if err != nil {
			return "", err
		}
		return c.FileURL(res), nil
	}

	if len(req.Parameters) > 0 {
		if _, err := c.registry.Resolve(s.ID, req.Parameters); err != nil {
			return "", err
		}
	}
	if len(req.Measurements) == 0 && req.Parameters["parameter"] != "" {
		cp := *req
		cp.Measurements = []string{req.Parameters["parameter"]}
		return c.APIURL(s, &cp), nil
	}
	return c.APIURL(s, req), nil
}

func (c *Client) fetchTable(ctx context.Context, target string) (*models.FetchResult, error) {
	var result *models.FetchResult
	err := c.call(ctx, target, func(body io.Reader) error {
		tbl, err := table.Read(body, target)
		if err != nil {
			return err
		}
		result = &models.FetchResult{
			Status: models.FetchInMemory,
			URL:    target,
			Rows:   tbl.Len(),
			Header: tbl.Header,
			Data:   tbl.Rows,
		}
		return nil
	})
	return result, err
}

func (c *Client) fetchFile(ctx context.Context, target string, req *models.DownloadRequest) (*models.FetchResult, error) {
	var result *models.FetchResult
	err := c.call(ctx, target, func(body io.Reader) error {
		lines := &lineCounter{}
		var written int64
		err := table.WriteAtomic(req.OutputPath, func(w io.Writer) error {
			n, err := io.Copy(io.MultiWriter(w, lines), body)
			written = n
			return err
		})
		if err != nil {
			return err
		}
		result = &models.FetchResult{
			Status: models.FetchSaved,
			URL:    target,
			Path:   req.OutputPath,
			Bytes:  written,
		}
		if req.OutputFormat == "" || req.OutputFormat == "csv" {
			result.Rows = lines.rows()
		}
		return nil
	})
	return result, err
}

// Metadata lists the stations of a station dataset
func (c *Client) Metadata(ctx context.Context, typ, mode, resourceID string) ([]models.Station, error) {
	target := c.MetadataURL(typ, mode, resourceID)

	var stations []models.Station
	err := c.retry(ctx, resourceID, target, func() error {
		return c.call(ctx, target, func(body io.Reader) error {
			var doc struct {
				Stations []models.Station `json:"stations"`
			}
			if err := json.NewDecoder(body).Decode(&doc); err != nil {
				return &models.ParseError{Source: target, Reason: err.Error()}
			}
			valid := doc.Stations[:0]
			for _, st := range doc.Stations {
				if err := st.Validate(); err != nil {
					c.logger.Warn(ctx, "[METADATA_STATION_SKIPPED] Ignoring invalid station record", logging.Fields{
						"resource_id": resourceID,
						"station_id":  string(st.ID),
						"error":       err.Error(),
					})
					continue
				}
				valid = append(valid, st)
			}
			if len(valid) == 0 && len(doc.Stations) > 0 {
				return &models.ParseError{Source: target, Reason: "no valid station records"}
			}
			stations = valid
			return nil
		})
	})
	if err != nil {
		c.recordFetch(resourceID+"/metadata", outcome(err))
		return nil, err
	}
	c.recordFetch(resourceID+"/metadata", "ok")
	return stations, nil
}

// retry runs fn until it succeeds, fails permanently, or maxRetries is exhausted.
func (c *Client) retry(ctx context.Context, resourceID, target string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || ctx.Err() != nil || !isTransient(err) || attempt >= c.maxRetries {
			return err
		}

		delay := time.Duration(attempt+1) * c.retryDelay
		c.logger.Warn(ctx, "[FETCH_RETRY] Transient failure, retrying", logging.Fields{
			"resource_id": resourceID,
			"url":         target,
			"attempt":     attempt + 1,
			"delay_ms":    delay.Milliseconds(),
			"error":       err.Error(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("fetch %s cancelled: %w", target, ctx.Err())
		case <-timer.C:
		}
	}
}

// call performs one GET through the limiter and breaker and hands a 2xx body to handle.
func (c *Client) call(ctx context.Context, target string, handle func(io.Reader) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	run := func() (struct{}, error) {
		return struct{}{}, c.get(ctx, target, handle)
	}
	if c.breaker == nil {
		_, err := run()
		return err
	}

	_, err := c.breaker.Execute(run)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &breakerError{url: target, err: err}
	}
	return err
}

func (c *Client) get(ctx context.Context, target string, handle func(io.Reader) error) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.classify(ctx, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &models.HTTPError{URL: target, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	body := &trackedReader{r: resp.Body}
	if err := handle(body); err != nil {
		if body.err != nil {
			return c.classify(ctx, target, body.err)
		}
		return err
	}
	return nil
}

// classify maps a transport error onto the typed error taxonomy.
func (c *Client) classify(ctx context.Context, target string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("fetch %s cancelled: %w", target, ctx.Err())
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &models.TimeoutError{URL: target, Timeout: c.timeout}
	}
	return &models.NetworkError{URL: target, Err: err}
}

func (c *Client) recordFetch(resourceID, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordFetch(resourceID, outcome)
	}
}

func isTransient(err error) bool {
	return models.IsTransient(err)
}

func outcome(err error) string {
	var (
		httpErr    *models.HTTPError
		timeoutErr *models.TimeoutError
		netErr     *models.NetworkError
		parseErr   *models.ParseError
		brkErr     *breakerError
	)
	switch {
	case errors.As(err, &httpErr):
		return "http_error"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &parseErr):
		return "parse_error"
	case errors.As(err, &brkErr):
		return "rejected"
	default:
		return "error"
	}
}

// breakerError is returned while the circuit is open. It is not retried.
type breakerError struct {
	url string
	err error
}

func (e *breakerError) Error() string {
	return fmt.Sprintf("request to %s rejected: %v", e.url, e.err)
}

func (e *breakerError) Unwrap() error {
	return e.err
}

// trackedReader remembers the first non-EOF read error so body failures can be
// told apart from handler failures.
type trackedReader struct {
	r   io.Reader
	err error
}

func (t *trackedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

// lineCounter counts CSV records in a streamed body
type lineCounter struct {
	lines    int
	last     byte
	anyBytes bool
}

func (l *lineCounter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			l.lines++
		}
	}
	if len(p) > 0 {
		l.last = p[len(p)-1]
		l.anyBytes = true
	}
	return len(p), nil
}

// rows is the number of data records, excluding the header.
func (l *lineCounter) rows() int {
	n := l.lines
	if l.anyBytes && l.last != '\n' {
		n++
	}
	if n <= 1 {
		return 0
	}
	return n - 1
}
