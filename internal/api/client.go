// Package api is the Urban Observatory REST client.
//
// Every operation issues exactly one GET request, never retries, and returns
// errors that match one of ErrInvalidQuery, ErrNetwork, ErrRemote or ErrParse.
//
// Example usage:
//
//	client, err := api.NewClient(api.Config{}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := client.GetTimeseries(ctx, "bd0cc46d-ba2e-4924-a66e-b032d7ca33a5",
//	    time.Date(2018, 1, 20, 0, 0, 0, 0, time.UTC),
//	    time.Date(2018, 1, 20, 1, 0, 0, 0, time.UTC))
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tejusbharadwaj/urbanobservatory/internal/models"
)

const (
	DefaultHost       = "https://api.usb.urbanobservatory.ac.uk"
	DefaultAPIVersion = "0.1"
	DefaultTimeout    = 30 * time.Second
	DefaultUserAgent  = "urbanobservatory-go"

	DefaultMaxBodySize = 32 << 20

	// timeFormat is what the service expects for startTime/endTime.
	timeFormat = "2006-01-02T15:04:05Z"
)

// REST method names understood by the client.
const (
	MethodEntities   = "entities"
	MethodFeed       = "feed"
	MethodTimeseries = "timeseries"
	MethodSummary    = "summary"
)

// Config holds everything the client needs. The zero value talks to the
// public v0.1 API with default timeouts and no throttling.
type Config struct {
	// BaseURL is the API root including the version segment. When empty it is
	// derived from DefaultHost and Version.
	BaseURL string
	Version string

	Timeout        time.Duration
	RateLimit      float64 // requests per second, 0 disables throttling
	RateLimitBurst int
	UserAgent      string

	// MaxBodySize caps the size of a successful response body in bytes.
	// Zero means DefaultMaxBodySize.
	MaxBodySize int64

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// DefaultBaseURL returns the API root for the given version.
func DefaultBaseURL(version string) string {
	if version == "" {
		version = DefaultAPIVersion
	}
	return fmt.Sprintf("%s/api/v%s/", DefaultHost, version)
}

// Client talks to the Urban Observatory API. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
	maxBody   int64
	limiter   *rate.Limiter
	validator *RequestValidator
	logger    *logrus.Logger

	mu      sync.RWMutex
	methods map[string]string
}

// NewClient validates cfg and builds a client. A nil logger discards output.
func NewClient(cfg Config, logger *logrus.Logger) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL(cfg.Version)
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", raw)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &Client{
		base:      base,
		http:      httpClient,
		userAgent: userAgent,
		maxBody:   maxBody,
		limiter:   newLimiter(cfg.RateLimit, cfg.RateLimitBurst),
		validator: NewRequestValidator(),
		logger:    logger,
		methods: map[string]string{
			MethodEntities:   "sensors/entity",
			MethodFeed:       "sensors/feed",
			MethodTimeseries: "sensors/timeseries",
			MethodSummary:    "sensors/summary",
		},
	}, nil
}

// SetMethod adds or overrides the path used for a REST method.
func (c *Client) SetMethod(method, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods[method] = strings.Trim(path, "/")
}

// URL builds the request URL for method, appending each path component with
// a trailing slash and then the encoded params.
func (c *Client) URL(method string, components []string, params url.Values) (string, error) {
	c.mu.RLock()
	path, ok := c.methods[method]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: unknown method %q", ErrInvalidQuery, method)
	}

	var b strings.Builder
	b.WriteString(c.base.EscapedPath())
	b.WriteString(path)
	b.WriteString("/")
	for _, p := range components {
		b.WriteString(url.PathEscape(p))
		b.WriteString("/")
	}

	u := *c.base
	u.RawPath = b.String()
	unescaped, err := url.PathUnescape(u.RawPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	u.Path = unescaped

	// Query values on BaseURL (e.g. an API key) are sent with every request;
	// params win on conflict.
	query := c.base.Query()
	for k, v := range params {
		query[k] = v
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// GetTimeseries returns the readings of one timeseries between start and end,
// both inclusive. start must not be after end.
func (c *Client) GetTimeseries(ctx context.Context, entityID string, start, end time.Time) (*models.TimeseriesResult, error) {
	if err := c.validator.Validate(TimeseriesQuery{EntityID: entityID, Start: start, End: end}); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("startTime", start.UTC().Format(timeFormat))
	params.Set("endTime", end.UTC().Format(timeFormat))

	u, err := c.URL(MethodTimeseries, []string{entityID, "historic"}, params)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, MethodTimeseries, u)
	if err != nil {
		return nil, err
	}

	meta, values, err := decodeHistoric(body)
	if err != nil {
		return nil, err
	}

	res := newResult(meta, start, end, len(values))
	for _, v := range values {
		if v.Time.Before(start) || v.Time.After(end) {
			c.logger.WithFields(logrus.Fields{
				"entity": entityID,
				"time":   v.Time,
			}).Debug("Dropping reading outside requested window")
			continue
		}
		res.Readings = append(res.Readings, v.toReading())
	}
	return res, nil
}

// GetRecentTimeseries returns the service's default historic window, the
// last 24 hours.
func (c *Client) GetRecentTimeseries(ctx context.Context, entityID string) (*models.TimeseriesResult, error) {
	if err := c.validator.ValidateID("entity", entityID); err != nil {
		return nil, err
	}

	u, err := c.URL(MethodTimeseries, []string{entityID, "historic"}, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, MethodTimeseries, u)
	if err != nil {
		return nil, err
	}

	meta, values, err := decodeHistoric(body)
	if err != nil {
		return nil, err
	}

	res := newResult(meta, time.Time{}, time.Time{}, len(values))
	for _, v := range values {
		res.Readings = append(res.Readings, v.toReading())
	}
	return res, nil
}

// GetTimeseriesInfo returns the metadata of a timeseries.
func (c *Client) GetTimeseriesInfo(ctx context.Context, entityID string) (*models.Timeseries, error) {
	if err := c.validator.ValidateID("entity", entityID); err != nil {
		return nil, err
	}

	u, err := c.URL(MethodTimeseries, []string{entityID}, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, MethodTimeseries, u)
	if err != nil {
		return nil, err
	}

	var rec timeseriesRecord
	if err := decodeInto(body, &rec); err != nil {
		return nil, err
	}
	ts := rec.toModel()
	return &ts, nil
}

// GetEntities returns one page of the entity listing.
func (c *Client) GetEntities(ctx context.Context, page int) (*models.EntityPage, error) {
	if err := c.validator.ValidatePage(page); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("page", fmt.Sprint(page))
	u, err := c.URL(MethodEntities, nil, params)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, MethodEntities, u)
	if err != nil {
		return nil, err
	}

	var rec entityPageRecord
	if err := decodeInto(body, &rec); err != nil {
		return nil, err
	}

	result := &models.EntityPage{
		Pagination: *rec.Pagination,
		Items:      make([]models.Entity, 0, len(rec.Items)),
	}
	for _, e := range rec.Items {
		result.Items = append(result.Items, e.toModel())
	}
	return result, nil
}

// GetEntity returns a single entity by id.
func (c *Client) GetEntity(ctx context.Context, entityID string) (*models.Entity, error) {
	if err := c.validator.ValidateID("entity", entityID); err != nil {
		return nil, err
	}

	u, err := c.URL(MethodEntities, []string{entityID}, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, MethodEntities, u)
	if err != nil {
		return nil, err
	}

	var rec entityRecord
	if err := decodeInto(body, &rec); err != nil {
		return nil, err
	}
	e := rec.toModel()
	return &e, nil
}

// GetFeed returns a single feed by id.
func (c *Client) GetFeed(ctx context.Context, feedID string) (*models.Feed, error) {
	if err := c.validator.ValidateID("feed", feedID); err != nil {
		return nil, err
	}

	u, err := c.URL(MethodFeed, []string{feedID}, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, MethodFeed, u)
	if err != nil {
		return nil, err
	}

	var rec feedRecord
	if err := decodeInto(body, &rec); err != nil {
		return nil, err
	}
	f := rec.toModel()
	return &f, nil
}

// GetSummary returns every entity together with its feeds.
func (c *Client) GetSummary(ctx context.Context) ([]models.Entity, error) {
	u, err := c.URL(MethodSummary, nil, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, MethodSummary, u)
	if err != nil {
		return nil, err
	}

	var rec struct {
		Entities []entityRecord `validate:"required,dive"`
	}
	if err := json.Unmarshal(body, &rec.Entities); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := schema.Struct(rec); err != nil {
		return nil, fmt.Errorf("%w: unexpected response schema: %v", ErrParse, err)
	}

	entities := make([]models.Entity, 0, len(rec.Entities))
	for _, e := range rec.Entities {
		entities = append(entities, e.toModel())
	}
	return entities, nil
}

// get performs one GET and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, method, u string) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	id := requestID(ctx)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, id)

	log := c.logger.WithFields(logrus.Fields{
		"request_id": id,
		"url":        u,
	})

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observe(method, "network_error", start)
		log.WithError(err).Debug("Request failed")
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		observe(method, "remote_error", start)
		log.WithField("status", resp.StatusCode).Debug("Request rejected")
		return nil, &RemoteError{StatusCode: resp.StatusCode, URL: u, Body: body}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		observe(method, "network_error", start)
		return nil, fmt.Errorf("%w: reading body: %v", ErrNetwork, err)
	}
	if int64(len(body)) > c.maxBody {
		observe(method, "parse_error", start)
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", ErrParse, c.maxBody)
	}

	observe(method, "ok", start)
	log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("Request completed")
	return body, nil
}

func newResult(meta *timeseriesRecord, start, end time.Time, capacity int) *models.TimeseriesResult {
	res := &models.TimeseriesResult{
		Start:    start,
		End:      end,
		Readings: make([]models.Reading, 0, capacity),
	}
	if meta != nil {
		ts := meta.toModel()
		res.TimeseriesID = ts.TimeseriesID
		res.Unit = ts.Unit
	}
	return res
}
