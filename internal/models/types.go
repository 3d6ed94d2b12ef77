package models

import "time"

// Reading is a single timestamped value reported by the Urban Observatory.
type Reading struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
	// Duration is the sampling period in seconds reported by the service, if any.
	Duration float64 `json:"duration,omitempty"`
}

// TimeseriesResult is the normalized answer to a historic timeseries query.
// Readings keep the order the service returned them in.
type TimeseriesResult struct {
	TimeseriesID string    `json:"timeseriesId,omitempty"`
	Unit         string    `json:"unit,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Readings     []Reading `json:"readings"`
}

// Timeseries describes a timeseries without its historic values.
type Timeseries struct {
	TimeseriesID string   `json:"timeseriesId"`
	Unit         string   `json:"unit,omitempty"`
	Latest       *Reading `json:"latest,omitempty"`
}

// Feed is a single metric published by an entity.
type Feed struct {
	FeedID     string                 `json:"feedId"`
	Metric     string                 `json:"metric"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
	Timeseries []Timeseries           `json:"timeseries,omitempty"`
}

// Entity is a sensor or data source, e.g. a room or a weather station.
type Entity struct {
	EntityID string                 `json:"entityId"`
	Name     string                 `json:"name,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
	Feeds    []Feed                 `json:"feed,omitempty"`
}

// Pagination is the paging block returned with entity listings.
type Pagination struct {
	PageRecords int `json:"pageRecords"`
	PageCurrent int `json:"pageCurrent"`
	PageCount   int `json:"pageCount"`
	PageSize    int `json:"pageSize"`
}

// EntityPage is one page of the entity listing.
type EntityPage struct {
	Pagination Pagination `json:"pagination"`
	Items      []Entity   `json:"items"`
}
