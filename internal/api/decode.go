package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tejusbharadwaj/urbanobservatory/internal/models"
)

// Wire shapes of the v0.1 API. Only the fields the client relies on are
// declared; anything else the service sends is ignored.

type valueRecord struct {
	Time     time.Time `json:"time" validate:"required"`
	Value    *float64  `json:"value" validate:"required"`
	Duration float64   `json:"duration"`
}

type unitRecord struct {
	Name string `json:"name"`
}

type timeseriesRecord struct {
	TimeseriesID string       `json:"timeseriesId" validate:"required"`
	Unit         *unitRecord  `json:"unit"`
	Latest       *valueRecord `json:"latest" validate:"-"`
}

type historicEnvelope struct {
	Timeseries *timeseriesRecord `json:"timeseries"`
	Historic   *struct {
		Values []valueRecord `json:"values" validate:"dive"`
	} `json:"historic" validate:"required"`
}

type feedRecord struct {
	FeedID     string                 `json:"feedId" validate:"required"`
	Metric     string                 `json:"metric"`
	Meta       map[string]interface{} `json:"meta"`
	Timeseries []timeseriesRecord     `json:"timeseries" validate:"dive"`
}

type entityRecord struct {
	EntityID string                 `json:"entityId" validate:"required"`
	Name     string                 `json:"name"`
	Meta     map[string]interface{} `json:"meta"`
	Feed     []feedRecord           `json:"feed" validate:"dive"`
}

type entityPageRecord struct {
	Pagination *models.Pagination `json:"pagination" validate:"required"`
	Items      []entityRecord     `json:"items" validate:"required,dive"`
}

var schema = validator.New()

// decodeInto unmarshals body into v and checks it against its validate tags.
// Both failures are reported as ErrParse.
func decodeInto(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := schema.Struct(v); err != nil {
		return fmt.Errorf("%w: unexpected response schema: %v", ErrParse, err)
	}
	return nil
}

// decodeHistoric accepts either the service envelope or a bare array of
// value records.
func decodeHistoric(body []byte) (*timeseriesRecord, []valueRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil, fmt.Errorf("%w: empty response body", ErrParse)
	}

	if trimmed[0] == '[' {
		var values []valueRecord
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		wrapped := struct {
			Values []valueRecord `validate:"dive"`
		}{values}
		if err := schema.Struct(wrapped); err != nil {
			return nil, nil, fmt.Errorf("%w: unexpected response schema: %v", ErrParse, err)
		}
		return nil, values, nil
	}

	var env historicEnvelope
	if err := decodeInto(trimmed, &env); err != nil {
		return nil, nil, err
	}
	return env.Timeseries, env.Historic.Values, nil
}

func (r valueRecord) toReading() models.Reading {
	return models.Reading{
		Time:     r.Time,
		Value:    *r.Value,
		Duration: r.Duration,
	}
}

func (r timeseriesRecord) toModel() models.Timeseries {
	ts := models.Timeseries{TimeseriesID: r.TimeseriesID}
	if r.Unit != nil {
		ts.Unit = r.Unit.Name
	}
	if r.Latest != nil && r.Latest.Value != nil {
		latest := r.Latest.toReading()
		ts.Latest = &latest
	}
	return ts
}

func (r feedRecord) toModel() models.Feed {
	f := models.Feed{
		FeedID: r.FeedID,
		Metric: r.Metric,
		Meta:   r.Meta,
	}
	for _, ts := range r.Timeseries {
		f.Timeseries = append(f.Timeseries, ts.toModel())
	}
	return f
}

func (r entityRecord) toModel() models.Entity {
	e := models.Entity{
		EntityID: r.EntityID,
		Name:     r.Name,
		Meta:     r.Meta,
	}
	for _, f := range r.Feed {
		e.Feeds = append(e.Feeds, f.toModel())
	}
	return e
}
