package api

import (
	"errors"
	"testing"
	"time"
)

func TestRequestValidator_Validate(t *testing.T) {
	validator := NewRequestValidator()
	now := time.Now()

	tests := []struct {
		name       string
		query      TimeseriesQuery
		wantErr    bool
		errMessage string
	}{
		{
			name:    "valid request",
			query:   TimeseriesQuery{EntityID: testEntity, Start: now.Add(-time.Hour), End: now},
			wantErr: false,
		},
		{
			name:    "equal bounds",
			query:   TimeseriesQuery{EntityID: testEntity, Start: now, End: now},
			wantErr: false,
		},
		{
			name:       "missing entity",
			query:      TimeseriesQuery{Start: now.Add(-time.Hour), End: now},
			wantErr:    true,
			errMessage: "invalid query: missing entity id",
		},
		{
			name:       "missing start",
			query:      TimeseriesQuery{EntityID: testEntity, End: now},
			wantErr:    true,
			errMessage: "invalid query: missing timestamp",
		},
		{
			name:       "missing both timestamps",
			query:      TimeseriesQuery{EntityID: testEntity},
			wantErr:    true,
			errMessage: "invalid query: missing timestamp",
		},
		{
			name:       "start after end",
			query:      TimeseriesQuery{EntityID: testEntity, Start: now, End: now.Add(-time.Nanosecond)},
			wantErr:    true,
			errMessage: "invalid query: start time must not be after end time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tt.query)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				return
			}
			if err.Error() != tt.errMessage {
				t.Errorf("Validate() error message = %v, want %v", err.Error(), tt.errMessage)
			}
			if !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("Validate() error = %v, want ErrInvalidQuery", err)
			}
		})
	}
}

func TestRequestValidator_ValidateID(t *testing.T) {
	validator := NewRequestValidator()

	if err := validator.ValidateID("feed", "f163a36e"); err != nil {
		t.Errorf("ValidateID() unexpected error = %v", err)
	}
	err := validator.ValidateID("feed", "")
	if err == nil || err.Error() != "invalid query: missing feed id" {
		t.Errorf("ValidateID() error = %v, want missing feed id", err)
	}
}
