// Package sink delivers polled readings to their destination.
package sink

import (
	"context"

	"github.com/tejusbharadwaj/urbanobservatory/internal/models"
)

// Sink receives the new readings of one entity per call.
type Sink interface {
	Write(ctx context.Context, entityID string, readings []models.Reading) error
}

// Func adapts a plain function to Sink.
type Func func(ctx context.Context, entityID string, readings []models.Reading) error

func (f Func) Write(ctx context.Context, entityID string, readings []models.Reading) error {
	return f(ctx, entityID, readings)
}
