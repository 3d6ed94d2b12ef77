package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	influx "github.com/influxdata/influxdb/client/v2"

	"github.com/tejusbharadwaj/urbanobservatory/internal/models"
)

// Output formats understood by Writer.
const (
	FormatJSON = "json"
	FormatText = "text"
	FormatLine = "line"
)

// Writer prints readings to an io.Writer, one line per reading.
type Writer struct {
	mu          sync.Mutex
	out         io.Writer
	format      string
	measurement string
}

// NewWriter returns a Writer for format. measurement is only used by the
// line protocol format.
func NewWriter(out io.Writer, format, measurement string) (*Writer, error) {
	switch format {
	case FormatJSON, FormatText, FormatLine:
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	if measurement == "" {
		measurement = "reading"
	}
	return &Writer{out: out, format: format, measurement: measurement}, nil
}

type jsonLine struct {
	Entity string `json:"entity"`
	models.Reading
}

func (w *Writer) Write(_ context.Context, entityID string, readings []models.Reading) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, r := range readings {
		var line string
		switch w.format {
		case FormatJSON:
			b, err := json.Marshal(jsonLine{Entity: entityID, Reading: r})
			if err != nil {
				return err
			}
			line = string(b)
		case FormatText:
			line = fmt.Sprintf("%s\t%s\t%g", entityID, r.Time.UTC().Format(time.RFC3339), r.Value)
		case FormatLine:
			p, err := Point(w.measurement, entityID, r)
			if err != nil {
				return err
			}
			line = p.PrecisionString("ns")
		}
		if _, err := fmt.Fprintln(w.out, line); err != nil {
			return err
		}
	}
	return nil
}

// Point converts a reading into an InfluxDB point tagged with its entity.
func Point(measurement, entityID string, r models.Reading) (*influx.Point, error) {
	fields := map[string]interface{}{
		"value": r.Value,
	}
	if r.Duration != 0 {
		fields["duration"] = r.Duration
	}
	return influx.NewPoint(measurement, map[string]string{"entity": entityID}, fields, r.Time)
}
