package publishers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adda-Baaj/bccr-indicadores/internal/domain"
	"github.com/google/uuid"
)

// Event represents the payload published downstream.
type Event struct {
	ID          string                 `json:"id"`
	SeriesID    string                 `json:"series_id"`
	SeriesName  string                 `json:"series_name"`
	Record      domain.IndicatorRecord `json:"record"`
	ValueExact  string                 `json:"value_exact,omitempty"`
	CollectedAt time.Time              `json:"collected_at"`
}

// NewEvent constructs an Event for the given series + record.
func NewEvent(seriesID, seriesName string, rec domain.IndicatorRecord) Event {
	evt := Event{
		ID:          uuid.NewString(),
		SeriesID:    seriesID,
		SeriesName:  seriesName,
		Record:      rec,
		CollectedAt: time.Now().UTC(),
	}
	if d, ok := rec.Exact(); ok {
		evt.ValueExact = d.String()
	}
	return evt
}

// attributes are attached to queue messages so consumers can filter without decoding.
// Empty values are omitted.
func (e Event) attributes() map[string]string {
	out := make(map[string]string, 2)
	if e.SeriesID != "" {
		out["series_id"] = e.SeriesID
	}
	if e.Record.Code != "" {
		out["indicator"] = e.Record.Code
	}
	return out
}

func (e Event) encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	return payload, nil
}
