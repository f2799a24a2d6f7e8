package harvest

import (
	"context"

	"github.com/Adda-Baaj/bccr-indicadores/internal/domain"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/bccr"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/publishers"
)

// IndicatorFetcher retrieves the records for one indicator request.
type IndicatorFetcher interface {
	Fetch(ctx context.Context, req bccr.IndicatorRequest) ([]domain.IndicatorRecord, error)
}

// EventPublisher publishes records downstream and reports how many sinks accepted them.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Deduper remembers which records were already published.
type Deduper interface {
	SeenRecord(key string) (bool, error)
	MarkRecord(key string) error
}
