package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/bccr-indicadores/internal/domain"
	"github.com/Adda-Baaj/bccr-indicadores/internal/logger"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/publishers"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/series"
)

// Service runs harvest passes over the configured series.
type Service struct {
	fetcher   IndicatorFetcher
	publisher EventPublisher
	deduper   Deduper
	log       logger.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) bool
}

// NewService wires a harvest service. A nil deduper publishes every record.
func NewService(fetcher IndicatorFetcher, publisher EventPublisher, log logger.Logger, deduper Deduper) *Service {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Service{
		fetcher:   fetcher,
		publisher: publisher,
		deduper:   deduper,
		log:       log,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Run executes a harvest pass for all given series.
func (s *Service) Run(ctx context.Context, list []series.Series) error {
	if s == nil || s.fetcher == nil {
		return fmt.Errorf("harvest service is not initialized")
	}
	if len(list) == 0 {
		return fmt.Errorf("no series configured for harvesting")
	}

	errs := s.runAll(ctx, list)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Service) runAll(ctx context.Context, list []series.Series) []error {
	errs := make([]error, 0, len(list))

	for i, sr := range list {
		if ctx.Err() != nil {
			return errs
		}

		if err := s.runSeries(ctx, sr); err != nil {
			if ctx.Err() != nil {
				return errs
			}
			errs = append(errs, err)
			s.log.ErrorObj("series harvest failed", "series_error", map[string]any{
				"series_id": sr.ID,
				"error":     err.Error(),
			})
		}

		if i < len(list)-1 && !s.sleep(ctx, sr.RequestDelay()) {
			return errs
		}
	}
	return errs
}

func (s *Service) runSeries(ctx context.Context, sr series.Series) error {
	req := sr.Request(s.now())
	records, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		return fmt.Errorf("fetch series %s: %w", sr.ID, err)
	}

	fresh := s.filterNew(sr, records)
	published, err := s.publish(ctx, sr, fresh)

	s.log.InfoObj("series harvest completed", "series_result", map[string]any{
		"series_id": sr.ID,
		"indicator": sr.Indicator,
		"from":      req.DateFrom,
		"to":        req.DateTo,
		"fetched":   len(records),
		"new":       len(fresh),
		"published": published,
	})
	return err
}

// filterNew drops records the deduper has already seen. Lookup failures keep the record.
func (s *Service) filterNew(sr series.Series, records []domain.IndicatorRecord) []domain.IndicatorRecord {
	if s.deduper == nil {
		return records
	}

	out := make([]domain.IndicatorRecord, 0, len(records))
	for _, rec := range records {
		seen, err := s.deduper.SeenRecord(RecordKey(sr.ID, rec))
		if err != nil {
			s.log.WarnObj("dedupe lookup failed", "dedupe_error", map[string]any{
				"series_id": sr.ID,
				"error":     err.Error(),
			})
		}
		if seen {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (s *Service) publish(ctx context.Context, sr series.Series, records []domain.IndicatorRecord) (int, error) {
	if s.publisher == nil {
		return 0, nil
	}

	var errs []error
	published := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}

		evt := publishers.NewEvent(sr.ID, sr.Name, rec)
		successes, err := s.publisher.Publish(ctx, evt)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish series %s record %s: %w", sr.ID, rec.Date.String(), err))
		}
		if successes == 0 {
			continue
		}
		published++

		if s.deduper == nil {
			continue
		}
		if err := s.deduper.MarkRecord(RecordKey(sr.ID, rec)); err != nil {
			s.log.WarnObj("dedupe mark failed", "dedupe_error", map[string]any{
				"series_id": sr.ID,
				"error":     err.Error(),
			})
		}
	}
	return published, errors.Join(errs...)
}

// RecordKey identifies a record of a series for deduplication.
func RecordKey(seriesID string, rec domain.IndicatorRecord) string {
	return strings.Join([]string{seriesID, rec.Code, rec.Date.String(), rec.Raw}, "|")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
