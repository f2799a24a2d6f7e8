// Package series loads the indicator series the harvester keeps up to date.
package series

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/bccr-indicadores/internal/registryfile"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/bccr"
)

const (
	defaultRequestDelayMs = 500
	maxLookbackDays       = 366
)

// Series is one indicator the harvester polls.
type Series struct {
	ID             string `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	Indicator      string `json:"indicator" yaml:"indicator"`
	DetailLevel    string `json:"detail_level" yaml:"detail_level"`
	LookbackDays   int    `json:"lookback_days" yaml:"lookback_days"`
	RequestDelayMs int    `json:"request_delay_ms" yaml:"request_delay_ms"`
	Enabled        *bool  `json:"enabled" yaml:"enabled"`
}

type registryFile struct {
	Series []Series `json:"series" yaml:"series"`
}

// Registry holds the series loaded from a config file.
type Registry struct {
	mu     sync.RWMutex
	series []Series
	idx    map[string]Series
}

// LoadRegistry loads the series registry from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	var parsed registryFile
	if err := registryfile.Load(path, "series", &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Series) == 0 {
		return nil, errors.New("series file contains no series entries")
	}

	reg := &Registry{
		series: make([]Series, len(parsed.Series)),
		idx:    make(map[string]Series, len(parsed.Series)),
	}
	for i := range parsed.Series {
		s := sanitizeSeries(parsed.Series[i])
		if err := validateSeries(s); err != nil {
			return nil, fmt.Errorf("series[%d]: %w", i, err)
		}
		if _, exists := reg.idx[s.ID]; exists {
			return nil, fmt.Errorf("duplicate series id %q", s.ID)
		}
		reg.series[i] = s
		reg.idx[s.ID] = s
	}

	return reg, nil
}

func sanitizeSeries(s Series) Series {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.Indicator = strings.TrimSpace(s.Indicator)
	s.DetailLevel = strings.ToUpper(strings.TrimSpace(s.DetailLevel))

	if s.Name == "" {
		s.Name = s.ID
	}
	if s.LookbackDays < 0 {
		s.LookbackDays = 0
	}
	if s.RequestDelayMs <= 0 {
		s.RequestDelayMs = defaultRequestDelayMs
	}
	if s.Enabled == nil {
		def := true
		s.Enabled = &def
	}
	return s
}

func validateSeries(s Series) error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Indicator == "" {
		return fmt.Errorf("indicator is required for series %q", s.ID)
	}
	if s.DetailLevel != "" && s.DetailLevel != bccr.DetailSummary && s.DetailLevel != bccr.DetailDetailed {
		return fmt.Errorf("detail_level for series %q must be %q or %q", s.ID, bccr.DetailSummary, bccr.DetailDetailed)
	}
	if s.LookbackDays > maxLookbackDays {
		return fmt.Errorf("lookback_days for series %q exceeds %d", s.ID, maxLookbackDays)
	}
	return nil
}

// ByID returns the series with the given id.
func (r *Registry) ByID(id string) (Series, bool) {
	if r == nil {
		return Series{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Series{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.idx[id]
	return s, ok
}

// All returns every configured series.
func (r *Registry) All() []Series {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Series, len(r.series))
	copy(out, r.series)
	return out
}

// Enabled returns the series that are switched on.
func (r *Registry) Enabled() []Series {
	all := r.All()
	out := make([]Series, 0, len(all))
	for _, s := range all {
		if s.EnabledValue() {
			out = append(out, s)
		}
	}
	return out
}

// EnabledValue returns the enabled flag defaulting to true.
func (s Series) EnabledValue() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// RequestDelay returns the pause taken after querying this series.
func (s Series) RequestDelay() time.Duration {
	if s.RequestDelayMs <= 0 {
		return time.Duration(defaultRequestDelayMs) * time.Millisecond
	}
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}

// Request builds the indicator request covering the lookback window ending at now.
func (s Series) Request(now time.Time) bccr.IndicatorRequest {
	return bccr.IndicatorRequest{
		Indicator:   s.Indicator,
		DateFrom:    bccr.FormatDate(now.AddDate(0, 0, -s.LookbackDays)),
		DateTo:      bccr.FormatDate(now),
		DetailLevel: s.DetailLevel,
	}
}
