package bccr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Adda-Baaj/bccr-indicadores/internal/domain"
)

// DateLayout is the DD/MM/YYYY form the service expects for FechaInicio/FechaFinal.
const DateLayout = "02/01/2006"

var (
	isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T`)
	slashDate     = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{4}))?`)
)

// Today returns the current local date as DD/MM/YYYY.
func Today() string {
	return FormatDate(time.Now())
}

// FormatDate renders t as DD/MM/YYYY in t's own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a DD/MM/YYYY string in the local time zone.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// ParseObservationDate reads a DES_FECHA value. ISO timestamps keep their own
// offset, so 2025-10-15T00:00:00-06:00 is the 15th regardless of the host zone.
// Anything else is read as DD/MM[/YYYY]. Unrecognised input keeps only Raw.
func ParseObservationDate(raw string) domain.ObservationDate {
	raw = strings.TrimSpace(raw)
	out := domain.ObservationDate{Raw: raw}

	if isoDatePrefix.MatchString(raw) {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ts, err = time.Parse("2006-01-02", raw[:10])
			if err != nil {
				return out
			}
		}
		out.Day, out.Month, out.Year = ts.Day(), int(ts.Month()), ts.Year()
		return out
	}

	m := slashDate.FindStringSubmatch(raw)
	if m == nil {
		return out
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	parsed := domain.ObservationDate{Day: day, Month: month, Raw: raw}
	if m[3] != "" {
		parsed.Year, _ = strconv.Atoi(m[3])
	}
	if !parsed.Valid() {
		return out
	}
	return parsed
}
