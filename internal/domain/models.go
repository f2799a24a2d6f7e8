package domain

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Domain contains core models and interfaces.

// IndicatorRecord is one observation extracted from a BCCR response block.
// Code is empty when the block carried no internal indicator code.
type IndicatorRecord struct {
	Code  string
	Value float64
	Raw   string
	Date  ObservationDate
}

// Numeric reports whether the raw value parsed as a finite number.
func (r IndicatorRecord) Numeric() bool {
	return !math.IsNaN(r.Value) && !math.IsInf(r.Value, 0)
}

// Exact returns the raw value as a decimal, falling back to Value when Raw is unset.
func (r IndicatorRecord) Exact() (decimal.Decimal, bool) {
	if r.Raw != "" {
		d, err := decimal.NewFromString(r.Raw)
		if err == nil {
			return d, true
		}
	}
	if !r.Numeric() {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(r.Value), true
}

type recordJSON struct {
	Code    string           `json:"indicador,omitempty"`
	Value   *float64         `json:"valor"`
	Numeric bool             `json:"numeric"`
	Raw     string           `json:"raw,omitempty"`
	Date    *ObservationDate `json:"fecha,omitempty"`
}

// MarshalJSON writes a null value plus numeric=false for unparseable values,
// since NaN has no JSON form.
func (r IndicatorRecord) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Code:    r.Code,
		Numeric: r.Numeric(),
		Raw:     r.Raw,
	}
	if out.Numeric {
		v := r.Value
		out.Value = &v
	}
	if r.Date.Valid() {
		d := r.Date
		out.Date = &d
	}
	return json.Marshal(out)
}

// ObservationDate holds the day/month (and year when known) of an observation.
type ObservationDate struct {
	Day   int    `json:"day"`
	Month int    `json:"month"`
	Year  int    `json:"year,omitempty"`
	Raw   string `json:"raw,omitempty"`
}

// Valid reports whether day and month were recovered.
func (d ObservationDate) Valid() bool {
	return d.Day >= 1 && d.Day <= 31 && d.Month >= 1 && d.Month <= 12
}

// String renders the date as DD/MM/YYYY, or DD/MM when the year is unknown.
func (d ObservationDate) String() string {
	if !d.Valid() {
		return d.Raw
	}
	if d.Year > 0 {
		return fmt.Sprintf("%02d/%02d/%04d", d.Day, d.Month, d.Year)
	}
	return fmt.Sprintf("%02d/%02d", d.Day, d.Month)
}
