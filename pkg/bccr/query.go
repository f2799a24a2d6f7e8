package bccr

import (
	"net/url"
	"sort"
	"strings"
)

// Query parameter names of ObtenerIndicadoresEconomicos.
const (
	ParamIndicator   = "Indicador"
	ParamDateFrom    = "FechaInicio"
	ParamDateTo      = "FechaFinal"
	ParamName        = "Nombre"
	ParamDetailLevel = "SubNiveles"
	ParamToken       = "Token"
	ParamEmail       = "CorreoElectronico"
)

var paramOrder = []string{
	ParamIndicator,
	ParamDateFrom,
	ParamDateTo,
	ParamName,
	ParamDetailLevel,
	ParamToken,
	ParamEmail,
}

// SubNiveles flag values.
const (
	DetailSummary  = "N"
	DetailDetailed = "S"
)

// IndicatorRequest holds the logical parameters of one indicator query.
// Dates are DD/MM/YYYY and are passed through untouched.
type IndicatorRequest struct {
	Indicator      string
	DateFrom       string
	DateTo         string
	SubscriberName string
	DetailLevel    string
	Token          string
	Email          string
}

// Defaults fill the optional identity fields of a request.
type Defaults struct {
	SubscriberName string
	DetailLevel    string
	Token          string
	Email          string
}

// Param is a single query parameter.
type Param struct {
	Name  string
	Value string
}

// Query is an ordered parameter set.
type Query []Param

// BuildQuery maps req onto the service parameters, applying defaults to empty
// optional fields. SubNiveles is upper-cased; nothing else is validated.
func BuildQuery(req IndicatorRequest, defaults Defaults) Query {
	level := strings.ToUpper(strings.TrimSpace(orDefault(orDefault(req.DetailLevel, defaults.DetailLevel), DetailSummary)))

	return Query{
		{Name: ParamIndicator, Value: req.Indicator},
		{Name: ParamDateFrom, Value: req.DateFrom},
		{Name: ParamDateTo, Value: req.DateTo},
		{Name: ParamName, Value: orDefault(req.SubscriberName, defaults.SubscriberName)},
		{Name: ParamDetailLevel, Value: level},
		{Name: ParamToken, Value: orDefault(req.Token, defaults.Token)},
		{Name: ParamEmail, Value: orDefault(req.Email, defaults.Email)},
	}
}

// QueryFromValues orders inbound values: known parameters first, the rest by name.
func QueryFromValues(values url.Values) Query {
	out := make(Query, 0, len(values))
	seen := make(map[string]bool, len(paramOrder))
	for _, name := range paramOrder {
		seen[name] = true
		for _, v := range values[name] {
			out = append(out, Param{Name: name, Value: v})
		}
	}

	extra := make([]string, 0)
	for name := range values {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		for _, v := range values[name] {
			out = append(out, Param{Name: name, Value: v})
		}
	}
	return out
}

// Get returns the first value for name.
func (q Query) Get(name string) string {
	for _, p := range q {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

// Values converts the query to url.Values.
func (q Query) Values() url.Values {
	v := make(url.Values, len(q))
	for _, p := range q {
		v.Add(p.Name, p.Value)
	}
	return v
}

// Encode renders the query string keeping parameter order.
func (q Query) Encode() string {
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// Redacted returns a copy with the subscription token masked, for logging.
func (q Query) Redacted() Query {
	out := make(Query, len(q))
	copy(out, q)
	for i := range out {
		if out[i].Name == ParamToken && out[i].Value != "" {
			out[i].Value = "***"
		}
	}
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
