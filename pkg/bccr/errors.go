package bccr

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrTransportUnavailable is returned when no HTTP transport has been provided.
var ErrTransportUnavailable = errors.New("bccr: http transport not available")

// StatusError reports a non-200 answer from the service or the relay.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bccr: upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("bccr: upstream returned status %d: %s", e.StatusCode, e.Message)
}

const maxSummaryLen = 512

// errorSummary condenses an error body (usually an IIS/ASP.NET HTML page) to one line.
func errorSummary(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}

	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		if title := collapse(doc.Find("title").First().Text()); title != "" {
			return truncate(title)
		}
		if text := collapse(doc.Find("body").Text()); text != "" {
			return truncate(text)
		}
	}
	return truncate(collapse(string(body)))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string) string {
	if len(s) > maxSummaryLen {
		return s[:maxSummaryLen] + "..."
	}
	return s
}
