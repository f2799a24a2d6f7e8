package publishers

// Logger is the logging surface publishers need.
type Logger interface {
	DebugObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

type noopLogger struct{}

func (noopLogger) DebugObj(string, string, interface{}) {}
func (noopLogger) ErrorObj(string, string, interface{}) {}

func ensureLogger(log Logger) Logger {
	if log == nil {
		return noopLogger{}
	}
	return log
}

// logDelivery records the outcome of one publish attempt.
func logDelivery(log Logger, typ, id string, evt Event, messageID string, err error) {
	fields := map[string]any{
		"publisher_id":   id,
		"publisher_type": typ,
		"event_id":       evt.ID,
		"series_id":      evt.SeriesID,
	}
	if messageID != "" {
		fields["message_id"] = messageID
	}
	if err != nil {
		fields["error"] = err.Error()
		log.ErrorObj("publisher send failed", "publisher_error", fields)
		return
	}
	log.DebugObj("publisher delivered event", "publisher_delivery", fields)
}
