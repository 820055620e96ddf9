package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	headerEventID   = "event_id"
	headerEventType = "event_type"
	headerTenantID  = "tenant_id"
)

// EventMeta identifies a published domain event. Consumers dedupe on EventID
// and route on EventType.
type EventMeta struct {
	EventID   string
	EventType string
	TenantID  string
}

// ExtractEventMeta reads the event headers, falling back to the message key
// and topic for producers that do not set them.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:   HeaderValue(msg.Headers, headerEventID),
		EventType: HeaderValue(msg.Headers, headerEventType),
		TenantID:  HeaderValue(msg.Headers, headerTenantID),
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

// Headers encodes m. The tenant header is omitted when empty.
func (m EventMeta) Headers() []kafka.Header {
	out := make([]kafka.Header, 0, 3)
	out = append(out,
		kafka.Header{Key: headerEventID, Value: []byte(m.EventID)},
		kafka.Header{Key: headerEventType, Value: []byte(m.EventType)},
	)
	if m.TenantID != "" {
		out = append(out, kafka.Header{Key: headerTenantID, Value: []byte(m.TenantID)})
	}
	return out
}

// HeaderValue returns the first header named key, or "".
func HeaderValue(headers []kafka.Header, key string) string {
	for i := range headers {
		if headers[i].Key == key {
			return string(headers[i].Value)
		}
	}
	return ""
}

// SplitBrokers parses a comma separated broker list, dropping blanks.
func SplitBrokers(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' })
	brokers := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			brokers = append(brokers, f)
		}
	}
	return brokers
}
