// Package kafkax holds the message conventions shared by the outbox relay and the consumers.
package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// Header names set on every event message.
const (
	HeaderEventID     = "event_id"
	HeaderEventType   = "event_type"
	HeaderContentType = "content_type"
)

// EventMeta identifies one event across redeliveries.
type EventMeta struct {
	EventID   string
	EventType string
}

// NewMessage builds an event message. Events are published to the topic named after their
// type and keyed by aggregate so one appointment's events share a partition.
func NewMessage(meta EventMeta, key string, payload []byte) kafka.Message {
	return kafka.Message{
		Topic: meta.EventType,
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(meta.EventID)},
			{Key: HeaderEventType, Value: []byte(meta.EventType)},
			{Key: HeaderContentType, Value: []byte("application/json")},
		},
	}
}

// ExtractEventMeta reads the event headers. The type falls back to the topic; a missing id
// stays empty since the key is shared by every event of an aggregate.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:   HeaderValue(msg.Headers, HeaderEventID),
		EventType: HeaderValue(msg.Headers, HeaderEventType),
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

// HeaderValue returns the last value of key, or "".
func HeaderValue(headers []kafka.Header, key string) string {
	for i := len(headers) - 1; i >= 0; i-- {
		if headers[i].Key == key {
			return string(headers[i].Value)
		}
	}
	return ""
}

// SplitBrokers parses a comma separated broker list, dropping blanks.
func SplitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
