// internal/loki/record.go

package loki

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// Unknown is used for orgId/botId when the caller does not supply one.
const Unknown = "unknown"

// now is swapped in tests for a fixed clock.
var now = time.Now

// Invocation is a single log call as seen by the record builder.
type Invocation struct {
	Level   string
	Message interface{}
	OrgID   string
	BotID   string
	Context string
	Trace   string // empty means no trace
}

// Entry is the per-record body, JSON-encoded into the second element of a
// Loki value tuple.
type Entry struct {
	Level   string  `json:"level"`
	Message string  `json:"message"`
	Context string  `json:"context"`
	Trace   *string `json:"trace"`
}

// Labels identify the stream a record belongs to.
type Labels struct {
	Level string `json:"level"`
	Env   string `json:"env"`
}

// Metadata is attached per entry (Loki structured metadata), not per stream.
type Metadata struct {
	OrgID string `json:"orgId"`
	BotID string `json:"botId"`
}

// Record is everything needed for one push. It is built per invocation and
// never reused.
type Record struct {
	Timestamp time.Time
	Entry     Entry
	Labels    Labels
	Metadata  Metadata
}

// BuildRecord turns an invocation into a Record. The level is not validated.
// The only failure is a message that cannot be JSON-encoded, reported as a
// DeliveryError so callers contain it like any other delivery failure.
func BuildRecord(in Invocation, env string) (Record, error) {
	msg, err := encodeMessage(in.Message)
	if err != nil {
		return Record{}, &DeliveryError{Op: OpEncode, Err: fmt.Errorf("message: %w", err)}
	}

	var trace *string
	if in.Trace != "" {
		t := in.Trace
		trace = &t
	}

	return Record{
		Timestamp: now(),
		Entry: Entry{
			Level:   in.Level,
			Message: msg,
			Context: in.Context,
			Trace:   trace,
		},
		Labels: Labels{
			Level: in.Level,
			Env:   env,
		},
		Metadata: Metadata{
			OrgID: orDefault(in.OrgID, Unknown),
			BotID: orDefault(in.BotID, Unknown),
		},
	}, nil
}

// TimestampString renders the timestamp as decimal unix nanoseconds.
func (r Record) TimestampString() string {
	return strconv.FormatInt(r.Timestamp.UnixNano(), 10)
}

// encodeMessage stores structured values as their JSON text and scalars as
// the JSON string of their plain text form, so the entry's message field is
// always JSON text: {"a":1} or "hello".
func encodeMessage(message interface{}) (string, error) {
	var data []byte
	var err error
	if IsStructured(message) {
		data, err = marshalJSON(message)
	} else {
		data, err = marshalJSON(scalarText(message))
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// IsStructured reports whether message is encoded as a JSON document (maps,
// structs, slices, arrays, json.RawMessage) rather than as text.
func IsStructured(message interface{}) bool {
	switch message.(type) {
	case nil, error, fmt.Stringer, []byte:
		return false
	case json.RawMessage:
		return true
	}

	v := reflect.ValueOf(message)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array:
		return true
	}
	return false
}

func scalarText(message interface{}) string {
	switch m := message.(type) {
	case string:
		return m
	case []byte:
		return string(m)
	}
	// fmt handles error and Stringer, including nil receivers.
	return fmt.Sprint(message)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
