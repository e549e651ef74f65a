// Package core defines the alert data model shared by storage, dispatch
// and failure recording.
package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Body field keys. The warehouse convention is upper-case keys inside the
// semi-structured ALERT document, so the Go side keeps the same names.
const (
	FieldAlertID     = "ALERT_ID"
	FieldQueryID     = "QUERY_ID"
	FieldQueryName   = "QUERY_NAME"
	FieldEnvironment = "ENVIRONMENT"
	FieldSources     = "SOURCES"
	FieldActor       = "ACTOR"
	FieldObject      = "OBJECT"
	FieldAction      = "ACTION"
	FieldTitle       = "TITLE"
	FieldEventTime   = "EVENT_TIME"
	FieldAlertTime   = "ALERT_TIME"
	FieldDescription = "DESCRIPTION"
	FieldDetector    = "DETECTOR"
	FieldEventData   = "EVENT_DATA"
	FieldSeverity    = "SEVERITY"
	FieldHandlers    = "HANDLERS"
)

// DefaultHandler is the handler used when an alert names none.
const DefaultHandler = "jira"

// Body is the semi-structured alert document stored in the ALERT column.
// Detection queries attach arbitrary descriptive fields; everything not
// recognized here is carried through dispatch untouched.
type Body map[string]interface{}

// Alert is one row of the results alerts table. Body holds the JSON
// document; the remaining fields are the indexed envelope columns.
type Alert struct {
	AlertTime       time.Time
	EventTime       time.Time
	Ticket          *string
	Suppressed      bool
	SuppressionRule string
	CorrelationID   string
	Counter         uint64
	Body            Body
}

// AlertID returns the document's ALERT_ID, or "" if absent.
func (b Body) AlertID() string {
	return b.stringField(FieldAlertID)
}

// Title returns the document's TITLE, or "" if absent.
func (b Body) Title() string {
	return b.stringField(FieldTitle)
}

// Severity returns the document's SEVERITY, or "" if absent.
func (b Body) Severity() string {
	return b.stringField(FieldSeverity)
}

// Object returns the document's OBJECT, or "" if absent.
func (b Body) Object() string {
	return b.stringField(FieldObject)
}

// Description returns the document's DESCRIPTION, or "" if absent.
func (b Body) Description() string {
	return b.stringField(FieldDescription)
}

// Handlers returns the ordered handler names this alert requests.
// Absent, empty or malformed HANDLERS fields fall back to the built-in
// handler so that a detection query never has to name one explicitly.
func (b Body) Handlers() []string {
	raw, ok := b[FieldHandlers]
	if !ok {
		return []string{DefaultHandler}
	}

	var names []string
	switch v := raw.(type) {
	case []string:
		names = v
	case []interface{}:
		// json.Unmarshal produces []interface{}; keep only string entries
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				names = append(names, s)
			}
		}
	}

	if len(names) == 0 {
		return []string{DefaultHandler}
	}
	return names
}

func (b Body) stringField(key string) string {
	if v, ok := b[key].(string); ok {
		return v
	}
	return ""
}

// Encode returns the compact JSON encoding used for the ALERT column
// and for EVENT_DATA echoes in failure records.
func (b Body) Encode() (string, error) {
	data, err := json.Marshal(map[string]interface{}(b))
	if err != nil {
		return "", fmt.Errorf("failed to encode alert body: %w", err)
	}
	return string(data), nil
}

// DecodeBody parses the ALERT column JSON into a Body.
func DecodeBody(data string) (Body, error) {
	var b Body
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("failed to decode alert body: %w", err)
	}
	return b, nil
}

// bodySchema is the minimal shape every stored alert document must have.
// ALERT_TIME comes first in the required list because the insert path
// indexes on it; the schema itself does not care about ordering.
const bodySchema = `{
	"type": "object",
	"required": ["ALERT_ID", "TITLE", "EVENT_TIME", "ALERT_TIME"],
	"properties": {
		"ALERT_ID": {"type": "string", "minLength": 1},
		"TITLE": {"type": "string"},
		"EVENT_TIME": {"type": "string"},
		"ALERT_TIME": {"type": "string"},
		"SEVERITY": {"type": "string"},
		"HANDLERS": {
			"type": "array",
			"items": {"type": "string"}
		},
		"SOURCES": {
			"type": "array",
			"items": {"type": "string"}
		}
	}
}`

// ValidateBody checks an alert document against the stored-alert schema.
// Used as a guard before synthesized records are written, so a bug in
// failure-record construction cannot emit rows the fetch path chokes on.
func ValidateBody(b Body) error {
	data, err := json.Marshal(map[string]interface{}(b))
	if err != nil {
		return fmt.Errorf("failed to marshal alert body for validation: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(bodySchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("alert body schema validation failed: %w", err)
	}

	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("invalid alert body: %v", msgs)
	}

	return nil
}
