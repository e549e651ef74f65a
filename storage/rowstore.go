// Package storage implements the row store gateway to the results
// alerts table: a ClickHouse backend for production and a SQLite
// backend for local development and tests.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"alertrelay/core"
)

// ErrNotFound is returned when a statement targets an alert row that
// does not exist.
var ErrNotFound = errors.New("alert not found")

// RowStore is the narrow gateway the relay uses to talk to the
// warehouse. Exactly three statement shapes flow through the typed
// methods: the bounded ordered select of pending alerts, the bulk
// insert of JSON alert records, and the delete by alert id. Execute
// exists for the ticket write-back and schema bootstrap.
type RowStore interface {
	// Execute runs a parameterized statement with no result rows.
	Execute(ctx context.Context, stmt string, args ...interface{}) error

	// FetchPending returns up to limit alerts with no ticket and not
	// suppressed, ordered by ascending event time. An empty result is
	// not an error.
	FetchPending(ctx context.Context, limit int) ([]core.Alert, error)

	// InsertAlerts bulk-inserts alert records. The envelope alert time
	// is the indexable time for each record.
	InsertAlerts(ctx context.Context, alerts []core.Alert) error

	// DeleteAlert removes the row whose document ALERT_ID matches.
	// Backends that can observe affected rows return ErrNotFound when
	// nothing matched; the ClickHouse mutation path cannot see row
	// counts and reports success either way. Callers treat ErrNotFound
	// as already-removed, never as a failure to make progress.
	DeleteAlert(ctx context.Context, alertID string) error

	// UpdateTicket sets the ticket reference on an alert row. Called by
	// the ticketing integration after a ticket is created; a row with a
	// ticket set is no longer fetched. ErrNotFound carries the same
	// backend caveat as DeleteAlert.
	UpdateTicket(ctx context.Context, alertID, ticket string) error

	// HealthCheck verifies the store connection is usable.
	HealthCheck(ctx context.Context) error

	Close() error
}

var validIdentifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// validateIdentifier guards schema and table names before they are
// interpolated into a statement. Values always travel as bind
// parameters; identifiers cannot, so they get this allowlist instead.
func validateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("identifier too long (max 64 characters)")
	}
	if !validIdentifierRegex.MatchString(name) {
		return fmt.Errorf("identifier %q contains invalid characters (only alphanumeric and underscore allowed)", name)
	}
	return nil
}
