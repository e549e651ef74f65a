package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"alertrelay/core"
)

// FetchPending returns up to limit unticketed, unsuppressed alerts in
// ascending event-time order.
func (s *SQLiteStore) FetchPending(ctx context.Context, limit int) ([]core.Alert, error) {
	query := fmt.Sprintf(`
		SELECT alert, alert_time, event_time, ticket, suppressed,
		       suppression_rule, correlation_id, counter
		FROM %s
		WHERE ticket IS NULL AND suppressed = 0
		ORDER BY event_time ASC
		LIMIT ?
	`, s.cfg.AlertsTable)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending alerts: %w", err)
	}
	defer rows.Close()

	var alerts []core.Alert
	for rows.Next() {
		var (
			doc        string
			alertTime  string
			eventTime  string
			ticket     sql.NullString
			suppressed int
			alert      core.Alert
			counter    int64
		)
		if err := rows.Scan(
			&doc,
			&alertTime,
			&eventTime,
			&ticket,
			&suppressed,
			&alert.SuppressionRule,
			&alert.CorrelationID,
			&counter,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}

		if alert.AlertTime, err = time.Parse(sqliteTimeFormat, alertTime); err != nil {
			return nil, fmt.Errorf("failed to parse alert_time: %w", err)
		}
		if alert.EventTime, err = time.Parse(sqliteTimeFormat, eventTime); err != nil {
			return nil, fmt.Errorf("failed to parse event_time: %w", err)
		}
		if ticket.Valid {
			alert.Ticket = &ticket.String
		}
		alert.Suppressed = suppressed != 0
		alert.Counter = uint64(counter)

		body, err := core.DecodeBody(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode alert document: %w", err)
		}
		alert.Body = body
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("alert row iteration failed: %w", err)
	}

	return alerts, nil
}

// InsertAlerts bulk-inserts alert records inside one transaction.
func (s *SQLiteStore) InsertAlerts(ctx context.Context, alerts []core.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			alert, alert_time, event_time, ticket, suppressed,
			suppression_rule, correlation_id, counter
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.cfg.AlertsTable))
	if err != nil {
		return fmt.Errorf("failed to prepare alert insert: %w", err)
	}
	defer stmt.Close()

	for _, alert := range alerts {
		doc, err := alert.Body.Encode()
		if err != nil {
			return err
		}

		var ticket interface{}
		if alert.Ticket != nil {
			ticket = *alert.Ticket
		}

		suppressed := 0
		if alert.Suppressed {
			suppressed = 1
		}

		counter := alert.Counter
		if counter == 0 {
			counter = 1
		}

		if _, err := stmt.ExecContext(ctx,
			doc,
			alert.AlertTime.UTC().Format(sqliteTimeFormat),
			alert.EventTime.UTC().Format(sqliteTimeFormat),
			ticket,
			suppressed,
			alert.SuppressionRule,
			alert.CorrelationID,
			int64(counter),
		); err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alert insert: %w", err)
	}

	s.logger.Infof("Inserted %d alert(s)", len(alerts))
	return nil
}

// DeleteAlert removes the row whose document ALERT_ID matches.
func (s *SQLiteStore) DeleteAlert(ctx context.Context, alertID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE json_extract(alert, '$.ALERT_ID') = ?
	`, s.cfg.AlertsTable)

	result, err := s.db.ExecContext(ctx, query, alertID)
	if err != nil {
		return fmt.Errorf("failed to delete alert %s: %w", alertID, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete alert %s: %w", alertID, ErrNotFound)
	}

	s.logger.Infof("Deleted alert %s", alertID)
	return nil
}

// UpdateTicket sets the ticket reference on an alert row.
func (s *SQLiteStore) UpdateTicket(ctx context.Context, alertID, ticket string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET ticket = ? WHERE json_extract(alert, '$.ALERT_ID') = ?
	`, s.cfg.AlertsTable)

	result, err := s.db.ExecContext(ctx, query, ticket, alertID)
	if err != nil {
		return fmt.Errorf("failed to record ticket for alert %s: %w", alertID, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record ticket for alert %s: %w", alertID, ErrNotFound)
	}

	s.logger.Infof("Recorded ticket %s on alert %s", ticket, alertID)
	return nil
}
