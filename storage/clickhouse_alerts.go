package storage

import (
	"context"
	"fmt"
	"time"

	"alertrelay/core"
)

// FetchPending returns up to limit unticketed, unsuppressed alerts in
// ascending event-time order. Oldest-first ordering bounds staleness
// under sustained alert volume.
func (s *ClickHouseStore) FetchPending(ctx context.Context, limit int) ([]core.Alert, error) {
	query := fmt.Sprintf(`
		SELECT alert, alert_time, event_time, ticket, suppressed,
		       suppression_rule, correlation_id, counter
		FROM %s
		WHERE ticket IS NULL AND suppressed = false
		ORDER BY event_time ASC
		LIMIT ?
	`, s.tableRef())

	rows, err := s.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending alerts: %w", err)
	}
	defer rows.Close()

	var alerts []core.Alert
	for rows.Next() {
		var (
			doc   string
			alert core.Alert
		)
		if err := rows.Scan(
			&doc,
			&alert.AlertTime,
			&alert.EventTime,
			&alert.Ticket,
			&alert.Suppressed,
			&alert.SuppressionRule,
			&alert.CorrelationID,
			&alert.Counter,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}

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

// InsertAlerts bulk-inserts alert records. The envelope times index
// each record; the document travels as JSON in the alert column.
func (s *ClickHouseStore) InsertAlerts(ctx context.Context, alerts []core.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			alert, alert_time, event_time, ticket, suppressed,
			suppression_rule, correlation_id, counter
		)
	`, s.tableRef()))
	if err != nil {
		return fmt.Errorf("failed to prepare alert batch: %w", err)
	}

	for _, alert := range alerts {
		doc, err := alert.Body.Encode()
		if err != nil {
			return err
		}

		counter := alert.Counter
		if counter == 0 {
			counter = 1
		}

		if err := batch.Append(
			doc,
			alert.AlertTime,
			alert.EventTime,
			alert.Ticket,
			alert.Suppressed,
			alert.SuppressionRule,
			alert.CorrelationID,
			counter,
		); err != nil {
			return fmt.Errorf("failed to append alert to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert alert batch: %w", err)
	}

	s.logger.Infof("Inserted %d alert(s)", len(alerts))
	return nil
}

// DeleteAlert removes the row whose document ALERT_ID matches. The
// mutation runs synchronously so the row is gone before the next fetch.
func (s *ClickHouseStore) DeleteAlert(ctx context.Context, alertID string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query := fmt.Sprintf(`
		ALTER TABLE %s
		DELETE WHERE JSONExtractString(alert, 'ALERT_ID') = ?
		SETTINGS mutations_sync = 1
	`, s.tableRef())

	if err := s.conn.Exec(ctx, query, alertID); err != nil {
		return fmt.Errorf("failed to delete alert %s: %w", alertID, err)
	}

	s.logger.Infof("Deleted alert %s", alertID)
	return nil
}

// UpdateTicket sets the ticket reference on an alert row.
func (s *ClickHouseStore) UpdateTicket(ctx context.Context, alertID, ticket string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query := fmt.Sprintf(`
		ALTER TABLE %s
		UPDATE ticket = ?
		WHERE JSONExtractString(alert, 'ALERT_ID') = ?
		SETTINGS mutations_sync = 1
	`, s.tableRef())

	if err := s.conn.Exec(ctx, query, ticket, alertID); err != nil {
		return fmt.Errorf("failed to record ticket for alert %s: %w", alertID, err)
	}

	s.logger.Infof("Recorded ticket %s on alert %s", ticket, alertID)
	return nil
}
