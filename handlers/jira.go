package handlers

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"alertrelay/config"
	"alertrelay/core"

	"go.uber.org/zap"
)

// jiraHTTPTimeout bounds one issue-creation call. The dispatch loop
// has no timeout of its own; this client-side bound is the only one.
const jiraHTTPTimeout = 30 * time.Second

// TicketRecorder writes the created ticket reference back onto the
// alert row so it is not fetched again. Satisfied by the row store.
type TicketRecorder interface {
	UpdateTicket(ctx context.Context, alertID, ticket string) error
}

// JiraHandler creates one Jira issue per alert via the REST v2 API.
type JiraHandler struct {
	baseURL   string
	project   string
	issueType string
	username  string
	password  string
	tickets   TicketRecorder
	client    *http.Client
	logger    *zap.SugaredLogger
}

// NewJiraHandler builds the built-in ticket-creation handler. tickets
// may be nil, in which case the created issue key is only logged.
func NewJiraHandler(cfg *config.Config, tickets TicketRecorder, logger *zap.SugaredLogger) *JiraHandler {
	return &JiraHandler{
		baseURL:   strings.TrimRight(cfg.Jira.BaseURL, "/"),
		project:   cfg.Jira.Project,
		issueType: cfg.Jira.IssueType,
		username:  cfg.Jira.Username,
		password:  cfg.Jira.Password,
		tickets:   tickets,
		client: &http.Client{
			Timeout: jiraHTTPTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
		logger: logger,
	}
}

// Handle creates a Jira issue for the alert and records the issue key
// on the alert row. The returned error is the failure signal consumed
// by the failure recorder.
func (j *JiraHandler) Handle(ctx context.Context, name string, alert core.Alert) error {
	summary := alert.Body.Title()
	if summary == "" {
		summary = "Untitled Security Alert"
	}

	payload := map[string]interface{}{
		"fields": map[string]interface{}{
			"project":     map[string]string{"key": j.project},
			"issuetype":   map[string]string{"name": j.issueType},
			"summary":     summary,
			"description": renderDescription(alert.Body),
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Jira payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		j.baseURL+"/rest/api/2/issue", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create Jira request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "AlertRelay/1.0")
	req.SetBasicAuth(j.username, j.password)

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach Jira: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			j.logger.Debugf("Failed to close Jira response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("jira returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var created struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return fmt.Errorf("failed to decode Jira response: %w", err)
	}

	j.logger.Infof("Created Jira issue %s for alert %s", created.Key, alert.Body.AlertID())

	if j.tickets != nil && created.Key != "" {
		if err := j.tickets.UpdateTicket(ctx, alert.Body.AlertID(), created.Key); err != nil {
			// The issue exists; failing to write the reference back
			// means the alert will be fetched and ticketed again
			return fmt.Errorf("created issue %s but failed to record ticket: %w", created.Key, err)
		}
	}

	return nil
}

// renderDescription flattens the alert document into the issue body.
// Handler bookkeeping fields are skipped; everything else, including
// detection-specific custom fields, is shown.
func renderDescription(body core.Body) string {
	skip := map[string]bool{
		core.FieldTitle:    true,
		core.FieldHandlers: true,
	}

	keys := make([]string, 0, len(body))
	for k := range body {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "*%s*: %v\n", k, body[k])
	}
	return b.String()
}
