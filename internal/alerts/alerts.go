package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Severity levels for alerts (§4.14: Info, Warning, Critical, Emergency).
type Severity string

const (
	SeverityInfo      Severity = "INFO"
	SeverityWarning   Severity = "WARNING"
	SeverityCritical  Severity = "CRITICAL"
	SeverityEmergency Severity = "EMERGENCY"
)

// severityRank orders severities so de-duplication can detect escalation.
var severityRank = map[Severity]int{
	SeverityInfo:      0,
	SeverityWarning:   1,
	SeverityCritical:  2,
	SeverityEmergency: 3,
}

// Alert represents an alert message
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Category  string
	Metric    string
	Threshold float64
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Alerter defines the interface for sending alerts
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager manages multiple alert channels
type Manager struct {
	alerters []Alerter
}

// NewManager creates a new alert manager
func NewManager(alerters ...Alerter) *Manager {
	return &Manager{
		alerters: alerters,
	}
}

// Send sends an alert to all configured alerters
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var lastErr error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			log.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			lastErr = err
		}
	}

	return lastErr
}

// SendCritical is a convenience method for sending critical alerts
func (m *Manager) SendCritical(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityCritical,
		Metadata: metadata,
	})
}

// SendWarning is a convenience method for sending warning alerts
func (m *Manager) SendWarning(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityWarning,
		Metadata: metadata,
	})
}

// SendInfo is a convenience method for sending info alerts
func (m *Manager) SendInfo(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityInfo,
		Metadata: metadata,
	})
}

// SendEmergency is a convenience method for sending emergency alerts, the
// most severe classification (§4.14).
func (m *Manager) SendEmergency(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityEmergency,
		Metadata: metadata,
	})
}

// LogAlerter logs alerts using zerolog
type LogAlerter struct{}

// NewLogAlerter creates a new log-based alerter
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

// Send sends an alert by logging it
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := log.Log()

	// Set log level based on severity
	switch alert.Severity {
	case SeverityEmergency, SeverityCritical:
		event = log.Error()
	case SeverityWarning:
		event = log.Warn()
	case SeverityInfo:
		event = log.Info()
	}

	// Add metadata fields
	if alert.Metadata != nil {
		for key, value := range alert.Metadata {
			event = event.Interface(key, value)
		}
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg(fmt.Sprintf("ALERT: %s", alert.Message))

	return nil
}

// ConsoleAlerter prints alerts to console with prominent formatting
type ConsoleAlerter struct{}

// NewConsoleAlerter creates a new console-based alerter
func NewConsoleAlerter() *ConsoleAlerter {
	return &ConsoleAlerter{}
}

// Send sends an alert by printing to console
func (c *ConsoleAlerter) Send(ctx context.Context, alert Alert) error {
	banner := ""
	switch alert.Severity {
	case SeverityEmergency:
		banner = "EMERGENCY ALERT"
	case SeverityCritical:
		banner = "CRITICAL ALERT"
	case SeverityWarning:
		banner = "WARNING ALERT"
	case SeverityInfo:
		banner = "INFO ALERT"
	}

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println(banner)
	fmt.Println("========================================")
	fmt.Printf("Title: %s\n", alert.Title)
	fmt.Printf("Message: %s\n", alert.Message)
	fmt.Printf("Severity: %s\n", alert.Severity)
	fmt.Printf("Time: %s\n", alert.Timestamp.Format(time.RFC3339))

	if alert.Metadata != nil && len(alert.Metadata) > 0 {
		fmt.Println("Metadata:")
		for key, value := range alert.Metadata {
			fmt.Printf("  - %s: %v\n", key, value)
		}
	}

	fmt.Println("========================================")
	fmt.Println()

	return nil
}

// Default global alert manager (can be replaced with custom configuration)
var defaultManager *Manager

func init() {
	// Initialize with log and console alerters by default
	defaultManager = NewManager(
		NewLogAlerter(),
		NewConsoleAlerter(),
	)
}

// GetDefaultManager returns the default alert manager
func GetDefaultManager() *Manager {
	return defaultManager
}

// SetDefaultManager sets the default alert manager
func SetDefaultManager(manager *Manager) {
	defaultManager = manager
}

// Helper functions for common coordination-substrate alerts (§4.14).

// AlertProviderUnhealthy sends an alert for an RPC provider failing its
// health threshold.
func AlertProviderUnhealthy(ctx context.Context, providerID string, successRate float64) {
	defaultManager.SendCritical(ctx, "RPC Provider Unhealthy", fmt.Sprintf(
		"Provider %s success rate %.2f fell below the health threshold", providerID, successRate,
	), map[string]interface{}{
		"provider_id":  providerID,
		"success_rate": successRate,
	})
}

// AlertQuotaExhausted sends an alert when an RPC provider's monthly quota is
// exhausted.
func AlertQuotaExhausted(ctx context.Context, providerID string, quota uint64) {
	defaultManager.SendWarning(ctx, "Provider Quota Exhausted", fmt.Sprintf(
		"Provider %s has exhausted its monthly quota of %d requests", providerID, quota,
	), map[string]interface{}{
		"provider_id": providerID,
		"quota":       quota,
	})
}

// AlertAgentFailed sends an alert when an agent is demoted to Failed after
// missing too many heartbeats.
func AlertAgentFailed(ctx context.Context, agentID, kind string) {
	defaultManager.SendCritical(ctx, "Agent Failed", fmt.Sprintf(
		"Agent %s (%s) missed too many heartbeats and was marked Failed", agentID, kind,
	), map[string]interface{}{
		"agent_id": agentID,
		"kind":     kind,
	})
}

// AlertTaskDeadlineMissed sends an alert when a task is swept to TimedOut.
func AlertTaskDeadlineMissed(ctx context.Context, taskID, kind string) {
	defaultManager.SendWarning(ctx, "Task Deadline Missed", fmt.Sprintf(
		"Task %s (%s) missed its deadline and was marked TimedOut", taskID, kind,
	), map[string]interface{}{
		"task_id": taskID,
		"kind":    kind,
	})
}

// AlertHSMDisconnected sends an emergency alert when the HSM subsystem loses
// its connection, since every multi-sig execution depends on it.
func AlertHSMDisconnected(ctx context.Context, reason string) {
	defaultManager.SendEmergency(ctx, "HSM Disconnected", fmt.Sprintf(
		"HSM connection lost: %s", reason,
	), map[string]interface{}{
		"reason": reason,
	})
}
