// Package health tracks per-component health and exposes an aggregate
// status endpoint for the collector.
package health

import (
	"regexp"
	"time"

	"github.com/c360/devstream/component"
)

// Error messages may carry connection details; strip them before they
// reach the health endpoint
var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?)://\S+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|passphrase|secret)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health state of one component or of the whole collector
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries health-related counters
type Metrics struct {
	Uptime       time.Duration `json:"uptime"`
	ErrorCount   int           `json:"error_count"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

// NewHealthy creates a healthy status
func NewHealthy(name, message string) Status {
	return Status{Component: name, Healthy: true, Status: "healthy", Message: message, Timestamp: time.Now()}
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(name, message string) Status {
	return Status{Component: name, Healthy: false, Status: "unhealthy", Message: message, Timestamp: time.Now()}
}

// NewDegraded creates a degraded status
func NewDegraded(name, message string) Status {
	return Status{Component: name, Healthy: false, Status: "degraded", Message: message, Timestamp: time.Now()}
}

// IsUnhealthy reports whether the status is unhealthy
func (s Status) IsUnhealthy() bool { return s.Status == "unhealthy" }

// IsDegraded reports whether the status is degraded
func (s Status) IsDegraded() bool { return s.Status == "degraded" }

// FromComponentHealth converts a component's self-reported health,
// sanitizing the error message
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	status := NewUnhealthy(name, "")
	if ch.Healthy {
		status = NewHealthy(name, "Component healthy")
	}
	if ch.LastError != "" {
		status.Message = sanitize(ch.LastError)
	}
	status.Metrics = &Metrics{
		Uptime:       ch.Uptime,
		ErrorCount:   ch.ErrorCount,
		LastActivity: ch.LastCheck,
	}
	return status
}

// Aggregate folds sub-statuses into one status: unhealthy dominates,
// then degraded, then healthy
func Aggregate(name string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(name, "No components registered")
	}

	agg := NewHealthy(name, "All components healthy")
	for _, sub := range subs {
		if sub.IsUnhealthy() {
			agg = NewUnhealthy(name, "One or more components are unhealthy")
			break
		}
		if sub.IsDegraded() {
			agg = NewDegraded(name, "One or more components are degraded")
		}
	}

	agg.SubStatuses = append([]Status(nil), subs...)
	return agg
}

func sanitize(msg string) string {
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[IP]")
	msg = credentialRegex.ReplaceAllString(msg, "[REDACTED]")
	return msg
}
