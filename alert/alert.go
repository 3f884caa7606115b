package alert

import (
	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
)

// Severity grades an alert.
type Severity string

const (
	// SeverityWarning signals a degraded but operating state.
	SeverityWarning Severity = "warning"
	// SeverityCritical signals a state requiring operator intervention.
	SeverityCritical Severity = "critical"
)

// Alert is an immutable operator notification with a snapshot of the
// counts that triggered it.
type Alert struct {
	batch.Entity

	ID       id.AlertID `json:"id"`
	Severity Severity   `json:"severity"`

	// Component names the subsystem that raised the alert, e.g.
	// "stall-detector" or "metrics".
	Component string `json:"component"`

	Message string `json:"message"`

	// Metadata holds the counts at the time of firing.
	Metadata map[string]int64 `json:"metadata,omitempty"`
}
