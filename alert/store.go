package alert

import (
	"context"
	"time"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
)

// Store defines the persistence contract for alerts.
type Store interface {
	// CreateAlert persists a new alert.
	CreateAlert(ctx context.Context, a *Alert) error

	// GetAlert retrieves an alert by ID.
	GetAlert(ctx context.Context, alertID id.AlertID) (*Alert, error)

	// ListAlertsSince returns alerts created after the given time,
	// newest first. The evaluator uses this for debouncing, dashboards
	// use it for display.
	ListAlertsSince(ctx context.Context, since time.Time) ([]*Alert, error)
}
