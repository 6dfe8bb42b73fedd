package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Dashboards
	SaveDashboard(ctx context.Context, d *Dashboard) error
	GetDashboard(ctx context.Context, id string) (*Dashboard, error)
	ListDashboards(ctx context.Context, filter DashboardFilter) ([]*Dashboard, error)
	DeleteDashboard(ctx context.Context, id string) error

	// Revisions (append-only)
	ListRevisions(ctx context.Context, dashboardID string, since int64) ([]*Revision, error)
	GetRevision(ctx context.Context, dashboardID string, sequence int64) (*Revision, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
