package store

import (
	"time"

	"github.com/anda-ren/starwhale/pkg/schema"
)

// Dashboard is a persisted layout document.
type Dashboard struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Document    schema.Document `json:"document"`
	Fingerprint string          `json:"fingerprint"`
	Revision    int64           `json:"revision"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DashboardFilter narrows ListDashboards.
type DashboardFilter struct {
	NamePrefix string
	Limit      int
	Offset     int
}

// Revision is one entry of a dashboard's history. Sequences start at 1 and
// are contiguous per dashboard.
type Revision struct {
	DashboardID string          `json:"dashboard_id"`
	Sequence    int64           `json:"sequence"`
	Fingerprint string          `json:"fingerprint"`
	Document    schema.Document `json:"document"`
	CreatedAt   time.Time       `json:"created_at"`
}
