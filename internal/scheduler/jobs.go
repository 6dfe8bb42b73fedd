package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anda-ren/starwhale/internal/store"
)

// Maintenance job names.
const (
	JobVacuum          = "vacuum"
	JobVerifyRevisions = "verify-revisions"
	JobVerifySchema    = "verify-schema"
)

type revisionVerifier interface {
	VerifyRevisions(ctx context.Context, dashboardID string) error
}

type schemaVerifier interface {
	VerifySchema(ctx context.Context) error
}

// StoreJobs returns the maintenance jobs for st, all on spec. Revision and
// schema checks are included only when the store supports them.
func StoreJobs(st store.Store, spec string, logger *slog.Logger) []Job {
	jobs := []Job{{
		Name: JobVacuum,
		Spec: spec,
		Run:  st.Vacuum,
	}}
	if v, ok := st.(revisionVerifier); ok {
		jobs = append(jobs, Job{
			Name: JobVerifyRevisions,
			Spec: spec,
			Run: func(ctx context.Context) error {
				return verifyAll(ctx, st, v, logger)
			},
		})
	}
	if v, ok := st.(schemaVerifier); ok {
		jobs = append(jobs, Job{
			Name: JobVerifySchema,
			Spec: spec,
			Run:  v.VerifySchema,
		})
	}
	return jobs
}

func verifyAll(ctx context.Context, st store.Store, v revisionVerifier, logger *slog.Logger) error {
	dashboards, err := st.ListDashboards(ctx, store.DashboardFilter{})
	if err != nil {
		return err
	}
	var errs []error
	for _, d := range dashboards {
		if err := v.VerifyRevisions(ctx, d.ID); err != nil {
			if logger != nil {
				logger.Warn("dashboard history is inconsistent",
					slog.String("dashboard_id", d.ID),
					slog.String("error", err.Error()))
			}
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d dashboards failed verification: %w", len(errs), len(dashboards), errors.Join(errs...))
	}
	return nil
}
