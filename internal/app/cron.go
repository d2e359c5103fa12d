package app

import (
	"context"
	"time"

	"github.com/mx-space/catalog/internal/config"
	"github.com/mx-space/catalog/internal/modules/marketing"
	pkgcron "github.com/mx-space/catalog/internal/pkg/cron"
)

const (
	jobPublishMarketing = "publish_marketing"
	jobPurgeTasks       = "purge_marketing_tasks"
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, mkt *marketing.Service, cfg *config.AppConfig) {
	sched.Register(pkgcron.Job{
		Name:        jobPublishMarketing,
		Description: "Publish queued official course runs to the marketing site",
		Interval:    cfg.Marketing.DrainInterval,
		Fn: func(ctx context.Context) error {
			_, err := mkt.Drain(ctx)
			return err
		},
	})

	sched.Register(pkgcron.Job{
		Name:        jobPurgeTasks,
		Description: "Drop finished marketing tasks past retention",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			_, err := mkt.Purge(ctx, cfg.Marketing.Retention)
			return err
		},
	})
}
