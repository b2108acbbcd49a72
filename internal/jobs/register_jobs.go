package jobs

import (
	"github.com/go-co-op/gocron"

	"github.com/glowcart/backend/internal/queue"
	"github.com/glowcart/backend/internal/services/ledger"
	"github.com/glowcart/backend/internal/services/settings"
)

// RegisterAllJobHandlers registers all job handlers with the queue
func RegisterAllJobHandlers(q queue.QueueInterface, notifier Notifier) {
	RegisterNotificationJobHandlers(q, notifier)
}

// ScheduleRecurringJobs schedules all recurring jobs
func ScheduleRecurringJobs(
	s *gocron.Scheduler,
	settingsSvc *settings.Service,
	ledgerSvc *ledger.Service,
) {
	NewReserveSnapshotJob(settingsSvc, ledgerSvc).Schedule(s)
}
