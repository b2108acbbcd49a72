package jobs

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/glowcart/backend/internal/services/ledger"
	"github.com/glowcart/backend/internal/services/settings"
)

// ReserveSnapshotJob periodically logs the bonus reserve report and sweeps
// the ledger for balance drift.
type ReserveSnapshotJob struct {
	settingsSvc *settings.Service
	ledgerSvc   *ledger.Service
}

// NewReserveSnapshotJob creates a new reserve snapshot job
func NewReserveSnapshotJob(settingsSvc *settings.Service, ledgerSvc *ledger.Service) *ReserveSnapshotJob {
	return &ReserveSnapshotJob{settingsSvc: settingsSvc, ledgerSvc: ledgerSvc}
}

// Schedule registers the recurring reserve snapshot and drift sweep.
func (j *ReserveSnapshotJob) Schedule(s *gocron.Scheduler) {
	if _, err := s.Every(1).Hour().Do(j.Run); err != nil {
		log.Printf("Failed to schedule reserve snapshot job: %v", err)
	}
}

// Run takes a reserve snapshot over the trailing 30 days and reconciles
// all user balances against the ledger.
func (j *ReserveSnapshotJob) Run() {
	to := time.Now()
	from := to.AddDate(0, 0, -30)

	report, err := j.settingsSvc.Reserve(from, to)
	if err != nil {
		log.Printf("Reserve snapshot failed: %v", err)
	} else {
		log.Printf("Reserve snapshot: status=%s cash_in=%d bonus_paid=%d reserve_needed=%d gap=%d",
			report.Status, report.CashIn, report.BonusPaid, report.ReserveNeeded, report.ReserveGap)
	}

	drifts, err := j.ledgerSvc.ReconcileAll()
	if err != nil {
		log.Printf("Ledger reconcile sweep failed: %v", err)
		return
	}
	for _, d := range drifts {
		log.Printf("Ledger drift for user %s: balance=%d events=%d", d.UserID, d.BonusBalance, d.EventSum)
	}
}
