package settings

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/glowcart/backend/internal/database"
	"github.com/glowcart/backend/internal/generr"
)

// Service reads and updates the singleton AppSettings row and derives the
// reserve health report. Operations fetch settings once and thread the value
// through; changes only affect future transitions.
type Service struct {
	db *gorm.DB
}

// NewService creates a new settings service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// defaultSettings mirrors the seed migration values.
func defaultSettings() database.AppSettings {
	return database.AppSettings{
		ID:                        1,
		CustomerPercent:           7,
		InviterPercent:            3,
		InviterBonusLevel2Percent: 1,
		ReservePercent:            30,
		AllowFullBonusPay:         false,
		Level2MinReferrals:        3,
	}
}

// Get returns the settings row, creating it with defaults on first use.
func (s *Service) Get() (database.AppSettings, error) {
	var cfg database.AppSettings
	err := s.db.First(&cfg, "id = ?", 1).Error
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return cfg, fmt.Errorf("error loading settings: %w", err)
	}

	cfg = defaultSettings()
	if err := s.db.Create(&cfg).Error; err != nil {
		return cfg, fmt.Errorf("error creating default settings: %w", err)
	}
	return cfg, nil
}

// GetWithTx reads the settings row inside the caller's transaction, pinning
// the parameters to that transaction.
func (s *Service) GetWithTx(tx *gorm.DB) (database.AppSettings, error) {
	var cfg database.AppSettings
	if err := tx.First(&cfg, "id = ?", 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultSettings(), nil
		}
		return cfg, fmt.Errorf("error loading settings: %w", err)
	}
	return cfg, nil
}

// UpdateParams carries the admin-editable economics parameters.
type UpdateParams struct {
	CustomerPercent           float64 `json:"customer_percent"`
	InviterPercent            float64 `json:"inviter_percent"`
	InviterBonusLevel2Percent float64 `json:"inviter_bonus_level2_percent"`
	ReservePercent            float64 `json:"reserve_percent"`
	AllowFullBonusPay         bool    `json:"allow_full_bonus_pay"`
	Level2MinReferrals        int     `json:"level2_min_referrals"`
	SlotPrice                 int64   `json:"slot_price"`
	SlotCount                 int     `json:"slot_count"`
}

// Update replaces the singleton settings row. It never rewrites history:
// bonuses already accrued keep the percentages that were in force.
func (s *Service) Update(p UpdateParams) (database.AppSettings, error) {
	if p.CustomerPercent < 0 || p.InviterPercent < 0 ||
		p.InviterBonusLevel2Percent < 0 || p.ReservePercent < 0 ||
		p.Level2MinReferrals < 0 || p.SlotPrice < 0 || p.SlotCount < 0 {
		return database.AppSettings{}, fmt.Errorf("settings values must be non-negative: %w", generr.ErrInvalidArgument)
	}
	if p.CustomerPercent > 100 || p.InviterPercent > 100 ||
		p.InviterBonusLevel2Percent > 100 || p.ReservePercent > 100 {
		return database.AppSettings{}, fmt.Errorf("percent values must not exceed 100: %w", generr.ErrInvalidArgument)
	}

	cfg, err := s.Get()
	if err != nil {
		return cfg, err
	}

	cfg.CustomerPercent = p.CustomerPercent
	cfg.InviterPercent = p.InviterPercent
	cfg.InviterBonusLevel2Percent = p.InviterBonusLevel2Percent
	cfg.ReservePercent = p.ReservePercent
	cfg.AllowFullBonusPay = p.AllowFullBonusPay
	cfg.Level2MinReferrals = p.Level2MinReferrals
	cfg.SlotPrice = p.SlotPrice
	cfg.SlotCount = p.SlotCount
	cfg.UpdatedAt = time.Now()

	if err := s.db.Save(&cfg).Error; err != nil {
		return cfg, fmt.Errorf("error updating settings: %w", err)
	}
	return cfg, nil
}

// Reserve status thresholds on reserveNeeded / cashIn.
const (
	ReserveStatusOK     = "OK"
	ReserveStatusRisk   = "RISK"
	ReserveStatusDanger = "DANGER"
)

// ReserveReport aggregates the ledger's financial health for a time window.
// Read-only; it exists so the ledger's health is observable independently of
// transactional logic.
type ReserveReport struct {
	CashIn        int64  `json:"cash_in"`
	BonusPaid     int64  `json:"bonus_paid"`
	ReserveNeeded int64  `json:"reserve_needed"`
	ReservedCash  int64  `json:"reserved_cash"`
	ReserveGap    int64  `json:"reserve_gap"`
	Status        string `json:"status"`
}

// Reserve computes the reserve report over orders created in [from, to).
// reserveNeeded is the current total bonus liability regardless of window.
func (s *Service) Reserve(from, to time.Time) (*ReserveReport, error) {
	cfg, err := s.Get()
	if err != nil {
		return nil, err
	}

	orders := s.db.Model(&database.Order{}).
		Where("status <> ?", database.OrderStatusCancelled)
	if !from.IsZero() {
		orders = orders.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		orders = orders.Where("created_at < ?", to)
	}

	var totals struct {
		CashIn    int64
		BonusPaid int64
	}
	if err := orders.
		Select("COALESCE(SUM(cash_paid), 0) AS cash_in, COALESCE(SUM(bonus_spent), 0) AS bonus_paid").
		Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("error aggregating orders: %w", err)
	}

	var reserveNeeded int64
	if err := s.db.Model(&database.User{}).
		Select("COALESCE(SUM(bonus_balance), 0)").Scan(&reserveNeeded).Error; err != nil {
		return nil, fmt.Errorf("error summing bonus balances: %w", err)
	}

	reservedCash := decimal.NewFromInt(totals.CashIn).
		Mul(decimal.NewFromFloat(cfg.ReservePercent)).
		Div(decimal.NewFromInt(100)).
		Round(0).IntPart()

	report := &ReserveReport{
		CashIn:        totals.CashIn,
		BonusPaid:     totals.BonusPaid,
		ReserveNeeded: reserveNeeded,
		ReservedCash:  reservedCash,
		ReserveGap:    reservedCash - reserveNeeded,
		Status:        ReserveStatusOK,
	}

	if totals.CashIn > 0 {
		ratio := decimal.NewFromInt(reserveNeeded).Div(decimal.NewFromInt(totals.CashIn))
		switch {
		case ratio.GreaterThan(decimal.NewFromInt(1)):
			report.Status = ReserveStatusDanger
		case ratio.GreaterThanOrEqual(decimal.NewFromFloat(0.5)):
			report.Status = ReserveStatusRisk
		}
	} else if reserveNeeded > 0 {
		// Liability with no cash revenue in the window.
		report.Status = ReserveStatusDanger
	}

	return report, nil
}
