package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glowcart/backend/internal/database"
	"github.com/glowcart/backend/internal/services/ledger"
)

// BonusHandler exposes the bonus ledger: the user's own balance and history,
// plus admin adjustments and reconciliation.
type BonusHandler struct {
	db        *gorm.DB
	ledgerSvc *ledger.Service
}

// NewBonusHandler creates a new bonus handler
func NewBonusHandler(db *gorm.DB, ledgerSvc *ledger.Service) *BonusHandler {
	return &BonusHandler{db: db, ledgerSvc: ledgerSvc}
}

// MyBonus returns the authenticated user's balance and recent ledger history.
func (h *BonusHandler) MyBonus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	balance, err := h.ledgerSvc.Balance(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch balance"})
		return
	}

	history, err := h.ledgerSvc.History(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance": balance,
		"events":  history,
	})
}

// AdjustRequest represents the request body for a manual balance adjustment
type AdjustRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Amount int64     `json:"amount" binding:"required"`
	Note   string    `json:"note" binding:"required"`
}

// Adjust applies an admin manual adjustment as a new ledger row. The note is
// mandatory; an adjustment with no stated reason is unauditable.
func (h *BonusHandler) Adjust(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var event *database.ReferralEvent
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		event, txErr = h.ledgerSvc.ApplyWithTx(tx, ledger.Entry{
			UserID: req.UserID,
			Amount: req.Amount,
			Type:   database.EventManualAdjustment,
			Note:   req.Note,
		})
		return txErr
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"event": event})
}

// Reconcile reports users whose cached balance and ledger sum disagree.
func (h *BonusHandler) Reconcile(c *gin.Context) {
	drifts, err := h.ledgerSvc.ReconcileAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reconcile balances"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"drifts": drifts})
}
