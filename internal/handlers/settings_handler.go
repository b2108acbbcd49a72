package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/glowcart/backend/internal/services/settings"
)

// SettingsHandler exposes the economics settings and the reserve report.
type SettingsHandler struct {
	settingsSvc *settings.Service
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settingsSvc *settings.Service) *SettingsHandler {
	return &SettingsHandler{settingsSvc: settingsSvc}
}

// GetSettings returns the storefront-facing economics parameters.
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	cfg, err := h.settingsSvc.Get()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"customer_percent":     cfg.CustomerPercent,
		"inviter_percent":      cfg.InviterPercent,
		"allow_full_bonus_pay": cfg.AllowFullBonusPay,
		"level2_min_referrals": cfg.Level2MinReferrals,
	})
}

// GetAdminSettings returns the full settings row including reserve and
// slot parameters.
func (h *SettingsHandler) GetAdminSettings(c *gin.Context) {
	cfg, err := h.settingsSvc.Get()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"settings": cfg})
}

// UpdateSettings replaces the economics parameters. Changes apply to future
// transitions only.
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req settings.UpdateParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.settingsSvc.Update(req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"settings": cfg})
}

// GetReserve returns the reserve report. The window defaults to the trailing
// 30 days; from/to accept RFC 3339 timestamps.
func (h *SettingsHandler) GetReserve(c *gin.Context) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from timestamp"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to timestamp"})
			return
		}
		to = t
	}

	report, err := h.settingsSvc.Reserve(from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute reserve report"})
		return
	}

	c.JSON(http.StatusOK, report)
}
