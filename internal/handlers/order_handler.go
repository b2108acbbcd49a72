package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glowcart/backend/internal/database"
	"github.com/glowcart/backend/internal/services/order"
)

// OrderHandler handles checkout, order listing and the admin-side order
// lifecycle operations (status transitions and item returns).
type OrderHandler struct {
	db          *gorm.DB
	checkoutSvc *order.CheckoutService
	statusSvc   *order.StatusService
	returnSvc   *order.ReturnService
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(db *gorm.DB, checkoutSvc *order.CheckoutService, statusSvc *order.StatusService, returnSvc *order.ReturnService) *OrderHandler {
	return &OrderHandler{
		db:          db,
		checkoutSvc: checkoutSvc,
		statusSvc:   statusSvc,
		returnSvc:   returnSvc,
	}
}

// CheckoutRequest represents the request body for checkout
type CheckoutRequest struct {
	Items      []order.CheckoutItem `json:"items" binding:"required"`
	BonusSpend int64                `json:"bonus_spend"`
	Phone      string               `json:"phone"`
	Name       string               `json:"name"`
	Comment    string               `json:"comment"`
}

// Checkout creates an order. Authenticated buyers may pay part of the total
// with bonus; guests check out by phone and cannot spend bonus.
func (h *OrderHandler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := order.CheckoutParams{
		Items:      req.Items,
		BonusSpend: req.BonusSpend,
		GuestPhone: req.Phone,
		GuestName:  req.Name,
		Comment:    req.Comment,
	}
	if userID, ok := currentUserID(c); ok {
		params.UserID = &userID
	}

	created, err := h.checkoutSvc.Checkout(params)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": created})
}

// MyOrders lists the authenticated user's orders, newest first.
func (h *OrderHandler) MyOrders(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var orders []database.Order
	if err := h.db.Preload("Items").Where("user_id = ?", userID).
		Order("created_at DESC").Find(&orders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// ListOrders lists all orders for admins, optionally filtered by status.
func (h *OrderHandler) ListOrders(c *gin.Context) {
	query := h.db.Preload("Items").Preload("User").Order("created_at DESC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var orders []database.Order
	if err := query.Find(&orders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// GetOrder returns one order with its items.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var ord database.Order
	if err := h.db.Preload("Items").First(&ord, "id = ?", orderID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": ord})
}

// TransitionRequest represents the request body for a status transition
type TransitionRequest struct {
	Status database.OrderStatus `json:"status" binding:"required"`
}

// TransitionStatus applies an admin status change to an order.
func (h *OrderHandler) TransitionStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.statusSvc.Transition(userID, orderID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ReturnRequest represents the request body for processing item returns
type ReturnRequest struct {
	Items []order.ItemReturn `json:"items" binding:"required"`
}

// ProcessReturn applies a batch of item returns to an order.
func (h *OrderHandler) ProcessReturn(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.returnSvc.Process(orderID, req.Items)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
