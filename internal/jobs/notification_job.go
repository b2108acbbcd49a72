package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/glowcart/backend/internal/queue"
)

// Notifier delivers customer-facing messages (SMS or push). Delivery is
// best-effort; the ledger never waits on it.
type Notifier interface {
	Send(phone, message string) error
}

// LogNotifier writes notifications to the log. Used until a real SMS
// gateway is configured, and in tests.
type LogNotifier struct{}

func (LogNotifier) Send(phone, message string) error {
	log.Printf("notify %s: %s", phone, message)
	return nil
}

// OrderCreatedPayload is the payload for an order created notification.
type OrderCreatedPayload struct {
	OrderID uuid.UUID `json:"order_id"`
	Amount  int64     `json:"amount"`
}

// OrderPaidPayload is the payload for a payment confirmed notification.
type OrderPaidPayload struct {
	OrderID uuid.UUID `json:"order_id"`
	Phone   string    `json:"phone"`
}

// OrderBonusPayload notifies the buyer about their own cashback.
type OrderBonusPayload struct {
	OrderID uuid.UUID `json:"order_id"`
	Phone   string    `json:"phone"`
	Amount  int64     `json:"amount"`
}

// ReferralBonusPayload notifies a direct referrer about their bonus.
type ReferralBonusPayload struct {
	Phone        string `json:"phone"`
	Amount       int64  `json:"amount"`
	ReferredName string `json:"referred_name"`
}

// TeamBonusPayload notifies a second-level referrer about their team bonus.
type TeamBonusPayload struct {
	Phone   string    `json:"phone"`
	Amount  int64     `json:"amount"`
	OrderID uuid.UUID `json:"order_id"`
}

// NotificationJob handles the outbound notification job types.
type NotificationJob struct {
	notifier Notifier
}

// NewNotificationJob creates a new notification job handler
func NewNotificationJob(notifier Notifier) *NotificationJob {
	return &NotificationJob{notifier: notifier}
}

// RegisterNotificationJobHandlers registers all notification handlers.
func RegisterNotificationJobHandlers(q queue.QueueInterface, notifier Notifier) {
	j := NewNotificationJob(notifier)
	q.RegisterHandler(queue.JobTypeNotifyOrderCreated, j.HandleOrderCreated)
	q.RegisterHandler(queue.JobTypeNotifyOrderPaid, j.HandleOrderPaid)
	q.RegisterHandler(queue.JobTypeNotifyOrderBonus, j.HandleOrderBonus)
	q.RegisterHandler(queue.JobTypeNotifyReferralBonus, j.HandleReferralBonus)
	q.RegisterHandler(queue.JobTypeNotifyTeamBonus, j.HandleTeamBonus)
}

// HandleOrderCreated logs a new order. Admin-facing only, so there is no
// recipient phone.
func (j *NotificationJob) HandleOrderCreated(ctx context.Context, job queue.Job) error {
	var p OrderCreatedPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal order created payload: %w", err)
	}
	log.Printf("New order %s for %d", p.OrderID, p.Amount)
	return nil
}

// HandleOrderPaid tells the buyer their payment went through.
func (j *NotificationJob) HandleOrderPaid(ctx context.Context, job queue.Job) error {
	var p OrderPaidPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal order paid payload: %w", err)
	}
	if p.Phone == "" {
		return nil
	}
	return j.notifier.Send(p.Phone, fmt.Sprintf("Payment for order %s confirmed", p.OrderID))
}

// HandleOrderBonus tells the buyer about their cashback.
func (j *NotificationJob) HandleOrderBonus(ctx context.Context, job queue.Job) error {
	var p OrderBonusPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal order bonus payload: %w", err)
	}
	if p.Phone == "" {
		return nil
	}
	return j.notifier.Send(p.Phone, fmt.Sprintf("You earned %d bonus for order %s", p.Amount, p.OrderID))
}

// HandleReferralBonus tells a referrer about their direct bonus.
func (j *NotificationJob) HandleReferralBonus(ctx context.Context, job queue.Job) error {
	var p ReferralBonusPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal referral bonus payload: %w", err)
	}
	if p.Phone == "" {
		return nil
	}
	return j.notifier.Send(p.Phone, fmt.Sprintf("You earned %d bonus for %s's order", p.Amount, p.ReferredName))
}

// HandleTeamBonus tells a second-level referrer about their team bonus.
func (j *NotificationJob) HandleTeamBonus(ctx context.Context, job queue.Job) error {
	var p TeamBonusPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal team bonus payload: %w", err)
	}
	if p.Phone == "" {
		return nil
	}
	return j.notifier.Send(p.Phone, fmt.Sprintf("You earned %d team bonus for order %s", p.Amount, p.OrderID))
}
