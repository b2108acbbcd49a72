package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeNotifyOrderCreated  JobType = "notify_order_created"
	JobTypeNotifyOrderPaid     JobType = "notify_order_paid"
	JobTypeNotifyOrderBonus    JobType = "notify_order_bonus"
	JobTypeNotifyReferralBonus JobType = "notify_referral_bonus"
	JobTypeNotifyTeamBonus     JobType = "notify_team_bonus"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents a background job. Job rows are the durable outbox; Redis
// carries only job IDs for dispatch.
type Job struct {
	ID         uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RetryCount int             `json:"retry_count" gorm:"default:0"`
	MaxRetries int             `json:"max_retries" gorm:"default:3"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// JobHandler is a function that processes a job
type JobHandler func(ctx context.Context, job Job) error

// QueueInterface defines the queue operations services depend on. Enqueue
// happens strictly after the caller's ledger transaction has committed.
type QueueInterface interface {
	RegisterHandler(jobType JobType, handler JobHandler)
	Enqueue(jobType JobType, payload interface{}) (string, error)
}

// Queue is a Redis-dispatched, database-backed job queue.
type Queue struct {
	client   *redis.Client
	db       *gorm.DB
	ctx      context.Context
	handlers map[JobType]JobHandler
}

const queueKeyPrefix = "queue:"

// NewQueue creates a new queue
func NewQueue(client *redis.Client, db *gorm.DB) *Queue {
	return &Queue{
		client:   client,
		db:       db,
		ctx:      context.Background(),
		handlers: make(map[JobType]JobHandler),
	}
}

// RegisterHandler registers a handler for a job type
func (q *Queue) RegisterHandler(jobType JobType, handler JobHandler) {
	q.handlers[jobType] = handler
}

// Enqueue persists a job row and pushes its ID for dispatch.
func (q *Queue) Enqueue(jobType JobType, payload interface{}) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := Job{
		ID:        uuid.New(),
		Type:      jobType,
		Payload:   payloadBytes,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := q.db.Create(&job).Error; err != nil {
		return "", fmt.Errorf("failed to persist job: %w", err)
	}

	if err := q.client.LPush(q.ctx, queueKeyPrefix+string(jobType), job.ID.String()).Err(); err != nil {
		return "", fmt.Errorf("failed to dispatch job: %w", err)
	}

	return job.ID.String(), nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(jobID string) (*Job, error) {
	var job Job
	err := q.db.Where("id = ?", jobID).First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("job not found")
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// queueKeys returns the Redis keys of every job type with a registered handler.
func (q *Queue) queueKeys() []string {
	keys := make([]string, 0, len(q.handlers))
	for jobType := range q.handlers {
		keys = append(keys, queueKeyPrefix+string(jobType))
	}
	return keys
}
