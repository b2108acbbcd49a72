package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-co-op/gocron"
)

// Worker processes jobs from a queue
type Worker struct {
	queue      *Queue
	numWorkers int
	wg         sync.WaitGroup
	quit       chan struct{}
	scheduler  *gocron.Scheduler
}

// NewWorker creates a new worker
func NewWorker(q *Queue, numWorkers int) *Worker {
	return &Worker{
		queue:      q,
		numWorkers: numWorkers,
		quit:       make(chan struct{}),
		scheduler:  gocron.NewScheduler(time.UTC),
	}
}

// Scheduler exposes the cron scheduler for recurring jobs.
func (w *Worker) Scheduler() *gocron.Scheduler {
	return w.scheduler
}

// Start starts the worker pool and the recurring job scheduler.
func (w *Worker) Start() {
	log.Printf("Starting %d queue workers", w.numWorkers)

	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.process(i)
	}

	w.scheduler.StartAsync()
}

// Stop stops the worker
func (w *Worker) Stop() {
	log.Printf("Stopping queue workers")
	close(w.quit)
	w.wg.Wait()
	w.scheduler.Stop()
}

// process pulls job IDs from Redis and runs their handlers.
func (w *Worker) process(workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.quit:
			log.Printf("Worker %d stopped", workerID)
			return
		default:
			keys := w.queue.queueKeys()
			if len(keys) == 0 {
				time.Sleep(time.Second)
				continue
			}

			res, err := w.queue.client.BRPop(w.queue.ctx, time.Second, keys...).Result()
			if err != nil {
				if err != redis.Nil {
					log.Printf("Error dequeueing job: %v", err)
					time.Sleep(time.Second)
				}
				continue
			}

			// BRPop returns [key, value]
			if len(res) != 2 {
				continue
			}
			w.runJob(res[1])
		}
	}
}

func (w *Worker) runJob(jobID string) {
	job, err := w.queue.GetJob(jobID)
	if err != nil {
		log.Printf("Failed to load job %s: %v", jobID, err)
		return
	}

	handler, ok := w.queue.handlers[job.Type]
	if !ok {
		log.Printf("No handler registered for job type: %s", job.Type)
		return
	}

	w.updateStatus(job, JobStatusProcessing, "")

	if err := handler(context.Background(), *job); err != nil {
		w.handleFailure(job, err)
		return
	}

	w.updateStatus(job, JobStatusCompleted, "")
}

// handleFailure retries the job with backoff or marks it failed.
func (w *Worker) handleFailure(job *Job, jobErr error) {
	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		w.updateStatus(job, JobStatusPending, jobErr.Error())

		delay := calculateBackoff(job.RetryCount)
		jobID := job.ID.String()
		jobType := job.Type
		time.AfterFunc(delay, func() {
			if err := w.queue.client.LPush(w.queue.ctx, queueKeyPrefix+string(jobType), jobID).Err(); err != nil {
				log.Printf("Failed to requeue job %s: %v", jobID, err)
			}
		})
		log.Printf("Job %s failed (attempt %d/%d), retrying in %s: %v",
			job.ID, job.RetryCount, job.MaxRetries, delay, jobErr)
		return
	}

	w.updateStatus(job, JobStatusFailed, jobErr.Error())
	log.Printf("Job %s failed permanently: %v", job.ID, jobErr)
}

func (w *Worker) updateStatus(job *Job, status JobStatus, errMsg string) {
	updates := map[string]interface{}{
		"status":      status,
		"retry_count": job.RetryCount,
		"updated_at":  time.Now(),
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	if err := w.queue.db.Model(job).Updates(updates).Error; err != nil {
		log.Printf("Failed to update job status: %v", err)
	}
}
