// internal/services/task_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ratedarts/fulfillment/internal/models"
)

// TaskService runs background asset jobs and records their status so a
// caller can await or poll them.
type TaskService struct {
	db      *gorm.DB
	timeout time.Duration
	log     logrus.FieldLogger

	mu      sync.Mutex
	running map[uuid.UUID]*taskHandle
	closed  bool
	wg      sync.WaitGroup
}

type taskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// TaskFunc is the job body. An *AssetFailures error is stored as task details.
type TaskFunc func(ctx context.Context) error

var ErrTaskServiceClosed = errors.New("task service is shutting down")

func NewTaskService(db *gorm.DB, timeout time.Duration, log logrus.FieldLogger) *TaskService {
	return &TaskService{
		db:      db,
		timeout: timeout,
		log:     log.WithField("component", "tasks"),
		running: make(map[uuid.UUID]*taskHandle),
	}
}

// Start records a pending task and runs fn in the background under parent.
// Cancelling parent, calling Cancel or Shutdown stops the job.
func (s *TaskService) Start(parent context.Context, productID int64, kind models.AssetTaskKind, fn TaskFunc) (*models.AssetTask, error) {
	task := &models.AssetTask{
		ID:        uuid.New(),
		ProductID: productID,
		Kind:      kind,
		Status:    models.AssetTaskStatusPending,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrTaskServiceClosed
	}

	if err := s.db.WithContext(parent).Create(task).Error; err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	handle := &taskHandle{cancel: cancel, done: make(chan struct{})}
	s.running[task.ID] = handle

	s.wg.Add(1)
	go s.run(ctx, task.ID, handle, fn)

	return task, nil
}

func (s *TaskService) run(ctx context.Context, id uuid.UUID, handle *taskHandle, fn TaskFunc) {
	defer s.wg.Done()
	defer close(handle.done)
	defer handle.cancel()
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	log := s.log.WithField("task_id", id)
	started := time.Now()
	s.update(id, map[string]interface{}{
		"status":     models.AssetTaskStatusRunning,
		"started_at": started,
	})

	err := s.safeRun(ctx, fn)

	finished := time.Now()
	updates := map[string]interface{}{
		"status":      models.AssetTaskStatusSucceeded,
		"finished_at": finished,
	}
	if err != nil {
		updates["status"] = models.AssetTaskStatusFailed
		updates["error"] = err.Error()

		var failures *AssetFailures
		if errors.As(err, &failures) {
			updates["details"] = models.JSONB{"failures": failures.Failures}
		}
		log.WithError(err).Error("Asset task failed")
	} else {
		log.WithField("duration_ms", finished.Sub(started).Milliseconds()).Info("Asset task completed")
	}
	s.update(id, updates)
}

func (s *TaskService) safeRun(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// update writes status changes with a fresh context so a cancelled job can
// still record why it stopped.
func (s *TaskService) update(id uuid.UUID, updates map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.WithContext(ctx).Model(&models.AssetTask{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		s.log.WithError(err).WithField("task_id", id).Error("Failed to update task status")
	}
}

func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (*models.AssetTask, error) {
	var task models.AssetTask
	if err := s.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "task", ID: id}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &task, nil
}

// Wait blocks until the task finishes or ctx ends, then returns its
// recorded state.
func (s *TaskService) Wait(ctx context.Context, id uuid.UUID) (*models.AssetTask, error) {
	s.mu.Lock()
	handle, ok := s.running[id]
	s.mu.Unlock()

	if ok {
		select {
		case <-handle.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Get(ctx, id)
}

func (s *TaskService) Cancel(id uuid.UUID) {
	s.mu.Lock()
	handle, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		handle.cancel()
	}
}

// Shutdown cancels running tasks and waits for them to record their state.
func (s *TaskService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, handle := range s.running {
		handle.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
