package task

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/tasklane/tasklane/internal/database"
	"github.com/tasklane/tasklane/internal/model"
)

// maxTaskOrder is the highest order a task can hold.
const maxTaskOrder = math.MaxInt32

var (
	errTaskNotFound = model.ErrNotFound("task not found")
	errNotOwner     = model.ErrForbidden("you do not have permission to modify this task")
)

// Service enforces task ownership and per-owner ordering.
type Service struct {
	tasks database.TaskDB
}

// NewService creates a task service backed by tasks.
func NewService(tasks database.TaskDB) *Service {
	return &Service{tasks: tasks}
}

// Create adds a pending task at the end of the owner's list.
func (s *Service) Create(ctx context.Context, ownerID, title, description string) (*model.Task, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)

	v := model.NewValidator()
	v.CheckCond(title != "", "title", "must be provided")
	v.CheckCond(len(title) <= 255, "title", "must be at most 255 characters")
	v.CheckCond(description != "", "description", "must be provided")
	if err := v.Err(); err != nil {
		return nil, err
	}

	maxOrder, ok, err := s.tasks.MaxOrder(ctx, ownerID)
	if err != nil {
		return nil, model.ErrInternal(err)
	}
	order := 0
	if ok {
		if maxOrder >= maxTaskOrder {
			return nil, model.ErrValidation("task list is full; reorder tasks to free up positions")
		}
		order = maxOrder + 1
	}

	task := &model.Task{
		ID:          uuid.Must(uuid.NewV4()).String(),
		Title:       title,
		Description: description,
		Status:      model.TaskStatusPending,
		UserID:      ownerID,
		Order:       order,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, model.ErrInternal(err)
	}
	return task, nil
}

// ListByOwner returns the owner's tasks in display order.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]*model.Task, error) {
	tasks, err := s.tasks.ListTasksByOwner(ctx, ownerID)
	if err != nil {
		return nil, model.ErrInternal(err)
	}
	return tasks, nil
}

// getOwned loads a task and checks that requesterID owns it.
func (s *Service) getOwned(ctx context.Context, taskID, requesterID string) (*model.Task, error) {
	if _, err := uuid.FromString(taskID); err != nil {
		return nil, errTaskNotFound
	}
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, errTaskNotFound
		}
		return nil, model.ErrInternal(err)
	}
	if !task.IsOwnedBy(requesterID) {
		return nil, errNotOwner
	}
	return task, nil
}

// Update applies the title, description and status present in update.
func (s *Service) Update(ctx context.Context, taskID, requesterID string, update model.TaskUpdate) (*model.Task, error) {
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		update.Title = &title
	}
	if update.Description != nil {
		description := strings.TrimSpace(*update.Description)
		update.Description = &description
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	task, err := s.getOwned(ctx, taskID, requesterID)
	if err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return task, nil
	}

	updated := task.Update(update)
	if err := s.tasks.Update(ctx, updated); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, errTaskNotFound
		}
		return nil, model.ErrInternal(err)
	}
	return updated, nil
}

// UpdateStatus sets the status of a task.
func (s *Service) UpdateStatus(ctx context.Context, taskID, requesterID string, status model.TaskStatus) (*model.Task, error) {
	if !status.IsValid() {
		return nil, model.ErrValidation("status must be one of pending, completed, done")
	}
	return s.Update(ctx, taskID, requesterID, model.TaskUpdate{Status: &status})
}

// Delete permanently removes a task.
func (s *Service) Delete(ctx context.Context, taskID, requesterID string) error {
	if _, err := s.getOwned(ctx, taskID, requesterID); err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, taskID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return errTaskNotFound
		}
		return model.ErrInternal(err)
	}
	return nil
}

// ReorderBatch sets the order of several tasks at once. Every entry is
// checked before anything is written, and the writes are applied in a
// single transaction.
func (s *Service) ReorderBatch(ctx context.Context, requesterID string, orders []model.TaskOrder) error {
	if len(orders) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		if o.TaskID == "" {
			return model.ErrValidation("taskId must be provided")
		}
		if seen[o.TaskID] {
			return model.ErrValidation("task " + o.TaskID + " appears more than once")
		}
		if o.Order < 0 || o.Order > maxTaskOrder {
			return model.ErrValidation(fmt.Sprintf("order must be between 0 and %d", maxTaskOrder))
		}
		seen[o.TaskID] = true
	}

	for _, o := range orders {
		if _, err := s.getOwned(ctx, o.TaskID, requesterID); err != nil {
			return err
		}
	}

	if err := s.tasks.UpdateTaskOrders(ctx, orders); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return errTaskNotFound
		}
		return model.ErrInternal(err)
	}
	return nil
}
