package services

import (
	"context"
	"errors"

	"tasks-api/internal/models"

	"gorm.io/gorm"
)

type TaskService interface {
	ListTasks(ctx context.Context) ([]models.Task, error)
	GetTask(ctx context.Context, id int64) (models.Task, error)
	CreateTask(ctx context.Context, input models.TaskInput) (models.Task, error)
	UpdateTask(ctx context.Context, id int64, input models.TaskInput) (models.Task, error)
	DeleteTask(ctx context.Context, id int64) (models.Task, error)
}

// TaskStore is the storage contract the service needs. A missing row must be
// reported as gorm.ErrRecordNotFound.
type TaskStore interface {
	List(ctx context.Context) ([]models.Task, error)
	Get(ctx context.Context, id int64) (models.Task, error)
	Create(ctx context.Context, input models.TaskInput) (models.Task, error)
	Update(ctx context.Context, id int64, input models.TaskInput) (models.Task, error)
	Delete(ctx context.Context, id int64) (models.Task, error)
}

type taskService struct {
	store TaskStore
}

func NewTaskService(store TaskStore) TaskService {
	return &taskService{store: store}
}

func (s *taskService) ListTasks(ctx context.Context) ([]models.Task, error) {
	tasks, err := s.store.List(ctx)
	if err != nil {
		return nil, classify("list tasks", err)
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

func (s *taskService) GetTask(ctx context.Context, id int64) (models.Task, error) {
	task, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Task{}, classify("get task", err)
	}
	return task, nil
}

func (s *taskService) CreateTask(ctx context.Context, input models.TaskInput) (models.Task, error) {
	task, err := s.store.Create(ctx, input)
	if err != nil {
		return models.Task{}, classify("create task", err)
	}
	return task, nil
}

func (s *taskService) UpdateTask(ctx context.Context, id int64, input models.TaskInput) (models.Task, error) {
	task, err := s.store.Update(ctx, id, input)
	if err != nil {
		return models.Task{}, classify("update task", err)
	}
	return task, nil
}

func (s *taskService) DeleteTask(ctx context.Context, id int64) (models.Task, error) {
	task, err := s.store.Delete(ctx, id)
	if err != nil {
		return models.Task{}, classify("delete task", err)
	}
	return task, nil
}

func classify(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTaskNotFound
	}
	return NewStorageError(op, err)
}
