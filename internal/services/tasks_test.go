package services

import (
	"context"
	"errors"
	"testing"

	"tasks-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubStore struct {
	tasks []models.Task
	err   error
}

func (s *stubStore) List(ctx context.Context) ([]models.Task, error) {
	return s.tasks, s.err
}

func (s *stubStore) Get(ctx context.Context, id int64) (models.Task, error) {
	return models.Task{ID: id}, s.err
}

func (s *stubStore) Create(ctx context.Context, input models.TaskInput) (models.Task, error) {
	return models.Task{ID: 1, Title: input.Title}, s.err
}

func (s *stubStore) Update(ctx context.Context, id int64, input models.TaskInput) (models.Task, error) {
	return models.Task{ID: id, Title: input.Title}, s.err
}

func (s *stubStore) Delete(ctx context.Context, id int64) (models.Task, error) {
	return models.Task{ID: id}, s.err
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"not found", ErrTaskNotFound, KindNotFound},
		{"wrapped not found", errors.Join(errors.New("ctx"), ErrTaskNotFound), KindNotFound},
		{"storage", NewStorageError("get task", errors.New("conn refused")), KindStorage},
		{"anything else", errors.New("strconv.ParseInt: invalid syntax"), KindStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "storage", KindStorage.String())
	assert.Equal(t, "kind(9)", ErrorKind(9).String())
}

func TestStorageError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStorageError("list tasks", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "list tasks: connection reset", err.Error())

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "list tasks", se.Op)
}

func TestTaskService_MapsRecordNotFound(t *testing.T) {
	svc := NewTaskService(&stubStore{err: gorm.ErrRecordNotFound})
	ctx := context.Background()

	_, err := svc.GetTask(ctx, 1)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = svc.UpdateTask(ctx, 1, models.TaskInput{})
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = svc.DeleteTask(ctx, 1)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskService_WrapsStorageErrors(t *testing.T) {
	cause := errors.New("relation \"tasks\" does not exist")
	svc := NewTaskService(&stubStore{err: cause})
	ctx := context.Background()

	_, err := svc.ListTasks(ctx)
	assert.Equal(t, KindStorage, KindOf(err))
	assert.ErrorIs(t, err, cause)

	_, err = svc.CreateTask(ctx, models.TaskInput{})
	assert.Equal(t, KindStorage, KindOf(err))
}

func TestTaskService_ListNeverNil(t *testing.T) {
	svc := NewTaskService(&stubStore{tasks: nil})

	tasks, err := svc.ListTasks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Len(t, tasks, 0)
}
