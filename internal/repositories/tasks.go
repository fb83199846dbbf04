package repositories

import (
	"context"

	"tasks-api/internal/models"

	"gorm.io/gorm"
)

const taskColumns = "id, title, description, completed"

const postgresSchema = `CREATE TABLE IF NOT EXISTS tasks (
	id SERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	completed BOOLEAN DEFAULT FALSE
)`

const sqliteSchema = `CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT,
	completed BOOLEAN DEFAULT FALSE
)`

// TaskRepository issues exactly one parameterized statement per call. A
// missing row is reported as gorm.ErrRecordNotFound.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) EnsureSchema(ctx context.Context) error {
	ddl := postgresSchema
	if r.db.Dialector.Name() == "sqlite" {
		ddl = sqliteSchema
	}
	return r.db.WithContext(ctx).Exec(ddl).Error
}

func (r *TaskRepository) List(ctx context.Context) ([]models.Task, error) {
	tasks := make([]models.Task, 0)
	err := r.db.WithContext(ctx).
		Raw("SELECT " + taskColumns + " FROM tasks ORDER BY id ASC").
		Scan(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) Get(ctx context.Context, id int64) (models.Task, error) {
	return r.one(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
}

func (r *TaskRepository) Create(ctx context.Context, input models.TaskInput) (models.Task, error) {
	return r.one(ctx,
		"INSERT INTO tasks (title, description) VALUES (?, ?) RETURNING "+taskColumns,
		input.Title, input.Description)
}

func (r *TaskRepository) Update(ctx context.Context, id int64, input models.TaskInput) (models.Task, error) {
	return r.one(ctx,
		"UPDATE tasks SET title = ?, description = ?, completed = ? WHERE id = ? RETURNING "+taskColumns,
		input.Title, input.Description, input.Completed, id)
}

func (r *TaskRepository) Delete(ctx context.Context, id int64) (models.Task, error) {
	return r.one(ctx, "DELETE FROM tasks WHERE id = ? RETURNING "+taskColumns, id)
}

func (r *TaskRepository) one(ctx context.Context, query string, args ...interface{}) (models.Task, error) {
	var task models.Task
	result := r.db.WithContext(ctx).Raw(query, args...).Scan(&task)
	if result.Error != nil {
		return models.Task{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Task{}, gorm.ErrRecordNotFound
	}
	return task, nil
}
