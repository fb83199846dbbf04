package models

// Task mirrors a row of the tasks table. Nullable columns are pointers so a
// NULL round-trips as JSON null.
type Task struct {
	ID          int64   `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Title       *string `json:"title" gorm:"column:title;not null"`
	Description *string `json:"description" gorm:"column:description"`
	Completed   *bool   `json:"completed" gorm:"column:completed;default:false"`
}

func (Task) TableName() string {
	return "tasks"
}

// TaskInput is the request body for create and update. Absent fields stay nil
// and are written as NULL.
type TaskInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}
