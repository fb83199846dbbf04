package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"tasks-api/internal/logging"
	"tasks-api/internal/models"
	"tasks-api/internal/services"
	"tasks-api/internal/shipper"

	"github.com/gin-gonic/gin"
)

// LogRecorder is the remote log side channel. Implementations must not block
// and must never fail the caller.
type LogRecorder interface {
	Info(message string, meta shipper.Meta)
	Error(message string, meta shipper.Meta)
}

type TaskHandler struct {
	taskService services.TaskService
	logs        LogRecorder
}

func NewTaskHandler(taskService services.TaskService, logs LogRecorder) *TaskHandler {
	return &TaskHandler{taskService: taskService, logs: logs}
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	tasks, err := h.taskService.ListTasks(c.Request.Context())
	if err != nil {
		h.respondError(c, opList, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.respondError(c, opGet, err)
		return
	}

	task, err := h.taskService.GetTask(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, opGet, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	input, ok := bindInput(c)
	if !ok {
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, opCreate, err)
		return
	}

	logging.Info().Int64("id", task.ID).Msg("task created")
	h.logs.Info("task created", requestMeta(c, shipper.Meta{"task": task}))
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.respondError(c, opUpdate, err)
		return
	}

	input, ok := bindInput(c)
	if !ok {
		return
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), id, input)
	if err != nil {
		h.respondError(c, opUpdate, err)
		return
	}

	logging.Info().Int64("id", task.ID).Msg("task updated")
	h.logs.Info("task updated", requestMeta(c, shipper.Meta{"task": task}))
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.respondError(c, opDelete, err)
		return
	}

	if _, err := h.taskService.DeleteTask(c.Request.Context(), id); err != nil {
		h.respondError(c, opDelete, err)
		return
	}

	logging.Info().Int64("id", id).Msg("task deleted")
	h.logs.Info("task deleted", requestMeta(c, shipper.Meta{"id": id}))
	c.Status(http.StatusNoContent)
}

// parseID reads the :id path parameter. A malformed id is treated like any
// other storage-level failure.
func parseID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, services.NewStorageError("parse task id", err)
	}
	return id, nil
}

// bindInput decodes the optional JSON body. An empty body decodes to an empty
// input so every field is forwarded as NULL.
func bindInput(c *gin.Context) (models.TaskInput, bool) {
	var input models.TaskInput
	if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return input, false
	}
	return input, true
}
