package handlers

import (
	"net/http"
	"strconv"

	"tasks-api/internal/logging"
	"tasks-api/internal/middleware"
	"tasks-api/internal/services"
	"tasks-api/internal/shipper"

	"github.com/gin-gonic/gin"
)

const notFoundMessage = "task not found"

type taskOp struct {
	// failure is both the client message and the remote log message on a
	// storage failure.
	failure string
	// notFound is the log message when the row is missing.
	notFound string
}

var (
	opList   = taskOp{failure: "failed to list tasks"}
	opGet    = taskOp{failure: "failed to fetch task", notFound: "task not found"}
	opCreate = taskOp{failure: "failed to create task"}
	opUpdate = taskOp{failure: "failed to update task", notFound: "task not found for update"}
	opDelete = taskOp{failure: "failed to delete task", notFound: "task not found for delete"}
)

// respondError is the only place where error kinds become HTTP statuses.
// Storage details are logged and never sent to the client.
func (h *TaskHandler) respondError(c *gin.Context, op taskOp, err error) {
	meta := idMeta(c)

	switch services.KindOf(err) {
	case services.KindNotFound:
		logging.Info().Interface("id", meta["id"]).Msg(op.notFound)
		h.logs.Info(op.notFound, requestMeta(c, meta))
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMessage})
	default:
		logging.Error().Err(err).Str("id", c.Param("id")).Msg(op.failure)
		meta["error"] = err.Error()
		h.logs.Error(op.failure, requestMeta(c, meta))
		c.JSON(http.StatusInternalServerError, gin.H{"error": op.failure})
	}
}

// idMeta carries the task id as a number, the same type the success logs
// use. A path id that does not parse goes under raw_id instead.
func idMeta(c *gin.Context) shipper.Meta {
	meta := shipper.Meta{}
	raw := c.Param("id")
	if raw == "" {
		return meta
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		meta["id"] = id
	} else {
		meta["raw_id"] = raw
	}
	return meta
}

func requestMeta(c *gin.Context, meta shipper.Meta) shipper.Meta {
	if rid := middleware.RequestIDFrom(c); rid != "" {
		meta["request_id"] = rid
	}
	return meta
}
