package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"virtufit-backend/internal/models"
	"virtufit-backend/internal/relay"
	"virtufit-backend/internal/services"
)

type TaskHandler struct {
	service *services.GenerationService
}

func NewTaskHandler(service *services.GenerationService) *TaskHandler {
	return &TaskHandler{service: service}
}

// GetTask godoc
// @Summary     Read a generation task
// @Description Single non-blocking status read. Finished tasks are served from the result cache.
// @Tags        generation
// @Produce     json
// @Param       task_id path string true "Provider task id"
// @Success     200 {object} models.TaskStatusResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /tasks/{task_id} [get]
func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID := c.Param("task_id")

	res, err := h.service.Status(c.Request.Context(), taskID)
	if err != nil {
		writeError(c, err, taskID)
		return
	}

	c.JSON(http.StatusOK, taskStatusResponse(res.Snapshot))
}

func taskStatusResponse(snap *relay.Snapshot) models.TaskStatusResponse {
	resp := models.TaskStatusResponse{
		TaskID:    snap.TaskID,
		Provider:  snap.Provider,
		Status:    snap.PublicStatus(),
		Progress:  snap.Progress,
		UpdatedAt: snap.PolledAt,
	}
	if snap.Status == relay.StatusSucceeded {
		resp.ModelURL = snap.ResultURL
		resp.ThumbnailURL = snap.ThumbnailURL
	}
	if snap.Error != nil {
		resp.Error = &models.TaskError{
			Code:       snap.Error.Code,
			Message:    snap.Error.Message,
			Suggestion: snap.Error.Suggestion,
		}
	}
	return resp
}
