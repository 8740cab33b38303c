package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"virtufit-backend/internal/models"
	"virtufit-backend/internal/relay"
)

// statusClientClosedRequest is logged when the caller hung up mid-request.
const statusClientClosedRequest = 499

// writeError maps an error onto the public error body. Transport failures
// never leak their details to the caller.
func writeError(c *gin.Context, err error, taskID string) {
	_ = c.Error(err)

	if errors.Is(err, context.Canceled) {
		c.AbortWithStatus(statusClientClosedRequest)
		return
	}

	re, ok := relay.AsError(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error", TaskID: taskID})
		return
	}

	switch re.Kind {
	case relay.KindValidation:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid request",
			Code:    re.Code,
			Message: re.Message,
			TaskID:  taskID,
		})
	case relay.KindConfiguration:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:      "configuration error",
			Code:       re.Code,
			Message:    re.Message,
			Suggestion: re.Suggestion,
		})
	case relay.KindProviderRejection:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:      "provider error",
			Code:       re.Code,
			Message:    re.Message,
			Suggestion: re.Suggestion,
			TraceID:    re.TraceID,
			TaskID:     taskID,
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal error",
			TraceID: re.TraceID,
			TaskID:  taskID,
		})
	}
}

// writeTaskFailure reports a task the provider finished unsuccessfully.
func writeTaskFailure(c *gin.Context, snap *relay.Snapshot) {
	resp := models.ErrorResponse{
		Error:  "generation failed",
		Code:   relay.CodeProviderError,
		TaskID: snap.TaskID,
	}
	if snap.Error != nil {
		resp.Code = snap.Error.Code
		resp.Message = snap.Error.Message
		resp.Suggestion = snap.Error.Suggestion
	}
	c.JSON(http.StatusInternalServerError, resp)
}
